// Package replicate provides an HTTP client for the Replicate predictions API,
// used to run the IDM-VTON virtual try-on model.
package replicate

import "encoding/json"

// Status represents the status of a Replicate prediction.
type Status string

// Prediction statuses aligned with the Replicate API.
const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// predictionInput is the model input for an IDM-VTON prediction.
type predictionInput struct {
	GarmImg    string `json:"garm_img"`
	HumanImg   string `json:"human_img"`
	Category   string `json:"category"`
	GarmentDes string `json:"garment_des"`
}

// predictionRequest is the request body for POST /v1/predictions.
type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

// predictionResponse is the response for prediction create and status calls.
type predictionResponse struct {
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// outputURL extracts the result image URL from the output field, which the
// model returns either as a bare string or as a one-element array.
func (r *predictionResponse) outputURL() string {
	if len(r.Output) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Output, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(r.Output, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

// QueryResult contains the result of querying a prediction's status.
type QueryResult struct {
	Status    Status
	OutputURL string // Result image URL (only set when Status is StatusSucceeded)
	Error     string // Error message (only set when Status is StatusFailed)
}
