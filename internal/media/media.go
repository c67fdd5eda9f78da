// Package media provides durable storage for uploaded and generated images,
// addressable by opaque keys. It defines the Store interface (port) for
// hexagonal architecture and implementations for local disk and S3.
//
// Keys are write-once: Put always mints a fresh key and nothing ever
// overwrites an existing one.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no object exists for a key.
var ErrNotFound = errors.New("media: object not found")

// Kind namespaces stored objects by their role in the fitting flow.
type Kind string

const (
	// KindUserImage is an uploaded user photo.
	KindUserImage Kind = "user"
	// KindResultImage is a synthesized try-on image.
	KindResultImage Kind = "result"
)

// Store defines the interface for image storage.
type Store interface {
	// Put stores the bytes under a freshly minted key and returns it.
	Put(ctx context.Context, kind Kind, data []byte) (string, error)

	// Get reads the bytes stored under the key.
	// Returns ErrNotFound if nothing is stored there.
	Get(ctx context.Context, key string) ([]byte, error)

	// URL returns a URL from which the object can be fetched by an
	// external party, such as the generation provider.
	URL(key string) string
}

// newKey mints a key of the form {kind}/{uuid}.jpg.
func newKey(kind Kind) string {
	return fmt.Sprintf("%s/%s.jpg", kind, uuid.NewString())
}
