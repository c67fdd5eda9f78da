package media

import "testing"

func TestNewS3Store(t *testing.T) {
	store, err := NewS3Store(S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566", // LocalStack-like endpoint
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	if err != nil {
		t.Fatalf("NewS3Store() error = %v", err)
	}

	if store.bucket != "test-bucket" {
		t.Errorf("bucket = %v, want test-bucket", store.bucket)
	}
	if store.region != "us-east-1" {
		t.Errorf("region = %v, want us-east-1", store.region)
	}
}

func TestS3Store_URL(t *testing.T) {
	store := &S3Store{bucket: "lookfit-media", region: "ap-northeast-2"}

	got := store.URL("result/abc.jpg")
	want := "https://lookfit-media.s3.ap-northeast-2.amazonaws.com/result/abc.jpg"
	if got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}
