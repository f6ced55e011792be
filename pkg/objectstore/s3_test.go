package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/forecastkit/forecastkit/pkg/identity"
)

type fakeS3 struct {
	t       *testing.T
	objects map[string][]byte
	calls   int
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	if *params.Bucket != "uploads" {
		f.t.Errorf("unexpected bucket %s", *params.Bucket)
	}
	data, ok := f.objects[*params.Key]
	if !ok {
		f.t.Fatalf("unexpected key %s", *params.Key)
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func TestS3StoreOpenAndFingerprint(t *testing.T) {
	content := []byte("item_id,timestamp,demand\nA,2024-01-01,10\n")
	api := &fakeS3{t: t, objects: map[string][]byte{
		"taxi/data.csv": content,
	}}
	store := NewS3Store(api, "uploads")

	body, err := store.Open(context.Background(), "taxi/data.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	_ = body.Close()
	if !bytes.Equal(got, content) {
		t.Error("object content mismatch")
	}

	fp, err := store.Fingerprint(context.Background(), "taxi/data.csv")
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if want := identity.FingerprintBytes(content); fp != want {
		t.Errorf("expected fingerprint %s, got %s", want, fp)
	}
}

func TestS3StoreLocations(t *testing.T) {
	store := NewS3Store(&fakeS3{}, "uploads")

	if got := store.URI("taxi/data.csv"); got != "s3://uploads/taxi/data.csv" {
		t.Errorf("unexpected URI %s", got)
	}
	if got := store.URI("/taxi/data.csv"); got != "s3://uploads/taxi/data.csv" {
		t.Errorf("unexpected URI for leading slash: %s", got)
	}
	if got := store.ExportPrefix("taxi", "exec-001"); got != "s3://uploads/exports/taxi/exec-001/" {
		t.Errorf("unexpected export prefix %s", got)
	}
}
