package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forecastkit/forecastkit/pkg/identity"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	content := []byte("item_id,timestamp,demand\nA,2024-01-01,10\n")
	if err := os.MkdirAll(filepath.Join(root, "taxi"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "taxi", "data.csv"), content, 0644); err != nil {
		t.Fatal(err)
	}

	store, err := NewLocalStore(root)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	body, err := store.Open(context.Background(), "taxi/data.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	_ = body.Close()
	if string(got) != string(content) {
		t.Error("file content mismatch")
	}

	fp, err := store.Fingerprint(context.Background(), "taxi/data.csv")
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if want := identity.FingerprintBytes(content); fp != want {
		t.Errorf("expected fingerprint %s, got %s", want, fp)
	}
}

func TestLocalStoreLocations(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	uri := store.URI("taxi/data.csv")
	if !strings.HasPrefix(uri, root) || !strings.HasSuffix(uri, filepath.Join("taxi", "data.csv")) {
		t.Errorf("unexpected URI %s", uri)
	}

	prefix := store.ExportPrefix("taxi", "exec-001")
	if !strings.Contains(prefix, filepath.Join("exports", "taxi", "exec-001")) {
		t.Errorf("unexpected export prefix %s", prefix)
	}
}

func TestLocalStoreRejectsMissingRoot(t *testing.T) {
	if _, err := NewLocalStore(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected an error for a missing root")
	}
}
