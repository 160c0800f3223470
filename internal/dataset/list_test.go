package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestListImages(t *testing.T) {
	dataDir := t.TempDir()
	classDir := filepath.Join(dataDir, "dandelion")
	if err := os.MkdirAll(filepath.Join(classDir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"00000002.jpg", "00000000.JPG", "00000001.png", "b.jpeg", "notes.txt", ".00000003.jpg.tmp", ".hidden.jpg"} {
		if err := os.WriteFile(filepath.Join(classDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	all, err := ListImages(dataDir, "dandelion", 0)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	want := []string{
		filepath.Join(classDir, "00000000.JPG"),
		filepath.Join(classDir, "00000001.png"),
		filepath.Join(classDir, "00000002.jpg"),
		filepath.Join(classDir, "b.jpeg"),
	}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Fatalf("ListImages mismatch (-want +got):\n%s", diff)
	}

	limited, err := ListImages(dataDir, "dandelion", 2)
	if err != nil {
		t.Fatalf("ListImages limited: %v", err)
	}
	if diff := cmp.Diff(want[:2], limited); diff != "" {
		t.Fatalf("limited mismatch (-want +got):\n%s", diff)
	}
}

func TestListImagesMissingClass(t *testing.T) {
	got, err := ListImages(t.TempDir(), "grass", 5)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
}
