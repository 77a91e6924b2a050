package assets_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ponderpaw/readalong/pkg/assets"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirResolver_ResolvesExistingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "audio", "page1.mp3"))

	r := assets.NewDirResolver(dir)
	got, err := r.Resolve("audio/page1.mp3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join(dir, "audio", "page1.mp3") {
		t.Errorf("Resolve = %q, want path under %q", got, dir)
	}
}

func TestDirResolver_MissingFileIsNotFound(t *testing.T) {
	t.Parallel()

	r := assets.NewDirResolver(t.TempDir())
	_, err := r.Resolve("nope.mp3")
	if !errors.Is(err, assets.ErrNotFound) {
		t.Errorf("Resolve(missing) err = %v, want ErrNotFound", err)
	}
}

func TestDirResolver_EmptyKeyIsNotFound(t *testing.T) {
	t.Parallel()

	r := assets.NewDirResolver(t.TempDir())
	_, err := r.Resolve("")
	if !errors.Is(err, assets.ErrNotFound) {
		t.Errorf("Resolve(\"\") err = %v, want ErrNotFound", err)
	}
}

func TestDirResolver_RejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// A real file outside the story folder must stay unreachable.
	outside := filepath.Join(filepath.Dir(dir), "secret.mp3")
	writeFile(t, outside)
	t.Cleanup(func() { os.Remove(outside) })

	r := assets.NewDirResolver(dir)
	_, err := r.Resolve("../secret.mp3")
	if !errors.Is(err, assets.ErrNotFound) {
		t.Errorf("Resolve(escape) err = %v, want ErrNotFound", err)
	}
}

func TestDirResolver_RejectsDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "audio"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := assets.NewDirResolver(dir)
	_, err := r.Resolve("audio")
	if !errors.Is(err, assets.ErrNotFound) {
		t.Errorf("Resolve(dir) err = %v, want ErrNotFound", err)
	}
}
