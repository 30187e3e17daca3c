package IO

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadCorpusJoinsTxtFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.txt":    "second",
		"a.txt":    "first",
		"notes.md": "skipped",
		"c.txt":    "third\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ReadCorpus(dir)
	if err != nil {
		t.Fatal(err)
	}
	if want := "first second third\n"; got != want {
		t.Fatalf("corpus = %q, want %q", got, want)
	}
}

func TestReadCorpusEmptyDir(t *testing.T) {
	if _, err := ReadCorpus(t.TempDir()); !errors.Is(err, ErrNoCorpus) {
		t.Fatalf("err = %v, want ErrNoCorpus", err)
	}
	if _, err := ReadCorpus(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("missing dir should fail")
	}
}

func TestWriteOutputCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelOutputs", "output.txt")
	if err := WriteOutput(path, "abab"); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "abab" {
		t.Fatalf("output = %q", raw)
	}
}
