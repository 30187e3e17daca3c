package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulchinnam/GPaulT/params"
	"github.com/paulchinnam/GPaulT/utils"
)

func TestParseFlagsOverridesPreset(t *testing.T) {
	cfg, err := parseFlags([]string{"-preset", "tiny", "-iters", "7", "-seed", "42", "-log-csv", "-", "-device", "cpu"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxIters != 7 || cfg.Seed != 42 || cfg.LogCSV != "" || cfg.Device != "cpu" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.NEmbed != params.Tiny.NEmbed || cfg.DataDir != params.Tiny.DataDir {
		t.Fatal("unset flags should keep preset values")
	}

	cfg, err = parseFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg != params.Config {
		t.Fatal("no flags should give the default config")
	}
}

func TestParseFlagsRejectsBadValues(t *testing.T) {
	if _, err := parseFlags([]string{"-preset", "huge"}); !errors.Is(err, params.ErrInvalidConfig) {
		t.Fatalf("unknown preset: got %v", err)
	}
	if _, err := parseFlags([]string{"-workers", "2", "-iters", "-1"}); !errors.Is(err, params.ErrInvalidConfig) {
		t.Fatalf("negative iters: got %v", err)
	}
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "scripts")
	if err := os.Mkdir(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	corpus := strings.Repeat("to be or not to be. ", 60)
	if err := os.WriteFile(filepath.Join(dataDir, "hamlet.txt"), []byte(corpus), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := params.Tiny
	cfg.BatchSize = 2
	cfg.BlockSize = 8
	cfg.NEmbed = 8
	cfg.NHead = 2
	cfg.NLayer = 1
	cfg.MaxIters = 3
	cfg.EvalInterval = 2
	cfg.EvalIters = 1
	cfg.Device = utils.DeviceCPU
	cfg.DataDir = dataDir
	cfg.OutputPath = filepath.Join(dir, "modelOutputs", "output.txt")
	cfg.MaxNewTokens = 20
	cfg.LogCSV = filepath.Join(dir, "modelOutputs", "training_log.csv")
	cfg.LogDB = filepath.Join(dir, "modelOutputs", "runs.db")

	var stdout bytes.Buffer
	if err := run(cfg, &stdout); err != nil {
		t.Fatal(err)
	}

	out := stdout.String()
	for _, want := range []string{
		"Device: cpu\n",
		"Length of dataset in characters: 1200\n",
		"vocabulary size: 8\n",
		"Step 0: train loss ",
		"Step 2: train loss ",
		"Time taken: ",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("stdout missing %q:\n%s", want, out)
		}
	}

	generated, err := os.ReadFile(cfg.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if n := len([]rune(string(generated))); n != 21 {
		t.Fatalf("generated %d characters, want 21", n)
	}
	// id 0 is the smallest symbol, a space here
	if generated[0] != ' ' {
		t.Fatalf("generation should start from the seed, got %q", generated)
	}

	logged, err := os.ReadFile(cfg.LogCSV)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(logged), "\n"); lines != 3 {
		t.Fatalf("csv has %d lines:\n%s", lines, logged)
	}
}

func TestRunMissingCorpus(t *testing.T) {
	cfg := params.Tiny
	cfg.Device = utils.DeviceCPU
	cfg.DataDir = filepath.Join(t.TempDir(), "nope")
	cfg.LogCSV = ""
	if err := run(cfg, &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error for a missing corpus directory")
	}
}
