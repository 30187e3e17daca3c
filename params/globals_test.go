package params

import (
	"errors"
	"testing"
)

func TestPresets(t *testing.T) {
	for _, name := range []string{"", "default", "gpault", "tiny"} {
		cfg, err := Preset(name)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%q does not validate: %v", name, err)
		}
	}
	if _, err := Preset("xl"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("unknown preset: got %v", err)
	}
}

func TestDefaultsMatchReferenceRun(t *testing.T) {
	c := Config
	if c.BatchSize != 64 || c.BlockSize != 256 || c.NEmbed != 384 || c.NHead != 6 ||
		c.NLayer != 6 || c.Dropout != 0.2 || c.MaxIters != 5000 || c.EvalInterval != 500 ||
		c.EvalIters != 200 || c.LearningRate != 3e-4 || c.MaxNewTokens != 10000 {
		t.Fatalf("defaults drifted: %+v", c)
	}
	if c.HeadSize() != 64 {
		t.Fatalf("head size %d", c.HeadSize())
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*TrainingConfig){
		"indivisible heads": func(c *TrainingConfig) { c.NHead = 5 },
		"zero batch":        func(c *TrainingConfig) { c.BatchSize = 0 },
		"dropout one":       func(c *TrainingConfig) { c.Dropout = 1 },
		"train frac":        func(c *TrainingConfig) { c.TrainFrac = 1 },
		"zero lr":           func(c *TrainingConfig) { c.LearningRate = 0 },
		"eval interval":     func(c *TrainingConfig) { c.EvalInterval = 0 },
	}
	for name, mutate := range cases {
		c := Tiny
		mutate(&c)
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: got %v", name, err)
		}
	}
}
