package params

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid config")

type TrainingConfig struct {
	// Core transformer parameters
	BatchSize int     // independent sequences per step
	BlockSize int     // context window (num in chars)
	NEmbed    int     // model width
	NHead     int     // attention heads, headSize = NEmbed/NHead
	NLayer    int     // how many times attn --> mlp happens
	Dropout   float64 // attention weights, attn proj and mlp output

	// Optimization
	MaxIters     int
	EvalInterval int
	EvalIters    int
	LearningRate float64
	AdamBeta1    float64 // default 0.9
	AdamBeta2    float64 // default 0.999
	AdamEps      float64 // default 1e-8
	WeightDecay  float64 // AdamW-style, applied to weight matrices only
	GradClip     float64 // <=0 disables
	TrainFrac    float64 // prefix of the corpus used for training

	// Runtime
	Device     string // "auto", "cpu" or "blas"
	Seed       uint64
	Workers    int // batch rows processed concurrently (1 = sequential)
	Debug      bool
	DebugEvery int // print every N optimizer steps

	// IO
	DataDir      string
	OutputPath   string
	MaxNewTokens int
	LogCSV       string // "" disables
	LogDB        string // "" disables
}

// Config holds the reference hyperparameters for a full-size run.
var Config = TrainingConfig{
	BatchSize: 64,
	BlockSize: 256,
	NEmbed:    384,
	NHead:     6,
	NLayer:    6,
	Dropout:   0.2,

	MaxIters:     5000,
	EvalInterval: 500,
	EvalIters:    200,
	LearningRate: 3e-4,
	AdamBeta1:    0.9,
	AdamBeta2:    0.999,
	AdamEps:      1e-8,
	WeightDecay:  0.01,
	GradClip:     0,
	TrainFrac:    0.9,

	Device:     "auto",
	Seed:       1337,
	Workers:    4,
	Debug:      false,
	DebugEvery: 100,

	DataDir:      "../trainingData/MovieScripts",
	OutputPath:   "modelOutputs/output.txt",
	MaxNewTokens: 10000,
	LogCSV:       "modelOutputs/training_log.csv",
	LogDB:        "",
}

// Tiny is small enough to train on a laptop CPU in a couple of minutes.
var Tiny = TrainingConfig{
	BatchSize: 16,
	BlockSize: 32,
	NEmbed:    64,
	NHead:     4,
	NLayer:    2,
	Dropout:   0.1,

	MaxIters:     1000,
	EvalInterval: 100,
	EvalIters:    20,
	LearningRate: 1e-3,
	AdamBeta1:    0.9,
	AdamBeta2:    0.999,
	AdamEps:      1e-8,
	WeightDecay:  0.01,
	GradClip:     1.0,
	TrainFrac:    0.9,

	Device:     "auto",
	Seed:       1337,
	Workers:    4,
	DebugEvery: 100,

	DataDir:      "../trainingData/MovieScripts",
	OutputPath:   "modelOutputs/output.txt",
	MaxNewTokens: 2000,
	LogCSV:       "modelOutputs/training_log.csv",
}

// Preset returns a copy of the named preset.
func Preset(name string) (TrainingConfig, error) {
	switch name {
	case "", "default", "gpault":
		return Config, nil
	case "tiny":
		return Tiny, nil
	}
	return TrainingConfig{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name)
}

// HeadSize is the width of a single attention head.
func (c TrainingConfig) HeadSize() int {
	return c.NEmbed / c.NHead
}

func (c TrainingConfig) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.BlockSize <= 0:
		return fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidConfig, c.BlockSize)
	case c.NEmbed <= 0 || c.NHead <= 0 || c.NLayer <= 0:
		return fmt.Errorf("%w: embed/head/layer counts must be positive (%d/%d/%d)",
			ErrInvalidConfig, c.NEmbed, c.NHead, c.NLayer)
	case c.NEmbed%c.NHead != 0:
		return fmt.Errorf("%w: embedding dim (%d) must be divisible by head count (%d)",
			ErrInvalidConfig, c.NEmbed, c.NHead)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("%w: dropout must be in [0, 1), got %g", ErrInvalidConfig, c.Dropout)
	case c.MaxIters < 0:
		return fmt.Errorf("%w: max iters must be >= 0, got %d", ErrInvalidConfig, c.MaxIters)
	case c.EvalInterval <= 0 || c.EvalIters <= 0:
		return fmt.Errorf("%w: eval interval and eval iters must be positive", ErrInvalidConfig)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate must be positive, got %g", ErrInvalidConfig, c.LearningRate)
	case c.TrainFrac <= 0 || c.TrainFrac >= 1:
		return fmt.Errorf("%w: train fraction must be in (0, 1), got %g", ErrInvalidConfig, c.TrainFrac)
	case c.MaxNewTokens < 0:
		return fmt.Errorf("%w: max new tokens must be >= 0", ErrInvalidConfig)
	}
	return nil
}
