// Package trainer runs the optimization loop for a LanguageModel.
package trainer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/paulchinnam/GPaulT/IO"
	"github.com/paulchinnam/GPaulT/optimizations"
	"github.com/paulchinnam/GPaulT/params"
	"github.com/paulchinnam/GPaulT/runlog"
	"github.com/paulchinnam/GPaulT/transformer"
	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/stat"
)

var ErrNonFiniteLoss = errors.New("loss is not finite")

// LossReport is the mean train and val loss at one step.
type LossReport struct {
	Step    int
	Train   float64
	Val     float64
	Elapsed time.Duration
}

func (r LossReport) entry() runlog.Entry {
	return runlog.Entry{Step: r.Step, TrainLoss: r.Train, ValLoss: r.Val, Elapsed: r.Elapsed}
}

type Trainer struct {
	Model *transformer.LanguageModel
	Opt   *optimizations.AdamW
	Cfg   params.TrainingConfig

	train, val []int
	rng        *rand.Rand
	out        io.Writer
	recorders  []runlog.Recorder
	step       int
	start      time.Time
}

type Option func(*Trainer)

// WithRecorder forwards every LossReport to r.
func WithRecorder(r runlog.Recorder) Option {
	return func(t *Trainer) { t.recorders = append(t.recorders, r) }
}

// WithOutput redirects the step lines (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(t *Trainer) { t.out = w }
}

func New(model *transformer.LanguageModel, opt *optimizations.AdamW, train, val []int,
	cfg params.TrainingConfig, rng *rand.Rand, opts ...Option) (*Trainer, error) {
	if len(train) <= cfg.BlockSize {
		return nil, fmt.Errorf("train split: %w: %d tokens for block size %d", IO.ErrInsufficientData, len(train), cfg.BlockSize)
	}
	if len(val) <= cfg.BlockSize {
		return nil, fmt.Errorf("val split: %w: %d tokens for block size %d", IO.ErrInsufficientData, len(val), cfg.BlockSize)
	}
	t := &Trainer{
		Model: model,
		Opt:   opt,
		Cfg:   cfg,
		train: train,
		val:   val,
		rng:   rng,
		out:   os.Stdout,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// EstimateLoss averages the loss of EvalIters random batches from each
// split with dropout off. The model's previous mode is restored.
func (t *Trainer) EstimateLoss() (LossReport, error) {
	wasTraining := t.Model.Training()
	t.Model.Eval()
	defer func() {
		if wasTraining {
			t.Model.Train()
		}
	}()

	rep := LossReport{Step: t.step}
	for _, split := range []struct {
		data []int
		dst  *float64
	}{{t.train, &rep.Train}, {t.val, &rep.Val}} {
		losses := make([]float64, t.Cfg.EvalIters)
		for k := range losses {
			b, err := IO.SampleBatch(split.data, t.Cfg.BatchSize, t.Cfg.BlockSize, t.rng)
			if err != nil {
				return rep, err
			}
			_, loss, err := t.Model.ForwardLoss(b.Contexts, b.Targets)
			if err != nil {
				return rep, err
			}
			losses[k] = loss
		}
		*split.dst = stat.Mean(losses, nil)
	}
	if !t.start.IsZero() {
		rep.Elapsed = time.Since(t.start)
	}
	return rep, nil
}

// Step runs one optimizer update on a fresh training batch and returns its loss.
func (t *Trainer) Step() (float64, error) {
	b, err := IO.SampleBatch(t.train, t.Cfg.BatchSize, t.Cfg.BlockSize, t.rng)
	if err != nil {
		return 0, err
	}
	_, loss, err := t.Model.ForwardLoss(b.Contexts, b.Targets)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, fmt.Errorf("step %d: %w (%v)", t.step, ErrNonFiniteLoss, loss)
	}

	ps := t.Model.Parameters()
	t.Opt.ZeroGrad(ps)
	if err := t.Model.Backward(); err != nil {
		return loss, err
	}
	scale := t.Opt.Step(ps)
	t.step++

	if t.Cfg.Debug && t.Cfg.DebugEvery > 0 && t.step%t.Cfg.DebugEvery == 0 {
		utils.Debugf("step %d: batch loss %.4f, clip scale %.4f", t.step, loss, scale)
		wq := t.Model.Blocks[0].Attn.Heads[0].Query.W
		utils.Debugf("Attn.Wq[0] norm: %.6f", utils.MatrixNorm(wq))
	}
	return loss, nil
}

func (t *Trainer) report(rep LossReport) error {
	fmt.Fprintf(t.out, "Step %d: train loss %.4f, val loss %.4f\n", rep.Step, rep.Train, rep.Val)
	for _, r := range t.recorders {
		if err := r.Record(rep.entry()); err != nil {
			return err
		}
	}
	return nil
}

// Run performs MaxIters steps, estimating the loss before every
// EvalInterval-th step (step 0 included).
func (t *Trainer) Run() ([]LossReport, error) {
	t.start = time.Now()
	t.Model.Train()
	var reports []LossReport
	for iter := 0; iter < t.Cfg.MaxIters; iter++ {
		if iter%t.Cfg.EvalInterval == 0 {
			rep, err := t.EstimateLoss()
			if err != nil {
				return reports, err
			}
			if math.IsNaN(rep.Train) || math.IsNaN(rep.Val) {
				return reports, fmt.Errorf("eval at step %d: %w", iter, ErrNonFiniteLoss)
			}
			reports = append(reports, rep)
			if err := t.report(rep); err != nil {
				return reports, err
			}
		}
		if _, err := t.Step(); err != nil {
			return reports, err
		}
	}
	return reports, nil
}
