package transformer

import (
	"fmt"
	"math/rand/v2"

	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/mat"
)

// Generate extends seed by maxNew sampled tokens and returns the whole
// sequence. Only the last blockSize tokens are fed back each step.
// Runs with dropout off; the previous mode is restored on return.
func (m *LanguageModel) Generate(seed []int, maxNew int, rng *rand.Rand) ([]int, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: empty seed", ErrShape)
	}
	if maxNew < 0 {
		return nil, fmt.Errorf("%w: negative token count %d", ErrShape, maxNew)
	}
	if err := m.checkIDs(seed); err != nil {
		return nil, err
	}
	wasTraining := m.training
	m.Eval()
	defer func() { m.training = wasTraining }()

	out := make([]int, len(seed), len(seed)+maxNew)
	copy(out, seed)
	for range maxNew {
		window := out[max(0, len(out)-m.Cfg.BlockSize):]
		st := &rowState{ids: window, blocks: make([]blockCache, len(m.Blocks))}
		next := utils.SampleFromLogits(m.lastLogits(m.hiddenRow(st)), rng)
		out = append(out, next)
	}
	return out, nil
}

// lastLogits projects only the final column of hidden to vocabulary scores.
func (m *LanguageModel) lastLogits(hidden *mat.Dense) []float64 {
	h := mat.NewVecDense(m.Cfg.NEmbed, utils.LastCol(hidden))
	var v mat.VecDense
	v.MulVec(m.LMHead.W, h)
	v.AddVec(&v, m.LMBias.W.ColView(0))
	return v.RawVector().Data
}
