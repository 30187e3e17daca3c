package transformer

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/paulchinnam/GPaulT/optimizations"
	"github.com/paulchinnam/GPaulT/params"
	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrHeadDivisibility = errors.New("embedding dim not divisible by head count")
	ErrShape            = errors.New("bad input shape")
	ErrTokenRange       = errors.New("token id out of vocabulary range")
	ErrNoLoss           = errors.New("backward called without a loss from ForwardLoss")
)

// LanguageModel is a decoder-only character transformer.
// Activations are (C x T) per sequence; a batch is processed row by row.
type LanguageModel struct {
	Cfg       params.TrainingConfig
	VocabSize int

	TokenEmb *optimizations.Param // (C x V), column id is the embedding of id
	PosEmb   *optimizations.Param // (C x blockSize)
	Blocks   []*Block
	LnF      *optimizations.LayerNorm
	LMHead   *optimizations.Param // (V x C)
	LMBias   *optimizations.Param // (V x 1)

	mask     *mat.Dense
	params   []*optimizations.Param
	training bool
	rng      *rand.Rand // dropout streams
	workers  int

	rows    []*rowState
	lossN   int
	hasLoss bool
}

// rowState is everything one sequence needs between forward and backward.
type rowState struct {
	ids     []int
	rng     *rand.Rand
	blocks  []blockCache
	lnF     optimizations.LNCache
	hidden  *mat.Dense // final LN output (C x T)
	logits  *mat.Dense // (V x T)
	dLogits *mat.Dense
	loss    float64
}

// New builds a model in training mode. All initial weights are drawn from rng.
func New(cfg params.TrainingConfig, vocabSize int, rng *rand.Rand) (*LanguageModel, error) {
	if vocabSize <= 0 {
		return nil, fmt.Errorf("%w: vocabulary size must be positive, got %d", params.ErrInvalidConfig, vocabSize)
	}
	if cfg.NHead <= 0 || cfg.NEmbed%cfg.NHead != 0 {
		return nil, fmt.Errorf("%w: dModel %d, heads %d", ErrHeadDivisibility, cfg.NEmbed, cfg.NHead)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	C := cfg.NEmbed
	m := &LanguageModel{
		Cfg:       cfg,
		VocabSize: vocabSize,
		TokenEmb:  optimizations.NewParam("tok_emb", C, vocabSize, utils.NormalArray(rng, C*vocabSize), true),
		PosEmb:    optimizations.NewParam("pos_emb", C, cfg.BlockSize, utils.NormalArray(rng, C*cfg.BlockSize), true),
		Blocks:    make([]*Block, cfg.NLayer),
		mask:      utils.CausalMask(cfg.BlockSize),
		training:  true,
		workers:   max(cfg.Workers, 1),
	}
	for l := range m.Blocks {
		b, err := NewBlock(fmt.Sprintf("blocks.%d", l), C, cfg.NHead, cfg.Dropout, m.mask, rng)
		if err != nil {
			return nil, err
		}
		m.Blocks[l] = b
	}
	m.LnF = optimizations.NewLayerNorm("ln_f", C, lnEps)
	m.LMHead = optimizations.NewParam("lm_head", vocabSize, C, utils.RandomArray(rng, vocabSize*C, float64(C)), true)
	m.LMBias = optimizations.NewParam("lm_head_bias", vocabSize, 1, nil, false)
	m.rng = rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))

	m.params = []*optimizations.Param{m.TokenEmb, m.PosEmb}
	for _, b := range m.Blocks {
		m.params = append(m.params, b.Params()...)
	}
	m.params = append(m.params, m.LnF.Params()...)
	m.params = append(m.params, m.LMHead, m.LMBias)
	return m, nil
}

func (m *LanguageModel) Parameters() []*optimizations.Param { return m.params }

func (m *LanguageModel) NumParams() int {
	n := 0
	for _, p := range m.params {
		n += p.Size()
	}
	return n
}

// Train enables dropout.
func (m *LanguageModel) Train() { m.training = true }

// Eval disables dropout.
func (m *LanguageModel) Eval() { m.training = false }

func (m *LanguageModel) Training() bool { return m.training }

// SetWorkers changes how many batch rows run concurrently.
func (m *LanguageModel) SetWorkers(n int) { m.workers = max(n, 1) }

func (m *LanguageModel) checkIDs(ids []int) error {
	for _, id := range ids {
		if id < 0 || id >= m.VocabSize {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrTokenRange, id, m.VocabSize)
		}
	}
	return nil
}

func (m *LanguageModel) checkBatch(idx [][]int) (int, error) {
	if len(idx) == 0 {
		return 0, fmt.Errorf("%w: empty batch", ErrShape)
	}
	T := len(idx[0])
	if T == 0 || T > m.Cfg.BlockSize {
		return 0, fmt.Errorf("%w: sequence length %d not in [1, %d]", ErrShape, T, m.Cfg.BlockSize)
	}
	for b, row := range idx {
		if len(row) != T {
			return 0, fmt.Errorf("%w: row %d has length %d, want %d", ErrShape, b, len(row), T)
		}
		if err := m.checkIDs(row); err != nil {
			return 0, err
		}
	}
	return T, nil
}

// newRows derives one RNG per row from the model stream before any
// goroutine starts, keeping dropout reproducible for a fixed seed.
func (m *LanguageModel) newRows(idx [][]int) []*rowState {
	rows := make([]*rowState, len(idx))
	for b, ids := range idx {
		rows[b] = &rowState{
			ids:    ids,
			blocks: make([]blockCache, len(m.Blocks)),
		}
		if m.training && m.Cfg.Dropout > 0 {
			rows[b].rng = rand.New(rand.NewPCG(m.rng.Uint64(), m.rng.Uint64()))
		}
	}
	return rows
}

// embed returns tok_emb[ids] + pos_emb[0:T] as (C x T).
func (m *LanguageModel) embed(ids []int) *mat.Dense {
	C, T := m.Cfg.NEmbed, len(ids)
	x := mat.NewDense(C, T, nil)
	for t, id := range ids {
		for i := 0; i < C; i++ {
			x.Set(i, t, m.TokenEmb.W.At(i, id)+m.PosEmb.W.At(i, t))
		}
	}
	return x
}

// hiddenRow runs embeddings, blocks and the final LayerNorm for one sequence.
func (m *LanguageModel) hiddenRow(st *rowState) *mat.Dense {
	ps := &pass{train: m.training, rng: st.rng}
	x := m.embed(st.ids)
	for l, b := range m.Blocks {
		x = b.Forward(x, &st.blocks[l], ps)
	}
	st.hidden = m.LnF.Forward(x, &st.lnF)
	return st.hidden
}

func (m *LanguageModel) logits(hidden *mat.Dense) *mat.Dense {
	return utils.AddBias(utils.ToDense(utils.Dot(m.LMHead.W, hidden)), m.LMBias.W)
}

func (m *LanguageModel) run(idx [][]int) []*rowState {
	rows := m.newRows(idx)
	forEachRow(len(rows), m.workers, func(b, _ int) {
		st := rows[b]
		st.logits = m.logits(m.hiddenRow(st))
	})
	m.rows = rows
	m.hasLoss = false
	return rows
}

// Forward returns one (V x T) logits matrix per batch row.
func (m *LanguageModel) Forward(idx [][]int) ([]*mat.Dense, error) {
	if _, err := m.checkBatch(idx); err != nil {
		return nil, err
	}
	rows := m.run(idx)
	out := make([]*mat.Dense, len(rows))
	for b, st := range rows {
		out[b] = st.logits
	}
	return out, nil
}

// ForwardLoss returns the logits and the mean cross-entropy over all B*T
// positions, and prepares the gradients Backward propagates.
func (m *LanguageModel) ForwardLoss(idx, targets [][]int) ([]*mat.Dense, float64, error) {
	T, err := m.checkBatch(idx)
	if err != nil {
		return nil, 0, err
	}
	if len(targets) != len(idx) {
		return nil, 0, fmt.Errorf("%w: %d target rows for %d contexts", ErrShape, len(targets), len(idx))
	}
	for b, row := range targets {
		if len(row) != T {
			return nil, 0, fmt.Errorf("%w: target row %d has length %d, want %d", ErrShape, b, len(row), T)
		}
		if err := m.checkIDs(row); err != nil {
			return nil, 0, err
		}
	}

	rows := m.newRows(idx)
	n := len(idx) * T
	norm := 1.0 / float64(n)
	forEachRow(len(rows), m.workers, func(b, _ int) {
		st := rows[b]
		st.logits = m.logits(m.hiddenRow(st))
		loss, grad := utils.CrossEntropyColumns(st.logits, targets[b])
		grad.Scale(norm, grad)
		st.loss, st.dLogits = loss, grad
	})

	total := 0.0
	out := make([]*mat.Dense, len(rows))
	for b, st := range rows {
		total += st.loss
		out[b] = st.logits
	}
	m.rows, m.hasLoss = rows, true
	return out, total * norm, nil
}

// Backward accumulates dLoss/dParam into every Param.G for the batch of the
// last ForwardLoss. It consumes that forward pass.
func (m *LanguageModel) Backward() error {
	if !m.hasLoss {
		return ErrNoLoss
	}
	workers := min(m.workers, len(m.rows))
	sets := gradSets(workers)
	forEachRow(len(m.rows), workers, func(b, w int) {
		m.backwardRow(m.rows[b], sets[w])
	})
	for _, gs := range sets {
		gs.Flush()
	}
	m.hasLoss = false
	return nil
}

func (m *LanguageModel) backwardRow(st *rowState, gs *optimizations.GradSet) {
	// logits = W_lm * h + b
	utils.AccumulateProduct(gs.Of(m.LMHead), st.dLogits, st.hidden.T())
	utils.AccumulateRowSums(gs.Of(m.LMBias), st.dLogits)
	dH := utils.ToDense(utils.Dot(m.LMHead.W.T(), st.dLogits))

	dX := m.LnF.Backward(dH, &st.lnF, gs)
	for l := len(m.Blocks) - 1; l >= 0; l-- {
		dX = m.Blocks[l].Backward(dX, &st.blocks[l], gs)
	}

	// scatter into embedding tables
	dTok, dPos := gs.Of(m.TokenEmb), gs.Of(m.PosEmb)
	C := m.Cfg.NEmbed
	for t, id := range st.ids {
		for i := 0; i < C; i++ {
			g := dX.At(i, t)
			dTok.Set(i, id, dTok.At(i, id)+g)
			dPos.Set(i, t, dPos.At(i, t)+g)
		}
	}
}

// AttentionWeights returns the post-softmax (T x T) weights of one head from
// the most recent forward pass, before dropout.
func (m *LanguageModel) AttentionWeights(row, layer, head int) (*mat.Dense, error) {
	if row < 0 || row >= len(m.rows) || layer < 0 || layer >= len(m.Blocks) ||
		head < 0 || head >= m.Cfg.NHead {
		return nil, fmt.Errorf("%w: no attention weights for row %d layer %d head %d", ErrShape, row, layer, head)
	}
	return m.rows[row].blocks[layer].attn.heads[head].a, nil
}
