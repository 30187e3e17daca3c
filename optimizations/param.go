package optimizations

import (
	"gonum.org/v1/gonum/mat"
)

// Param is one trainable matrix with its gradient and AdamW moments.
type Param struct {
	Name  string
	W     *mat.Dense // value
	G     *mat.Dense // accumulated gradient, same shape as W
	M, V  *mat.Dense // Adam first/second moments
	Decay bool       // AdamW weight decay applies
}

func NewParam(name string, r, c int, data []float64, decay bool) *Param {
	return &Param{
		Name:  name,
		W:     mat.NewDense(r, c, data),
		G:     mat.NewDense(r, c, nil),
		M:     mat.NewDense(r, c, nil),
		V:     mat.NewDense(r, c, nil),
		Decay: decay,
	}
}

func (p *Param) Size() int {
	r, c := p.W.Dims()
	return r * c
}

func (p *Param) ZeroGrad() {
	p.G.Zero()
}

// GradSet routes backward-pass gradients. The direct set writes straight
// into Param.G; a private set keeps its own buffers so several goroutines
// can run backward passes at once and Flush afterwards.
type GradSet struct {
	private map[*Param]*mat.Dense
}

// DirectGrads accumulates into each Param's G.
func DirectGrads() *GradSet {
	return &GradSet{}
}

// PrivateGrads accumulates into buffers owned by the set.
func PrivateGrads() *GradSet {
	return &GradSet{private: make(map[*Param]*mat.Dense)}
}

// Of returns the matrix gradients for p should be added into.
func (gs *GradSet) Of(p *Param) *mat.Dense {
	if gs.private == nil {
		return p.G
	}
	g, ok := gs.private[p]
	if !ok {
		r, c := p.W.Dims()
		g = mat.NewDense(r, c, nil)
		gs.private[p] = g
	}
	return g
}

// Flush adds private buffers into Param.G and clears them.
// Not safe to call concurrently with other Flushes.
func (gs *GradSet) Flush() {
	for p, g := range gs.private {
		p.G.Add(p.G, g)
		g.Zero()
	}
}
