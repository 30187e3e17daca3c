package optimizations

import (
	"math"

	"github.com/paulchinnam/GPaulT/params"
	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/mat"
)

// p -= lr * (mhat/(sqrt(vhat)+eps) + wd * p) with bias correction (AdamW).
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("adamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("adamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("adamUpdateInPlace: v shape mismatch")
	}
	b1t := math.Pow(beta1, float64(t))
	b2t := math.Pow(beta2, float64(t))
	c1 := 1.0 / (1.0 - b1t)
	c2 := 1.0 / (1.0 - b2t)
	for i := 0; i < pr; i++ {
		pRow, gRow := p.RawRowView(i), g.RawRowView(i)
		mRow, vRow := m.RawRowView(i), v.RawRowView(i)
		for j := 0; j < pc; j++ {
			gij := gRow[j]
			mij := beta1*mRow[j] + (1.0-beta1)*gij
			vij := beta2*vRow[j] + (1.0-beta2)*gij*gij
			mhat := mij * c1
			vhat := vij * c2
			denom := math.Sqrt(vhat) + eps
			update := mhat/denom + weightDecay*pRow[j]
			mRow[j] = mij
			vRow[j] = vij
			pRow[j] -= lr * update
		}
	}
}

// AdamW steps every parameter of a model with one shared step counter.
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64 // only for params with Decay set
	GradClip    float64 // global norm, <=0 disables

	T int
}

func NewAdamW(cfg params.TrainingConfig) *AdamW {
	return &AdamW{
		LR:          cfg.LearningRate,
		Beta1:       cfg.AdamBeta1,
		Beta2:       cfg.AdamBeta2,
		Eps:         cfg.AdamEps,
		WeightDecay: cfg.WeightDecay,
		GradClip:    cfg.GradClip,
	}
}

// ZeroGrad clears accumulated gradients.
func (opt *AdamW) ZeroGrad(ps []*Param) {
	for _, p := range ps {
		p.ZeroGrad()
	}
}

// Step applies one update from the gradients in ps and returns the clip
// scale used (1 when nothing was clipped).
func (opt *AdamW) Step(ps []*Param) float64 {
	opt.T++
	scale := 1.0
	if opt.GradClip > 0 {
		grads := make([]*mat.Dense, len(ps))
		for i, p := range ps {
			grads[i] = p.G
		}
		scale = utils.ClipGrads(opt.GradClip, grads...)
	}
	for _, p := range ps {
		wd := 0.0
		if p.Decay {
			wd = opt.WeightDecay
		}
		AdamUpdateInPlace(p.W, p.G, p.M, p.V, opt.T, opt.LR, opt.Beta1, opt.Beta2, opt.Eps, wd)
	}
	return scale
}
