package optimizations

import (
	"math"

	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/mat"
)

type LayerNorm struct {
	D     int
	Eps   float64
	Gamma *Param // (d x 1)
	Beta  *Param // (d x 1)
}

// LNCache holds what Backward needs from one Forward call.
type LNCache struct {
	Xhat   *mat.Dense // (d x T)
	InvStd []float64  // per column
}

func NewLayerNorm(name string, d int, eps float64) *LayerNorm {
	g := NewParam(name+".gamma", d, 1, nil, false)
	g.W = utils.OnesLike(g.W)
	return &LayerNorm{
		D:     d,
		Eps:   eps,
		Gamma: g,
		Beta:  NewParam(name+".beta", d, 1, nil, false),
	}
}

func (ln *LayerNorm) Params() []*Param {
	return []*Param{ln.Gamma, ln.Beta}
}

// Forward normalizes every column of X (d x T) independently.
// c may be nil when no backward pass will follow.
func (ln *LayerNorm) Forward(X *mat.Dense, c *LNCache) *mat.Dense {
	d, T := X.Dims()
	out := mat.NewDense(d, T, nil)
	xhat := mat.NewDense(d, T, nil)
	inv := make([]float64, T)
	for t := 0; t < T; t++ {
		// mean over rows
		mu := 0.0
		for i := 0; i < d; i++ {
			mu += X.At(i, t)
		}
		mu /= float64(d)
		// variance
		var v float64
		for i := 0; i < d; i++ {
			diff := X.At(i, t) - mu
			v += diff * diff
		}
		v /= float64(d)
		istd := 1.0 / math.Sqrt(v+ln.Eps)
		inv[t] = istd
		// normalize and affine
		for i := 0; i < d; i++ {
			n := (X.At(i, t) - mu) * istd
			xhat.Set(i, t, n)
			out.Set(i, t, ln.Gamma.W.At(i, 0)*n+ln.Beta.W.At(i, 0))
		}
	}
	if c != nil {
		c.Xhat = xhat
		c.InvStd = inv
	}
	return out
}

// Backward accumulates dGamma/dBeta into gs and returns dX.
func (ln *LayerNorm) Backward(dY *mat.Dense, c *LNCache, gs *GradSet) *mat.Dense {
	d, T := dY.Dims()
	dGamma := gs.Of(ln.Gamma)
	dBeta := gs.Of(ln.Beta)
	for i := 0; i < d; i++ {
		sumDG := 0.0
		sumDB := 0.0
		for t := 0; t < T; t++ {
			sumDG += dY.At(i, t) * c.Xhat.At(i, t)
			sumDB += dY.At(i, t)
		}
		dGamma.Set(i, 0, dGamma.At(i, 0)+sumDG)
		dBeta.Set(i, 0, dBeta.At(i, 0)+sumDB)
	}

	// dX (per column)
	dX := mat.NewDense(d, T, nil)
	for t := 0; t < T; t++ {
		istd := c.InvStd[t]
		sum1 := 0.0
		sum2 := 0.0
		for i := 0; i < d; i++ {
			gy := dY.At(i, t) * ln.Gamma.W.At(i, 0)
			sum1 += gy
			sum2 += gy * c.Xhat.At(i, t)
		}
		for i := 0; i < d; i++ {
			gy := dY.At(i, t) * ln.Gamma.W.At(i, 0)
			dxi := (float64(d)*gy - sum1 - c.Xhat.At(i, t)*sum2) * (istd / float64(d))
			dX.Set(i, t, dxi)
		}
	}
	return dX
}
