package optimizations

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/mat"
)

func finiteDiffCheck(t *testing.T, name string, param *mat.Dense, grad *mat.Dense,
	forward func() float64, i, j int) {

	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()

	param.Set(i, j, w0-eps)
	lm := forward()

	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)

	if math.Abs(numGrad-anaGrad) > 1e-5 {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

func TestLayerNormNormalizesColumns(t *testing.T) {
	ln := NewLayerNorm("ln", 4, 1e-5)
	x := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})
	y := ln.Forward(x, nil)
	for c := 0; c < 2; c++ {
		col := mat.Col(nil, c, y)
		mu, ss := 0.0, 0.0
		for _, v := range col {
			mu += v
		}
		mu /= 4
		for _, v := range col {
			ss += (v - mu) * (v - mu)
		}
		if math.Abs(mu) > 1e-9 || math.Abs(ss/4-1) > 1e-3 {
			t.Fatalf("column %d: mean %.3g var %.3g", c, mu, ss/4)
		}
	}
}

func TestLayerNormGradCheck(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	d, T := 5, 3
	ln := NewLayerNorm("ln", d, 1e-5)
	ln.Gamma.W = mat.NewDense(d, 1, utils.RandomArray(rng, d, 1))
	ln.Beta.W = mat.NewDense(d, 1, utils.RandomArray(rng, d, 1))

	x := mat.NewDense(d, T, utils.RandomArray(rng, d*T, 1))
	w := mat.NewDense(d, T, utils.RandomArray(rng, d*T, 1)) // loss = sum(w .* y)

	forward := func() float64 {
		return mat.Sum(utils.Multiply(w, ln.Forward(x, nil)))
	}

	var c LNCache
	ln.Forward(x, &c)
	gs := DirectGrads()
	dX := ln.Backward(w, &c, gs)

	finiteDiffCheck(t, "gamma", ln.Gamma.W, ln.Gamma.G, forward, 2, 0)
	finiteDiffCheck(t, "beta", ln.Beta.W, ln.Beta.G, forward, 4, 0)
	finiteDiffCheck(t, "x", x, dX, forward, 1, 2)
	finiteDiffCheck(t, "x", x, dX, forward, 3, 0)
}
