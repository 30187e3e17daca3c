package transformer

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// pass carries per-sequence forward state: mode and the sequence's own RNG.
type pass struct {
	train bool
	rng   *rand.Rand
}

// dropout applies inverted dropout. The returned mask is nil when dropout
// is inactive (eval mode or p == 0) and the input is returned unchanged.
func dropout(x *mat.Dense, p float64, ps *pass) (out, mask *mat.Dense) {
	if !ps.train || p <= 0 {
		return x, nil
	}
	r, c := x.Dims()
	mask = mat.NewDense(r, c, nil)
	keep := 1.0 / (1.0 - p)
	for i := 0; i < r; i++ {
		row := mask.RawRowView(i)
		for j := range row {
			if ps.rng.Float64() >= p {
				row[j] = keep
			}
		}
	}
	out = mat.NewDense(r, c, nil)
	out.MulElem(x, mask)
	return out, mask
}

func dropoutBackward(dY, mask *mat.Dense) *mat.Dense {
	if mask == nil {
		return dY
	}
	r, c := dY.Dims()
	dX := mat.NewDense(r, c, nil)
	dX.MulElem(dY, mask)
	return dX
}
