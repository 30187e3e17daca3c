package utils

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Matrix functions used by every layer.
// Activations are column-major: (d x T), one column per time step.

// r = rows of matrix
// c = columns of matrix
// o = output
// m = matrix input number 1
// n = matrix input number 2

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Mul(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Scale(s float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

func Add(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

func Multiply(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

// AccumulateProduct does dst += m * n.
func AccumulateProduct(dst *mat.Dense, m, n mat.Matrix) {
	var o mat.Dense
	o.Mul(m, n)
	dst.Add(dst, &o)
}

// RandomArray draws uniformly from ±1/sqrt(v), v being the fan-in.
func RandomArray(rng *rand.Rand, size int, v float64) []float64 {
	min := -1.0 / math.Sqrt(v+1e-12)
	max := 1.0 / math.Sqrt(v+1e-12)
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		out[i] = min + (max-min)*rng.Float64()
	}
	return out
}

// NormalArray draws from N(0, 1), the usual embedding table init.
func NormalArray(rng *rand.Rand, size int) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	out := make([]float64, size)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

func OnesLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		floats.AddConst(1, out.RawRowView(i))
	}
	return out
}

func MatrixNorm(m mat.Matrix) float64 {
	return mat.Norm(m, 2)
}

// ClipGrads scales all grads so their combined norm <= maxNorm.
// Returns the scale actually applied (<=1.0) or 1.0 if no clip.
func ClipGrads(maxNorm float64, grads ...*mat.Dense) float64 {
	if maxNorm <= 0 {
		return 1.0
	}
	sum := 0.0
	for _, g := range grads {
		if g == nil {
			continue
		}
		n := MatrixNorm(g)
		sum += n * n
	}
	gn := math.Sqrt(sum)
	if gn <= maxNorm || gn == 0 {
		return 1.0
	}
	s := maxNorm / gn
	for _, g := range grads {
		if g != nil {
			g.Scale(s, g)
		}
	}
	return s
}

// AddBias broadcasts an (r x 1) bias over every column of m, in place.
func AddBias(m, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	if rb, cb := bias.Dims(); rb != r || cb != 1 {
		panic(fmt.Sprintf("AddBias: bias must be (%d x 1), got (%d x %d)", r, rb, cb))
	}
	for i := 0; i < r; i++ {
		floats.AddConst(bias.At(i, 0), m.RawRowView(i)[:c])
	}
	return m
}

// AccumulateRowSums does dst[i] += sum_j m[i, j]; dst is (r x 1).
func AccumulateRowSums(dst, m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		dst.Set(i, 0, dst.At(i, 0)+floats.Sum(m.RawRowView(i)))
	}
}

// RowSums returns per-row sums for a mat.Dense.
func RowSums(m *mat.Dense) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = floats.Sum(m.RawRowView(i))
	}
	return out
}

// -------- ReLU --------

func ReluApply(_, _ int, x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// ReluBackwardInPlace zeroes grad wherever the pre-activation was <= 0.
func ReluBackwardInPlace(grad, preAct *mat.Dense) *mat.Dense {
	r, c := grad.Dims()
	for i := 0; i < r; i++ {
		g := grad.RawRowView(i)
		x := preAct.RawRowView(i)
		for j := 0; j < c; j++ {
			if x[j] <= 0 {
				g[j] = 0
			}
		}
	}
	return grad
}

// -------- Masking --------

// CausalMask returns (T x T) with 0 on and below diagonal, -Inf above.
func CausalMask(T int) *mat.Dense {
	out := mat.NewDense(T, T, nil)
	negInf := math.Inf(-1)
	for i := 0; i < T; i++ {
		for j := i + 1; j < T; j++ {
			out.Set(i, j, negInf)
		}
	}
	return out
}

// LastCol copies m[:, c-1] into a new slice.
func LastCol(m *mat.Dense) []float64 {
	_, c := m.Dims()
	return mat.Col(nil, c-1, m)
}

// ---------- Softmax variants ----------

// RowSoftmaxMaskedInPlace writes softmax(m+mask) into dst (r x c).
// Each row subtracts its max first; rows must keep at least one finite entry.
func RowSoftmaxMaskedInPlace(dst, m, mask *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	if dr, dc := dst.Dims(); dr != r || dc != c {
		panic("RowSoftmaxMaskedInPlace: dst shape mismatch")
	}
	if mr, mc := mask.Dims(); mr != r || mc != c {
		panic("RowSoftmaxMaskedInPlace: mask shape mismatch")
	}
	for i := 0; i < r; i++ {
		row := dst.RawRowView(i)[:c]
		src := m.RawRowView(i)
		msk := mask.RawRowView(i)
		for j := 0; j < c; j++ {
			row[j] = src[j] + msk[j]
		}
		softmaxInPlace(row)
	}
	return dst
}

// Softmax returns a normalized copy of v.
func Softmax(v []float64) []float64 {
	out := append([]float64(nil), v...)
	softmaxInPlace(out)
	return out
}

func softmaxInPlace(row []float64) {
	mx := floats.Max(row)
	for j, v := range row {
		row[j] = math.Exp(v - mx)
	}
	floats.Scale(1/floats.Sum(row), row)
}

// Softmax backward for row-wise softmax used in attention.
// Vector-JVP form: for each row i,
// s = sum_k dA[i,k] * A[i,k]; dS[i,j] = A[i,j] * (dA[i,j] - s)
func SoftmaxBackward(dA mat.Matrix, A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	dS := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for k := 0; k < c; k++ {
			s += dA.At(i, k) * A.At(i, k)
		}
		for j := 0; j < c; j++ {
			aj := A.At(i, j)
			dS.Set(i, j, aj*(dA.At(i, j)-s))
		}
	}
	return dS
}

// ---------- Loss ----------

// CrossEntropyColumns scores every column of logits (V x T) against
// targets[t]. It returns the summed loss and dLoss/dLogits = softmax - onehot.
func CrossEntropyColumns(logits *mat.Dense, targets []int) (float64, *mat.Dense) {
	r, c := logits.Dims()
	if len(targets) != c {
		panic(fmt.Sprintf("CrossEntropyColumns: %d targets for %d columns", len(targets), c))
	}
	grad := mat.NewDense(r, c, nil)
	col := make([]float64, r)
	loss := 0.0
	for t, gold := range targets {
		if gold < 0 || gold >= r {
			panic(fmt.Sprintf("CrossEntropyColumns: target %d out of range [0, %d)", gold, r))
		}
		mat.Col(col, t, logits)
		lse := floats.LogSumExp(col)
		loss += lse - col[gold]
		for i, v := range col {
			col[i] = math.Exp(v - lse)
		}
		col[gold] -= 1.0
		grad.SetCol(t, col)
	}
	return loss, grad
}

// ---------- Sampling ----------

// SampleFromLogits draws one index from softmax(logits).
func SampleFromLogits(logits []float64, rng *rand.Rand) int {
	probs := Softmax(logits)
	return int(distuv.NewCategorical(probs, rng).Rand())
}
