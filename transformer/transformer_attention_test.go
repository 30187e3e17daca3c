package transformer

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/paulchinnam/GPaulT/optimizations"
	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/mat"
)

// finiteDiffCheck compares grad[i,j] against a central difference of forward.
func finiteDiffCheck(t *testing.T, name string, param, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()

	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()

	param.Set(i, j, w0-eps)
	lm := forward()

	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)

	if math.Abs(numGrad-anaGrad) > 1e-6+1e-4*math.Abs(anaGrad) {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

var evalPass = &pass{}

func TestHeadGradFiniteDiff(t *testing.T) {
	rng := rand.New(rand.NewPCG(123, 0))
	C, hs, T := 6, 3, 5
	head := NewHead("head", C, hs, 0, utils.CausalMask(8), rng)

	x := mat.NewDense(C, T, utils.RandomArray(rng, C*T, 1))
	w := mat.NewDense(hs, T, utils.RandomArray(rng, hs*T, 1)) // loss = sum(w .* out)
	forward := func() float64 {
		var c headCache
		return mat.Sum(utils.Multiply(w, head.Forward(x, &c, evalPass)))
	}

	var c headCache
	head.Forward(x, &c, evalPass)
	dX := head.Backward(w, &c, optimizations.DirectGrads())

	finiteDiffCheck(t, "Wquery", head.Query.W, head.Query.G, forward, 1, 2)
	finiteDiffCheck(t, "Wkey", head.Key.W, head.Key.G, forward, 2, 4)
	finiteDiffCheck(t, "Wvalue", head.Value.W, head.Value.G, forward, 0, 5)
	finiteDiffCheck(t, "x", x, dX, forward, 3, 1)
	finiteDiffCheck(t, "x", x, dX, forward, 5, 4)
}

func TestHeadIsCausal(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	C, T := 4, 6
	head := NewHead("head", C, 2, 0, utils.CausalMask(T), rng)
	x := mat.NewDense(C, T, utils.RandomArray(rng, C*T, 1))

	var c headCache
	out := head.Forward(x, &c, evalPass)

	// perturbing the last step must leave earlier outputs unchanged
	x2 := mat.DenseCopyOf(x)
	for i := 0; i < C; i++ {
		x2.Set(i, T-1, x2.At(i, T-1)+3)
	}
	out2 := head.Forward(x2, &c, evalPass)
	for t0 := 0; t0 < T-1; t0++ {
		for i := 0; i < 2; i++ {
			if out.At(i, t0) != out2.At(i, t0) {
				t.Fatalf("output at step %d changed after editing step %d", t0, T-1)
			}
		}
	}
}

func TestMultiHeadAttentionGradFiniteDiff(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	C, T := 6, 4
	attn, err := NewMultiHeadAttention("attn", C, 3, 0, utils.CausalMask(T), rng)
	if err != nil {
		t.Fatal(err)
	}
	x := mat.NewDense(C, T, utils.RandomArray(rng, C*T, 1))
	w := mat.NewDense(C, T, utils.RandomArray(rng, C*T, 1))
	forward := func() float64 {
		var c attnCache
		return mat.Sum(utils.Multiply(w, attn.Forward(x, &c, evalPass)))
	}

	var c attnCache
	attn.Forward(x, &c, evalPass)
	dX := attn.Backward(w, &c, optimizations.DirectGrads())

	finiteDiffCheck(t, "Woutput", attn.Woutput.W, attn.Woutput.G, forward, 2, 3)
	finiteDiffCheck(t, "Boutput", attn.Boutput.W, attn.Boutput.G, forward, 4, 0)
	finiteDiffCheck(t, "head1.Wquery", attn.Heads[1].Query.W, attn.Heads[1].Query.G, forward, 0, 1)
	finiteDiffCheck(t, "head2.Wvalue", attn.Heads[2].Value.W, attn.Heads[2].Value.G, forward, 1, 5)
	finiteDiffCheck(t, "x", x, dX, forward, 2, 2)
}

func TestMultiHeadAttentionRejectsIndivisibleHeads(t *testing.T) {
	_, err := NewMultiHeadAttention("attn", 10, 3, 0, utils.CausalMask(4), rand.New(rand.NewPCG(1, 1)))
	if !errors.Is(err, ErrHeadDivisibility) {
		t.Fatalf("want ErrHeadDivisibility, got %v", err)
	}
}

func TestMultiHeadAttentionOutputShape(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 3))
	attn, err := NewMultiHeadAttention("attn", 8, 4, 0, utils.CausalMask(5), rng)
	if err != nil {
		t.Fatal(err)
	}
	var c attnCache
	y := attn.Forward(mat.NewDense(8, 5, utils.RandomArray(rng, 40, 1)), &c, evalPass)
	if r, cols := y.Dims(); r != 8 || cols != 5 {
		t.Fatalf("got (%d x %d), want (8 x 5)", r, cols)
	}
	if len(c.heads) != 4 {
		t.Fatalf("got %d head caches", len(c.heads))
	}
}
