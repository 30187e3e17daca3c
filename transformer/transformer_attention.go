package transformer

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/paulchinnam/GPaulT/optimizations"
	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/mat"
)

// Head is one causal self-attention head. Weights are (headSize x C), no bias.
type Head struct {
	HeadSize int
	Query    *optimizations.Param
	Key      *optimizations.Param
	Value    *optimizations.Param
	Dropout  float64

	mask *mat.Dense // (blockSize x blockSize), shared by every head
}

type headCache struct {
	x, q, k, v *mat.Dense
	a          *mat.Dense // softmax weights (T x T)
	aDrop      *mat.Dense
	dropMask   *mat.Dense
}

func NewHead(name string, embedDim, headSize int, dropout float64, mask *mat.Dense, rng *rand.Rand) *Head {
	newW := func(kind string) *optimizations.Param {
		return optimizations.NewParam(name+"."+kind, headSize, embedDim,
			utils.RandomArray(rng, headSize*embedDim, float64(embedDim)), true)
	}
	return &Head{
		HeadSize: headSize,
		Query:    newW("query"),
		Key:      newW("key"),
		Value:    newW("value"),
		Dropout:  dropout,
		mask:     mask,
	}
}

func (h *Head) Params() []*optimizations.Param {
	return []*optimizations.Param{h.Query, h.Key, h.Value}
}

// Forward maps x (C x T) to (headSize x T). Column t only sees columns <= t.
func (h *Head) Forward(x *mat.Dense, c *headCache, ps *pass) *mat.Dense {
	_, T := x.Dims()
	if mr, _ := h.mask.Dims(); T > mr {
		panic(fmt.Sprintf("Head.Forward: %d steps exceed block size %d", T, mr))
	}
	rescale := 1.0 / math.Sqrt(float64(h.HeadSize))

	q := utils.ToDense(utils.Dot(h.Query.W, x))
	k := utils.ToDense(utils.Dot(h.Key.W, x))
	v := utils.ToDense(utils.Dot(h.Value.W, x))

	// S = (Q^T K)/sqrt(headSize)
	scores := mat.NewDense(T, T, nil)
	scores.Mul(q.T(), k)
	scores.Scale(rescale, scores)

	a := mat.NewDense(T, T, nil)
	utils.RowSoftmaxMaskedInPlace(a, scores, h.mask.Slice(0, T, 0, T).(*mat.Dense))
	aDrop, dropMask := dropout(a, h.Dropout, ps)

	// O = V * A^T
	out := mat.NewDense(h.HeadSize, T, nil)
	out.Mul(v, aDrop.T())

	*c = headCache{x: x, q: q, k: k, v: v, a: a, aDrop: aDrop, dropMask: dropMask}
	return out
}

// Backward accumulates dWq, dWk, dWv into gs and returns dX (C x T).
func (h *Head) Backward(dO *mat.Dense, c *headCache, gs *optimizations.GradSet) *mat.Dense {
	rescale := 1.0 / math.Sqrt(float64(h.HeadSize))

	// O = V * Ad^T
	dV := utils.ToDense(utils.Dot(dO, c.aDrop))  // (headSize x T)
	dAd := utils.ToDense(utils.Dot(dO.T(), c.v)) // (T x T)
	dA := dropoutBackward(dAd, c.dropMask)       // masked entries have A=0 and get no gradient
	dS := utils.SoftmaxBackward(dA, c.a)         // (T x T)

	// S = Q^T K / sqrt(headSize)
	dQ := utils.ToDense(utils.Scale(rescale, utils.Dot(c.k, dS.T())))
	dK := utils.ToDense(utils.Scale(rescale, utils.Dot(c.q, dS)))

	utils.AccumulateProduct(gs.Of(h.Query), dQ, c.x.T())
	utils.AccumulateProduct(gs.Of(h.Key), dK, c.x.T())
	utils.AccumulateProduct(gs.Of(h.Value), dV, c.x.T())

	dX := utils.ToDense(utils.Dot(h.Query.W.T(), dQ))
	utils.AccumulateProduct(dX, h.Key.W.T(), dK)
	utils.AccumulateProduct(dX, h.Value.W.T(), dV)
	return dX
}

// MultiHeadAttention runs independent heads over disjoint subspaces,
// concatenates them and projects back to C.
type MultiHeadAttention struct {
	H       int
	DModel  int
	DHead   int
	Heads   []*Head
	Woutput *optimizations.Param // (C x C)
	Boutput *optimizations.Param // (C x 1)
	Dropout float64
}

type attnCache struct {
	heads    []headCache
	cat      *mat.Dense // (C x T)
	dropMask *mat.Dense
}

func NewMultiHeadAttention(name string, dModel, nHeads int, dropout float64, mask *mat.Dense, rng *rand.Rand) (*MultiHeadAttention, error) {
	if nHeads <= 0 || dModel%nHeads != 0 {
		return nil, fmt.Errorf("%w: dModel %d, heads %d", ErrHeadDivisibility, dModel, nHeads)
	}
	dHead := dModel / nHeads
	attn := &MultiHeadAttention{
		H:       nHeads,
		DModel:  dModel,
		DHead:   dHead,
		Heads:   make([]*Head, nHeads),
		Dropout: dropout,
	}
	for h := 0; h < nHeads; h++ {
		attn.Heads[h] = NewHead(fmt.Sprintf("%s.heads.%d", name, h), dModel, dHead, dropout, mask, rng)
	}
	attn.Woutput = optimizations.NewParam(name+".proj", dModel, dModel,
		utils.RandomArray(rng, dModel*dModel, float64(dModel)), true)
	attn.Boutput = optimizations.NewParam(name+".proj_bias", dModel, 1, nil, false)
	return attn, nil
}

func (attn *MultiHeadAttention) Params() []*optimizations.Param {
	var ps []*optimizations.Param
	for _, h := range attn.Heads {
		ps = append(ps, h.Params()...)
	}
	return append(ps, attn.Woutput, attn.Boutput)
}

func (attn *MultiHeadAttention) Forward(X *mat.Dense, c *attnCache, ps *pass) *mat.Dense {
	_, T := X.Dims()
	if len(c.heads) != attn.H {
		c.heads = make([]headCache, attn.H)
	}
	headsCat := mat.NewDense(attn.DModel, T, nil)
	for h, head := range attn.Heads {
		o := head.Forward(X, &c.heads[h], ps)
		base := h * attn.DHead
		headsCat.Slice(base, base+attn.DHead, 0, T).(*mat.Dense).Copy(o)
	}
	Y := utils.AddBias(utils.ToDense(utils.Dot(attn.Woutput.W, headsCat)), attn.Boutput.W)
	out, dropMask := dropout(Y, attn.Dropout, ps)
	c.cat = headsCat
	c.dropMask = dropMask
	return out
}

func (attn *MultiHeadAttention) Backward(dY *mat.Dense, c *attnCache, gs *optimizations.GradSet) *mat.Dense {
	_, T := dY.Dims()
	dY = dropoutBackward(dY, c.dropMask)

	// Y = Wout * Ocat + b
	utils.AccumulateProduct(gs.Of(attn.Woutput), dY, c.cat.T())
	utils.AccumulateRowSums(gs.Of(attn.Boutput), dY)
	dOcat := utils.ToDense(utils.Dot(attn.Woutput.W.T(), dY))

	dX := mat.NewDense(attn.DModel, T, nil)
	for h, head := range attn.Heads {
		base := h * attn.DHead
		dO := dOcat.Slice(base, base+attn.DHead, 0, T).(*mat.Dense)
		dX.Add(dX, head.Backward(dO, &c.heads[h], gs))
	}
	return dX
}
