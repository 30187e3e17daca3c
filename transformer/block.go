package transformer

import (
	"fmt"
	"math/rand/v2"

	"github.com/paulchinnam/GPaulT/optimizations"
	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/mat"
)

const lnEps = 1e-5

// Block is a pre-norm residual unit:
//
//	x = x + attn(ln1(x))
//	x = x + mlp(ln2(x))
type Block struct {
	Attn *MultiHeadAttention
	Mlp  *FeedForward
	Ln1  *optimizations.LayerNorm
	Ln2  *optimizations.LayerNorm
}

type blockCache struct {
	ln1, ln2 optimizations.LNCache
	attn     attnCache
	mlp      mlpCache
}

func NewBlock(name string, dModel, nHeads int, dropout float64, mask *mat.Dense, rng *rand.Rand) (*Block, error) {
	attn, err := NewMultiHeadAttention(name+".attn", dModel, nHeads, dropout, mask, rng)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Block{
		Attn: attn,
		Mlp:  NewFeedForward(name+".mlp", dModel, dropout, rng),
		Ln1:  optimizations.NewLayerNorm(name+".ln1", dModel, lnEps),
		Ln2:  optimizations.NewLayerNorm(name+".ln2", dModel, lnEps),
	}, nil
}

func (b *Block) Params() []*optimizations.Param {
	ps := b.Ln1.Params()
	ps = append(ps, b.Attn.Params()...)
	ps = append(ps, b.Ln2.Params()...)
	return append(ps, b.Mlp.Params()...)
}

func (b *Block) Forward(X *mat.Dense, c *blockCache, ps *pass) *mat.Dense {
	a := b.Attn.Forward(b.Ln1.Forward(X, &c.ln1), &c.attn, ps)
	X1 := utils.ToDense(utils.Add(X, a))
	m := b.Mlp.Forward(b.Ln2.Forward(X1, &c.ln2), &c.mlp, ps)
	return utils.ToDense(utils.Add(X1, m))
}

func (b *Block) Backward(dY *mat.Dense, c *blockCache, gs *optimizations.GradSet) *mat.Dense {
	// residual around mlp
	dX1 := b.Ln2.Backward(b.Mlp.Backward(dY, &c.mlp, gs), &c.ln2, gs)
	dX1.Add(dX1, dY)
	// residual around attention
	dX := b.Ln1.Backward(b.Attn.Backward(dX1, &c.attn, gs), &c.ln1, gs)
	dX.Add(dX, dX1)
	return dX
}
