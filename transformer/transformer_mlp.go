package transformer

import (
	"math/rand/v2"

	"github.com/paulchinnam/GPaulT/optimizations"
	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/mat"
)

// FeedForward is the position-wise C -> 4C -> C network with ReLU.
type FeedForward struct {
	Inputs, Hiddens           int
	HiddenWeights, HiddenBias *optimizations.Param
	OutputWeights, OutputBias *optimizations.Param
	Dropout                   float64
}

type mlpCache struct {
	lastInput, hiddenPreAct, hiddenOutputs *mat.Dense
	dropMask                               *mat.Dense
}

func NewFeedForward(name string, dModel int, dropout float64, rng *rand.Rand) *FeedForward {
	hidden := 4 * dModel
	return &FeedForward{
		Inputs:  dModel,
		Hiddens: hidden,
		HiddenWeights: optimizations.NewParam(name+".hidden", hidden, dModel,
			utils.RandomArray(rng, hidden*dModel, float64(dModel)), true),
		HiddenBias: optimizations.NewParam(name+".hidden_bias", hidden, 1, nil, false),
		OutputWeights: optimizations.NewParam(name+".output", dModel, hidden,
			utils.RandomArray(rng, dModel*hidden, float64(hidden)), true),
		OutputBias: optimizations.NewParam(name+".output_bias", dModel, 1, nil, false),
		Dropout:    dropout,
	}
}

func (mlp *FeedForward) Params() []*optimizations.Param {
	return []*optimizations.Param{mlp.HiddenWeights, mlp.HiddenBias, mlp.OutputWeights, mlp.OutputBias}
}

func (mlp *FeedForward) Forward(X *mat.Dense, c *mlpCache, ps *pass) *mat.Dense {
	hiddenLin := utils.ToDense(utils.Dot(mlp.HiddenWeights.W, X)) // (4C x T)
	hiddenWithBias := utils.AddBias(hiddenLin, mlp.HiddenBias.W)  // (4C x T)
	hiddenOutputs := utils.Apply(utils.ReluApply, hiddenWithBias).(*mat.Dense)
	finalLin := utils.ToDense(utils.Dot(mlp.OutputWeights.W, hiddenOutputs)) // (C x T)
	final := utils.AddBias(finalLin, mlp.OutputBias.W)
	out, dropMask := dropout(final, mlp.Dropout, ps)

	*c = mlpCache{
		lastInput:     X,
		hiddenPreAct:  hiddenWithBias,
		hiddenOutputs: hiddenOutputs,
		dropMask:      dropMask,
	}
	return out
}

func (mlp *FeedForward) Backward(grad *mat.Dense, c *mlpCache, gs *optimizations.GradSet) *mat.Dense {
	grad = dropoutBackward(grad, c.dropMask)

	utils.AccumulateProduct(gs.Of(mlp.OutputWeights), grad, c.hiddenOutputs.T())
	utils.AccumulateRowSums(gs.Of(mlp.OutputBias), grad)

	hiddenErrors := utils.ToDense(utils.Dot(mlp.OutputWeights.W.T(), grad)) // (4C x T)
	utils.ReluBackwardInPlace(hiddenErrors, c.hiddenPreAct)

	utils.AccumulateProduct(gs.Of(mlp.HiddenWeights), hiddenErrors, c.lastInput.T())
	utils.AccumulateRowSums(gs.Of(mlp.HiddenBias), hiddenErrors)

	return utils.ToDense(utils.Dot(mlp.HiddenWeights.W.T(), hiddenErrors))
}
