// Package op provides extended Gorgonia graph operations.
package op

import (
	G "gorgonia.org/gorgonia"
)

// LogSumExp calculates the log of the summation of exponentials of
// all logits along the given axis.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged, which is incorrect.
func LogSumExp(logits *G.Node, along int) *G.Node {
	max := G.Must(G.Max(logits, along))

	exponent := G.Must(G.BroadcastSub(logits, max, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, along))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// CategoricalLogProb calculates the log probability of the categories
// selected by the one-hot rows of actions, under the softmax
// distributions whose logits are the rows of logits. Both arguments
// should be of size batch x categories; the result has size batch.
func CategoricalLogProb(logits, actions *G.Node) *G.Node {
	selected := G.Must(G.HadamardProd(actions, logits))
	selected = G.Must(G.Sum(selected, 1))

	return G.Must(G.Sub(selected, LogSumExp(logits, 1)))
}

// SigmoidCrossEntropy calculates the binary cross entropy between
// labels in [0, 1] and the sigmoid of logits, elementwise. It is
// computed as max(z, 0) - z * y + log(1 + exp(-|z|)), which does not
// overflow for large logits.
func SigmoidCrossEntropy(logits, labels *G.Node) *G.Node {
	positive := G.Must(G.Rectify(logits))
	zy := G.Must(G.HadamardProd(logits, labels))

	softplus := G.Must(G.Abs(logits))
	softplus = G.Must(G.Neg(softplus))
	softplus = G.Must(G.Exp(softplus))
	softplus = G.Must(G.Log1p(softplus))

	loss := G.Must(G.Sub(positive, zy))
	return G.Must(G.Add(loss, softplus))
}

// L2 calculates lambda / 2 times the sum of squares of the weights
func L2(weights *G.Node, lambda float64) *G.Node {
	sumSquares := G.Must(G.Square(weights))
	sumSquares = G.Must(G.Sum(sumSquares))

	scale := G.NewConstant(lambda / 2.0)
	return G.Must(G.HadamardProd(scale, sumSquares))
}
