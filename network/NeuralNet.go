// Package network implements feed forward neural networks built on
// Gorgonia computational graphs
package network

import (
	"errors"

	G "gorgonia.org/gorgonia"
)

// ErrShapeMismatch is returned when the parameters of two networks
// cannot be copied or mixed because their shapes differ
var ErrShapeMismatch = errors.New("parameter shapes differ")

// NeuralNet is a neural network whose forward pass lives in a Gorgonia
// computational graph
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error

	// Set sets the weights of the receiver to a copy of the weights
	// of the argument
	Set(NeuralNet) error

	// Polyak sets the weights of the receiver to
	// (1 - tau) * receiver + tau * source
	Polyak(source NeuralNet, tau float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad
	Shapes() []int
	Params() [][]float64
	OutputWeights() *G.Node
	Output() []G.Value
	Prediction() []*G.Node
}
