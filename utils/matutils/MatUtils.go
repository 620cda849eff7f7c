// Package matutils implements utility function for working with mat.Matrix
// structs
package matutils

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Format formats a matrix for printing
func Format(X mat.Matrix) string {
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	return fmt.Sprintf("%v", fa)
}

// LogSoftmaxRows replaces each row of matrix with the log of the
// softmax of that row
func LogSoftmaxRows(matrix *mat.Dense) {
	r, _ := matrix.Dims()
	for i := 0; i < r; i++ {
		row := matrix.RawRowView(i)
		floats.AddConst(-floats.LogSumExp(row), row)
	}
}

// OneHot returns the row major one-hot encoding of indices, with
// each row having length size
func OneHot(indices []int, size int) []float64 {
	encoded := make([]float64, len(indices)*size)
	for i, index := range indices {
		if index < 0 || index >= size {
			panic(fmt.Sprintf("onehot: index %v out of range [0, %v)",
				index, size))
		}
		encoded[i*size+index] = 1.0
	}
	return encoded
}
