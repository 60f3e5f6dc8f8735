package gorefit

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Identity returns an identity matrix of the provided size.
func Identity(n int) *mat.SymDense {
	return ScaledIdentity(n, 1)
}

// ScaledIdentity returns a diagonal matrix of the provided size with s on the diagonal.
func ScaledIdentity(n int, s float64) *mat.SymDense {
	vals := make([]float64, n*n)
	for j := 0; j < n*n; j++ {
		if j%(n+1) == 0 {
			vals[j] = s
		}
	}
	return mat.NewSymDense(n, vals)
}

// Diagonal returns a symmetric matrix with the provided diagonal.
func Diagonal(diag ...float64) *mat.SymDense {
	n := len(diag)
	m := mat.NewSymDense(n, nil)
	for i, v := range diag {
		m.SetSym(i, i, v)
	}
	return m
}

// symmetrize returns (m + m')/2 as a SymDense. Products such as F*P*F' are only
// symmetric up to rounding.
func symmetrize(m mat.Matrix) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic("gorefit: symmetrize of a non-square matrix")
	}
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}

// isFinite returns false if any element of m is NaN or ±Inf.
func isFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// hasPositiveDiagonal returns whether every diagonal element of a covariance is strictly positive.
func hasPositiveDiagonal(m mat.Symmetric) bool {
	for i := 0; i < m.SymmetricDim(); i++ {
		if m.At(i, i) <= 0 {
			return false
		}
	}
	return true
}
