package transformer

import (
	"github.com/ollama/llama2.go/internal/workerpool"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// matmul computes xout = W * x, where W is a row-major (d, n) matrix: d
// rows of n columns, so y_i = sum_j W[i,j]*x_j. Output rows are
// partitioned across pool's workers; each worker's blas32.Gemv call writes
// a disjoint stripe of xout, so no synchronization is needed beyond the
// pool's join.
func matmul(pool *workerpool.Pool, xout, x, w []float32, n, d int) {
	xv := blas32.Vector{N: n, Inc: 1, Data: x}

	pool.For(d, func(lo, hi int) {
		a := blas32.General{
			Rows:   hi - lo,
			Cols:   n,
			Stride: n,
			Data:   w[lo*n : hi*n],
		}
		y := blas32.Vector{N: hi - lo, Inc: 1, Data: xout[lo:hi]}
		blas32.Gemv(blas.NoTrans, 1, a, xv, 0, y)
	})
}
