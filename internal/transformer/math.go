package transformer

import (
	"github.com/chewxy/math32"
	"gorgonia.org/vecf32"
)

const rmsNormEps = 1e-5

// rmsnorm writes rms(x) * weight into dst. dst may alias x.
//
//	rmsnorm(v)_i = v_i / sqrt(mean(v^2) + eps)
func rmsnorm(dst, x, weight []float32) {
	var ss float32
	for _, v := range x {
		ss += v * v
	}
	ss /= float32(len(x))
	ss += rmsNormEps
	scale := 1 / math32.Sqrt(ss)

	for i, v := range x {
		dst[i] = v * scale
	}
	vecf32.Mul(dst, weight)
}

// softmax normalizes x in place into a probability distribution, subtracting
// the max for numerical stability.
func softmax(x []float32) {
	if len(x) == 0 {
		return
	}

	maxVal := x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float32
	for i, v := range x {
		e := math32.Exp(v - maxVal)
		x[i] = e
		sum += e
	}

	vecf32.Scale(1/sum, x)
}

// sigmoid is the logistic function, computed in float32 via math32.Exp to
// stay aligned with the checkpoint's fp32 weights.
func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}
