// Package transformer implements the Llama-2 forward pass: per-token,
// per-layer attention with rotary position encoding, a grouped-query KV
// cache, and a SiLU-gated feed-forward network.
package transformer

import (
	"github.com/chewxy/math32"
	"gorgonia.org/vecf32"

	"github.com/ollama/llama2.go/internal/checkpoint"
	"github.com/ollama/llama2.go/internal/runstate"
	"github.com/ollama/llama2.go/internal/workerpool"
)

// Transformer binds a checkpoint's config and weights to a RunState and a
// worker pool. A Transformer is owned by a single generator; Forward is
// not safe to call concurrently from multiple goroutines against the same
// instance (RunState has a single-generator invariant).
type Transformer struct {
	Config  checkpoint.Config
	Weights checkpoint.TransformerWeights
	State   *runstate.RunState
	pool    *workerpool.Pool
}

// New builds a Transformer over an already-loaded checkpoint, allocating a
// fresh RunState sized from its config.
func New(cfg checkpoint.Config, weights checkpoint.TransformerWeights, pool *workerpool.Pool) *Transformer {
	return &Transformer{
		Config:  cfg,
		Weights: weights,
		State:   runstate.New(cfg),
		pool:    pool,
	}
}

// Forward runs one token through every layer and returns a pointer to the
// (reused) logits buffer in State. The returned slice is only valid until
// the next call to Forward.
//
// Preconditions: 0 <= tokenID < VocabSize, 0 <= position < SeqLen. Violating
// either panics with *PreconditionError: this is fatal, with no
// recoverable continuation.
func (t *Transformer) Forward(tokenID, position int) []float32 {
	cfg := t.Config
	precondition(tokenID >= 0 && tokenID < cfg.VocabSize, "token id %d out of range [0,%d)", tokenID, cfg.VocabSize)
	precondition(position >= 0 && position < cfg.SeqLen, "position %d out of range [0,%d)", position, cfg.SeqLen)

	s := t.State
	w := t.Weights
	headSize := cfg.HeadSize()
	kvDim := cfg.KVDim()
	kvMul := cfg.KVMul()

	// 1. Embed.
	copy(s.X, w.TokenEmbeddingTable[tokenID*cfg.Dim:(tokenID+1)*cfg.Dim])

	for l := 0; l < cfg.NLayers; l++ {
		// 2a. RMSNorm.
		rmsnorm(s.XB, s.X, w.RMSAttWeight[l*cfg.Dim:(l+1)*cfg.Dim])

		// 2b. QKV projections.
		matmul(t.pool, s.Q, s.XB, w.WQ[l*cfg.Dim*cfg.Dim:(l+1)*cfg.Dim*cfg.Dim], cfg.Dim, cfg.Dim)
		matmul(t.pool, s.K, s.XB, w.WK[l*cfg.Dim*kvDim:(l+1)*cfg.Dim*kvDim], cfg.Dim, kvDim)
		matmul(t.pool, s.V, s.XB, w.WV[l*cfg.Dim*kvDim:(l+1)*cfg.Dim*kvDim], cfg.Dim, kvDim)

		// 2c. RoPE: rotate (q[i], q[i+1]) for every even i, and the
		// corresponding (k[i], k[i+1]) while i < kv_dim.
		applyRoPE(s.Q, s.K, position, cfg.Dim, kvDim, headSize)

		// 2d. Cache append.
		cacheOff := l*cfg.SeqLen*kvDim + position*kvDim
		copy(s.KeyCache[cacheOff:cacheOff+kvDim], s.K)
		copy(s.ValueCache[cacheOff:cacheOff+kvDim], s.V)

		// 2e. Multi-head attention.
		attention(t.pool, s, l, position, cfg.NHeads, headSize, kvDim, kvMul, cfg.SeqLen)

		// 2f. Output projection + residual.
		matmul(t.pool, s.XB2, s.XB, w.WO[l*cfg.Dim*cfg.Dim:(l+1)*cfg.Dim*cfg.Dim], cfg.Dim, cfg.Dim)
		vecf32.Add(s.X, s.XB2)

		// 2g. FFN.
		rmsnorm(s.XB, s.X, w.RMSFFNWeight[l*cfg.Dim:(l+1)*cfg.Dim])
		matmul(t.pool, s.HB, s.XB, w.W1[l*cfg.HiddenDim*cfg.Dim:(l+1)*cfg.HiddenDim*cfg.Dim], cfg.Dim, cfg.HiddenDim)
		matmul(t.pool, s.HB2, s.XB, w.W3[l*cfg.HiddenDim*cfg.Dim:(l+1)*cfg.HiddenDim*cfg.Dim], cfg.Dim, cfg.HiddenDim)
		for i := range s.HB {
			s.HB[i] = s.HB[i] * sigmoid(s.HB[i])
		}
		vecf32.Mul(s.HB, s.HB2)
		matmul(t.pool, s.XB, s.HB, w.W2[l*cfg.Dim*cfg.HiddenDim:(l+1)*cfg.Dim*cfg.HiddenDim], cfg.HiddenDim, cfg.Dim)
		vecf32.Add(s.X, s.XB)
	}

	// 3. Final norm + classifier.
	rmsnorm(s.X, s.X, w.RMSFinalWeight)
	matmul(t.pool, s.Logits, s.X, w.WCls, cfg.Dim, cfg.VocabSize)

	return s.Logits
}

// applyRoPE rotates query (and, for the shared prefix, key) pair components
// by a position-dependent angle.
func applyRoPE(q, k []float32, position, dim, kvDim, headSize int) {
	for i := 0; i < dim; i += 2 {
		headDim := i % headSize
		freq := 1 / math32.Pow(10000, float32(headDim)/float32(headSize))
		theta := float32(position) * freq
		cosv, sinv := math32.Cos(theta), math32.Sin(theta)

		rotate(q, i, cosv, sinv)
		if i < kvDim {
			rotate(k, i, cosv, sinv)
		}
	}
}

func rotate(v []float32, i int, cosv, sinv float32) {
	v0, v1 := v[i], v[i+1]
	v[i] = v0*cosv - v1*sinv
	v[i+1] = v0*sinv + v1*cosv
}

// attention computes, for every head, a causal softmax-weighted average of
// cached values. Heads write disjoint stripes of s.Att and s.XB, so they
// are partitioned across the worker pool without additional
// synchronization.
func attention(pool *workerpool.Pool, s *runstate.RunState, layer, position, nHeads, headSize, kvDim, kvMul, seqLen int) {
	scale := 1 / math32.Sqrt(float32(headSize))
	layerCacheOff := layer * seqLen * kvDim

	pool.For(nHeads, func(lo, hi int) {
		for h := lo; h < hi; h++ {
			q := s.Q[h*headSize : (h+1)*headSize]
			kvHead := h / kvMul
			att := s.Att[h*seqLen : h*seqLen+position+1]

			for t := 0; t <= position; t++ {
				kOff := layerCacheOff + t*kvDim + kvHead*headSize
				key := s.KeyCache[kOff : kOff+headSize]

				var dot float32
				for i, qi := range q {
					dot += qi * key[i]
				}
				att[t] = dot * scale
			}

			softmax(att)

			out := s.XB[h*headSize : (h+1)*headSize]
			clear(out)
			for t := 0; t <= position; t++ {
				vOff := layerCacheOff + t*kvDim + kvHead*headSize
				value := s.ValueCache[vOff : vOff+headSize]
				weight := att[t]
				for i, vi := range value {
					out[i] += weight * vi
				}
			}
		}
	})
}
