// Package runstate holds the activation scratch buffers and KV cache that
// Forward mutates on every call. A RunState is owned by a single
// generator; nothing outside Forward may observe intermediate contents
// between calls.
package runstate

import "github.com/ollama/llama2.go/internal/checkpoint"

// RunState is reused across every token and layer of a generation run.
type RunState struct {
	X   []float32 // (dim,) current activation
	XB  []float32 // (dim,) rmsnorm'd activation, attention-output scratch
	XB2 []float32 // (dim,) scratch for the output projection

	HB  []float32 // (hidden_dim,) FFN gate branch
	HB2 []float32 // (hidden_dim,) FFN up branch

	Q []float32 // (dim,) query projection
	K []float32 // (kv_dim,) key projection for the current layer/position
	V []float32 // (kv_dim,) value projection for the current layer/position

	Att []float32 // (n_heads, seq_len) attention scores scratch

	Logits []float32 // (vocab_size,)

	KeyCache   []float32 // (n_layers, seq_len, kv_dim)
	ValueCache []float32 // (n_layers, seq_len, kv_dim)
}

// New allocates every scratch buffer, zero-initialized, sized from cfg.
func New(cfg checkpoint.Config) *RunState {
	kvDim := cfg.KVDim()
	return &RunState{
		X:   make([]float32, cfg.Dim),
		XB:  make([]float32, cfg.Dim),
		XB2: make([]float32, cfg.Dim),

		HB:  make([]float32, cfg.HiddenDim),
		HB2: make([]float32, cfg.HiddenDim),

		Q: make([]float32, cfg.Dim),
		K: make([]float32, kvDim),
		V: make([]float32, kvDim),

		Att: make([]float32, cfg.NHeads*cfg.SeqLen),

		Logits: make([]float32, cfg.VocabSize),

		KeyCache:   make([]float32, cfg.NLayers*cfg.SeqLen*kvDim),
		ValueCache: make([]float32, cfg.NLayers*cfg.SeqLen*kvDim),
	}
}

// Reset zeros every buffer. The KV cache is also cleared since the caller
// is about to begin a fresh generation over positions 0..N.
func (s *RunState) Reset() {
	clear(s.X)
	clear(s.XB)
	clear(s.XB2)
	clear(s.HB)
	clear(s.HB2)
	clear(s.Q)
	clear(s.K)
	clear(s.V)
	clear(s.Att)
	clear(s.Logits)
	clear(s.KeyCache)
	clear(s.ValueCache)
}

// Free drops every reference so the backing arrays can be collected. After
// Free, s must not be used again.
func (s *RunState) Free() {
	*s = RunState{}
}
