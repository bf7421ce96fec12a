package generate

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/llama2.go/internal/checkpoint"
	"github.com/ollama/llama2.go/internal/sample"
	"github.com/ollama/llama2.go/internal/tokenizer"
	"github.com/ollama/llama2.go/internal/transformer"
	"github.com/ollama/llama2.go/internal/workerpool"
)

// newFixedVocabTokenizer builds a tokenizer over a tiny explicit vocabulary
// for driver tests, bypassing on-disk loading the way the tokenizer
// package's own tests do.
func newFixedVocabTokenizer(pieces []string) *tokenizer.Tokenizer {
	return tokenizer.NewForTest(pieces, make([]float32, len(pieces)))
}

// buildTinyModel constructs a single-layer, single-head identity-projection
// transformer plus a matching vocabulary, small enough to drive end to end.
func buildTinyModel(t *testing.T) (*transformer.Transformer, *tokenizer.Tokenizer) {
	t.Helper()

	const dim = 4
	pieces := []string{"<unk>", "<s>", "</s>", " ", "a", "b", "c"}
	vocabSize := len(pieces)

	cfg := checkpoint.Config{
		Dim: dim, HiddenDim: dim, NLayers: 1, NHeads: 1, NKVHeads: 1,
		VocabSize: vocabSize, SeqLen: 16, SharedClassifier: true,
	}

	identity := func(n int) []float32 {
		m := make([]float32, n*n)
		for i := 0; i < n; i++ {
			m[i*n+i] = 1
		}
		return m
	}
	ones := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = 1
		}
		return v
	}
	zeros := func(n int) []float32 { return make([]float32, n) }

	embed := make([]float32, vocabSize*dim)
	for i := range embed {
		embed[i] = float32(i%5) - 2
	}

	weights := checkpoint.TransformerWeights{
		TokenEmbeddingTable: embed,
		RMSAttWeight:        ones(dim),
		WQ:                  identity(dim),
		WK:                  identity(dim),
		WV:                  identity(dim),
		WO:                  identity(dim),
		RMSFFNWeight:        ones(dim),
		W1:                  zeros(dim * dim),
		W2:                  zeros(dim * dim),
		W3:                  zeros(dim * dim),
		RMSFinalWeight:      ones(dim),
		WCls:                embed,
	}

	pool := workerpool.New(2)
	tr := transformer.New(cfg, weights, pool)
	tok := newFixedVocabTokenizer(pieces)
	return tr, tok
}

func TestGenerateStopsAtStepBudget(t *testing.T) {
	tr, tok := buildTinyModel(t)
	d := &Driver{
		Transformer: tr,
		Tokenizer:   tok,
		Sampler:     sample.New(tok.VocabSize(), 42),
	}

	var out, stats bytes.Buffer
	err := d.Generate("a", Options{Steps: 5, Temperature: 0.8, TopP: 0.9, FlushEvery: 1}, &out, &stats)
	require.NoError(t, err)

	// Forward ran for positions 0..4 at most, so the cache slot for
	// position 5 was never written.
	kvDim := tr.Config.KVDim()
	for _, v := range tr.State.KeyCache[5*kvDim : 6*kvDim] {
		assert.Equal(t, float32(0), v)
	}
}

func TestGenerateStopsOnBOSDuringPrefill(t *testing.T) {
	// A vocabulary where the BOS id (1) happens to be a plain printable
	// character ("q"), so a prompt can force it through the tokenizer's
	// normal single-byte path without needing the full 256-entry
	// byte-fallback table this fixture doesn't have.
	pieces := []string{"<unk>", "q", "</s>", " ", "a", "b", "c"}
	const dim = 4
	vocabSize := len(pieces)

	cfg := checkpoint.Config{
		Dim: dim, HiddenDim: dim, NLayers: 1, NHeads: 1, NKVHeads: 1,
		VocabSize: vocabSize, SeqLen: 16, SharedClassifier: true,
	}
	identity := func(n int) []float32 {
		m := make([]float32, n*n)
		for i := 0; i < n; i++ {
			m[i*n+i] = 1
		}
		return m
	}
	ones := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = 1
		}
		return v
	}
	zeros := func(n int) []float32 { return make([]float32, n) }
	embed := make([]float32, vocabSize*dim)
	for i := range embed {
		embed[i] = float32(i%5) - 2
	}
	weights := checkpoint.TransformerWeights{
		TokenEmbeddingTable: embed,
		RMSAttWeight:        ones(dim),
		WQ:                  identity(dim),
		WK:                  identity(dim),
		WV:                  identity(dim),
		WO:                  identity(dim),
		RMSFFNWeight:        ones(dim),
		W1:                  zeros(dim * dim),
		W2:                  zeros(dim * dim),
		W3:                  zeros(dim * dim),
		RMSFinalWeight:      ones(dim),
		WCls:                embed,
	}

	tr := transformer.New(cfg, weights, workerpool.New(2))
	tok := newFixedVocabTokenizer(pieces)

	d := &Driver{
		Transformer: tr,
		Tokenizer:   tok,
		Sampler:     sample.New(tok.VocabSize(), 1),
	}

	var out bytes.Buffer
	var statsBuf bytes.Buffer
	err := d.Generate("aqbc", Options{Steps: 50, Temperature: 1.0, TopP: 0.9, FlushEvery: 1}, &out, &statsBuf)
	require.NoError(t, err)
	// "q" (id 1) appears as the third forced token, after the dummy-prefix
	// space and "a"; generation must stop there instead of continuing
	// through "bc".
	assert.NotContains(t, out.String(), "b")
	assert.NotContains(t, out.String(), "c")
}

func TestGenerateEmitsStatsWhenEnabled(t *testing.T) {
	tr, tok := buildTinyModel(t)
	d := &Driver{
		Transformer: tr,
		Tokenizer:   tok,
		Sampler:     sample.New(tok.VocabSize(), 7),
	}

	var out, stats bytes.Buffer
	err := d.Generate("a", Options{Steps: 3, Temperature: 0, TopP: 0.9, FlushEvery: 1, Stats: true}, &out, &stats)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stats.String(), "achieved tok/s: "))
}

func TestSafeToPrintSuppressesLoneControlByte(t *testing.T) {
	assert.False(t, safeToPrint(string([]byte{0x01})))
	assert.True(t, safeToPrint(string([]byte{'A'})))
	assert.True(t, safeToPrint("\n"))
	assert.False(t, safeToPrint(""))
}
