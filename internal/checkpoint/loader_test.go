package checkpoint

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// writeFakeCheckpoint builds a minimal valid checkpoint on disk for the
// given config and returns its path. shared controls the sign of the
// on-disk vocab_size field.
func writeFakeCheckpoint(t *testing.T, cfg Config, shared bool) string {
	t.Helper()

	headSize := cfg.Dim / cfg.NHeads
	kvDim := cfg.Dim * cfg.NKVHeads / cfg.NHeads

	var buf bytes.Buffer
	vocabSize := int32(cfg.VocabSize)
	if !shared {
		vocabSize = -vocabSize
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []int32{
		int32(cfg.Dim), int32(cfg.HiddenDim), int32(cfg.NLayers),
		int32(cfg.NHeads), int32(cfg.NKVHeads), vocabSize, int32(cfg.SeqLen),
	}))

	writeFloats := func(n int) {
		for i := 0; i < n; i++ {
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, float32(i)*0.01))
		}
	}

	writeFloats(cfg.VocabSize * cfg.Dim) // token embedding
	writeFloats(cfg.NLayers * cfg.Dim)   // rms att
	writeFloats(cfg.NLayers * cfg.Dim * cfg.Dim)
	writeFloats(cfg.NLayers * cfg.Dim * kvDim)
	writeFloats(cfg.NLayers * cfg.Dim * kvDim)
	writeFloats(cfg.NLayers * cfg.Dim * cfg.Dim) // wo
	writeFloats(cfg.NLayers * cfg.Dim)           // rms ffn
	writeFloats(cfg.NLayers * cfg.HiddenDim * cfg.Dim)
	writeFloats(cfg.NLayers * cfg.Dim * cfg.HiddenDim)
	writeFloats(cfg.NLayers * cfg.HiddenDim * cfg.Dim)
	writeFloats(cfg.Dim)                 // rms final
	writeFloats(cfg.SeqLen * headSize)   // legacy rope tables (skipped)
	if !shared {
		writeFloats(cfg.VocabSize * cfg.Dim) // wcls
	}

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func testConfig() Config {
	return Config{
		Dim: 8, HiddenDim: 16, NLayers: 2, NHeads: 4, NKVHeads: 2,
		VocabSize: 10, SeqLen: 6,
	}
}

func TestOpenSharedClassifier(t *testing.T) {
	cfg := testConfig()
	path := writeFakeCheckpoint(t, cfg, true)

	ckpt, err := Open(path)
	require.NoError(t, err)
	defer ckpt.Close()

	require.True(t, ckpt.Config.SharedClassifier)
	require.Equal(t, cfg.VocabSize, ckpt.Config.VocabSize)
	require.Equal(t, 2, ckpt.Config.HeadSize())
	require.Equal(t, 4, ckpt.Config.KVDim())
	require.Equal(t, 2, ckpt.Config.KVMul())

	require.Len(t, ckpt.Weights.TokenEmbeddingTable, cfg.VocabSize*cfg.Dim)
	require.Same(t, &ckpt.Weights.TokenEmbeddingTable[0], &ckpt.Weights.WCls[0])
}

func TestOpenSeparateClassifier(t *testing.T) {
	cfg := testConfig()
	path := writeFakeCheckpoint(t, cfg, false)

	ckpt, err := Open(path)
	require.NoError(t, err)
	defer ckpt.Close()

	require.False(t, ckpt.Config.SharedClassifier)
	require.Len(t, ckpt.Weights.WCls, cfg.VocabSize*cfg.Dim)
	require.NotSame(t, &ckpt.Weights.TokenEmbeddingTable[0], &ckpt.Weights.WCls[0])
}

func TestOpenTruncatedFileIsFormatError(t *testing.T) {
	cfg := testConfig()
	path := writeFakeCheckpoint(t, cfg, true)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	_, err = Open(path)
	require.ErrorIs(t, err, ErrFormat)
}

func TestOpenMissingFileIsIoError(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.bin"))
	require.ErrorIs(t, err, ErrIo)
}

func TestParsedConfigMatchesHeaderFields(t *testing.T) {
	cfg := testConfig()
	path := writeFakeCheckpoint(t, cfg, true)

	ckpt, err := Open(path)
	require.NoError(t, err)
	defer ckpt.Close()

	want := cfg
	want.SharedClassifier = true
	if diff := cmp.Diff(want, ckpt.Config); diff != "" {
		t.Errorf("parsed config mismatch (-want +got):\n%s", diff)
	}
}
