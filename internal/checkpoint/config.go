package checkpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// configHeaderSize is sizeof(Config) on disk: seven little-endian int32s.
const configHeaderSize = 7 * 4

// Config is the model header: seven signed integers in declaration order,
// plus the derived shared_classifier flag recovered from the sign of
// vocab_size as written on disk.
type Config struct {
	Dim              int
	HiddenDim        int
	NLayers          int
	NHeads           int
	NKVHeads         int
	VocabSize        int
	SeqLen           int
	SharedClassifier bool
}

// HeadSize is dim / n_heads.
func (c Config) HeadSize() int { return c.Dim / c.NHeads }

// KVDim is dim * n_kv_heads / n_heads: the size of a single projected
// key/value vector under grouped-query attention.
func (c Config) KVDim() int { return c.Dim * c.NKVHeads / c.NHeads }

// KVMul is n_heads / n_kv_heads: how many query heads share one KV head.
func (c Config) KVMul() int { return c.NHeads / c.NKVHeads }

// validate checks the invariants a well-formed header must satisfy.
func (c Config) validate() error {
	if c.NHeads == 0 || c.NKVHeads == 0 {
		return fmt.Errorf("%w: n_heads and n_kv_heads must be non-zero", ErrFormat)
	}
	if c.Dim%c.NHeads != 0 {
		return fmt.Errorf("%w: dim %d not divisible by n_heads %d", ErrFormat, c.Dim, c.NHeads)
	}
	if c.NHeads%c.NKVHeads != 0 {
		return fmt.Errorf("%w: n_heads %d not divisible by n_kv_heads %d", ErrFormat, c.NHeads, c.NKVHeads)
	}
	return nil
}

// parseConfig reads the 28-byte header at the front of the mapped region.
// A negative vocab_size on disk signals a separate classifier tail; the
// absolute value is stored as the true vocabulary size and the sign is
// captured in SharedClassifier.
func parseConfig(raw []byte) (Config, error) {
	if len(raw) < configHeaderSize {
		return Config{}, fmt.Errorf("%w: file shorter than header (%d bytes)", ErrFormat, len(raw))
	}

	var fields [7]int32
	if err := binary.Read(bytes.NewReader(raw[:configHeaderSize]), binary.LittleEndian, &fields); err != nil {
		return Config{}, fmt.Errorf("%w: reading header: %v", ErrFormat, err)
	}

	vocabSize := fields[5]
	cfg := Config{
		Dim:              int(fields[0]),
		HiddenDim:        int(fields[1]),
		NLayers:          int(fields[2]),
		NHeads:           int(fields[3]),
		NKVHeads:         int(fields[4]),
		VocabSize:        int(abs32(vocabSize)),
		SeqLen:           int(fields[6]),
		SharedClassifier: vocabSize > 0,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
