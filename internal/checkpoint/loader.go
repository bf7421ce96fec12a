package checkpoint

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const float32Size = 4

// TransformerWeights is a collection of named tensor views into one
// contiguous, memory-mapped float32 buffer. Every field aliases a
// sub-slice of the mapped region; none of them own memory.
type TransformerWeights struct {
	TokenEmbeddingTable []float32 // (vocab_size, dim)
	RMSAttWeight        []float32 // (n_layers, dim)
	WQ                  []float32 // (n_layers, dim, dim)
	WK                  []float32 // (n_layers, dim, kv_dim)
	WV                  []float32 // (n_layers, dim, kv_dim)
	WO                  []float32 // (n_layers, dim, dim)
	RMSFFNWeight        []float32 // (n_layers, dim)
	W1                  []float32 // (n_layers, hidden_dim, dim)
	W2                  []float32 // (n_layers, dim, hidden_dim)
	W3                  []float32 // (n_layers, hidden_dim, dim)
	RMSFinalWeight      []float32 // (dim,)
	WCls                []float32 // (vocab_size, dim); aliases TokenEmbeddingTable if shared
}

// Checkpoint is an open, memory-mapped model file. Call Close when done;
// the mapping is released and all TransformerWeights views become invalid.
type Checkpoint struct {
	Config  Config
	Weights TransformerWeights

	file *os.File
	data []byte // the full mmap'd region, header included
}

// Open maps path read-only, parses the header, and computes every named
// tensor view by walking a cursor through the mapped region in a fixed
// layout order.
func Open(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening checkpoint: %v", ErrIo, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat checkpoint: %v", ErrIo, err)
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: empty checkpoint file", ErrFormat)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap checkpoint: %v", ErrIo, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, err
	}

	weights, err := walkWeights(data[configHeaderSize:], cfg)
	if err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, err
	}

	return &Checkpoint{Config: cfg, Weights: weights, file: f, data: data}, nil
}

// Close releases the memory map and the underlying file handle.
func (c *Checkpoint) Close() error {
	var err error
	if c.data != nil {
		err = unix.Munmap(c.data)
		c.data = nil
	}
	if c.file != nil {
		if cerr := c.file.Close(); err == nil {
			err = cerr
		}
		c.file = nil
	}
	return err
}

// cursor walks a byte region handing out float32 views without copying.
type cursor struct {
	region []byte
	pos    int // byte offset
}

func (cur *cursor) take(nFloats int) ([]float32, error) {
	nBytes := nFloats * float32Size
	if cur.pos+nBytes > len(cur.region) {
		return nil, fmt.Errorf("%w: weight walk exceeds file size (need %d more bytes, have %d)",
			ErrFormat, nBytes, len(cur.region)-cur.pos)
	}
	view := bytesToFloat32(cur.region[cur.pos : cur.pos+nBytes])
	cur.pos += nBytes
	return view, nil
}

func (cur *cursor) skip(nFloats int) error {
	nBytes := nFloats * float32Size
	if cur.pos+nBytes > len(cur.region) {
		return fmt.Errorf("%w: weight walk exceeds file size skipping %d bytes", ErrFormat, nBytes)
	}
	cur.pos += nBytes
	return nil
}

// bytesToFloat32 reinterprets a byte slice of a mmap'd region as []float32
// in place, assuming a little-endian host: the checkpoint format is
// little-endian and this engine targets little-endian hosts only, so no
// byte-swapping pass is needed.
func bytesToFloat32(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/float32Size)
}

// walkWeights computes every named tensor view in the checkpoint's fixed
// layout order.
func walkWeights(region []byte, cfg Config) (TransformerWeights, error) {
	cur := &cursor{region: region}
	var w TransformerWeights
	var err error

	headSize := cfg.HeadSize()

	steps := []struct {
		dst *[]float32
		n   int
	}{
		{&w.TokenEmbeddingTable, cfg.VocabSize * cfg.Dim},
		{&w.RMSAttWeight, cfg.NLayers * cfg.Dim},
		{&w.WQ, cfg.NLayers * cfg.Dim * (cfg.NHeads * headSize)},
		{&w.WK, cfg.NLayers * cfg.Dim * (cfg.NKVHeads * headSize)},
		{&w.WV, cfg.NLayers * cfg.Dim * (cfg.NKVHeads * headSize)},
		{&w.WO, cfg.NLayers * (cfg.NHeads * headSize) * cfg.Dim},
		{&w.RMSFFNWeight, cfg.NLayers * cfg.Dim},
		{&w.W1, cfg.NLayers * cfg.HiddenDim * cfg.Dim},
		{&w.W2, cfg.NLayers * cfg.Dim * cfg.HiddenDim},
		{&w.W3, cfg.NLayers * cfg.HiddenDim * cfg.Dim},
		{&w.RMSFinalWeight, cfg.Dim},
	}

	for _, step := range steps {
		*step.dst, err = cur.take(step.n)
		if err != nil {
			return TransformerWeights{}, err
		}
	}

	// Legacy RoPE frequency tables: reserved, never interpreted.
	if err := cur.skip(cfg.SeqLen * headSize); err != nil {
		return TransformerWeights{}, err
	}

	if cfg.SharedClassifier {
		w.WCls = w.TokenEmbeddingTable
	} else {
		w.WCls, err = cur.take(cfg.VocabSize * cfg.Dim)
		if err != nil {
			return TransformerWeights{}, err
		}
	}

	return w, nil
}
