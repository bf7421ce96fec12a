package tokenizer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/emirpasic/gods/v2/maps/treemap"
)

// byteFallbackOffset is the id offset for representing a raw byte that has
// no vocabulary entry of its own: three reserved tokens (<unk>, <s>, </s>)
// occupy ids 0, 1, 2, so byte b maps to id b+3.
const byteFallbackOffset = 3

// Tokenizer holds the ordered vocabulary plus a derived sorted lookup for
// O(log V) string-to-id resolution. It is read-only after construction and
// safe to share across goroutines.
type Tokenizer struct {
	vocab          []string
	scores         []float32
	maxTokenLength int

	// lookup is a lexicographic-byte-order sorted (string -> id) index,
	// backed by a red-black tree (gods/v2's treemap) for O(log V) lookups
	// during both pre-tokenization and the BPE merge loop.
	lookup *treemap.Map[string, int32]
}

// Load parses a tokenizer.bin-style vocabulary: a little-endian int32
// max_token_length header, followed by vocabSize records of
// (float32 score, int32 length, length bytes of UTF-8).
func Load(path string, vocabSize int) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening tokenizer: %v", ErrIo, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var maxTokenLength int32
	if err := binary.Read(r, binary.LittleEndian, &maxTokenLength); err != nil {
		return nil, fmt.Errorf("%w: reading max_token_length: %v", ErrFormat, err)
	}
	if maxTokenLength < 0 {
		return nil, fmt.Errorf("%w: negative max_token_length %d", ErrFormat, maxTokenLength)
	}

	t := &Tokenizer{
		vocab:          make([]string, vocabSize),
		scores:         make([]float32, vocabSize),
		maxTokenLength: int(maxTokenLength),
		lookup:         treemap.NewWithStringComparator[int32](),
	}

	for id := 0; id < vocabSize; id++ {
		var score float32
		if err := binary.Read(r, binary.LittleEndian, &score); err != nil {
			return nil, fmt.Errorf("%w: reading score for token %d: %v", ErrFormat, id, err)
		}

		var length int32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, fmt.Errorf("%w: reading length for token %d: %v", ErrFormat, id, err)
		}
		if length < 0 {
			return nil, fmt.Errorf("%w: negative length %d for token %d", ErrFormat, length, id)
		}

		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: reading bytes for token %d: %v", ErrFormat, id, err)
		}

		piece := string(buf)
		t.vocab[id] = piece
		t.scores[id] = score
		t.lookup.Put(piece, int32(id))
	}

	return t, nil
}

// NewForTest builds a Tokenizer directly from an in-memory vocabulary,
// skipping the on-disk format. Exported for other packages' tests (e.g.
// internal/generate) that need a minimal tokenizer without a fixture file.
func NewForTest(pieces []string, scores []float32) *Tokenizer {
	t := &Tokenizer{
		vocab:  append([]string(nil), pieces...),
		scores: append([]float32(nil), scores...),
		lookup: treemap.NewWithStringComparator[int32](),
	}
	for id, p := range pieces {
		t.lookup.Put(p, int32(id))
		if len(p) > t.maxTokenLength {
			t.maxTokenLength = len(p)
		}
	}
	return t
}

// id returns the vocabulary id for piece, if present.
func (t *Tokenizer) id(piece string) (int32, bool) {
	return t.lookup.Get(piece)
}

// Piece returns the raw vocabulary string for id, without any of Decode's
// display-time adjustments.
func (t *Tokenizer) Piece(id int32) string {
	return t.vocab[id]
}

// VocabSize returns the number of entries loaded.
func (t *Tokenizer) VocabSize() int { return len(t.vocab) }
