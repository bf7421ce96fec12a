// Package generate implements the generation driver: prompt pre-fill
// followed by free generation, streaming decoded pieces to an output sink
// until a step budget is spent or a BOS token closes the sequence.
package generate

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ollama/llama2.go/internal/sample"
	"github.com/ollama/llama2.go/internal/tokenizer"
	"github.com/ollama/llama2.go/internal/transformer"
)

// bosID is the beginning-of-sequence token id, reused as the generation
// terminator.
const bosID = 1

// Options configures one generation run.
type Options struct {
	Steps       int     // step budget; position reaching this ends generation
	Temperature float32 // 0 selects greedy argmax
	TopP        float32
	FlushEvery  int  // stdout flush granularity in tokens
	Stats       bool // emit tok/s to statsOut when done
}

// Driver orchestrates one generation run over a loaded model.
type Driver struct {
	Transformer *transformer.Transformer
	Tokenizer   *tokenizer.Tokenizer
	Sampler     *sample.Sampler
}

// Generate pre-fills prompt, then samples freely, writing decoded text to
// out and (if opts.Stats) a single "achieved tok/s: <float>" line to
// statsOut.
func (d *Driver) Generate(prompt string, opts Options, out io.Writer, statsOut io.Writer) error {
	promptTokens := d.Tokenizer.Encode(prompt)

	// The initial token fed to Forward is BOS; the tokenizer's own output
	// never includes it.
	tokens := make([]int32, 0, len(promptTokens)+1)
	tokens = append(tokens, bosID)
	tokens = append(tokens, promptTokens...)

	steps := opts.Steps
	if steps <= 0 || steps > d.Transformer.Config.SeqLen {
		steps = d.Transformer.Config.SeqLen
	}

	w := bufio.NewWriter(out)
	defer w.Flush()

	var start time.Time
	token := tokens[0]
	pos := 0
	emitted := 0

	for pos < steps {
		logits := d.Transformer.Forward(int(token), pos)

		var next int32
		if pos < len(tokens)-1 {
			next = tokens[pos+1]
		} else {
			next = d.Sampler.Sample(logits, opts.Temperature, opts.TopP)
		}
		pos++

		if pos == 1 {
			start = time.Now()
		}

		if next == bosID {
			break
		}

		piece := d.Tokenizer.Decode(token, next)
		if safeToPrint(piece) {
			w.WriteString(piece)
			emitted++
			if opts.FlushEvery > 0 && emitted%opts.FlushEvery == 0 {
				w.Flush()
			}
		}

		token = next
	}

	w.Flush()

	if opts.Stats && pos > 1 {
		elapsed := time.Since(start).Seconds()
		tokPerSec := float64(pos-1) / elapsed
		slog.Debug("generation complete", "tokens", pos, "seconds", elapsed)
		fmt.Fprintf(statsOut, "achieved tok/s: %f\n", tokPerSec)
	}

	return nil
}

// safeToPrint suppresses a decoded piece that is a single raw control byte
// (a safe_printf-style guard), so a malformed byte-fallback token
// doesn't corrupt the terminal.
func safeToPrint(piece string) bool {
	if piece == "" {
		return false
	}
	if len(piece) == 1 {
		b := piece[0]
		if !(isPrintable(b) || isSpace(b)) {
			return false
		}
	}
	return true
}

func isPrintable(b byte) bool { return b >= 0x20 && b < 0x7F }

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
