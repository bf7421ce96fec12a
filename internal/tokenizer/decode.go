package tokenizer

import (
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

// byteLiteralPattern matches the literal byte-escape pieces SentencePiece
// vocabularies use for unprintable bytes, e.g. "<0x0A>".
var byteLiteralPattern = regexp2.MustCompile(`^<0x([0-9A-Fa-f]{2})>$`, regexp2.None)

// Decode returns the display string for id, given the previously decoded
// id (BOS, 1, when id is the first token after the start of the sequence).
// Two adjustments apply:
//   - if prevID is BOS (1) and the piece begins with a leading space, that
//     one space is stripped (undoing the dummy SentencePiece prefix);
//   - a "<0xHH>" byte-literal piece is expanded to the single raw byte it
//     names, or the empty string if that byte isn't printable/whitespace.
func (t *Tokenizer) Decode(prevID, id int32) string {
	piece := t.vocab[id]

	if prevID == 1 && strings.HasPrefix(piece, " ") {
		piece = piece[1:]
	}

	if m, err := byteLiteralPattern.FindStringMatch(piece); err == nil && m != nil {
		hex := m.GroupByNumber(1).String()
		n, err := strconv.ParseUint(hex, 16, 8)
		if err != nil {
			return ""
		}
		b := byte(n)
		if isPrintableOrWhitespace(b) {
			return string([]byte{b})
		}
		return ""
	}

	return piece
}

func isPrintableOrWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return b >= 0x20 && b < 0x7F
}
