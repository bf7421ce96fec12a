// Package tokenizer implements a byte-pair-encoding tokenizer: UTF-8-aware
// byte-fallback pre-tokenization followed by greedy score-maximizing
// pair-merge encoding, and its decode inverse.
package tokenizer

import "errors"

// ErrIo wraps a failure to open or read the vocabulary file.
var ErrIo = errors.New("io error")

// ErrFormat wraps a vocabulary file whose declared lengths don't fit its
// contents; a negative length and a truncated record both land here.
var ErrFormat = errors.New("format error")
