// Package checkpoint implements the model header and mmap'd weight loader:
// a read-only memory map of the binary checkpoint, interpreted in place as
// the named tensors of TransformerWeights.
package checkpoint

import "errors"

// ErrIo and ErrFormat are the only recoverable failures this package can
// surface; the loader never returns a PreconditionError (that is Forward's
// concern, once a position/token id is handed to it).
var (
	// ErrIo wraps open/mmap failures.
	ErrIo = errors.New("io error")
	// ErrFormat wraps a header or weight region that doesn't fit the file.
	ErrFormat = errors.New("format error")
)
