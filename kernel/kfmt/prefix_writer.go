package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter is an io.Writer that tags every output line written to Sink
// with Prefix. The prefix for a line is emitted lazily, right before the
// first byte of that line.
type PrefixWriter struct {
	// Sink receives the prefixed output.
	Sink io.Writer

	// Prefix is injected at the start of each line.
	Prefix []byte

	midLine bool
}

// Write implements io.Writer. The returned byte count excludes any injected
// prefixes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	for len(p) != 0 {
		if !w.midLine {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		end := bytes.IndexByte(p, '\n') + 1
		if end == 0 {
			end = len(p)
		} else {
			w.midLine = false
		}

		n, err := w.Sink.Write(p[:end])
		written += n
		if err != nil {
			return written, err
		}
		p = p[end:]
	}

	return written, nil
}
