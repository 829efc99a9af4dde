package console

import (
	"bytes"
	"io"
)

// CRLFWriter turns "\n" into "\r\n". Needed while the terminal is in raw mode.
type CRLFWriter struct {
	w    io.Writer
	last byte
}

func NewCRLFWriter(w io.Writer) *CRLFWriter {
	return &CRLFWriter{w: w}
}

func (c *CRLFWriter) Write(p []byte) (int, error) {
	var buf bytes.Buffer
	buf.Grow(len(p) + 8)
	prev := c.last
	for _, b := range p {
		if b == '\n' && prev != '\r' {
			buf.WriteByte('\r')
		}
		buf.WriteByte(b)
		prev = b
	}
	if _, err := c.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	if len(p) > 0 {
		c.last = p[len(p)-1]
	}
	return len(p), nil
}
