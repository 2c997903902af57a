// Package pktline implements the length-prefixed line framing used by
// the reference discovery and negotiation protocol. Each line carries a
// 4-digit ASCII-hex length that counts the prefix itself; "0000" is a
// flush marker ending a logical section.
package pktline

import (
	"encoding/hex"
	"fmt"
	"io"
)

const (
	// MaxLineLength is the maximum total line length including the
	// 4-byte prefix.
	MaxLineLength = 65520

	// MaxPayloadLength is the maximum payload a single line can carry.
	MaxPayloadLength = MaxLineLength - prefixLength

	prefixLength = 4
)

// LineKind discriminates the three read outcomes short of EOF.
type LineKind int

const (
	// LineData is a regular payload-carrying line (payload may be empty).
	LineData LineKind = iota
	// LineFlush is the "0000" section terminator.
	LineFlush
)

// Line is one decoded pkt-line. Payload is nil for flush lines; an
// empty-payload data line has Kind LineData and a zero-length payload,
// which keeps it distinguishable from a flush.
type Line struct {
	Kind    LineKind
	Payload []byte
}

// Reader decodes pkt-lines from an underlying stream. It reads exactly
// the bytes each line occupies and never buffers ahead, so a raw byte
// stream (such as a pack) can follow the framed section on the same
// reader.
type Reader struct {
	r io.Reader
}

// NewReader returns a Reader decoding from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read returns the next line. io.EOF is returned at a clean end of
// stream; a partially transmitted line is io.ErrUnexpectedEOF.
func (r *Reader) Read() (Line, error) {
	var prefix [prefixLength]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Line{}, fmt.Errorf("pkt-line: truncated length prefix: %w", io.ErrUnexpectedEOF)
		}
		return Line{}, err
	}

	length, err := parseLength(prefix[:])
	if err != nil {
		return Line{}, err
	}
	if length == 0 {
		return Line{Kind: LineFlush}, nil
	}
	if length < prefixLength {
		return Line{}, fmt.Errorf("pkt-line: invalid length %d", length)
	}
	if length > MaxLineLength {
		return Line{}, fmt.Errorf("pkt-line: length %d exceeds maximum %d", length, MaxLineLength)
	}

	payload := make([]byte, length-prefixLength)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return Line{}, fmt.Errorf("pkt-line: truncated payload: %w", err)
	}
	return Line{Kind: LineData, Payload: payload}, nil
}

func parseLength(prefix []byte) (int, error) {
	var raw [2]byte
	if _, err := hex.Decode(raw[:], prefix); err != nil {
		return 0, fmt.Errorf("pkt-line: invalid length prefix %q", prefix)
	}
	return int(raw[0])<<8 | int(raw[1]), nil
}

// Writer encodes pkt-lines to an underlying stream.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer encoding to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteLine frames payload as a single data line. A zero-length payload
// emits the four-byte "0004" line, which is distinct from a flush.
func (w *Writer) WriteLine(payload []byte) error {
	if len(payload) > MaxPayloadLength {
		return fmt.Errorf("pkt-line: payload length %d exceeds maximum %d", len(payload), MaxPayloadLength)
	}
	if _, err := fmt.Fprintf(w.w, "%04x", len(payload)+prefixLength); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.w.Write(payload)
	return err
}

// WriteString frames s as a single data line.
func (w *Writer) WriteString(s string) error {
	return w.WriteLine([]byte(s))
}

// WriteFlush emits the "0000" flush marker.
func (w *Writer) WriteFlush() error {
	_, err := io.WriteString(w.w, "0000")
	return err
}

// Frame returns the encoded form of a single data line holding payload.
func Frame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("pkt-line: payload length %d exceeds maximum %d", len(payload), MaxPayloadLength)
	}
	out := make([]byte, 0, prefixLength+len(payload))
	out = append(out, fmt.Sprintf("%04x", len(payload)+prefixLength)...)
	return append(out, payload...), nil
}
