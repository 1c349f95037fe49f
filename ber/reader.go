package ber

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reader decodes BER values from a fixed buffer.
//
// Reads only move forward. Peek is the single exception and never advances
// the cursor. Sequence bounds are not enforced by the reader: after
// ReadSequence the caller uses Length to scope its loop.
type Reader struct {
	buf    []byte
	off    int
	length int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Offset returns the current cursor position.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Length returns the length decoded by the last ReadLength call.
func (r *Reader) Length() int { return r.length }

// ReadByte consumes one raw byte. It implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, fmt.Errorf("%w: at offset %d", ErrTruncated, r.off)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// Peek returns the next byte without consuming it.
func (r *Reader) Peek() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, fmt.Errorf("%w: at offset %d", ErrTruncated, r.off)
	}
	return r.buf[r.off], nil
}

// ReadLength decodes a definite length. The long form may use at most four
// octets.
func (r *Reader) ReadLength() (int, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b&0x80 == 0 {
		r.length = int(b)
		return r.length, nil
	}

	n := int(b & 0x7f)
	switch {
	case n == 0:
		return 0, fmt.Errorf("%w: at offset %d", ErrIndefiniteLength, r.off-1)
	case n > 4:
		return 0, fmt.Errorf("%w: length encoded in %d octets", ErrOverflow, n)
	case r.Remaining() < n:
		return 0, fmt.Errorf("%w: length needs %d octets, %d left", ErrTruncated, n, r.Remaining())
	}

	var length uint32
	for _, c := range r.buf[r.off : r.off+n] {
		length = length<<8 | uint32(c)
	}
	r.off += n
	r.length = int(length)
	return r.length, nil
}

// ReadSequence consumes a constructed header of any tag and returns the tag.
func (r *Reader) ReadSequence() (byte, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if err := r.readContentLength(); err != nil {
		return 0, err
	}
	return tag, nil
}

// ReadSequenceTag consumes a constructed header and checks its tag.
func (r *Reader) ReadSequenceTag(tag byte) error {
	got, err := r.Peek()
	if err != nil {
		return err
	}
	if got != tag {
		return fmt.Errorf("%w: expected 0x%02x, got 0x%02x at offset %d", ErrUnexpectedTag, tag, got, r.off)
	}
	_, err = r.ReadSequence()
	return err
}

// ReadTag reads an integer of at most four octets under the given tag.
// Values narrower than four octets are sign extended.
func (r *Reader) ReadTag(tag byte) (int32, error) {
	content, err := r.readContent(tag)
	if err != nil {
		return 0, err
	}
	return decodeInt32(content)
}

// ReadInt reads an INTEGER. Besides the one to four octet forms it accepts a
// five octet encoding with a leading zero octet. The zero is dropped and the
// remaining four octets are read as a signed 32-bit integer, so 00 ff ff ff ff
// yields -1 and every result can be written back with WriteInt.
func (r *Reader) ReadInt() (int64, error) {
	content, err := r.readContent(Integer)
	if err != nil {
		return 0, err
	}
	if len(content) == 5 {
		if content[0] != 0 {
			return 0, fmt.Errorf("%w: 5 octet integer with leading 0x%02x", ErrOverflow, content[0])
		}
		return int64(int32(binary.BigEndian.Uint32(content[1:]))), nil
	}
	v, err := decodeInt32(content)
	return int64(v), err
}

// ReadEnumeration reads an ENUMERATED value.
func (r *Reader) ReadEnumeration() (int32, error) {
	return r.ReadTag(Enumeration)
}

// ReadBoolean reads a BOOLEAN. Any non-zero content is true.
func (r *Reader) ReadBoolean() (bool, error) {
	v, err := r.ReadTag(Boolean)
	return v != 0, err
}

// ReadString reads a value under the given tag as text, one character per
// octet.
func (r *Reader) ReadString(tag byte) (string, error) {
	content, err := r.readContent(tag)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// ReadBytes reads a value under the given tag and returns a copy of its
// content.
func (r *Reader) ReadBytes(tag byte) ([]byte, error) {
	content, err := r.readContent(tag)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

// ReadNull reads a NULL. Content octets, if any, are skipped.
func (r *Reader) ReadNull() error {
	_, err := r.readContent(Null)
	return err
}

// Skip consumes one complete TLV of any tag.
func (r *Reader) Skip() error {
	if _, err := r.ReadByte(); err != nil {
		return err
	}
	if err := r.readContentLength(); err != nil {
		return err
	}
	r.off += r.length
	return nil
}

// ReadOID reads an OBJECT IDENTIFIER and returns it in dotted decimal form.
func (r *Reader) ReadOID() (string, error) {
	return r.ReadOIDTag(OID)
}

// ReadOIDTag reads an object identifier under the given tag.
func (r *Reader) ReadOIDTag(tag byte) (string, error) {
	content, err := r.readContent(tag)
	if err != nil {
		return "", err
	}
	return decodeOID(content)
}

func (r *Reader) readContent(tag byte) ([]byte, error) {
	got, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if got != tag {
		return nil, fmt.Errorf("%w: expected 0x%02x, got 0x%02x at offset %d", ErrUnexpectedTag, tag, got, r.off-1)
	}
	if err := r.readContentLength(); err != nil {
		return nil, err
	}
	content := r.buf[r.off : r.off+r.length]
	r.off += r.length
	return content, nil
}

// readContentLength reads a length and checks it against the unread bytes.
func (r *Reader) readContentLength() error {
	n, err := r.ReadLength()
	if err != nil {
		return err
	}
	if n > r.Remaining() {
		return fmt.Errorf("%w: declared length %d, %d left", ErrTruncated, n, r.Remaining())
	}
	return nil
}

func decodeInt32(content []byte) (int32, error) {
	switch n := len(content); {
	case n == 0:
		return 0, ErrEmptyContent
	case n > 4:
		return 0, fmt.Errorf("%w: integer of %d octets", ErrOverflow, n)
	}

	var v uint32
	for _, c := range content {
		v = v<<8 | uint32(c)
	}
	if content[0]&0x80 != 0 && len(content) < 4 {
		v |= math.MaxUint32 << (8 * len(content))
	}
	return int32(v), nil
}

func decodeOID(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty content", ErrInvalidOID)
	}

	var sb strings.Builder
	var v uint64
	first := true
	for i, c := range content {
		v = v<<7 | uint64(c&0x7f)

		limit := uint64(math.MaxUint32)
		if first {
			limit += 80
		}
		if v > limit {
			return "", fmt.Errorf("%w: arc exceeds 32 bits", ErrInvalidOID)
		}

		if c&0x80 != 0 {
			if i == len(content)-1 {
				return "", fmt.Errorf("%w: unterminated arc", ErrInvalidOID)
			}
			continue
		}

		if first {
			// X.690 8.19.4: the first subidentifier packs two arcs.
			if v < 80 {
				sb.WriteString(strconv.FormatUint(v/40, 10))
				sb.WriteByte('.')
				sb.WriteString(strconv.FormatUint(v%40, 10))
			} else {
				sb.WriteString("2.")
				sb.WriteString(strconv.FormatUint(v-80, 10))
			}
			first = false
		} else {
			sb.WriteByte('.')
			sb.WriteString(strconv.FormatUint(v, 10))
		}
		v = 0
	}
	return sb.String(), nil
}
