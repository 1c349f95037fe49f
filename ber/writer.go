package ber

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var oidPattern = regexp.MustCompile(`^([0-9]+\.){3,}[0-9]+$`)

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithSize sets the initial buffer capacity. Non-positive values are ignored.
func WithSize(size int) WriterOption {
	return func(w *Writer) {
		if size > 0 {
			w.size = size
		}
	}
}

// WithGrowthFactor sets the factor applied to the capacity when the buffer
// is full. Values below 2 are ignored.
func WithGrowthFactor(factor int) WriterOption {
	return func(w *Writer) {
		if factor > 1 {
			w.growth = factor
		}
	}
}

// Writer builds a BER byte stream.
//
// Constructed values are opened with StartSequence and closed with
// EndSequence in strict LIFO order. Three length octets are reserved when a
// sequence opens; closing it rewrites the length in its minimal form and
// moves the content to close or widen the gap.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	buf    []byte
	off    int
	seq    []int
	size   int
	growth int
}

// NewWriter returns an empty Writer.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		size:   DefaultSize,
		growth: DefaultGrowthFactor,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.buf = make([]byte, w.size)
	return w
}

// Bytes returns the encoded bytes. It fails while any sequence is still open.
func (w *Writer) Bytes() ([]byte, error) {
	if n := len(w.seq); n > 0 {
		return nil, fmt.Errorf("%w: %d unended sequence(s)", ErrUnclosedSequence, n)
	}
	return w.buf[:w.off:w.off], nil
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.off
}

// Write appends raw bytes without any tag or length. It implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.ensure(len(p))
	copy(w.buf[w.off:], p)
	w.off += len(p)
	return len(p), nil
}

// WriteByte appends a single raw byte. It implements io.ByteWriter.
func (w *Writer) WriteByte(b byte) error {
	w.ensure(1)
	w.buf[w.off] = b
	w.off++
	return nil
}

// WriteBoolean appends a BOOLEAN encoded as 0xFF or 0x00.
func (w *Writer) WriteBoolean(b bool) {
	w.ensure(3)
	w.buf[w.off] = Boolean
	w.buf[w.off+1] = 0x01
	if b {
		w.buf[w.off+2] = 0xff
	} else {
		w.buf[w.off+2] = 0x00
	}
	w.off += 3
}

// WriteNull appends a NULL.
func (w *Writer) WriteNull() {
	w.ensure(2)
	w.buf[w.off] = Null
	w.buf[w.off+1] = 0x00
	w.off += 2
}

// WriteInt appends an INTEGER in its minimal two's complement form.
func (w *Writer) WriteInt(v int64) error {
	return w.WriteIntTag(v, Integer)
}

// WriteEnumeration appends an ENUMERATED value.
func (w *Writer) WriteEnumeration(v int64) error {
	return w.WriteIntTag(v, Enumeration)
}

// WriteIntTag appends an integer under the given tag. Values outside the
// 32-bit signed range are rejected.
func (w *Writer) WriteIntTag(v int64, tag byte) error {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return fmt.Errorf("%w: integer %d does not fit in 4 octets", ErrOverflow, v)
	}

	i := uint32(int32(v))
	sz := 4
	for sz > 1 && (i&0xff800000 == 0 || i&0xff800000 == 0xff800000) {
		sz--
		i <<= 8
	}

	w.ensure(2 + sz)
	w.buf[w.off] = tag
	w.buf[w.off+1] = byte(sz)
	w.off += 2
	for ; sz > 0; sz-- {
		w.buf[w.off] = byte(i >> 24)
		w.off++
		i <<= 8
	}
	return nil
}

// WriteString appends an OCTET STRING holding the bytes of s.
func (w *Writer) WriteString(s string) error {
	return w.WriteStringTag(s, OctetString)
}

// WriteStringTag appends the bytes of s under the given tag. On error
// nothing is written.
func (w *Writer) WriteStringTag(s string, tag byte) error {
	if err := checkLength(len(s)); err != nil {
		return err
	}
	w.ensure(1)
	w.buf[w.off] = tag
	w.off++
	if err := w.WriteLength(len(s)); err != nil {
		return err
	}
	w.ensure(len(s))
	copy(w.buf[w.off:], s)
	w.off += len(s)
	return nil
}

// WriteBuffer appends b under the given tag. On error nothing is written.
func (w *Writer) WriteBuffer(b []byte, tag byte) error {
	if err := checkLength(len(b)); err != nil {
		return err
	}
	w.ensure(1)
	w.buf[w.off] = tag
	w.off++
	if err := w.WriteLength(len(b)); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// WriteOID appends an OBJECT IDENTIFIER given in dotted decimal form.
func (w *Writer) WriteOID(oid string) error {
	return w.WriteOIDTag(oid, OID)
}

// WriteOIDTag appends an object identifier under the given tag. The string
// must hold at least four arcs, each fitting in 32 bits.
func (w *Writer) WriteOIDTag(oid string, tag byte) error {
	content, err := encodeOID(oid)
	if err != nil {
		return err
	}
	return w.WriteBuffer(content, tag)
}

// WriteLength appends a definite length. Lengths up to 127 use the short
// form; longer ones use one to three length octets.
func (w *Writer) WriteLength(n int) error {
	if err := checkLength(n); err != nil {
		return err
	}
	switch {
	case n <= 0x7f:
		w.ensure(1)
		w.buf[w.off] = byte(n)
		w.off++
	case n <= 0xff:
		w.ensure(2)
		w.buf[w.off] = 0x81
		w.buf[w.off+1] = byte(n)
		w.off += 2
	case n <= 0xffff:
		w.ensure(3)
		w.buf[w.off] = 0x82
		w.buf[w.off+1] = byte(n >> 8)
		w.buf[w.off+2] = byte(n)
		w.off += 3
	case n <= maxLength:
		w.ensure(4)
		w.buf[w.off] = 0x83
		w.buf[w.off+1] = byte(n >> 16)
		w.buf[w.off+2] = byte(n >> 8)
		w.buf[w.off+3] = byte(n)
		w.off += 4
	}
	return nil
}

func checkLength(n int) error {
	switch {
	case n < 0:
		return fmt.Errorf("%w: negative length %d", ErrOverflow, n)
	case n > maxLength:
		return fmt.Errorf("%w: length %d needs more than 3 octets", ErrOverflow, n)
	}
	return nil
}

// StartSequence opens a constructed value with the given tag.
func (w *Writer) StartSequence(tag byte) {
	w.ensure(4)
	w.buf[w.off] = tag
	w.off++
	w.seq = append(w.seq, w.off)
	w.off += 3
}

// EndSequence closes the innermost open sequence and patches its length.
// A sequence too long to close is left open.
func (w *Writer) EndSequence() error {
	n := len(w.seq)
	if n == 0 {
		return ErrNoSequence
	}
	start := w.seq[n-1]
	content := start + 3
	length := w.off - content
	if length > maxLength {
		return fmt.Errorf("%w: sequence too long (%d octets)", ErrOverflow, length)
	}
	w.seq = w.seq[:n-1]

	switch {
	case length <= 0x7f:
		w.shift(content, length, -2)
		w.buf[start] = byte(length)
	case length <= 0xff:
		w.shift(content, length, -1)
		w.buf[start] = 0x81
		w.buf[start+1] = byte(length)
	case length <= 0xffff:
		w.buf[start] = 0x82
		w.buf[start+1] = byte(length >> 8)
		w.buf[start+2] = byte(length)
	case length <= maxLength:
		w.shift(content, length, 1)
		w.buf[start] = 0x83
		w.buf[start+1] = byte(length >> 16)
		w.buf[start+2] = byte(length >> 8)
		w.buf[start+3] = byte(length)
	}
	return nil
}

// shift moves length bytes starting at start by delta positions.
func (w *Writer) shift(start, length, delta int) {
	if delta > 0 {
		w.ensure(delta)
	}
	copy(w.buf[start+delta:], w.buf[start:start+length])
	w.off += delta
}

func (w *Writer) ensure(n int) {
	if len(w.buf)-w.off >= n {
		return
	}
	size := len(w.buf) * w.growth
	if size-w.off < n {
		size += n
	}
	buf := make([]byte, size)
	copy(buf, w.buf[:w.off])
	w.buf = buf
}

func encodeOID(oid string) ([]byte, error) {
	if !oidPattern.MatchString(oid) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOID, oid)
	}

	parts := strings.Split(oid, ".")
	arcs := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: arc %q of %q exceeds 32 bits", ErrInvalidOID, p, oid)
		}
		arcs[i] = v
	}
	if arcs[0] > 2 || (arcs[0] < 2 && arcs[1] >= 40) {
		return nil, fmt.Errorf("%w: first arcs %d.%d of %q", ErrInvalidOID, arcs[0], arcs[1], oid)
	}

	content := appendSubidentifier(make([]byte, 0, len(arcs)+4), arcs[0]*40+arcs[1])
	for _, arc := range arcs[2:] {
		content = appendSubidentifier(content, arc)
	}
	return content, nil
}

// appendSubidentifier appends v in base 128, most significant group first,
// with the high bit set on every group but the last.
func appendSubidentifier(dst []byte, v uint64) []byte {
	var tmp [10]byte
	n := len(tmp) - 1
	tmp[n] = byte(v & 0x7f)
	for v >>= 7; v > 0; v >>= 7 {
		n--
		tmp[n] = byte(v&0x7f) | 0x80
	}
	return append(dst, tmp[n:]...)
}
