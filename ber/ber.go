// Package ber implements the subset of ASN.1 Basic Encoding Rules needed to
// frame SNMP v1 messages.
//
// The package exposes two types. Writer appends TLV encodings to a growable
// buffer and patches sequence lengths back once a sequence is closed. Reader
// decodes a fixed buffer with a single forward cursor.
//
// # Writing
//
//	w := ber.NewWriter()
//	w.StartSequence(ber.Sequence)
//	if err := w.WriteInt(0); err != nil {
//		return err
//	}
//	if err := w.WriteString("public"); err != nil {
//		return err
//	}
//	if err := w.EndSequence(); err != nil {
//		return err
//	}
//	payload, err := w.Bytes()
//
// # Reading
//
//	r := ber.NewReader(payload)
//	if err := r.ReadSequenceTag(ber.Sequence); err != nil {
//		return err
//	}
//	version, err := r.ReadTag(ber.Integer)
//
// Only definite lengths are supported. Any tag mismatch, truncated content or
// oversized value is reported as an error wrapping one of the sentinel errors
// below, so callers can classify failures with errors.Is.
package ber

import "errors"

// Universal tags used by SNMP.
const (
	EOC         byte = 0x00
	Boolean     byte = 0x01
	Integer     byte = 0x02
	BitString   byte = 0x03
	OctetString byte = 0x04
	Null        byte = 0x05
	OID         byte = 0x06
	Enumeration byte = 0x0A
	Sequence    byte = 0x30
	Set         byte = 0x31
)

// Tag class and form bits.
const (
	Constructor byte = 0x20
	Application byte = 0x40
	Context     byte = 0x80
)

const (
	// DefaultSize is the initial capacity of a Writer buffer.
	DefaultSize = 1024

	// DefaultGrowthFactor multiplies the buffer capacity when it runs out.
	DefaultGrowthFactor = 8

	// maxLength is the largest length the writer can express (three length octets).
	maxLength = 0xffffff
)

var (
	// ErrTruncated is returned when the input ends before a declared length.
	ErrTruncated = errors.New("ber: truncated data")

	// ErrUnexpectedTag is returned when a tag differs from the expected one.
	ErrUnexpectedTag = errors.New("ber: unexpected tag")

	// ErrIndefiniteLength is returned for the unsupported 0x80 length form.
	ErrIndefiniteLength = errors.New("ber: indefinite length not supported")

	// ErrOverflow is returned when a value or length exceeds its encodable range.
	ErrOverflow = errors.New("ber: value out of range")

	// ErrEmptyContent is returned for zero length integers.
	ErrEmptyContent = errors.New("ber: empty content")

	// ErrInvalidOID is returned for malformed object identifiers.
	ErrInvalidOID = errors.New("ber: invalid object identifier")

	// ErrUnclosedSequence is returned by Writer.Bytes while sequences are open.
	ErrUnclosedSequence = errors.New("ber: unended sequence")

	// ErrNoSequence is returned by Writer.EndSequence without a matching start.
	ErrNoSequence = errors.New("ber: no open sequence")
)
