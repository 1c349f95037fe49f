package snmp

import (
	"github.com/geekxflood/netsnmp/ber"
)

// RequestMessage is the envelope of a GetRequest or SetRequest.
//
// The encoding is computed by the first successful Bytes call and reused
// afterwards, even if fields change. A RequestMessage is not safe for
// concurrent use.
type RequestMessage struct {
	Version   Version
	Community string
	PDU       *RequestPDU

	encoded []byte
}

// NewRequestMessage wraps pdu in a message envelope.
func NewRequestMessage(version Version, community string, pdu *RequestPDU) *RequestMessage {
	return &RequestMessage{Version: version, Community: community, PDU: pdu}
}

// Bytes returns the BER encoding of the message. Encoding failures are
// *RequestInvalidError.
func (m *RequestMessage) Bytes() ([]byte, error) {
	if m.encoded != nil {
		return m.encoded, nil
	}
	if m.PDU == nil {
		return nil, requestInvalid(nil, "message has no PDU")
	}
	b, err := encodeMessage(m.Version, m.Community, m.PDU.encode)
	if err != nil {
		return nil, err
	}
	m.encoded = b
	return b, nil
}

// ResponseMessage is the envelope of a GetResponse.
type ResponseMessage struct {
	Version   Version
	Community string
	PDU       *ResponsePDU

	encoded []byte
}

// Bytes returns the BER encoding of the message, cached after the first
// successful call.
func (m *ResponseMessage) Bytes() ([]byte, error) {
	if m.encoded != nil {
		return m.encoded, nil
	}
	if m.PDU == nil {
		return nil, requestInvalid(nil, "message has no PDU")
	}
	b, err := encodeMessage(m.Version, m.Community, m.PDU.encode)
	if err != nil {
		return nil, err
	}
	m.encoded = b
	return b, nil
}

func encodeMessage(version Version, community string, encodePDU func(*ber.Writer) error) ([]byte, error) {
	w := ber.NewWriter()
	w.StartSequence(ber.Sequence)
	if err := w.WriteInt(int64(version)); err != nil {
		return nil, requestInvalid(err, "version")
	}
	if err := w.WriteString(community); err != nil {
		return nil, requestInvalid(err, "community")
	}
	if err := encodePDU(w); err != nil {
		return nil, err
	}
	if err := w.EndSequence(); err != nil {
		return nil, requestInvalid(err, "message")
	}
	b, err := w.Bytes()
	if err != nil {
		return nil, requestInvalid(err, "message")
	}
	return b, nil
}

// ParseResponse decodes a GetResponse message. Any other PDU type is
// rejected. Failures are *ResponseInvalidError; when the request id was
// already decoded the error is wrapped in a *ParseError.
func ParseResponse(b []byte) (*ResponseMessage, error) {
	r := ber.NewReader(b)
	version, community, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	tag, err := r.Peek()
	if err != nil {
		return nil, responseInvalid(err, "PDU")
	}
	if PDUType(tag) != GetResponse {
		return nil, responseInvalid(nil, "unknown PDU type %s", PDUType(tag))
	}

	pdu, err := decodeResponsePDU(r)
	if err != nil {
		if pdu != nil {
			return nil, &ParseError{RequestID: pdu.ID, Err: err}
		}
		return nil, err
	}
	return &ResponseMessage{Version: version, Community: community, PDU: pdu}, nil
}

// ParseRequest decodes a GetRequest or SetRequest message, as an agent
// receives it.
func ParseRequest(b []byte) (*RequestMessage, error) {
	r := ber.NewReader(b)
	version, community, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	tag, err := r.Peek()
	if err != nil {
		return nil, responseInvalid(err, "PDU")
	}
	if t := PDUType(tag); t != GetRequest && t != SetRequest {
		return nil, responseInvalid(nil, "unknown PDU type %s", t)
	}

	pdu, err := decodeRequestPDU(r)
	if err != nil {
		return nil, err
	}
	return &RequestMessage{Version: version, Community: community, PDU: pdu}, nil
}

func readHeader(r *ber.Reader) (Version, string, error) {
	if err := r.ReadSequenceTag(ber.Sequence); err != nil {
		return 0, "", responseInvalid(err, "message")
	}
	version, err := r.ReadTag(ber.Integer)
	if err != nil {
		return 0, "", responseInvalid(err, "version")
	}
	community, err := r.ReadString(ber.OctetString)
	if err != nil {
		return 0, "", responseInvalid(err, "community")
	}
	return Version(version), community, nil
}
