package snmp

import "github.com/geekxflood/netsnmp/ber"

// PDU is implemented by *RequestPDU and *ResponsePDU.
type PDU interface {
	Type() PDUType
	pdu()
}

// RequestPDU is a GetRequest or SetRequest. Error status and index are
// always sent as zero.
type RequestPDU struct {
	Kind     PDUType
	ID       int32
	Varbinds []Varbind
}

// NewGetRequest returns a GetRequest naming oids.
func NewGetRequest(id int32, oids []string) *RequestPDU {
	varbinds := make([]Varbind, len(oids))
	for i, oid := range oids {
		varbinds[i] = Varbind{OID: oid}
	}
	return &RequestPDU{Kind: GetRequest, ID: id, Varbinds: varbinds}
}

// NewSetRequest returns a SetRequest carrying varbinds.
func NewSetRequest(id int32, varbinds []Varbind) *RequestPDU {
	return &RequestPDU{Kind: SetRequest, ID: id, Varbinds: cloneVarbinds(varbinds)}
}

func (p *RequestPDU) Type() PDUType { return p.Kind }
func (*RequestPDU) pdu()            {}

func (p *RequestPDU) encode(w *ber.Writer) error {
	if p.Kind != GetRequest && p.Kind != SetRequest {
		return requestInvalid(nil, "unsupported PDU type %s", p.Kind)
	}
	w.StartSequence(byte(p.Kind))
	if err := w.WriteInt(int64(p.ID)); err != nil {
		return requestInvalid(err, "request id")
	}
	_ = w.WriteInt(0)
	_ = w.WriteInt(0)
	if err := writeVarbinds(w, p.Varbinds); err != nil {
		return err
	}
	return w.EndSequence()
}

// ResponsePDU is a GetResponse.
type ResponsePDU struct {
	ID          int32
	ErrorStatus ErrorStatus
	ErrorIndex  int32
	Varbinds    []Varbind
}

func (*ResponsePDU) Type() PDUType { return GetResponse }
func (*ResponsePDU) pdu()          {}

func (p *ResponsePDU) encode(w *ber.Writer) error {
	w.StartSequence(byte(GetResponse))
	if err := w.WriteInt(int64(p.ID)); err != nil {
		return requestInvalid(err, "request id")
	}
	if err := w.WriteInt(int64(p.ErrorStatus)); err != nil {
		return requestInvalid(err, "error status")
	}
	if err := w.WriteInt(int64(p.ErrorIndex)); err != nil {
		return requestInvalid(err, "error index")
	}
	if err := writeVarbinds(w, p.Varbinds); err != nil {
		return err
	}
	return w.EndSequence()
}

// decodeResponsePDU reads a GetResponse. Once the request id is known, the
// returned PDU is non-nil even when err is set.
func decodeResponsePDU(r *ber.Reader) (*ResponsePDU, error) {
	if err := r.ReadSequenceTag(byte(GetResponse)); err != nil {
		return nil, responseInvalid(err, "PDU header")
	}
	id, err := r.ReadTag(ber.Integer)
	if err != nil {
		return nil, responseInvalid(err, "request id")
	}

	p := &ResponsePDU{ID: id}
	status, err := r.ReadTag(ber.Integer)
	if err != nil {
		return p, responseInvalid(err, "error status")
	}
	p.ErrorStatus = ErrorStatus(status)
	if p.ErrorIndex, err = r.ReadTag(ber.Integer); err != nil {
		return p, responseInvalid(err, "error index")
	}
	if p.Varbinds, err = readVarbinds(r); err != nil {
		return p, err
	}
	return p, nil
}

func decodeRequestPDU(r *ber.Reader) (*RequestPDU, error) {
	tag, err := r.ReadSequence()
	if err != nil {
		return nil, responseInvalid(err, "PDU header")
	}
	p := &RequestPDU{Kind: PDUType(tag)}
	if p.ID, err = r.ReadTag(ber.Integer); err != nil {
		return nil, responseInvalid(err, "request id")
	}
	for _, field := range []string{"error status", "error index"} {
		if _, err := r.ReadTag(ber.Integer); err != nil {
			return nil, responseInvalid(err, "%s", field)
		}
	}
	if p.Varbinds, err = readVarbinds(r); err != nil {
		return nil, err
	}
	return p, nil
}
