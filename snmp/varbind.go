package snmp

import (
	"fmt"
	"math"

	"github.com/geekxflood/netsnmp/ber"
)

// Varbind binds a value to an OID.
//
// Decoded values use these Go types:
//
//	Boolean          bool
//	Integer          int64
//	OctetString      []byte
//	ObjectIdentifier string
//	Null             nil
//	NoSuchObject, NoSuchInstance, EndOfMibView: nil
//
// When encoding, Integer accepts any Go integer within the int32 range and
// OctetString accepts string or []byte. A varbind without a type or value is
// sent as NULL, which is how GET requests name the objects they want. The
// exception types are written with empty content whatever their value.
//
// OIDs, both as varbind names and as ObjectIdentifier values, need at least
// four arcs of 32 bits and valid X.690 leading arcs: the first is 0, 1 or 2,
// and the second is below 40 unless the first is 2. Others, such as 1.40.1.1
// or 3.1.1.1, make Get and Set fail with a *RequestInvalidError. On decode a
// first subidentifier of 80 or more is read as arc 2, so 2.40 rather than 3.0.
type Varbind struct {
	OID   string
	Type  ObjectType
	Value any
}

// IsVarbindError reports whether vb carries one of the exception markers an
// agent returns for an object it could not resolve.
func IsVarbindError(vb Varbind) bool {
	switch vb.Type {
	case NoSuchObject, NoSuchInstance, EndOfMibView:
		return true
	default:
		return false
	}
}

// VarbindError formats the exception carried by vb as "<type>: <oid>".
func VarbindError(vb Varbind) string {
	return vb.Type.String() + ": " + vb.OID
}

func writeVarbinds(w *ber.Writer, varbinds []Varbind) error {
	w.StartSequence(ber.Sequence)
	for _, vb := range varbinds {
		if err := writeVarbind(w, vb); err != nil {
			return err
		}
	}
	return w.EndSequence()
}

func writeVarbind(w *ber.Writer, vb Varbind) error {
	w.StartSequence(ber.Sequence)
	if err := w.WriteOID(vb.OID); err != nil {
		return requestInvalid(err, "bad OID %q", vb.OID)
	}

	if IsVarbindError(vb) {
		if err := w.WriteBuffer(nil, byte(vb.Type)); err != nil {
			return requestInvalid(err, "%s marker of %s", vb.Type, vb.OID)
		}
		return w.EndSequence()
	}
	if vb.Type == 0 || vb.Value == nil {
		w.WriteNull()
		return w.EndSequence()
	}

	switch vb.Type {
	case Boolean:
		b, ok := vb.Value.(bool)
		if !ok {
			return requestInvalid(nil, "value %T of %s is not a boolean", vb.Value, vb.OID)
		}
		w.WriteBoolean(b)
	case Integer:
		n, ok := toInt64(vb.Value)
		if !ok {
			return requestInvalid(nil, "value %T of %s is not an integer", vb.Value, vb.OID)
		}
		if err := w.WriteInt(n); err != nil {
			return requestInvalid(err, "integer value of %s", vb.OID)
		}
	case OctetString:
		var err error
		switch v := vb.Value.(type) {
		case string:
			err = w.WriteString(v)
		case []byte:
			err = w.WriteBuffer(v, ber.OctetString)
		default:
			return requestInvalid(nil, "value %T of %s is not an octet string", vb.Value, vb.OID)
		}
		if err != nil {
			return requestInvalid(err, "octet string value of %s", vb.OID)
		}
	case Null:
		w.WriteNull()
	case ObjectIdentifier:
		s, ok := vb.Value.(string)
		if !ok {
			return requestInvalid(nil, "value %T of %s is not an OID string", vb.Value, vb.OID)
		}
		if err := w.WriteOID(s); err != nil {
			return requestInvalid(err, "OID value of %s", vb.OID)
		}
	default:
		return requestInvalid(nil, "unknown type %s in request", vb.Type)
	}
	return w.EndSequence()
}

func readVarbinds(r *ber.Reader) ([]Varbind, error) {
	if err := r.ReadSequenceTag(ber.Sequence); err != nil {
		return nil, responseInvalid(err, "varbind list")
	}
	end := r.Offset() + r.Length()

	varbinds := make([]Varbind, 0, 4)
	for r.Offset() < end {
		vb, err := readVarbind(r)
		if err != nil {
			return nil, err
		}
		varbinds = append(varbinds, vb)
	}
	if r.Offset() != end {
		return nil, responseInvalid(nil, "varbind list overruns its length by %d octets", r.Offset()-end)
	}
	return varbinds, nil
}

func readVarbind(r *ber.Reader) (Varbind, error) {
	if err := r.ReadSequenceTag(ber.Sequence); err != nil {
		return Varbind{}, responseInvalid(err, "varbind")
	}
	oid, err := r.ReadOID()
	if err != nil {
		return Varbind{}, responseInvalid(err, "varbind OID")
	}
	tag, err := r.Peek()
	if err != nil {
		return Varbind{}, responseInvalid(err, "value of %s", oid)
	}

	vb := Varbind{OID: oid, Type: ObjectType(tag)}
	switch vb.Type {
	case Boolean:
		vb.Value, err = r.ReadBoolean()
	case Integer:
		vb.Value, err = r.ReadInt()
	case OctetString:
		vb.Value, err = r.ReadBytes(ber.OctetString)
	case Null:
		err = r.ReadNull()
	case ObjectIdentifier:
		vb.Value, err = r.ReadOID()
	case NoSuchObject, NoSuchInstance, EndOfMibView:
		err = r.Skip()
	default:
		return Varbind{}, responseInvalid(nil, "unknown type %s for %s in response", vb.Type, oid)
	}
	if err != nil {
		return Varbind{}, responseInvalid(err, "%s value of %s", vb.Type, oid)
	}
	return vb, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// cloneVarbinds copies the slice so callers may reuse theirs.
func cloneVarbinds(varbinds []Varbind) []Varbind {
	out := make([]Varbind, len(varbinds))
	copy(out, varbinds)
	return out
}

func (vb Varbind) String() string {
	switch v := vb.Value.(type) {
	case nil:
		return fmt.Sprintf("%s = %s", vb.OID, vb.Type)
	case []byte:
		return fmt.Sprintf("%s = %s: %q", vb.OID, vb.Type, v)
	default:
		return fmt.Sprintf("%s = %s: %v", vb.OID, vb.Type, v)
	}
}
