package snmp

import (
	"fmt"
	"strings"
)

// Version is the SNMP protocol version carried in a message.
type Version int32

// Version1 is the only version this package speaks.
const Version1 Version = 0

func (v Version) String() string {
	if v == Version1 {
		return "v1"
	}
	return fmt.Sprintf("Version(%d)", int32(v))
}

// ParseVersion accepts "v1" or "1".
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(s) {
	case "v1", "1":
		return Version1, nil
	default:
		return 0, fmt.Errorf("unsupported SNMP version: %q (only v1 is supported)", s)
	}
}

// ErrorStatus is the error-status field of a response PDU.
type ErrorStatus int32

const (
	NoError ErrorStatus = iota
	TooBig
	NoSuchName
	BadValue
	ReadOnly
	GeneralError
	NoAccess
	WrongType
	WrongLength
	WrongEncoding
	WrongValue
	NoCreation
	InconsistentValue
	ResourceUnavailable
	CommitFailed
	UndoFailed
	AuthorizationError
	NotWritable
	InconsistentName
)

var errorStatusNames = map[ErrorStatus]string{
	NoError:             "NoError",
	TooBig:              "TooBig",
	NoSuchName:          "NoSuchName",
	BadValue:            "BadValue",
	ReadOnly:            "ReadOnly",
	GeneralError:        "GeneralError",
	NoAccess:            "NoAccess",
	WrongType:           "WrongType",
	WrongLength:         "WrongLength",
	WrongEncoding:       "WrongEncoding",
	WrongValue:          "WrongValue",
	NoCreation:          "NoCreation",
	InconsistentValue:   "InconsistentValue",
	ResourceUnavailable: "ResourceUnavailable",
	CommitFailed:        "CommitFailed",
	UndoFailed:          "UndoFailed",
	AuthorizationError:  "AuthorizationError",
	NotWritable:         "NotWritable",
	InconsistentName:    "InconsistentName",
}

var errorStatusValues = invert(errorStatusNames)

func (s ErrorStatus) String() string {
	if name, ok := errorStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ErrorStatus(%d)", int32(s))
}

// Known reports whether s is a defined status code.
func (s ErrorStatus) Known() bool {
	_, ok := errorStatusNames[s]
	return ok
}

// ParseErrorStatus looks up a status by name.
func ParseErrorStatus(name string) (ErrorStatus, bool) {
	s, ok := errorStatusValues[name]
	return s, ok
}

// ObjectType is the BER tag of a varbind value.
type ObjectType uint8

const (
	Boolean          ObjectType = 1
	Integer          ObjectType = 2
	OctetString      ObjectType = 4
	Null             ObjectType = 5
	ObjectIdentifier ObjectType = 6
	IPAddress        ObjectType = 64
	Counter          ObjectType = 65
	Gauge            ObjectType = 66
	TimeTicks        ObjectType = 67
	Opaque           ObjectType = 68
	Counter64        ObjectType = 70
	NoSuchObject     ObjectType = 128
	NoSuchInstance   ObjectType = 129
	EndOfMibView     ObjectType = 130
)

// SMIv2 aliases.
const (
	Integer32  = Integer
	Counter32  = Counter
	Gauge32    = Gauge
	Unsigned32 = Gauge
)

var objectTypeNames = map[ObjectType]string{
	Boolean:          "Boolean",
	Integer:          "Integer",
	OctetString:      "OctetString",
	Null:             "Null",
	ObjectIdentifier: "OID",
	IPAddress:        "IpAddress",
	Counter:          "Counter",
	Gauge:            "Gauge",
	TimeTicks:        "TimeTicks",
	Opaque:           "Opaque",
	Counter64:        "Counter64",
	NoSuchObject:     "NoSuchObject",
	NoSuchInstance:   "NoSuchInstance",
	EndOfMibView:     "EndOfMibView",
}

var objectTypeValues = withAliases(invert(objectTypeNames), map[string]ObjectType{
	"Integer32":  Integer32,
	"Counter32":  Counter32,
	"Gauge32":    Gauge32,
	"Unsigned32": Unsigned32,
})

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ObjectType(%d)", uint8(t))
}

// ParseObjectType looks up a type by name, including the SMIv2 aliases.
func ParseObjectType(name string) (ObjectType, bool) {
	t, ok := objectTypeValues[name]
	return t, ok
}

// PDUType is the context tag of a PDU.
type PDUType uint8

const (
	GetRequest     PDUType = 0xa0
	GetNextRequest PDUType = 0xa1
	GetResponse    PDUType = 0xa2
	SetRequest     PDUType = 0xa3
	Trap           PDUType = 0xa4
	GetBulkRequest PDUType = 0xa5
	InformRequest  PDUType = 0xa6
	TrapV2         PDUType = 0xa7
	Report         PDUType = 0xa8
)

var pduTypeNames = map[PDUType]string{
	GetRequest:     "GetRequest",
	GetNextRequest: "GetNextRequest",
	GetResponse:    "GetResponse",
	SetRequest:     "SetRequest",
	Trap:           "Trap",
	GetBulkRequest: "GetBulkRequest",
	InformRequest:  "InformRequest",
	TrapV2:         "TrapV2",
	Report:         "Report",
}

var pduTypeValues = invert(pduTypeNames)

func (t PDUType) String() string {
	if name, ok := pduTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PDUType(0x%02x)", uint8(t))
}

// ParsePDUType looks up a PDU type by name.
func ParsePDUType(name string) (PDUType, bool) {
	t, ok := pduTypeValues[name]
	return t, ok
}

// TrapType is the generic-trap field of a v1 trap.
type TrapType int32

const (
	ColdStart TrapType = iota
	WarmStart
	LinkDown
	LinkUp
	AuthenticationFailure
	EgpNeighborLoss
	EnterpriseSpecific
)

var trapTypeNames = map[TrapType]string{
	ColdStart:             "ColdStart",
	WarmStart:             "WarmStart",
	LinkDown:              "LinkDown",
	LinkUp:                "LinkUp",
	AuthenticationFailure: "AuthenticationFailure",
	EgpNeighborLoss:       "EgpNeighborLoss",
	EnterpriseSpecific:    "EnterpriseSpecific",
}

var trapTypeValues = invert(trapTypeNames)

func (t TrapType) String() string {
	if name, ok := trapTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TrapType(%d)", int32(t))
}

// ParseTrapType looks up a trap type by name.
func ParseTrapType(name string) (TrapType, bool) {
	t, ok := trapTypeValues[name]
	return t, ok
}

func invert[K comparable](names map[K]string) map[string]K {
	values := make(map[string]K, len(names))
	for k, name := range names {
		values[name] = k
	}
	return values
}

func withAliases[K comparable](values map[string]K, aliases map[string]K) map[string]K {
	for name, k := range aliases {
		values[name] = k
	}
	return values
}
