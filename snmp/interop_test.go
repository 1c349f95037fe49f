package snmp_test

import (
	"errors"

	"github.com/gosnmp/gosnmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/geekxflood/netsnmp/snmp"
)

// These specs check the wire format against gosnmp's independent codec.
var _ = Describe("Interoperability", func() {
	It("should encode GetRequests gosnmp can decode", func() {
		msg := snmp.NewRequestMessage(snmp.Version1, "public", snmp.NewGetRequest(31337, []string{sysDescr, sysUpTime}))
		b, err := msg.Bytes()
		Expect(err).NotTo(HaveOccurred())

		packet, err := gosnmp.Default.SnmpDecodePacket(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(packet.Version).To(Equal(gosnmp.Version1))
		Expect(packet.Community).To(Equal("public"))
		Expect(packet.PDUType).To(Equal(gosnmp.GetRequest))
		Expect(packet.RequestID).To(Equal(uint32(31337)))
		Expect(packet.Variables).To(HaveLen(2))
		Expect(packet.Variables[0].Name).To(Equal("." + sysDescr))
		Expect(packet.Variables[0].Type).To(Equal(gosnmp.Null))
		Expect(packet.Variables[1].Name).To(Equal("." + sysUpTime))
	})

	It("should encode SetRequests gosnmp can decode", func() {
		pdu := snmp.NewSetRequest(7, []snmp.Varbind{
			{OID: sysContact, Type: snmp.OctetString, Value: "noc@example.com"},
			{OID: sysUpTime, Type: snmp.Integer, Value: 1500},
		})
		b, err := snmp.NewRequestMessage(snmp.Version1, "private", pdu).Bytes()
		Expect(err).NotTo(HaveOccurred())

		packet, err := gosnmp.Default.SnmpDecodePacket(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(packet.PDUType).To(Equal(gosnmp.SetRequest))
		Expect(packet.Community).To(Equal("private"))
		Expect(packet.Variables[0].Type).To(Equal(gosnmp.OctetString))
		Expect(packet.Variables[0].Value).To(Equal([]byte("noc@example.com")))
		Expect(packet.Variables[1].Type).To(Equal(gosnmp.Integer))
		Expect(packet.Variables[1].Value).To(Equal(1500))
	})

	It("should parse GetResponses encoded by gosnmp", func() {
		packet := &gosnmp.SnmpPacket{
			Version:   gosnmp.Version1,
			Community: "public",
			PDUType:   gosnmp.GetResponse,
			RequestID: 4711,
			Variables: []gosnmp.SnmpPDU{
				{Name: "." + sysDescr, Type: gosnmp.OctetString, Value: []byte("Linux router 6.1")},
				{Name: "." + sysUpTime, Type: gosnmp.Integer, Value: 86400},
			},
		}
		b, err := packet.MarshalMsg()
		Expect(err).NotTo(HaveOccurred())

		msg, err := snmp.ParseResponse(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Version).To(Equal(snmp.Version1))
		Expect(msg.Community).To(Equal("public"))
		Expect(msg.PDU.ID).To(Equal(int32(4711)))
		Expect(msg.PDU.ErrorStatus).To(Equal(snmp.NoError))
		Expect(msg.PDU.Varbinds).To(Equal([]snmp.Varbind{
			{OID: sysDescr, Type: snmp.OctetString, Value: []byte("Linux router 6.1")},
			{OID: sysUpTime, Type: snmp.Integer, Value: int64(86400)},
		}))
	})

	It("should parse error responses encoded by gosnmp", func() {
		packet := &gosnmp.SnmpPacket{
			Version:    gosnmp.Version1,
			Community:  "public",
			PDUType:    gosnmp.GetResponse,
			RequestID:  12,
			Error:      gosnmp.NoSuchName,
			ErrorIndex: 1,
			Variables: []gosnmp.SnmpPDU{
				{Name: "." + sysDescr, Type: gosnmp.Null},
			},
		}
		b, err := packet.MarshalMsg()
		Expect(err).NotTo(HaveOccurred())

		msg, err := snmp.ParseResponse(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.PDU.ErrorStatus).To(Equal(snmp.NoSuchName))
		Expect(msg.PDU.ErrorIndex).To(Equal(int32(1)))
	})

	It("should reject traps encoded by gosnmp", func() {
		packet := &gosnmp.SnmpPacket{
			Version:   gosnmp.Version2c,
			Community: "public",
			PDUType:   gosnmp.SNMPv2Trap,
			RequestID: 3,
			Variables: []gosnmp.SnmpPDU{
				{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(100)},
			},
		}
		b, err := packet.MarshalMsg()
		Expect(err).NotTo(HaveOccurred())

		_, err = snmp.ParseResponse(b)
		var invalid *snmp.ResponseInvalidError
		Expect(errors.As(err, &invalid)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("unknown PDU type TrapV2"))
	})
})
