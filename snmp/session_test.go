package snmp_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/geekxflood/netsnmp/ber"
	"github.com/geekxflood/netsnmp/logging"
	"github.com/geekxflood/netsnmp/metrics"
	"github.com/geekxflood/netsnmp/snmp"
	"github.com/geekxflood/netsnmp/snmptest"
)

const (
	sysDescr    = "1.3.6.1.2.1.1.1.0"
	sysUpTime   = "1.3.6.1.2.1.1.3.0"
	sysContact  = "1.3.6.1.2.1.1.4.0"
	sysLocation = "1.3.6.1.2.1.1.6.0"
)

type result struct {
	varbinds []snmp.Varbind
	err      error
}

// collect returns a callback that forwards every invocation to the channel.
func collect() (snmp.ResponseFunc, chan result) {
	ch := make(chan result, 8)
	return func(varbinds []snmp.Varbind, err error) {
		ch <- result{varbinds, err}
	}, ch
}

func testOptions() snmp.Options {
	opts := snmp.DefaultOptions()
	opts.Logger = logging.Discard()
	opts.Retries = 0
	opts.Timeout = time.Second
	return opts
}

func newSession(agent *snmptest.Agent, opts snmp.Options) *snmp.Session {
	session, err := snmp.NewSession("192.0.2.1", "public", agent, opts)
	Expect(err).NotTo(HaveOccurred())
	agent.Attach(session)
	DeferCleanup(func() {
		Expect(session.Close()).To(Succeed())
		agent.Wait()
	})
	return session
}

func agentTable() map[string]snmp.Varbind {
	return map[string]snmp.Varbind{
		sysDescr:    {Type: snmp.OctetString, Value: []byte("sysDescr")},
		sysUpTime:   {Type: snmp.Integer, Value: int64(123456)},
		sysContact:  {Type: snmp.OctetString, Value: []byte("ops@example.com")},
		sysLocation: {Type: snmp.Null},
	}
}

// requestFrom decodes the n-th datagram the agent received.
func requestFrom(agent *snmptest.Agent, n int) *snmp.RequestMessage {
	datagrams := agent.Datagrams()
	Expect(len(datagrams)).To(BeNumerically(">", n))
	req, err := snmp.ParseRequest(datagrams[n].Payload)
	Expect(err).NotTo(HaveOccurred())
	return req
}

// unsupportedValueResponse encodes a GetResponse for id whose varbind carries
// an IpAddress, which the decoder does not accept.
func unsupportedValueResponse(id int32) []byte {
	w := ber.NewWriter()
	w.StartSequence(ber.Sequence)
	Expect(w.WriteInt(0)).To(Succeed())
	Expect(w.WriteString("public")).To(Succeed())
	w.StartSequence(byte(snmp.GetResponse))
	Expect(w.WriteInt(int64(id))).To(Succeed())
	Expect(w.WriteInt(0)).To(Succeed())
	Expect(w.WriteInt(0)).To(Succeed())
	w.StartSequence(ber.Sequence)
	w.StartSequence(ber.Sequence)
	Expect(w.WriteOID(sysDescr)).To(Succeed())
	Expect(w.WriteBuffer([]byte{192, 0, 2, 1}, byte(snmp.IPAddress))).To(Succeed())
	for range 4 {
		Expect(w.EndSequence()).To(Succeed())
	}
	b, err := w.Bytes()
	Expect(err).NotTo(HaveOccurred())
	return b
}

var _ = Describe("Session", func() {
	var agent *snmptest.Agent

	BeforeEach(func() {
		agent = snmptest.NewAgent(snmptest.Static(agentTable()))
	})

	Describe("Creation", func() {
		It("should require a transport", func() {
			_, err := snmp.NewSession("192.0.2.1", "public", nil, testOptions())
			Expect(err).To(MatchError(ContainSubstring("transport cannot be nil")))
		})

		It("should apply defaults", func() {
			session, err := snmp.NewSession("", "", agent, snmp.Options{Logger: logging.Discard()})
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Target()).To(Equal(snmp.DefaultTarget))
			Expect(session.Options().Port).To(Equal(snmp.DefaultPort))
			Expect(session.Options().TrapPort).To(Equal(snmp.DefaultTrapPort))
			Expect(session.Options().Timeout).To(Equal(snmp.DefaultTimeout))
			Expect(session.Options().Transport).To(Equal(snmp.DefaultTransport))
		})

		DescribeTable("rejecting invalid options",
			func(mutate func(*snmp.Options), message string) {
				opts := testOptions()
				mutate(&opts)
				_, err := snmp.NewSession("192.0.2.1", "public", agent, opts)
				Expect(err).To(MatchError(ContainSubstring(message)))
			},
			Entry("negative retries", func(o *snmp.Options) { o.Retries = -1 }, "retries cannot be negative"),
			Entry("port out of range", func(o *snmp.Options) { o.Port = 70000 }, "port must be between"),
			Entry("negative timeout", func(o *snmp.Options) { o.Timeout = -time.Second }, "timeout must be positive"),
			Entry("unsupported version", func(o *snmp.Options) { o.Version = 1 }, "unsupported SNMP version"),
		)
	})

	Describe("Get", func() {
		It("should deliver the agent's varbinds", func() {
			session := newSession(agent, testOptions())
			cb, results := collect()

			session.Get([]string{sysDescr}, cb)

			var r result
			Eventually(results).Should(Receive(&r))
			Expect(r.err).NotTo(HaveOccurred())
			Expect(r.varbinds).To(Equal([]snmp.Varbind{
				{OID: sysDescr, Type: snmp.OctetString, Value: []byte("sysDescr")},
			}))
			Consistently(results, 100*time.Millisecond).ShouldNot(Receive())
			Expect(session.Pending()).To(Equal(0))
		})

		It("should keep request order for several OIDs", func() {
			session := newSession(agent, testOptions())

			varbinds, err := session.GetContext(context.Background(), []string{sysUpTime, sysDescr, sysLocation})
			Expect(err).NotTo(HaveOccurred())
			Expect(varbinds).To(HaveLen(3))
			Expect(varbinds[0]).To(Equal(snmp.Varbind{OID: sysUpTime, Type: snmp.Integer, Value: int64(123456)}))
			Expect(varbinds[1].OID).To(Equal(sysDescr))
			Expect(varbinds[2]).To(Equal(snmp.Varbind{OID: sysLocation, Type: snmp.Null}))
		})

		It("should send to the session's target and port", func() {
			opts := testOptions()
			opts.Port = 1161
			session := newSession(agent, opts)

			_, err := session.GetContext(context.Background(), []string{sysDescr})
			Expect(err).NotTo(HaveOccurred())

			datagrams := agent.Datagrams()
			Expect(datagrams).To(HaveLen(1))
			Expect(datagrams[0].Host).To(Equal("192.0.2.1"))
			Expect(datagrams[0].Port).To(Equal(1161))

			req := requestFrom(agent, 0)
			Expect(req.Version).To(Equal(snmp.Version1))
			Expect(req.Community).To(Equal("public"))
			Expect(req.PDU.Kind).To(Equal(snmp.GetRequest))
			Expect(req.PDU.ID).To(BeNumerically(">", 0))
			Expect(req.PDU.Varbinds).To(Equal([]snmp.Varbind{{OID: sysDescr, Type: snmp.Null}}))
		})

		It("should fail with the agent's error status and the offending OID", func() {
			session := newSession(agent, testOptions())

			_, err := session.GetContext(context.Background(), []string{"1.3.6.1.2.1.1.99.0"})

			var failed *snmp.RequestFailedError
			Expect(errors.As(err, &failed)).To(BeTrue())
			Expect(failed.Status).To(Equal(snmp.NoSuchName))
			Expect(failed.Status.String()).To(Equal("NoSuchName"))
			Expect(failed.OID).To(Equal("1.3.6.1.2.1.1.99.0"))
			Expect(err.Error()).To(Equal("NoSuchName: 1.3.6.1.2.1.1.99.0"))
		})

		It("should name the varbind designated by the error index", func() {
			session := newSession(agent, testOptions())

			_, err := session.GetContext(context.Background(), []string{sysDescr, "1.3.6.1.2.1.1.98.0", sysUpTime})

			var failed *snmp.RequestFailedError
			Expect(errors.As(err, &failed)).To(BeTrue())
			Expect(failed.OID).To(Equal("1.3.6.1.2.1.1.98.0"))
		})

		DescribeTable("reporting error statuses without a usable index",
			func(status snmp.ErrorStatus, index int32, expected snmp.ErrorStatus) {
				agent.SetResponder(func(req *snmp.RequestMessage) *snmp.ResponseMessage {
					return snmptest.ReplyError(req, status, index, req.PDU.Varbinds)
				})
				session := newSession(agent, testOptions())

				_, err := session.GetContext(context.Background(), []string{sysDescr})

				var failed *snmp.RequestFailedError
				Expect(errors.As(err, &failed)).To(BeTrue())
				Expect(failed.Status).To(Equal(expected))
				Expect(failed.OID).To(BeEmpty())
			},
			Entry("zero index", snmp.TooBig, int32(0), snmp.TooBig),
			Entry("index past the varbinds", snmp.GeneralError, int32(2), snmp.GeneralError),
			Entry("negative index", snmp.BadValue, int32(-1), snmp.BadValue),
			Entry("unknown status", snmp.ErrorStatus(42), int32(0), snmp.GeneralError),
		)

		It("should not treat a negative error status as a failure", func() {
			agent.SetResponder(func(req *snmp.RequestMessage) *snmp.ResponseMessage {
				return snmptest.ReplyError(req, snmp.ErrorStatus(-1), 0, []snmp.Varbind{
					{OID: sysDescr, Type: snmp.OctetString, Value: []byte("router")},
				})
			})
			session := newSession(agent, testOptions())

			varbinds, err := session.GetContext(context.Background(), []string{sysDescr})

			Expect(err).NotTo(HaveOccurred())
			Expect(varbinds).To(Equal([]snmp.Varbind{{OID: sysDescr, Type: snmp.OctetString, Value: []byte("router")}}))
		})

		It("should reject a response whose OIDs do not match the request", func() {
			agent.SetResponder(func(req *snmp.RequestMessage) *snmp.ResponseMessage {
				return snmptest.Reply(req, []snmp.Varbind{{OID: sysUpTime, Type: snmp.Integer, Value: int64(1)}})
			})
			session := newSession(agent, testOptions())

			varbinds, err := session.GetContext(context.Background(), []string{sysDescr})

			var invalid *snmp.ResponseInvalidError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(sysUpTime))
			Expect(varbinds).To(BeNil())
		})

		It("should reject a response with a different varbind count", func() {
			agent.SetResponder(func(req *snmp.RequestMessage) *snmp.ResponseMessage {
				return snmptest.Reply(req, nil)
			})
			session := newSession(agent, testOptions())

			_, err := session.GetContext(context.Background(), []string{sysDescr})

			var invalid *snmp.ResponseInvalidError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("carries 0 varbinds, request had 1"))
		})

		It("should reject a response with another community", func() {
			agent.SetResponder(func(req *snmp.RequestMessage) *snmp.ResponseMessage {
				resp := snmptest.Reply(req, req.PDU.Varbinds)
				resp.Community = "private"
				return resp
			})
			session := newSession(agent, testOptions())

			_, err := session.GetContext(context.Background(), []string{sysDescr})

			var invalid *snmp.ResponseInvalidError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("community"))
		})

		It("should reject a response with another version", func() {
			agent.SetResponder(func(req *snmp.RequestMessage) *snmp.ResponseMessage {
				resp := snmptest.Reply(req, req.PDU.Varbinds)
				resp.Version = 1
				return resp
			})
			session := newSession(agent, testOptions())

			_, err := session.GetContext(context.Background(), []string{sysDescr})

			var invalid *snmp.ResponseInvalidError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("version"))
		})

		It("should fail synchronously on a malformed OID", func() {
			session := newSession(agent, testOptions())
			cb, results := collect()

			session.Get([]string{"not.an.oid"}, cb)

			var r result
			Expect(results).To(Receive(&r))
			var invalid *snmp.RequestInvalidError
			Expect(errors.As(r.err, &invalid)).To(BeTrue())
			Expect(agent.Sends()).To(Equal(0))
			Expect(session.Pending()).To(Equal(0))
		})
	})

	Describe("Set", func() {
		It("should return the varbinds echoed by the agent", func() {
			session := newSession(agent, testOptions())

			varbinds, err := session.SetContext(context.Background(), []snmp.Varbind{
				{OID: sysContact, Type: snmp.OctetString, Value: "noc@example.com"},
				{OID: sysUpTime, Type: snmp.Integer, Value: 42},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(varbinds).To(Equal([]snmp.Varbind{
				{OID: sysContact, Type: snmp.OctetString, Value: []byte("noc@example.com")},
				{OID: sysUpTime, Type: snmp.Integer, Value: int64(42)},
			}))

			req := requestFrom(agent, 0)
			Expect(req.PDU.Kind).To(Equal(snmp.SetRequest))
		})

		It("should not retain the caller's slice", func() {
			session := newSession(agent, testOptions())
			varbinds := []snmp.Varbind{{OID: sysContact, Type: snmp.OctetString, Value: "a"}}
			cb, results := collect()

			session.Set(varbinds, cb)
			varbinds[0].OID = sysLocation

			var r result
			Eventually(results).Should(Receive(&r))
			Expect(r.err).NotTo(HaveOccurred())
			Expect(r.varbinds[0].OID).To(Equal(sysContact))
		})

		DescribeTable("rejecting values that cannot be encoded",
			func(vb snmp.Varbind, message string) {
				session := newSession(agent, testOptions())

				_, err := session.SetContext(context.Background(), []snmp.Varbind{vb})

				var invalid *snmp.RequestInvalidError
				Expect(errors.As(err, &invalid)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring(message))
				Expect(agent.Sends()).To(Equal(0))
			},
			Entry("unsupported type", snmp.Varbind{OID: sysUpTime, Type: snmp.Counter, Value: 1}, "unknown type Counter in request"),
			Entry("integer out of range", snmp.Varbind{OID: sysUpTime, Type: snmp.Integer, Value: int64(1) << 40}, "integer value"),
			Entry("mistyped integer", snmp.Varbind{OID: sysUpTime, Type: snmp.Integer, Value: "1"}, "is not an integer"),
			Entry("mistyped boolean", snmp.Varbind{OID: sysUpTime, Type: snmp.Boolean, Value: 1}, "is not a boolean"),
			Entry("mistyped octet string", snmp.Varbind{OID: sysContact, Type: snmp.OctetString, Value: 3.5}, "is not an octet string"),
			Entry("bad OID value", snmp.Varbind{OID: sysContact, Type: snmp.ObjectIdentifier, Value: "1.3"}, "OID value"),
			Entry("second arc too large under arc 1", snmp.Varbind{OID: "1.40.1.1", Type: snmp.Integer, Value: 1}, "bad OID"),
			Entry("first arc above 2", snmp.Varbind{OID: "3.1.1.1", Type: snmp.Integer, Value: 1}, "bad OID"),
			Entry("OID value with invalid first arcs", snmp.Varbind{OID: sysContact, Type: snmp.ObjectIdentifier, Value: "0.45.1.1"}, "OID value"),
		)
	})

	Describe("Retries and timeouts", func() {
		It("should time out after exhausting the retries", func() {
			agent.SetResponder(snmptest.Drop())
			opts := testOptions()
			opts.Retries = 2
			opts.Timeout = 50 * time.Millisecond
			session := newSession(agent, opts)
			cb, results := collect()

			start := time.Now()
			session.Get([]string{sysDescr}, cb)

			var r result
			Eventually(results, 2*time.Second).Should(Receive(&r))
			Expect(time.Since(start)).To(BeNumerically(">=", 150*time.Millisecond))

			var timedOut *snmp.RequestTimedOutError
			Expect(errors.As(r.err, &timedOut)).To(BeTrue())
			Expect(timedOut.Attempts).To(Equal(3))
			Expect(r.varbinds).To(BeNil())
			Expect(agent.Sends()).To(Equal(3))

			datagrams := agent.Datagrams()
			Expect(datagrams[1].Payload).To(Equal(datagrams[0].Payload))
			Expect(datagrams[2].Payload).To(Equal(datagrams[0].Payload))

			Consistently(results, 150*time.Millisecond).ShouldNot(Receive())
			Expect(agent.Sends()).To(Equal(3))
			Expect(session.Pending()).To(Equal(0))
		})

		It("should succeed when a retry is answered", func() {
			var calls atomic.Int32
			answer := snmptest.Static(agentTable())
			agent.SetResponder(func(req *snmp.RequestMessage) *snmp.ResponseMessage {
				if calls.Add(1) == 1 {
					return nil
				}
				return answer(req)
			})
			opts := testOptions()
			opts.Retries = 1
			opts.Timeout = 50 * time.Millisecond
			session := newSession(agent, opts)

			varbinds, err := session.GetContext(context.Background(), []string{sysDescr})
			Expect(err).NotTo(HaveOccurred())
			Expect(varbinds).To(HaveLen(1))
			Expect(agent.Sends()).To(Equal(2))
			Expect(requestFrom(agent, 1).PDU.ID).To(Equal(requestFrom(agent, 0).PDU.ID))
		})

		It("should not retransmit with zero retries", func() {
			agent.SetResponder(snmptest.Drop())
			opts := testOptions()
			opts.Timeout = 30 * time.Millisecond
			session := newSession(agent, opts)

			_, err := session.GetContext(context.Background(), []string{sysDescr})

			var timedOut *snmp.RequestTimedOutError
			Expect(errors.As(err, &timedOut)).To(BeTrue())
			Expect(timedOut.Attempts).To(Equal(1))
			Expect(agent.Sends()).To(Equal(1))
		})
	})

	Describe("Transport errors", func() {
		It("should resolve the request with the send error", func() {
			sendErr := errors.New("network unreachable")
			agent.FailSends(sendErr)
			session := newSession(agent, testOptions())

			_, err := session.GetContext(context.Background(), []string{sysDescr})
			Expect(err).To(MatchError(sendErr))
			Expect(session.Pending()).To(Equal(0))
		})

		It("should resolve the request when a retry cannot be sent", func() {
			agent.SetResponder(snmptest.Drop())
			opts := testOptions()
			opts.Retries = 3
			opts.Timeout = 30 * time.Millisecond
			session := newSession(agent, opts)
			cb, results := collect()

			session.Get([]string{sysDescr}, cb)
			Eventually(agent.Sends).Should(Equal(1))
			sendErr := errors.New("socket closed")
			agent.FailSends(sendErr)

			var r result
			Eventually(results).Should(Receive(&r))
			Expect(r.err).To(MatchError(sendErr))
			Expect(agent.Sends()).To(Equal(2))
			Consistently(results, 100*time.Millisecond).ShouldNot(Receive())
		})
	})

	Describe("Inbound datagrams", func() {
		It("should route a malformed response to its request", func() {
			agent.SetResponder(snmptest.Drop())
			session := newSession(agent, testOptions())
			cb, results := collect()

			session.Get([]string{sysDescr}, cb)
			Eventually(agent.Sends).Should(Equal(1))
			agent.Deliver(unsupportedValueResponse(requestFrom(agent, 0).PDU.ID))

			var r result
			Eventually(results).Should(Receive(&r))
			var invalid *snmp.ResponseInvalidError
			Expect(errors.As(r.err, &invalid)).To(BeTrue())
			Expect(r.err.Error()).To(ContainSubstring("unknown type IpAddress"))
			Expect(session.Pending()).To(Equal(0))
		})

		It("should hand unattributable datagrams to the error handler", func() {
			handled := make(chan error, 2)
			opts := testOptions()
			opts.ErrorHandler = func(err error) { handled <- err }
			session := newSession(agent, opts)

			agent.Deliver([]byte{0x30, 0x03, 0x02, 0x01})
			agent.Deliver(unsupportedValueResponse(12345))

			var err error
			Eventually(handled).Should(Receive(&err))
			Expect(err.Error()).To(ContainSubstring("datagram from 127.0.0.1:161"))
			Eventually(handled).Should(Receive(&err))
			var perr *snmp.ParseError
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.RequestID).To(Equal(int32(12345)))
			Expect(session.Pending()).To(Equal(0))
		})

		It("should ignore responses to requests that are no longer pending", func() {
			session := newSession(agent, testOptions())
			cb, results := collect()

			session.Get([]string{sysDescr}, cb)
			Eventually(results).Should(Receive())

			req := requestFrom(agent, 0)
			resp, err := snmptest.Reply(req, []snmp.Varbind{{OID: sysDescr, Type: snmp.Null}}).Bytes()
			Expect(err).NotTo(HaveOccurred())
			agent.Deliver(resp)

			Consistently(results, 100*time.Millisecond).ShouldNot(Receive())
		})
	})

	Describe("Cancellation", func() {
		It("should resolve every pending request with the given error", func() {
			agent.SetResponder(snmptest.Drop())
			opts := testOptions()
			opts.Retries = 2
			opts.Timeout = 50 * time.Millisecond
			session := newSession(agent, opts)
			cb, results := collect()

			session.Get([]string{sysDescr}, cb)
			session.Set([]snmp.Varbind{{OID: sysContact, Type: snmp.OctetString, Value: "x"}}, cb)
			Eventually(agent.Sends).Should(Equal(2))
			Expect(session.Pending()).To(Equal(2))

			cancelErr := errors.New("shutting down")
			session.CancelRequests(cancelErr)

			for range 2 {
				var r result
				Eventually(results).Should(Receive(&r))
				Expect(r.err).To(MatchError(cancelErr))
				Expect(r.varbinds).To(BeNil())
			}
			Expect(session.Pending()).To(Equal(0))

			Consistently(results, 200*time.Millisecond).ShouldNot(Receive())
			Expect(agent.Sends()).To(Equal(2))
		})

		It("should let callbacks issue new requests", func() {
			session := newSession(agent, testOptions())
			nested := make(chan result, 1)

			session.Get([]string{sysDescr}, func(_ []snmp.Varbind, err error) {
				if err != nil {
					nested <- result{nil, err}
					return
				}
				session.Get([]string{sysUpTime}, func(varbinds []snmp.Varbind, err error) {
					nested <- result{varbinds, err}
				})
			})

			var r result
			Eventually(nested).Should(Receive(&r))
			Expect(r.err).NotTo(HaveOccurred())
			Expect(r.varbinds[0].OID).To(Equal(sysUpTime))
		})

		It("should withdraw a request when the context ends", func() {
			agent.SetResponder(snmptest.Drop())
			session := newSession(agent, testOptions())

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			_, err := session.GetContext(ctx, []string{sysDescr})
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(session.Pending()).To(Equal(0))
		})

		It("should not send when the context has already ended", func() {
			session := newSession(agent, testOptions())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := session.GetContext(ctx, []string{sysDescr})
			Expect(err).To(MatchError(context.Canceled))
			Expect(agent.Sends()).To(Equal(0))
		})

		It("should resolve pending requests on Close and reject new ones", func() {
			agent.SetResponder(snmptest.Drop())
			session, err := snmp.NewSession("192.0.2.1", "public", agent, testOptions())
			Expect(err).NotTo(HaveOccurred())
			agent.Attach(session)
			cb, results := collect()

			session.Get([]string{sysDescr}, cb)
			Eventually(agent.Sends).Should(Equal(1))
			Expect(session.Close()).To(Succeed())
			Expect(session.Close()).To(Succeed())

			var r result
			Eventually(results).Should(Receive(&r))
			Expect(r.err).To(MatchError(snmp.ErrSessionClosed))

			session.Get([]string{sysDescr}, cb)
			Expect(results).To(Receive(&r))
			Expect(r.err).To(MatchError(snmp.ErrSessionClosed))
			Expect(agent.Sends()).To(Equal(1))
			agent.Wait()
		})
	})

	Describe("Request ids", func() {
		It("should never reuse the id of a pending request", func() {
			agent.SetResponder(snmptest.Drop())
			opts := testOptions()
			opts.Timeout = time.Minute
			session := newSession(agent, opts)
			cb, _ := collect()

			for range 200 {
				session.Get([]string{sysDescr}, func([]snmp.Varbind, error) {})
			}
			session.Get([]string{sysDescr}, cb)
			Eventually(agent.Sends).Should(Equal(201))

			seen := make(map[int32]bool)
			for i := range 201 {
				id := requestFrom(agent, i).PDU.ID
				Expect(id).To(BeNumerically(">=", 1))
				Expect(seen).NotTo(HaveKey(id))
				seen[id] = true
			}
			Expect(session.Pending()).To(Equal(201))
		})
	})

	Describe("Metrics", func() {
		It("should count outcomes", func() {
			reg := prometheus.NewRegistry()
			collector, err := metrics.New(reg)
			Expect(err).NotTo(HaveOccurred())

			opts := testOptions()
			opts.Metrics = collector
			session := newSession(agent, opts)

			_, err = session.GetContext(context.Background(), []string{sysDescr})
			Expect(err).NotTo(HaveOccurred())
			_, err = session.GetContext(context.Background(), []string{"1.3.6.1.2.1.1.99.0"})
			Expect(err).To(HaveOccurred())
			agent.Deliver([]byte{0x00})

			expected := `
# HELP netsnmp_malformed_total Inbound datagrams that could not be decoded.
# TYPE netsnmp_malformed_total counter
netsnmp_malformed_total 1
# HELP netsnmp_requests_in_flight Requests waiting for a response.
# TYPE netsnmp_requests_in_flight gauge
netsnmp_requests_in_flight 0
# HELP netsnmp_requests_total SNMP requests issued, by PDU type.
# TYPE netsnmp_requests_total counter
netsnmp_requests_total{pdu_type="GetRequest"} 2
# HELP netsnmp_responses_total Responses matched to a pending request, by outcome.
# TYPE netsnmp_responses_total counter
netsnmp_responses_total{outcome="failed"} 1
netsnmp_responses_total{outcome="success"} 1
`
			Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected),
				"netsnmp_malformed_total",
				"netsnmp_requests_in_flight",
				"netsnmp_requests_total",
				"netsnmp_responses_total",
			)).To(Succeed())
		})
	})
})
