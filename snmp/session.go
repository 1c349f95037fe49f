// Package snmp implements an SNMPv1 GET/SET client.
//
// A Session encodes requests, sends them through a Transport, retransmits
// on timeout and matches responses to pending requests by request id. The
// transport is asynchronous: Send reports completion through a callback and
// the transport owner feeds received datagrams to Session.HandleMessage.
// The transport package provides a UDP implementation:
//
//	session, udp, err := transport.NewSession(ctx, "192.0.2.1", "public", snmp.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer udp.Stop(context.Background())
//	defer session.Close()
//
//	varbinds, err := session.GetContext(ctx, []string{"1.3.6.1.2.1.1.1.0"})
//	if err != nil {
//		return err
//	}
//	fmt.Println(varbinds[0])
//
// Get and Set are the callback forms. The callback runs exactly once, with
// either the response varbinds or an error:
//
//	session.Set([]snmp.Varbind{
//		{OID: "1.3.6.1.2.1.1.4.0", Type: snmp.OctetString, Value: "noc@example.com"},
//	}, func(varbinds []snmp.Varbind, err error) {
//		var failed *snmp.RequestFailedError
//		if errors.As(err, &failed) {
//			log.Printf("agent refused %s: %s", failed.OID, failed.Status)
//		}
//	})
//
// Errors are typed: *RequestInvalidError for requests that cannot be
// encoded, *ResponseInvalidError for malformed or mismatched responses,
// *RequestFailedError for a positive agent error status and
// *RequestTimedOutError once the retries are exhausted.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/geekxflood/netsnmp/logging"
	"github.com/geekxflood/netsnmp/metrics"
)

// Transport sends datagrams on behalf of a Session.
//
// Send must not block on I/O: it hands payload to the network and reports
// completion through done, possibly from another goroutine. Datagrams
// received from agents are pushed back with Session.HandleMessage.
type Transport interface {
	Send(payload []byte, port int, host string, done func(n int, err error))
}

// ResponseFunc receives the outcome of a request. It is called exactly once,
// never while the session holds its lock, so it may issue further requests.
type ResponseFunc func(varbinds []Varbind, err error)

// request is a transaction record, owned by the session that created it.
type request struct {
	id       int32
	message  *RequestMessage
	payload  []byte
	callback ResponseFunc
	retries  int
	timeout  time.Duration
	port     int
	started  time.Time

	// attempt counts sends. Timers and send completions carry the attempt
	// they belong to and are ignored once it is superseded.
	attempt int
	timer   *time.Timer
}

// stopTimer must be called with the session lock held.
func (r *request) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Session issues SNMP v1 GET and SET requests to one agent and correlates
// the responses.
//
// Each request lives in the session's table from the moment it is issued
// until it is resolved by a matching response, by exhausting its retries, by
// a transport error or by cancellation. Removal from the table is the single
// point where a request resolves, which is what makes its callback run
// exactly once.
type Session struct {
	target    string
	community string
	opts      Options
	transport Transport
	logger    logging.Logger
	metrics   *metrics.Collector
	onError   func(error)

	mu       sync.Mutex
	requests map[int32]*request
	rng      *rand.Rand
	closed   bool
}

// NewSession returns a Session sending through t. Empty target and community
// default to "127.0.0.1" and "public".
func NewSession(target, community string, t Transport, opts Options) (*Session, error) {
	if t == nil {
		return nil, errors.New("transport cannot be nil")
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session options: %w", err)
	}
	if target == "" {
		target = DefaultTarget
	}
	if community == "" {
		community = DefaultCommunity
	}

	s := &Session{
		target:    target,
		community: community,
		opts:      opts,
		transport: t,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		onError:   opts.ErrorHandler,
		requests:  make(map[int32]*request),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	if s.logger == nil {
		s.logger = logging.NewComponentLogger("session", "snmp")
	}
	s.logger = s.logger.With("target", target, "port", opts.Port)
	if s.onError == nil {
		s.onError = func(err error) {
			s.logger.Warn("unattributable inbound datagram", "error", err)
		}
	}
	return s, nil
}

// Target returns the agent address.
func (s *Session) Target() string { return s.target }

// Options returns the effective options.
func (s *Session) Options() Options { return s.opts }

// Get requests the values of oids. The callback receives the varbinds in
// request order.
func (s *Session) Get(oids []string, cb ResponseFunc) {
	varbinds := make([]Varbind, len(oids))
	for i, oid := range oids {
		varbinds[i] = Varbind{OID: oid}
	}
	s.issue(GetRequest, varbinds, cb)
}

// Set writes varbinds. The callback receives the varbinds echoed by the
// agent.
func (s *Session) Set(varbinds []Varbind, cb ResponseFunc) {
	s.issue(SetRequest, cloneVarbinds(varbinds), cb)
}

// GetContext is Get waiting for the outcome. If ctx ends first, the request
// is withdrawn and ctx.Err() is returned.
func (s *Session) GetContext(ctx context.Context, oids []string) ([]Varbind, error) {
	varbinds := make([]Varbind, len(oids))
	for i, oid := range oids {
		varbinds[i] = Varbind{OID: oid}
	}
	return s.wait(ctx, GetRequest, varbinds)
}

// SetContext is Set waiting for the outcome.
func (s *Session) SetContext(ctx context.Context, varbinds []Varbind) ([]Varbind, error) {
	return s.wait(ctx, SetRequest, cloneVarbinds(varbinds))
}

type outcome struct {
	varbinds []Varbind
	err      error
}

func (s *Session) wait(ctx context.Context, kind PDUType, varbinds []Varbind) ([]Varbind, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan outcome, 1)
	id := s.issue(kind, varbinds, func(vbs []Varbind, err error) {
		done <- outcome{vbs, err}
	})

	select {
	case o := <-done:
		return o.varbinds, o.err
	case <-ctx.Done():
		if req := s.take(id); req != nil {
			s.metrics.Cancelled(1)
			s.logger.DebugContext(logging.WithRequestID(ctx, id), "request withdrawn", "error", ctx.Err())
			return nil, ctx.Err()
		}
		// Resolved concurrently; the callback has run or is about to.
		o := <-done
		return o.varbinds, o.err
	}
}

// issue registers and sends a request and returns its id. Encoding errors
// are delivered to cb and yield id 0.
func (s *Session) issue(kind PDUType, varbinds []Varbind, cb ResponseFunc) int32 {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cb(nil, ErrSessionClosed)
		return 0
	}

	id := s.nextID()
	msg := NewRequestMessage(s.opts.Version, s.community, &RequestPDU{Kind: kind, ID: id, Varbinds: varbinds})
	payload, err := msg.Bytes()
	if err != nil {
		s.mu.Unlock()
		cb(nil, err)
		return 0
	}

	req := &request{
		id:       id,
		message:  msg,
		payload:  payload,
		callback: cb,
		retries:  s.opts.Retries,
		timeout:  s.opts.Timeout,
		port:     s.opts.Port,
		started:  time.Now(),
	}
	if !s.register(req) {
		s.mu.Unlock()
		cb(nil, requestInvalid(nil, "request id %d already in use", id))
		return 0
	}
	attempt := s.nextAttempt(req)
	s.mu.Unlock()

	s.metrics.RequestSent(kind.String())
	s.logger.Debug("sending request", "request_id", id, "pdu_type", kind.String(), "varbinds", len(varbinds))
	s.send(req, attempt)
	return id
}

// nextID draws ids in [1, 2^31-1) until one is free. Must hold s.mu.
func (s *Session) nextID() int32 {
	for {
		id := s.rng.Int32N(math.MaxInt32-1) + 1
		if _, busy := s.requests[id]; !busy {
			return id
		}
	}
}

// register inserts req unless its id is taken. Must hold s.mu.
func (s *Session) register(req *request) bool {
	if _, exists := s.requests[req.id]; exists {
		return false
	}
	s.requests[req.id] = req
	return true
}

// nextAttempt starts a new send attempt. Must hold s.mu.
func (s *Session) nextAttempt(req *request) int {
	req.attempt++
	return req.attempt
}

// tracked reports whether req is still pending on attempt. Must hold s.mu.
func (s *Session) tracked(req *request, attempt int) bool {
	return s.requests[req.id] == req && req.attempt == attempt
}

func (s *Session) send(req *request, attempt int) {
	s.transport.Send(req.payload, req.port, s.target, func(_ int, err error) {
		s.sent(req, attempt, err)
	})
}

// sent arms the timer once the transport accepted the datagram.
func (s *Session) sent(req *request, attempt int, err error) {
	s.mu.Lock()
	if !s.tracked(req, attempt) {
		s.mu.Unlock()
		return
	}
	if err != nil {
		delete(s.requests, req.id)
		req.stopTimer()
		s.mu.Unlock()

		s.metrics.SendError()
		s.logger.Debug("send failed", "request_id", req.id, "error", err)
		req.callback(nil, err)
		return
	}
	req.timer = time.AfterFunc(req.timeout, func() { s.expire(req, attempt) })
	s.mu.Unlock()
}

func (s *Session) expire(req *request, attempt int) {
	s.mu.Lock()
	if !s.tracked(req, attempt) {
		s.mu.Unlock()
		return
	}
	req.timer = nil

	if req.retries > 0 {
		req.retries--
		left := req.retries
		next := s.nextAttempt(req)
		s.mu.Unlock()

		s.metrics.Retry()
		s.logger.Debug("retrying request", "request_id", req.id, "retries_left", left)
		s.send(req, next)
		return
	}

	delete(s.requests, req.id)
	attempts := req.attempt
	s.mu.Unlock()

	s.metrics.Timeout()
	s.logger.Debug("request timed out", "request_id", req.id, "attempts", attempts)
	req.callback(nil, &RequestTimedOutError{RequestID: req.id, Attempts: attempts})
}

// take removes the request with id from the table and stops its timer.
func (s *Session) take(id int32) *request {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil
	}
	delete(s.requests, id)
	req.stopTimer()
	return req
}

// HandleMessage processes a datagram received from an agent. Transports
// call it for every inbound payload; payload is not retained.
func (s *Session) HandleMessage(payload []byte, remote net.Addr) {
	msg, err := ParseResponse(payload)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			if req := s.take(perr.RequestID); req != nil {
				s.metrics.Response(metrics.OutcomeInvalid, time.Since(req.started))
				req.callback(nil, perr.Err)
				return
			}
		}
		s.metrics.Malformed()
		s.onError(fmt.Errorf("datagram from %s: %w", addrString(remote), err))
		return
	}

	req := s.take(msg.PDU.ID)
	if req == nil {
		s.metrics.LateResponse()
		s.logger.Debug("response for unknown request", "request_id", msg.PDU.ID, "remote", addrString(remote))
		return
	}

	varbinds, err := s.check(req, msg)
	s.metrics.Response(responseOutcome(err), time.Since(req.started))
	req.callback(varbinds, err)
}

// check validates a matched response against its request.
func (s *Session) check(req *request, msg *ResponseMessage) ([]Varbind, error) {
	if msg.Version != req.message.Version {
		return nil, responseInvalid(nil, "version in response (%s) does not match request (%s)", msg.Version, req.message.Version)
	}
	if msg.Community != req.message.Community {
		return nil, responseInvalid(nil, "community in response does not match request")
	}
	return feed(req.message.PDU, msg.PDU)
}

// feed resolves a response shared by GET and SET: the agent's error status
// first, then the varbind count, then each OID in position. Only a positive
// error status fails the request.
func feed(sent *RequestPDU, got *ResponsePDU) ([]Varbind, error) {
	if got.ErrorStatus > NoError {
		status := got.ErrorStatus
		if !status.Known() {
			status = GeneralError
		}
		if got.ErrorIndex <= 0 || int(got.ErrorIndex) > len(got.Varbinds) {
			return nil, &RequestFailedError{Status: status}
		}
		return nil, &RequestFailedError{Status: status, OID: got.Varbinds[got.ErrorIndex-1].OID}
	}

	if len(got.Varbinds) != len(sent.Varbinds) {
		return nil, responseInvalid(nil, "response carries %d varbinds, request had %d", len(got.Varbinds), len(sent.Varbinds))
	}
	for i := range sent.Varbinds {
		if got.Varbinds[i].OID != sent.Varbinds[i].OID {
			return nil, responseInvalid(nil, "OID %s in response does not match %s in request", got.Varbinds[i].OID, sent.Varbinds[i].OID)
		}
	}
	return got.Varbinds, nil
}

// CancelRequests resolves every pending request with err.
func (s *Session) CancelRequests(err error) {
	s.mu.Lock()
	pending := make([]*request, 0, len(s.requests))
	for id, req := range s.requests {
		req.stopTimer()
		delete(s.requests, id)
		pending = append(pending, req)
	}
	s.mu.Unlock()

	s.metrics.Cancelled(len(pending))
	for _, req := range pending {
		req.callback(nil, err)
	}
}

// Pending returns the number of unresolved requests.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Close resolves pending requests with ErrSessionClosed and rejects new
// ones. The transport is left open; it belongs to the caller.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.CancelRequests(ErrSessionClosed)
	return nil
}

func responseOutcome(err error) string {
	var failed *RequestFailedError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &failed):
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeInvalid
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	return addr.String()
}
