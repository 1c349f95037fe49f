// Package snmptest provides an in-memory SNMP agent for exercising sessions
// without sockets.
//
//	agent := snmptest.NewAgent(snmptest.Static(map[string]snmp.Varbind{
//		"1.3.6.1.2.1.1.1.0": {Type: snmp.OctetString, Value: []byte("sysDescr")},
//	}))
//	session, _ := snmp.NewSession("192.0.2.1", "public", agent, snmp.DefaultOptions())
//	agent.Attach(session)
package snmptest

import (
	"net"
	"net/netip"
	"sync"

	"github.com/geekxflood/netsnmp/snmp"
)

// Handler receives datagrams from the agent. *snmp.Session implements it.
type Handler interface {
	HandleMessage(payload []byte, remote net.Addr)
}

// Responder builds the reply to a decoded request. A nil reply drops the
// request, simulating packet loss.
type Responder func(req *snmp.RequestMessage) *snmp.ResponseMessage

// Datagram records one Send call.
type Datagram struct {
	Payload []byte
	Port    int
	Host    string
}

// Agent is an snmp.Transport that answers requests itself.
//
// Every Send completes on a new goroutine: the completion callback runs
// first, then the reply, if any, is handed to the attached Handler.
type Agent struct {
	mu        sync.Mutex
	responder Responder
	handler   Handler
	sendErr   error
	sent      []Datagram
	addr      net.Addr
	wg        sync.WaitGroup
}

// NewAgent returns an agent answering with responder. A nil responder never
// answers.
func NewAgent(responder Responder) *Agent {
	return &Agent{
		responder: responder,
		addr:      net.UDPAddrFromAddrPort(netip.MustParseAddrPort("127.0.0.1:161")),
	}
}

// Attach sets the handler receiving replies.
func (a *Agent) Attach(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// SetResponder replaces the responder.
func (a *Agent) SetResponder(r Responder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responder = r
}

// FailSends makes subsequent sends complete with err. Nil restores success.
func (a *Agent) FailSends(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sendErr = err
}

// Send implements snmp.Transport.
func (a *Agent) Send(payload []byte, port int, host string, done func(int, error)) {
	a.mu.Lock()
	a.sent = append(a.sent, Datagram{Payload: append([]byte(nil), payload...), Port: port, Host: host})
	sendErr, responder, handler := a.sendErr, a.responder, a.handler
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if sendErr != nil {
			done(0, sendErr)
			return
		}
		done(len(payload), nil)

		if responder == nil || handler == nil {
			return
		}
		req, err := snmp.ParseRequest(payload)
		if err != nil {
			return
		}
		resp := responder(req)
		if resp == nil {
			return
		}
		b, err := resp.Bytes()
		if err != nil {
			return
		}
		handler.HandleMessage(b, a.addr)
	}()
}

// Deliver hands a raw datagram to the attached handler, as if the agent had
// sent it.
func (a *Agent) Deliver(payload []byte) {
	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()
	if handler != nil {
		handler.HandleMessage(payload, a.addr)
	}
}

// Sends returns the number of Send calls.
func (a *Agent) Sends() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

// Datagrams returns a copy of every datagram sent so far.
func (a *Agent) Datagrams() []Datagram {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Datagram(nil), a.sent...)
}

// Wait blocks until every Send goroutine has finished.
func (a *Agent) Wait() {
	a.wg.Wait()
}

// Reply builds a GetResponse to req carrying varbinds and no error.
func Reply(req *snmp.RequestMessage, varbinds []snmp.Varbind) *snmp.ResponseMessage {
	return ReplyError(req, snmp.NoError, 0, varbinds)
}

// ReplyError builds a GetResponse to req with the given error status and
// index.
func ReplyError(req *snmp.RequestMessage, status snmp.ErrorStatus, index int32, varbinds []snmp.Varbind) *snmp.ResponseMessage {
	return &snmp.ResponseMessage{
		Version:   req.Version,
		Community: req.Community,
		PDU: &snmp.ResponsePDU{
			ID:          req.PDU.ID,
			ErrorStatus: status,
			ErrorIndex:  index,
			Varbinds:    varbinds,
		},
	}
}

// Static answers GETs from a fixed table the way a v1 agent does: the first
// unknown OID fails the whole request with NoSuchName. SETs are echoed.
func Static(values map[string]snmp.Varbind) Responder {
	return func(req *snmp.RequestMessage) *snmp.ResponseMessage {
		if req.PDU.Kind == snmp.SetRequest {
			return Reply(req, req.PDU.Varbinds)
		}
		out := make([]snmp.Varbind, len(req.PDU.Varbinds))
		for i, vb := range req.PDU.Varbinds {
			v, ok := values[vb.OID]
			if !ok {
				return ReplyError(req, snmp.NoSuchName, int32(i+1), req.PDU.Varbinds)
			}
			v.OID = vb.OID
			out[i] = v
		}
		return Reply(req, out)
	}
}

// Drop never answers.
func Drop() Responder {
	return func(*snmp.RequestMessage) *snmp.ResponseMessage { return nil }
}
