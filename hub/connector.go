// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/hub/internal/msgs"
	"github.com/ferrymsg/ferry-go/port"
	"github.com/ferrymsg/ferry-go/transfer"
	"github.com/ferrymsg/ferry-go/wire"
)

// ErrLinkClosed is returned for calls on a Connector whose hub link is gone.
var ErrLinkClosed = errors.New("hub: link closed")

// quicDialTimeout bounds dialing a hub over QUIC, handshake included.
const quicDialTimeout = 10 * time.Second

// Options configure a Connector.
type Options struct {
	// Label is the context's human readable name on the hub.
	Label string

	// Anchor registers this context as the hub's broadcast target.
	Anchor bool

	// Handler consumes inbound messages. A Connector without a Handler
	// answers direct deliveries as unrouted.
	Handler transfer.Handler
}

// pendingCall tracks one sequence-correlated exchange with the hub. For
// OpenPort calls, name carries the connection name the read loop adopts a
// facade under before the call is answered.
type pendingCall struct {
	ch   chan msgs.Message
	name string
}

// Connector is one execution context attached to a hub. It implements
// channel.Messenger, so the transfer protocol runs across the process
// boundary unchanged: direct sends become sequence-correlated request/reply
// exchanges and streaming connections become facades whose units ride the
// hub's port relay.
type Connector struct {
	link    link
	label   string
	context channel.ContextID
	profile channel.Profile
	limits  channel.Limits
	handler transfer.Handler

	registry *port.Registry

	mu      sync.Mutex
	nextSeq uint64
	pending map[uint64]*pendingCall
	ports   map[uint64]*port.Port
	dead    bool

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to a hub's WebSocket endpoint, e.g. ws://host:port/ws.
func Dial(url string, o Options) (*Connector, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	c, err := newConnector(newWsLink(conn), o)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// DialQUIC connects to a hub's QUIC listener.
func DialQUIC(addr string, o Options) (*Connector, error) {
	ctx, cancel := context.WithTimeout(context.Background(), quicDialTimeout)
	defer cancel()

	conn, err := quic.DialAddr(ctx, addr, generateDialerTLSConfig(), generateQUICConfig())
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "no message stream")
		return nil, err
	}

	c, err := newConnector(newQuicLink(conn, stream), o)
	if err != nil {
		_ = conn.CloseWithError(1, "joining failed")
		return nil, err
	}
	return c, nil
}

// newConnector performs the hello and welcome handshake on a fresh link and
// starts the read loop.
func newConnector(l link, o Options) (*Connector, error) {
	c := &Connector{
		link:     l,
		label:    o.Label,
		handler:  o.Handler,
		registry: port.NewRegistry(),
		pending:  make(map[uint64]*pendingCall),
		ports:    make(map[uint64]*port.Port),
		done:     make(chan struct{}),
	}

	if err := l.WriteMessage(&msgs.HelloMessage{Label: o.Label, Anchor: o.Anchor}); err != nil {
		return nil, fmt.Errorf("hub: sending the hello failed: %v", err)
	}

	first, err := l.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("hub: awaiting the welcome failed: %v", err)
	}
	welcome, ok := first.(*msgs.WelcomeMessage)
	if !ok {
		return nil, fmt.Errorf("hub: expected a welcome, got %v", first)
	}

	profile, err := channel.ParseProfile(welcome.Profile)
	if err != nil {
		return nil, fmt.Errorf("hub: welcome names an unknown profile: %v", err)
	}

	c.context = channel.ContextID(welcome.Context)
	c.profile = profile
	c.limits = profile.Limits()

	c.logger().WithField("profile", profile).Info("Joined the hub")

	go c.readLoop()

	return c, nil
}

func (c *Connector) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"context": c.context,
		"label":   c.label,
	})
}

// Context is the id the hub assigned to this Connector.
func (c *Connector) Context() channel.ContextID {
	return c.context
}

// Label this Connector joined with.
func (c *Connector) Label() string {
	return c.label
}

// Ports returns the Connector's rendezvous registry for inbound connections.
func (c *Connector) Ports() *port.Registry {
	return c.registry
}

// Limits is the size policy of the hub's profile, adopted from the welcome.
func (c *Connector) Limits() channel.Limits {
	return c.limits
}

// Disconnected is closed once the hub link is gone.
func (c *Connector) Disconnected() <-chan struct{} {
	return c.done
}

// SendDirect delivers one payload through the hub and returns the receiving
// handler's reply. Oversized payloads are rejected with channel.ErrTooLarge
// before anything crosses the link, unroutable targets come back as
// channel.ErrUnrouted and a failing remote handler as a *channel.RemoteError.
func (c *Connector) SendDirect(target channel.Target, payload []byte) (json.RawMessage, error) {
	if len(payload) > c.limits.MaxMessageSize {
		return nil, channel.ErrTooLarge
	}

	send := &msgs.SendMessage{Payload: payload}
	switch t := target.(type) {
	case channel.Broadcast:
		send.Broadcast = true
	case channel.Unicast:
		send.Context = uint64(t.Context)
		send.Frame = uint64(t.Frame)
	default:
		return nil, channel.ErrUnrouted
	}

	seq, pc, err := c.enqueue("")
	if err != nil {
		return nil, err
	}
	send.Seq = seq

	answer, err := c.await(seq, pc, send)
	if err != nil {
		return nil, err
	}
	reply, ok := answer.(*msgs.ReplyMessage)
	if !ok {
		return nil, fmt.Errorf("hub: expected a reply, got %v", answer)
	}

	switch reply.Status {
	case msgs.StatusOK:
		if len(reply.Payload) == 0 {
			return nil, nil
		}
		return json.RawMessage(reply.Payload), nil

	case msgs.StatusUnrouted:
		return nil, channel.ErrUnrouted

	case msgs.StatusTooLarge:
		return nil, channel.ErrTooLarge

	case msgs.StatusRejected:
		return nil, &channel.RemoteError{Msg: reply.Reason}

	default:
		return nil, fmt.Errorf("hub: reply carries unknown status %d", reply.Status)
	}
}

// OpenPort opens a streaming connection toward target through the hub's port
// relay. The far end materializes at the target as an accepted connection of
// the same name.
func (c *Connector) OpenPort(target channel.Target, name string) (*port.Port, error) {
	open := &msgs.PortOpenMessage{Name: name}
	switch t := target.(type) {
	case channel.Broadcast:
		open.Broadcast = true
	case channel.Unicast:
		open.Context = uint64(t.Context)
		open.Frame = uint64(t.Frame)
	default:
		return nil, channel.ErrUnrouted
	}

	seq, pc, err := c.enqueue(name)
	if err != nil {
		return nil, err
	}
	open.Seq = seq

	answer, err := c.await(seq, pc, open)
	if err != nil {
		return nil, err
	}

	switch reply := answer.(type) {
	case *msgs.PortOpenedMessage:
		if p := c.portByID(reply.Port); p != nil {
			return p, nil
		}
		return nil, ErrLinkClosed

	case *msgs.ReplyMessage:
		if reply.Status == msgs.StatusUnrouted {
			return nil, channel.ErrUnrouted
		}
		return nil, fmt.Errorf("hub: opening the connection failed with status %d", reply.Status)

	default:
		return nil, fmt.Errorf("hub: unexpected answer %v", answer)
	}
}

// Close detaches the Connector from the hub. Pending calls fail with
// ErrLinkClosed and every connection facade disconnects. Closing twice is
// harmless.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		_ = c.link.Close()
	})

	<-c.done
	return nil
}

// enqueue reserves the next sequence number for a correlated exchange.
func (c *Connector) enqueue(portName string) (uint64, *pendingCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return 0, nil, ErrLinkClosed
	}

	c.nextSeq++
	pc := &pendingCall{ch: make(chan msgs.Message, 1), name: portName}
	c.pending[c.nextSeq] = pc

	return c.nextSeq, pc, nil
}

// await sends m and parks until the read loop answers the call or the link
// dies.
func (c *Connector) await(seq uint64, pc *pendingCall, m msgs.Message) (msgs.Message, error) {
	if err := c.link.WriteMessage(m); err != nil {
		c.take(seq)
		return nil, err
	}

	answer, ok := <-pc.ch
	if !ok {
		return nil, ErrLinkClosed
	}
	return answer, nil
}

func (c *Connector) take(seq uint64) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	pc := c.pending[seq]
	if pc != nil {
		delete(c.pending, seq)
	}
	return pc
}

func (c *Connector) portByID(id uint64) *port.Port {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ports[id]
}

func (c *Connector) removePort(id uint64) *port.Port {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.ports[id]
	delete(c.ports, id)
	return p
}

// adoptFacade creates the local half of a hub-relayed connection. Outbound
// units are serialized into PortDataMessages, closing sends a PortClose
// unless the facade was already detached by the remote side or the teardown.
func (c *Connector) adoptFacade(id uint64, name string) *port.Port {
	p := port.New(name, func(u wire.Unit) error {
		if wire.DataLen(u) > c.limits.MaxMessageSize {
			return port.ErrUnitTooLarge
		}

		var buff bytes.Buffer
		if err := wire.WriteUnit(u, &buff); err != nil {
			return err
		}
		return c.link.WriteMessage(&msgs.PortDataMessage{Port: id, Unit: buff.Bytes()})
	}, func() error {
		if c.removePort(id) != nil {
			return c.link.WriteMessage(&msgs.PortCloseMessage{Port: id})
		}
		return nil
	})

	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		_ = p.Close()
		return p
	}
	c.ports[id] = p
	c.mu.Unlock()

	return p
}

// readLoop pumps the link until it dies. Port traffic is handled inline to
// preserve per-connection order, direct deliveries run on their own
// goroutines so a long transfer never stalls the link.
func (c *Connector) readLoop() {
	for {
		m, err := c.link.ReadMessage()
		if err != nil {
			c.logger().WithError(err).Debug("Hub link closed")
			c.teardown()
			return
		}

		switch m := m.(type) {
		case *msgs.DeliverMessage:
			go c.handleDeliver(m)

		case *msgs.ReplyMessage:
			c.answerCall(m.Seq, m)

		case *msgs.PortOpenedMessage:
			// The facade must exist before any relayed unit follows on the
			// link, so it is adopted here and not by the waiting caller.
			if pc := c.take(m.Seq); pc != nil {
				c.adoptFacade(m.Port, pc.name)
				pc.ch <- m
			}

		case *msgs.PortAcceptMessage:
			p := c.adoptFacade(m.Port, m.Name)
			from := channel.Sender{Context: channel.ContextID(m.Context), Label: m.Label}
			transfer.AcceptPort(c, p, from, c.handler)

		case *msgs.PortDataMessage:
			c.handleData(m)

		case *msgs.PortCloseMessage:
			if p := c.removePort(m.Port); p != nil {
				_ = p.Close()
			}

		default:
			c.logger().WithField("message", m).Warn("Discarding an unexpected message")
		}
	}
}

func (c *Connector) answerCall(seq uint64, m msgs.Message) {
	if pc := c.take(seq); pc != nil {
		pc.ch <- m
	} else {
		c.logger().WithField("message", m).Debug("Discarding a stray answer")
	}
}

// handleDeliver runs one direct delivery through the receive dispatch and
// reports the outcome back to the hub.
func (c *Connector) handleDeliver(m *msgs.DeliverMessage) {
	from := channel.Sender{Context: channel.ContextID(m.Context), Label: m.Label}

	reply := &msgs.ReplyMessage{Seq: m.Seq}
	if c.handler == nil {
		reply.Status = msgs.StatusUnrouted
	} else if result, err := transfer.Receive(c, json.RawMessage(m.Payload), from, c.handler, c.lookup); err != nil {
		reply.Status = msgs.StatusRejected
		reply.Reason = err.Error()
	} else {
		reply.Status = msgs.StatusOK
		reply.Payload = result
	}

	if err := c.link.WriteMessage(reply); err != nil {
		c.logger().WithError(err).Debug("Answering a delivery errored")
	}
}

func (c *Connector) handleData(m *msgs.PortDataMessage) {
	c.mu.Lock()
	p := c.ports[m.Port]
	c.mu.Unlock()

	if p == nil {
		c.logger().WithField("port", m.Port).Debug("Discarding data for an unknown connection")
		return
	}

	u, err := wire.ReadUnit(bytes.NewReader(m.Unit))
	if err != nil {
		c.logger().WithError(err).Warn("Unmarshalling a relayed unit errored")
		return
	}

	if err := p.Deliver(u); err != nil {
		c.logger().WithFields(log.Fields{
			"port":  p.Name(),
			"error": err,
		}).Debug("Delivering a relayed unit errored")
	}
}

func (c *Connector) lookup(id wire.TransferID) (*port.Port, error) {
	return c.registry.Resolve(string(id), transfer.DefaultHandshakeTimeout)
}

// teardown fails every pending call, disconnects every facade and marks the
// Connector dead. It runs exactly once, from the read loop.
func (c *Connector) teardown() {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return
	}
	c.dead = true

	pending := c.pending
	c.pending = make(map[uint64]*pendingCall)
	ports := c.ports
	c.ports = make(map[uint64]*port.Port)
	c.mu.Unlock()

	for _, pc := range pending {
		close(pc.ch)
	}
	for _, p := range ports {
		_ = p.Close()
	}

	c.closeOnce.Do(func() {
		_ = c.link.Close()
	})
	close(c.done)
}
