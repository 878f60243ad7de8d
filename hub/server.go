// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package hub implements the channel between processes: a hub relays the
// direct channel and streaming connections between its connectors, speaking
// CBOR over WebSockets or QUIC. A Connector implements channel.Messenger, so
// the transfer protocol runs across process boundaries unchanged.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/hub/internal/msgs"
)

// streamAcceptTimeout bounds the wait for a freshly dialed QUIC connection
// to open its message stream.
const streamAcceptTimeout = 5 * time.Second

// client is one attached connector from the hub's point of view.
type client struct {
	link
	context uint64
	label   string
	anchor  bool
}

// pendingReply tracks a DeliverMessage awaiting its answer.
type pendingReply struct {
	origin    *client
	originSeq uint64
	target    *client
}

// portRelay pipes one streaming connection between its two ends.
type portRelay struct {
	name string
	a    *client
	b    *client
}

func (r *portRelay) other(c *client) *client {
	switch c {
	case r.a:
		return r.b
	case r.b:
		return r.a
	default:
		return nil
	}
}

// Server is the hub process. It owns the roster of connectors, routes
// broadcasts to the anchor and relays replies and port traffic between
// links.
type Server struct {
	profile channel.Profile
	limits  channel.Limits

	mu       sync.Mutex
	nextCtx  uint64
	nextSeq  uint64
	nextPort uint64
	clients  map[uint64]*client
	anchor   *client
	pending  map[uint64]pendingReply
	relays   map[uint64]*portRelay

	upgrader websocket.Upgrader

	httpServer   *http.Server
	quicListener *quic.Listener
}

// NewServer creates a hub enforcing the profile's size policy.
func NewServer(profile channel.Profile) *Server {
	return &Server{
		profile: profile,
		limits:  profile.Limits(),
		clients: make(map[uint64]*client),
		pending: make(map[uint64]pendingReply),
		relays:  make(map[uint64]*portRelay),
	}
}

// Router returns the hub's HTTP surface: the WebSocket endpoint on /ws and a
// JSON roster on /status.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.ServeHTTP)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves the hub's HTTP surface on addr, blocking like
// http.ListenAndServe does.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Router()}

	log.WithField("address", addr).Info("Starting WebSocket listener")
	return s.httpServer.ListenAndServe()
}

// ListenQUIC starts the hub's QUIC listener on addr and returns after it
// accepts in the background.
func (s *Server) ListenQUIC(addr string) error {
	listener, err := quic.ListenAddr(addr, generateListenerTLSConfig(), generateQUICConfig())
	if err != nil {
		return err
	}
	s.quicListener = listener

	log.WithField("address", addr).Info("Starting QUIC listener")
	go s.acceptQUIC(listener)

	return nil
}

// QUICAddr is the bound address of the QUIC listener, nil before ListenQUIC.
func (s *Server) QUICAddr() net.Addr {
	if s.quicListener == nil {
		return nil
	}
	return s.quicListener.Addr()
}

func (s *Server) acceptQUIC(listener *quic.Listener) {
	for {
		conn, err := listener.Accept(context.Background())
		if err != nil {
			if errors.Is(err, quic.ErrServerClosed) {
				log.Info("QUIC listener closed")
				return
			}

			log.WithError(err).Error("Accepting a QUIC connection errored")
			continue
		}

		go s.handleQUICConn(conn)
	}
}

func (s *Server) handleQUICConn(conn *quic.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), streamAcceptTimeout)
	defer cancel()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		log.WithFields(log.Fields{
			"peer":  conn.RemoteAddr(),
			"error": err,
		}).Warn("Peer did not open its message stream")
		_ = conn.CloseWithError(1, "no message stream")
		return
	}

	s.handleLink(newQuicLink(conn, stream))
}

// ServeHTTP upgrades a request to a WebSocket link. It is mounted on /ws by
// Router and may be bound to any other http.ServeMux as well.
func (s *Server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	s.handleLink(newWsLink(conn))
}

// handleLink runs one connector's session: hello and welcome first, then the
// relay loop until the link dies.
func (s *Server) handleLink(l link) {
	first, err := l.ReadMessage()
	if err != nil {
		log.WithError(err).Debug("Link died before its hello")
		_ = l.Close()
		return
	}

	hello, ok := first.(*msgs.HelloMessage)
	if !ok {
		log.WithField("message", first).Warn("Expected a hello, dropping the link")
		_ = l.Close()
		return
	}

	c := &client{link: l, label: hello.Label, anchor: hello.Anchor}

	s.mu.Lock()
	s.nextCtx++
	c.context = s.nextCtx
	s.clients[c.context] = c
	if hello.Anchor {
		if s.anchor != nil {
			log.WithField("context", s.anchor.context).Info("Replacing the anchor")
		}
		s.anchor = c
	}
	s.mu.Unlock()

	logger := log.WithFields(log.Fields{
		"context": c.context,
		"label":   c.label,
		"peer":    l.RemoteAddr(),
	})
	logger.Info("Connector joined")

	if err := l.WriteMessage(&msgs.WelcomeMessage{Context: c.context, Profile: s.profile.String()}); err != nil {
		logger.WithError(err).Warn("Sending the welcome errored")
		s.dropClient(c)
		return
	}

	for {
		m, err := l.ReadMessage()
		if err != nil {
			logger.WithError(err).Debug("Link closed")
			s.dropClient(c)
			return
		}

		s.dispatch(c, m)
	}
}

func (s *Server) dispatch(c *client, m msgs.Message) {
	switch m := m.(type) {
	case *msgs.SendMessage:
		s.relayMessage(c, m)

	case *msgs.ReplyMessage:
		s.relayReply(c, m)

	case *msgs.PortOpenMessage:
		s.openRelay(c, m)

	case *msgs.PortDataMessage:
		s.relayData(c, m)

	case *msgs.PortCloseMessage:
		s.closeRelay(c, m)

	default:
		log.WithFields(log.Fields{
			"context": c.context,
			"message": m,
		}).Warn("Discarding an unexpected message")
	}
}

// answer writes a reply back to a connector, logging instead of failing.
func (s *Server) answer(c *client, m msgs.Message) {
	if err := c.WriteMessage(m); err != nil {
		log.WithFields(log.Fields{
			"context": c.context,
			"message": m,
			"error":   err,
		}).Debug("Answering a connector errored")
	}
}

func (s *Server) routeClient(broadcast bool, context uint64) *client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if broadcast {
		return s.anchor
	}
	return s.clients[context]
}

func (s *Server) relayMessage(origin *client, m *msgs.SendMessage) {
	if len(m.Payload) > s.limits.MaxMessageSize {
		s.answer(origin, &msgs.ReplyMessage{Seq: m.Seq, Status: msgs.StatusTooLarge})
		return
	}

	target := s.routeClient(m.Broadcast, m.Context)
	if target == nil {
		s.answer(origin, &msgs.ReplyMessage{Seq: m.Seq, Status: msgs.StatusUnrouted})
		return
	}

	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	s.pending[seq] = pendingReply{origin: origin, originSeq: m.Seq, target: target}
	s.mu.Unlock()

	deliver := &msgs.DeliverMessage{
		Seq:     seq,
		Context: origin.context,
		Label:   origin.label,
		Payload: m.Payload,
	}
	if err := target.WriteMessage(deliver); err != nil {
		s.mu.Lock()
		delete(s.pending, seq)
		s.mu.Unlock()

		s.answer(origin, &msgs.ReplyMessage{Seq: m.Seq, Status: msgs.StatusUnrouted})
	}
}

func (s *Server) relayReply(from *client, m *msgs.ReplyMessage) {
	s.mu.Lock()
	p, ok := s.pending[m.Seq]
	if ok {
		delete(s.pending, m.Seq)
	}
	s.mu.Unlock()

	if !ok || p.target != from {
		log.WithFields(log.Fields{
			"context": from.context,
			"message": m,
		}).Debug("Discarding a stray reply")
		return
	}

	forward := *m
	forward.Seq = p.originSeq
	s.answer(p.origin, &forward)
}

func (s *Server) openRelay(origin *client, m *msgs.PortOpenMessage) {
	target := s.routeClient(m.Broadcast, m.Context)
	if target == nil {
		s.answer(origin, &msgs.ReplyMessage{Seq: m.Seq, Status: msgs.StatusUnrouted})
		return
	}

	s.mu.Lock()
	s.nextPort++
	id := s.nextPort
	s.relays[id] = &portRelay{name: m.Name, a: origin, b: target}
	s.mu.Unlock()

	// The opened answer must hit the origin's link before the target can
	// relay any unit back, so the origin's facade exists when data arrives.
	s.answer(origin, &msgs.PortOpenedMessage{Seq: m.Seq, Port: id})

	accept := &msgs.PortAcceptMessage{
		Port:    id,
		Name:    m.Name,
		Context: origin.context,
		Label:   origin.label,
	}
	if err := target.WriteMessage(accept); err != nil {
		s.mu.Lock()
		delete(s.relays, id)
		s.mu.Unlock()

		s.answer(origin, &msgs.PortCloseMessage{Port: id})
	}
}

func (s *Server) relayData(from *client, m *msgs.PortDataMessage) {
	s.mu.Lock()
	relay := s.relays[m.Port]
	s.mu.Unlock()

	if relay == nil {
		log.WithFields(log.Fields{
			"context": from.context,
			"port":    m.Port,
		}).Debug("Discarding data for an unknown connection")
		return
	}

	if peer := relay.other(from); peer != nil {
		s.answer(peer, m)
	}
}

func (s *Server) closeRelay(from *client, m *msgs.PortCloseMessage) {
	s.mu.Lock()
	relay := s.relays[m.Port]
	delete(s.relays, m.Port)
	s.mu.Unlock()

	if relay == nil {
		return
	}

	if peer := relay.other(from); peer != nil {
		s.answer(peer, m)
	}
}

// dropClient removes a dead connector: pending deliveries targeting it are
// rejected toward their origins and its streaming connections are closed on
// the surviving ends.
func (s *Server) dropClient(c *client) {
	_ = c.Close()

	s.mu.Lock()
	if s.clients[c.context] == c {
		delete(s.clients, c.context)
	}
	if s.anchor == c {
		s.anchor = nil
	}

	var rejected []pendingReply
	for seq, p := range s.pending {
		if p.origin == c || p.target == c {
			delete(s.pending, seq)
			if p.target == c && p.origin != c {
				rejected = append(rejected, p)
			}
		}
	}

	type closing struct {
		peer *client
		id   uint64
	}
	var closed []closing
	for id, relay := range s.relays {
		if relay.a == c || relay.b == c {
			delete(s.relays, id)
			if peer := relay.other(c); peer != nil {
				closed = append(closed, closing{peer: peer, id: id})
			}
		}
	}
	s.mu.Unlock()

	for _, p := range rejected {
		s.answer(p.origin, &msgs.ReplyMessage{
			Seq:    p.originSeq,
			Status: msgs.StatusRejected,
			Reason: "context disconnected",
		})
	}
	for _, x := range closed {
		s.answer(x.peer, &msgs.PortCloseMessage{Port: x.id})
	}

	log.WithFields(log.Fields{
		"context": c.context,
		"label":   c.label,
	}).Info("Connector left")
}

type statusConnector struct {
	Context uint64 `json:"contextId"`
	Label   string `json:"label"`
	Anchor  bool   `json:"anchor"`
	Remote  string `json:"remoteAddr"`
}

type statusReport struct {
	Profile    string            `json:"profile"`
	Connectors []statusConnector `json:"connectors"`
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	report := statusReport{Profile: s.profile.String()}

	s.mu.Lock()
	for _, c := range s.clients {
		report.Connectors = append(report.Connectors, statusConnector{
			Context: c.context,
			Label:   c.label,
			Anchor:  c == s.anchor,
			Remote:  c.RemoteAddr(),
		})
	}
	s.mu.Unlock()

	sort.Slice(report.Connectors, func(i, j int) bool {
		return report.Connectors[i].Context < report.Connectors[j].Context
	})

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(report); err != nil {
		log.WithError(err).Warn("Writing the status report errored")
	}
}

// Close shuts the listeners down and drops every connector.
func (s *Server) Close() error {
	var result *multierror.Error

	if s.httpServer != nil {
		result = multierror.Append(result, s.httpServer.Close())
	}
	if s.quicListener != nil {
		result = multierror.Append(result, s.quicListener.Close())
	}

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.link.Close()
	}

	return result.ErrorOrNil()
}
