// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package hub

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/port"
	"github.com/ferrymsg/ferry-go/transfer"
	"github.com/ferrymsg/ferry-go/wire"
)

// pipeClient attaches a fresh Connector to s over an in-memory pipe.
func pipeClient(t *testing.T, s *Server, o Options) *Connector {
	t.Helper()

	near, far := net.Pipe()
	go s.handleLink(newStreamLink(far, "pipe"))

	c, err := newConnector(newStreamLink(near, "pipe"), o)
	if err != nil {
		t.Fatalf("joining the hub failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return c
}

type capture struct {
	mu      sync.Mutex
	calls   int
	last    json.RawMessage
	from    channel.Sender
	entered chan struct{}
}

func newCapture() *capture {
	return &capture{entered: make(chan struct{}, 16)}
}

func (c *capture) echo(req json.RawMessage, from channel.Sender) (json.RawMessage, error) {
	c.mu.Lock()
	c.calls++
	c.last = append(json.RawMessage(nil), req...)
	c.from = from
	c.mu.Unlock()

	c.entered <- struct{}{}
	return req, nil
}

func (c *capture) snapshot() (int, json.RawMessage, channel.Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls, c.last, c.from
}

func waitEmptyRegistry(t *testing.T, r *port.Registry) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(r.All()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connections are still registered: %v", r.All())
}

func TestHubHandshake(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	defer s.Close()

	anchor := pipeClient(t, s, Options{Label: "background", Anchor: true})
	peer := pipeClient(t, s, Options{Label: "content"})

	if anchor.Context() == peer.Context() {
		t.Fatal("connectors share a context id")
	}
	if anchor.Context() == 0 || peer.Context() == 0 {
		t.Fatal("a connector joined without a context id")
	}

	want := channel.ProfileCompact.Limits()
	if got := peer.Limits(); got != want {
		t.Fatalf("expected the hub's limits %v, got %v", want, got)
	}
}

func TestHubDirectDelivery(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	defer s.Close()

	rec := newCapture()
	anchor := pipeClient(t, s, Options{Label: "background", Anchor: true, Handler: rec.echo})
	peer := pipeClient(t, s, Options{Label: "content"})

	payload := json.RawMessage(`{"kind":"probe"}`)
	reply, err := transfer.Send(peer, transfer.Options{
		Target:       channel.Broadcast{},
		Message:      payload,
		WantResponse: true,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(reply) != string(payload) {
		t.Fatalf("expected %s, got %s", payload, reply)
	}

	calls, _, from := rec.snapshot()
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
	if from.Label != "content" || from.Context != peer.Context() {
		t.Fatalf("handler saw the wrong sender: %v", from)
	}
	if from.Port != nil {
		t.Fatal("a small message should not touch a connection")
	}
	if len(anchor.Ports().All())+len(peer.Ports().All()) != 0 {
		t.Fatal("a direct delivery left connections behind")
	}
}

func TestHubUnrouted(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	defer s.Close()

	peer := pipeClient(t, s, Options{Label: "content"})
	mute := pipeClient(t, s, Options{Label: "mute"})

	// No anchor joined, broadcasts have nowhere to go.
	if _, err := peer.SendDirect(channel.Broadcast{}, []byte(`1`)); !errors.Is(err, channel.ErrUnrouted) {
		t.Fatalf("expected ErrUnrouted for a broadcast, got %v", err)
	}

	if _, err := peer.SendDirect(channel.Unicast{Context: 4711}, []byte(`1`)); !errors.Is(err, channel.ErrUnrouted) {
		t.Fatalf("expected ErrUnrouted for an unknown context, got %v", err)
	}

	// A handlerless connector cannot consume deliveries.
	if _, err := peer.SendDirect(channel.Unicast{Context: mute.Context()}, []byte(`1`)); !errors.Is(err, channel.ErrUnrouted) {
		t.Fatalf("expected ErrUnrouted for a handlerless context, got %v", err)
	}
}

func TestHubRemoteError(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	defer s.Close()

	calls := 0
	pipeClient(t, s, Options{Label: "background", Anchor: true, Handler: func(req json.RawMessage, from channel.Sender) (json.RawMessage, error) {
		calls++
		return nil, errors.New("broken pipeline")
	}})
	peer := pipeClient(t, s, Options{Label: "content"})

	_, err := transfer.Send(peer, transfer.Options{
		Target:  channel.Broadcast{},
		Message: json.RawMessage(`{"kind":"probe"}`),
	})

	var remote *channel.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected a RemoteError, got %v", err)
	}
	if remote.Msg != "broken pipeline" {
		t.Fatalf("expected the handler's reason, got %q", remote.Msg)
	}
	if calls != 1 {
		t.Fatalf("a rejected send must not fall back, handler ran %d times", calls)
	}
}

func TestHubTransferObject(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	defer s.Close()

	rec := newCapture()
	pipeClient(t, s, Options{Label: "background", Anchor: true, Handler: rec.echo})
	peer := pipeClient(t, s, Options{Label: "content"})

	// OpenPort lets the receiver open the connection back through the hub's
	// port relay while the payload itself still travels inline.
	payload := json.RawMessage(`{"kind":"report","pad":"` + strings.Repeat("x", 64) + `"}`)
	reply, err := transfer.Send(peer, transfer.Options{
		Target:       channel.Broadcast{},
		Message:      payload,
		WantResponse: true,
		OpenPort:     true,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(reply) != string(payload) {
		t.Fatalf("expected %s, got %s", payload, reply)
	}

	if calls, last, _ := rec.snapshot(); calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	} else if string(last) != string(payload) {
		t.Fatalf("handler saw %s", last)
	}

	waitEmptyRegistry(t, peer.Ports())
}

func TestHubTransferBareString(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	defer s.Close()

	rec := newCapture()
	receiver := pipeClient(t, s, Options{Label: "devtools", Handler: rec.echo})
	peer := pipeClient(t, s, Options{Label: "content"})

	// A non-object payload cannot carry transfer metadata inline, so it runs
	// the full pull and push exchange over the relayed connection.
	reply, err := transfer.Send(peer, transfer.Options{
		Target:       channel.Unicast{Context: receiver.Context()},
		Message:      json.RawMessage(`"ferry"`),
		WantResponse: true,
		OpenPort:     true,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(reply) != `"ferry"` {
		t.Fatalf(`expected "ferry", got %s`, reply)
	}

	if calls, last, _ := rec.snapshot(); calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	} else if string(last) != `"ferry"` {
		t.Fatalf("handler saw %s", last)
	}

	waitEmptyRegistry(t, peer.Ports())
}

func TestHubPortRelay(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	defer s.Close()

	rec := newCapture()
	receiver := pipeClient(t, s, Options{Label: "devtools", Handler: rec.echo})
	peer := pipeClient(t, s, Options{Label: "content"})

	conn, err := peer.OpenPort(channel.Unicast{Context: receiver.Context()}, "probe")
	if err != nil {
		t.Fatalf("OpenPort failed: %v", err)
	}

	sub := conn.Subscribe()
	defer sub.Cancel()

	select {
	case u := <-sub.C:
		if f, ok := u.(*wire.ConnectionFrame); !ok || !f.Complete {
			t.Fatalf("expected the readiness signal, got %v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no readiness signal arrived")
	}

	if err := conn.Send(&wire.PlainMessage{Data: `{"kind":"note"}`}); err != nil {
		t.Fatalf("sending over the connection failed: %v", err)
	}

	select {
	case <-rec.entered:
	case <-time.After(time.Second):
		t.Fatal("the connection message never reached the handler")
	}

	if _, last, from := rec.snapshot(); string(last) != `{"kind":"note"}` {
		t.Fatalf("handler saw %s", last)
	} else if from.Port == nil {
		t.Fatal("handler did not see the connection")
	} else if from.Label != "content" {
		t.Fatalf("handler saw the wrong sender: %v", from)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("closing the connection failed: %v", err)
	}

	waitEmptyRegistry(t, receiver.Ports())
}

func TestHubConnectorDrop(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	defer s.Close()

	block := make(chan struct{})
	defer close(block)

	entered := make(chan struct{})
	anchor := pipeClient(t, s, Options{Label: "background", Anchor: true, Handler: func(req json.RawMessage, from channel.Sender) (json.RawMessage, error) {
		close(entered)
		<-block
		return nil, nil
	}})
	peer := pipeClient(t, s, Options{Label: "content"})

	conn, err := peer.OpenPort(channel.Broadcast{}, "doomed")
	if err != nil {
		t.Fatalf("OpenPort failed: %v", err)
	}
	defer conn.Close()

	sendErr := make(chan error, 1)
	go func() {
		_, err := peer.SendDirect(channel.Broadcast{}, []byte(`1`))
		sendErr <- err
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("the delivery never reached the handler")
	}

	if err := anchor.Close(); err != nil {
		t.Fatalf("closing the anchor failed: %v", err)
	}

	select {
	case err := <-sendErr:
		var remote *channel.RemoteError
		if !errors.As(err, &remote) || remote.Msg != "context disconnected" {
			t.Fatalf("expected the drop rejection, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("the pending send was never rejected")
	}

	select {
	case <-conn.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("the anchor's drop left the connection open")
	}

	if _, err := peer.SendDirect(channel.Broadcast{}, []byte(`1`)); !errors.Is(err, channel.ErrUnrouted) {
		t.Fatalf("expected ErrUnrouted after the drop, got %v", err)
	}
}

func TestHubServerClose(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	peer := pipeClient(t, s, Options{Label: "content"})

	if err := s.Close(); err != nil {
		t.Fatalf("closing the hub failed: %v", err)
	}

	select {
	case <-peer.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("closing the hub left the connector attached")
	}

	if _, err := peer.SendDirect(channel.Broadcast{}, []byte(`1`)); !errors.Is(err, ErrLinkClosed) {
		t.Fatalf("expected ErrLinkClosed, got %v", err)
	}
}

func TestHubWebSocket(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	defer s.Close()

	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	rec := newCapture()
	anchor, err := Dial(url, Options{Label: "background", Anchor: true, Handler: rec.echo})
	if err != nil {
		t.Fatalf("dialing the hub failed: %v", err)
	}
	defer anchor.Close()

	peer, err := Dial(url, Options{Label: "content"})
	if err != nil {
		t.Fatalf("dialing the hub failed: %v", err)
	}
	defer peer.Close()

	payload := json.RawMessage(`{"kind":"probe"}`)
	if reply, err := transfer.Send(peer, transfer.Options{
		Target:       channel.Broadcast{},
		Message:      payload,
		WantResponse: true,
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	} else if string(reply) != string(payload) {
		t.Fatalf("expected %s, got %s", payload, reply)
	}

	if reply, err := transfer.Send(peer, transfer.Options{
		Target:       channel.Broadcast{},
		Message:      json.RawMessage(`"over the relay"`),
		WantResponse: true,
		OpenPort:     true,
	}); err != nil {
		t.Fatalf("Send over the relay failed: %v", err)
	} else if string(reply) != `"over the relay"` {
		t.Fatalf("expected the echoed string, got %s", reply)
	}

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("fetching the status failed: %v", err)
	}
	defer resp.Body.Close()

	var report statusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decoding the status failed: %v", err)
	}
	if report.Profile != channel.ProfileCompact.String() {
		t.Fatalf("expected the hub's profile, got %q", report.Profile)
	}
	if len(report.Connectors) != 2 {
		t.Fatalf("expected two connectors, got %v", report.Connectors)
	}
	if !report.Connectors[0].Anchor || report.Connectors[0].Label != "background" {
		t.Fatalf("expected the anchor first, got %v", report.Connectors)
	}
}

func TestHubQUIC(t *testing.T) {
	s := NewServer(channel.ProfileCompact)
	defer s.Close()

	if err := s.ListenQUIC("127.0.0.1:0"); err != nil {
		t.Fatalf("starting the QUIC listener failed: %v", err)
	}
	addr := s.QUICAddr().String()

	rec := newCapture()
	anchor, err := DialQUIC(addr, Options{Label: "background", Anchor: true, Handler: rec.echo})
	if err != nil {
		t.Fatalf("dialing the hub failed: %v", err)
	}
	defer anchor.Close()

	peer, err := DialQUIC(addr, Options{Label: "content"})
	if err != nil {
		t.Fatalf("dialing the hub failed: %v", err)
	}
	defer peer.Close()

	payload := json.RawMessage(`{"kind":"probe"}`)
	if reply, err := transfer.Send(peer, transfer.Options{
		Target:       channel.Broadcast{},
		Message:      payload,
		WantResponse: true,
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	} else if string(reply) != string(payload) {
		t.Fatalf("expected %s, got %s", payload, reply)
	}
}
