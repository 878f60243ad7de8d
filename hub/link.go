// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package hub

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/quic-go/quic-go"

	"github.com/ferrymsg/ferry-go/hub/internal/msgs"
)

// link carries hub messages over some transport. Writing is safe for
// concurrent use, reading belongs to a single loop.
type link interface {
	ReadMessage() (msgs.Message, error)
	WriteMessage(m msgs.Message) error
	Close() error
	RemoteAddr() string
}

// wsLink is a link over a WebSocket, every message travelling in its own
// binary WebSocket message.
type wsLink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWsLink(conn *websocket.Conn) *wsLink {
	return &wsLink{conn: conn}
}

func (l *wsLink) ReadMessage() (msgs.Message, error) {
	messageType, reader, err := l.conn.NextReader()
	if err != nil {
		return nil, err
	}
	if messageType != websocket.BinaryMessage {
		return nil, fmt.Errorf("expected a binary message, got type %d", messageType)
	}

	return msgs.ReadMessage(reader)
}

func (l *wsLink) WriteMessage(m msgs.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	wc, err := l.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return err
	}

	if err := msgs.WriteMessage(m, wc); err != nil {
		return err
	}

	return wc.Close()
}

func (l *wsLink) Close() error {
	return l.conn.Close()
}

func (l *wsLink) RemoteAddr() string {
	return l.conn.RemoteAddr().String()
}

// streamLink is a link over any byte stream, the CBOR encoding keeping the
// messages apart. It backs both QUIC streams and the in-memory pipes of the
// test suite.
type streamLink struct {
	mu     sync.Mutex
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	remote string
}

func newStreamLink(rwc io.ReadWriteCloser, remote string) *streamLink {
	return &streamLink{
		rwc:    rwc,
		reader: bufio.NewReader(rwc),
		writer: bufio.NewWriter(rwc),
		remote: remote,
	}
}

func (l *streamLink) ReadMessage() (msgs.Message, error) {
	return msgs.ReadMessage(l.reader)
}

func (l *streamLink) WriteMessage(m msgs.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := msgs.WriteMessage(m, l.writer); err != nil {
		return err
	}
	return l.writer.Flush()
}

func (l *streamLink) Close() error {
	return l.rwc.Close()
}

func (l *streamLink) RemoteAddr() string {
	return l.remote
}

// quicLink is a streamLink over the single bidirectional stream of a QUIC
// connection. Closing it tears the whole connection down.
type quicLink struct {
	streamLink
	conn *quic.Conn
}

func newQuicLink(conn *quic.Conn, stream *quic.Stream) *quicLink {
	return &quicLink{
		streamLink: *newStreamLink(stream, conn.RemoteAddr().String()),
		conn:       conn,
	}
}

func (l *quicLink) Close() error {
	_ = l.streamLink.Close()
	return l.conn.CloseWithError(0, "link closed")
}
