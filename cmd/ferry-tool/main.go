// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// ferry-tool pokes at a hub from the command line: it pings contexts, sends
// single payloads through the transfer protocol and exchanges files between a
// directory and the hub.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/discovery"
)

// toolMessage is the JSON payload ferry-tool exchanges over the transfer
// protocol.
type toolMessage struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Data []byte `json:"data,omitempty"`
	Sent int64  `json:"sent,omitempty"`
}

// printUsage of ferry-tool and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s ping|send|exchange:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s ping hub-url|discover [context]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Sends a probe every second to the hub's anchor, or to the given context\n")
	_, _ = fmt.Fprintf(os.Stderr, "  id, and reports the round trip time.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s send hub-url|discover -|filename [context]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Delivers the stdin (-) or the given file, falling back to the chunked\n")
	_, _ = fmt.Fprintf(os.Stderr, "  exchange when the payload outgrows the hub's limits, and prints the\n")
	_, _ = fmt.Fprintf(os.Stderr, "  receiver's answer.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s exchange hub-url|discover directory [context]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Attaches to the hub and writes every received file into the directory.\n")
	_, _ = fmt.Fprintf(os.Stderr, "  A file dropped into the directory is sent to the given context id or,\n")
	_, _ = fmt.Fprintf(os.Stderr, "  without one, broadcast. Without a context id this tool joins as the\n")
	_, _ = fmt.Fprintf(os.Stderr, "  hub's anchor.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "The hub-url is a WebSocket URL like ws://localhost:8080/ws; the literal\n")
	_, _ = fmt.Fprintf(os.Stderr, "word discover picks a hub announced on the local network instead.\n")

	os.Exit(1)
}

// printFatal prints the error with a description and exits afterwards.
func printFatal(err error, description string) {
	_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", description, err)
	os.Exit(1)
}

// resolveHub turns the tool's hub argument into a dialable WebSocket URL,
// taking it verbatim or discovering an announced hub.
func resolveHub(arg string) string {
	if arg != "discover" {
		return arg
	}

	hubs, err := discovery.Find(0)
	if err != nil {
		printFatal(err, "Discovering a hub errored")
	}

	for _, h := range hubs {
		if url := h.WebSocketURL(); url != "" {
			log.WithField("hub", h).Info("Discovered a hub")
			return url
		}
	}

	printFatal(fmt.Errorf("no hub announced itself"), "Discovering a hub errored")
	return ""
}

// parseTarget interprets an optional trailing context id argument, falling
// back to a broadcast toward the hub's anchor.
func parseTarget(args []string) channel.Target {
	if len(args) == 0 {
		return channel.Broadcast{}
	}

	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		printFatal(err, "Parsing the context id errored")
	}
	return channel.Unicast{Context: channel.ContextID(id)}
}

// answerPing returns a pong for a ping and stays silent on everything else.
func answerPing(req json.RawMessage, from channel.Sender) (json.RawMessage, error) {
	var msg toolMessage
	if err := json.Unmarshal(req, &msg); err != nil || msg.Type != "ping" {
		return nil, nil
	}
	return json.Marshal(toolMessage{Type: "pong", Sent: msg.Sent})
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "ping":
		ping(os.Args[2:])

	case "send":
		sendFile(os.Args[2:])

	case "exchange":
		startExchange(os.Args[2:])

	default:
		printUsage()
	}
}
