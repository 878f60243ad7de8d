// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/hub"
	"github.com/ferrymsg/ferry-go/transfer"
)

// pinger probes a context through the hub and reports round trip times.
type pinger struct {
	conn   *hub.Connector
	target channel.Target

	closeChan chan os.Signal
}

// handle a pinger's task.
func (p *pinger) handle() {
	ticker := time.NewTicker(time.Second)

	defer p.conn.Close()
	defer ticker.Stop()

	for {
		select {
		case <-p.closeChan:
			return

		case <-p.conn.Disconnected():
			log.Error("The hub link was closed")
			return

		case <-ticker.C:
			start := time.Now()

			reply, err := transfer.Send(p.conn, transfer.Options{
				Target:       p.target,
				Message:      toolMessage{Type: "ping", Sent: start.UnixMilli()},
				WantResponse: true,
			})
			if err != nil {
				log.WithError(err).Error("Ping errored")
				continue
			}

			var pong toolMessage
			if err := json.Unmarshal(reply, &pong); err != nil || pong.Type != "pong" {
				log.WithField("reply", string(reply)).Warn("Unexpected ping reply")
			} else {
				log.WithField("rtt", time.Since(start)).Info("Pong")
			}
		}
	}
}

// ping a context through the hub for the "ping" CLI option.
func ping(args []string) {
	if len(args) < 1 || len(args) > 2 {
		printUsage()
	}

	p := &pinger{
		target:    parseTarget(args[1:]),
		closeChan: make(chan os.Signal),
	}

	var err error
	if p.conn, err = hub.Dial(resolveHub(args[0]), hub.Options{Label: "ping", Handler: answerPing}); err != nil {
		printFatal(err, "Joining the hub errored")
	}

	signal.Notify(p.closeChan, os.Interrupt)

	p.handle()
}
