// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/hub"
	"github.com/ferrymsg/ferry-go/transfer"
)

// exchange files between a directory and the hub.
type exchange struct {
	directory  string
	target     channel.Target
	knownFiles sync.Map
	conn       *hub.Connector
	watcher    *fsnotify.Watcher

	closeChan chan os.Signal
}

// startExchange for the "exchange" CLI option.
func startExchange(args []string) {
	if len(args) < 2 || len(args) > 3 {
		printUsage()
	}

	ex := &exchange{
		directory: args[1],
		target:    parseTarget(args[2:]),
		closeChan: make(chan os.Signal),
	}

	signal.Notify(ex.closeChan, os.Interrupt)

	// Without an explicit peer this tool acts as the hub's anchor.
	var err error
	if ex.conn, err = hub.Dial(resolveHub(args[0]), hub.Options{
		Label:   "exchange",
		Anchor:  len(args) == 2,
		Handler: ex.handleMessage,
	}); err != nil {
		printFatal(err, "Joining the hub errored")
	}

	if ex.watcher, err = fsnotify.NewWatcher(); err != nil {
		printFatal(err, "Starting file watcher errored")
	}
	if err = ex.watcher.Add(ex.directory); err != nil {
		printFatal(err, "Adding directory to file watcher errored")
	}

	ex.handler()
}

// cleanFilepath creates a relative path from the directory to a file's path.
func (ex *exchange) cleanFilepath(f string) string {
	if rel, err := filepath.Rel(ex.directory, f); err != nil {
		log.WithField("path", f).WithError(err).Fatal("Failed to clean file path")
		return ""
	} else {
		return rel
	}
}

// handleMessage consumes inbound tool messages: pings are answered, files are
// written into the directory.
func (ex *exchange) handleMessage(req json.RawMessage, from channel.Sender) (json.RawMessage, error) {
	var msg toolMessage
	if err := json.Unmarshal(req, &msg); err != nil {
		return nil, fmt.Errorf("parsing the message failed: %v", err)
	}

	switch msg.Type {
	case "ping":
		return json.Marshal(toolMessage{Type: "pong", Sent: msg.Sent})

	case "file":
		name := filepath.Base(msg.Name)
		if name == "." || name == string(filepath.Separator) {
			name = fmt.Sprintf("received-%d", time.Now().UnixMilli())
		}
		filePath := filepath.Join(ex.directory, name)

		logger := log.WithFields(log.Fields{
			"sender": from.String(),
			"file":   filePath,
		})

		// Registering first keeps the watcher from bouncing the file back.
		ex.knownFiles.Store(ex.cleanFilepath(filePath), struct{}{})

		if err := os.WriteFile(filePath, msg.Data, 0644); err != nil {
			logger.WithError(err).Error("Writing the file errored")
			return nil, err
		}

		logger.WithField("size", len(msg.Data)).Info("Saved received file")
		return json.Marshal(toolMessage{Type: "saved", Name: name})

	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (ex *exchange) handler() {
	defer func() {
		_ = ex.watcher.Close()
		_ = ex.conn.Close()
	}()

	for {
		select {
		case <-ex.closeChan:
			log.Info("Received interrupt signal")
			return

		case <-ex.conn.Disconnected():
			log.Error("The hub link was closed")
			return

		case e, ok := <-ex.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if _, ok := ex.knownFiles.Load(ex.cleanFilepath(e.Name)); ok {
				log.WithField("file", e.Name).Debug("Skipping file; already known")
				continue
			}

			if e.Op&fsnotify.Create == 0 {
				log.WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			ex.sendNewFile(e)

		case err, ok := <-ex.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}

			log.WithError(err).Error("fsnotify errored")
			return
		}
	}
}

// sendNewFile delivers a file dropped into the directory, retrying reads
// while the writing side may still be busy.
func (ex *exchange) sendNewFile(e fsnotify.Event) {
	for i := 0; i < 5; i++ {
		if data, err := os.ReadFile(e.Name); err != nil {
			log.WithError(err).WithField("file", e.Name).Warn("Reading file errored, retrying..")
		} else {
			msg := toolMessage{
				Type: "file",
				Name: filepath.Base(e.Name),
				Data: data,
				Sent: time.Now().UnixMilli(),
			}

			if reply, err := transfer.Send(ex.conn, transfer.Options{
				Target:       ex.target,
				Message:      msg,
				WantResponse: true,
			}); err != nil {
				log.WithError(err).WithField("file", e.Name).Error("Sending file errored")
			} else {
				log.WithFields(log.Fields{
					"file":  e.Name,
					"reply": string(reply),
				}).Info("Sent file")
			}
			return
		}

		time.Sleep(time.Duration(math.Pow(2, float64(i))) * 100 * time.Millisecond)
	}

	log.WithField("file", e.Name).Error("Failed to process file, giving up.")
}
