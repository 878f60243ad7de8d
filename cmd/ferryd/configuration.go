// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/ferrymsg/ferry-go/channel"
	"github.com/ferrymsg/ferry-go/discovery"
	"github.com/ferrymsg/ferry-go/hub"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Hub       hubConf
	Logging   logConf
	Listen    listenConf
	Discovery discoveryConf
	Profiling profilingConf
}

// hubConf describes the Hub-configuration block.
type hubConf struct {
	Label   string
	Profile string
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// listenConf describes the Listen-configuration block.
type listenConf struct {
	WebSocket string `toml:"websocket"`
	QUIC      string `toml:"quic"`
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	IPv4     bool
	IPv6     bool
	Interval uint
}

// profilingConf describes the Profiling-configuration block.
type profilingConf struct {
	Enabled bool
}

// parseHub starts the hub based on the given TOML configuration.
func parseHub(filename string) (server *hub.Server, announcer *discovery.Announcer, profiling bool, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	// Logging
	if conf.Logging.Level != "" {
		if lvl, lvlErr := log.ParseLevel(conf.Logging.Level); lvlErr != nil {
			log.WithFields(log.Fields{
				"level":    conf.Logging.Level,
				"error":    lvlErr,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.Logging.ReportCaller)

	switch conf.Logging.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}

	profiling = conf.Profiling.Enabled

	// Hub
	hubProfile := channel.ProfileCompact
	if conf.Hub.Profile != "" {
		if hubProfile, err = channel.ParseProfile(conf.Hub.Profile); err != nil {
			return
		}
	}

	if conf.Listen.WebSocket == "" && conf.Listen.QUIC == "" {
		err = fmt.Errorf("neither listen.websocket nor listen.quic is set")
		return
	}

	server = hub.NewServer(hubProfile)

	if conf.Listen.WebSocket != "" {
		websocketAddr := conf.Listen.WebSocket
		go func() {
			if srvErr := server.ListenAndServe(websocketAddr); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
				log.WithError(srvErr).Fatal("WebSocket listener failed")
			}
		}()
	}

	if conf.Listen.QUIC != "" {
		if err = server.ListenQUIC(conf.Listen.QUIC); err != nil {
			return
		}
	}

	// Discovery
	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		if conf.Discovery.Interval == 0 {
			conf.Discovery.Interval = 2
		}

		beacon := discovery.Beacon{
			Label:     conf.Hub.Label,
			WebSocket: conf.Listen.WebSocket,
			QUIC:      conf.Listen.QUIC,
			Profile:   hubProfile.String(),
		}

		announcer, err = discovery.Announce(beacon,
			time.Duration(conf.Discovery.Interval)*time.Second,
			conf.Discovery.IPv4, conf.Discovery.IPv6)
		if err != nil {
			return
		}
	}

	return
}
