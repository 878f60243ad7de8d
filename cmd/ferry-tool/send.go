// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ferrymsg/ferry-go/hub"
	"github.com/ferrymsg/ferry-go/transfer"
)

// sendFile for the "send" CLI option.
func sendFile(args []string) {
	if len(args) < 2 || len(args) > 3 {
		printUsage()
	}

	var (
		dataInput = args[1]

		err  error
		data []byte
		name string
	)

	if dataInput == "-" {
		data, err = io.ReadAll(os.Stdin)
		name = "stdin"
	} else {
		data, err = os.ReadFile(dataInput)
		name = filepath.Base(dataInput)
	}
	if err != nil {
		printFatal(err, "Reading input errored")
	}

	conn, err := hub.Dial(resolveHub(args[0]), hub.Options{Label: "send"})
	if err != nil {
		printFatal(err, "Joining the hub errored")
	}
	defer conn.Close()

	reply, err := transfer.Send(conn, transfer.Options{
		Target: parseTarget(args[2:]),
		Message: toolMessage{
			Type: "file",
			Name: name,
			Data: data,
			Sent: time.Now().UnixMilli(),
		},
		WantResponse: true,
	})
	if err != nil {
		printFatal(err, "Sending the file errored")
	}

	fmt.Println(string(reply))
}
