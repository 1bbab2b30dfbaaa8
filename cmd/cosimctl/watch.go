// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cosimlabs/cosim/pkg/substrate"
)

func runWatch(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sub, err := substrate.NewRedis(ctx, redisURL)
	if err != nil {
		fail("connect to substrate: %v", err)
	}
	defer sub.Close()

	subscription, err := sub.Subscribe(ctx, substrate.SessionEventsChannel)
	if err != nil {
		fail("subscribe to session events: %v", err)
	}
	defer subscription.Close()

	cmd.Println("watching session events, press ctrl-c to stop")
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-subscription.Messages():
			if !ok {
				return
			}
			var evt substrate.SessionEvent
			if err := json.Unmarshal([]byte(raw), &evt); err != nil {
				cmd.PrintErrf("malformed session event: %v\n", err)
				continue
			}
			cmd.Printf("[%s] %s %s id=%s node=%s\n",
				evt.At.Format("15:04:05"), evt.Component, evt.Kind, evt.ID, evt.NodeID)
		}
	}
}
