// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cosimlabs/cosim/pkg/substrate"
)

func runForceExpireLease(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	sub, err := substrate.NewRedis(ctx, redisURL)
	if err != nil {
		fail("connect to substrate: %v", err)
	}
	defer sub.Close()

	sessionID := args[0]
	if err := sub.Del(ctx, substrate.SimLeaseKey(sessionID)); err != nil {
		fail("force-expire lease for %s: %v", sessionID, err)
	}
	cmd.Printf("lease for session %s expired\n", sessionID)
}
