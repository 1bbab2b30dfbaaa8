// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import "github.com/spf13/cobra"

// --- Global flags ---
var (
	gatewayURL string
	redisURL   string

	rootCmd = &cobra.Command{
		Use:   "cosimctl",
		Short: "Operate a CoSim coordination plane deployment",
		Long: `cosimctl is the operator CLI for the CoSim coordination plane: it
creates and inspects simulation sessions through the Edge Gateway, and
reaches directly into the state substrate for operations with no HTTP
surface, such as force-expiring a stuck lease or tailing the session
event stream.`,
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage simulation sessions",
	}
	createSessionCmd = &cobra.Command{
		Use:   "create [session_id]",
		Short: "Create a new simulation session",
		Args:  cobra.ExactArgs(1),
		Run:   runCreateSession,
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a simulation session",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession,
	}
	inspectSessionCmd = &cobra.Command{
		Use:   "inspect [session_id]",
		Short: "Print a simulation session's current state",
		Args:  cobra.ExactArgs(1),
		Run:   runInspectSession,
	}

	// --- Lease ---
	leaseCmd = &cobra.Command{
		Use:   "lease",
		Short: "Manage ownership leases",
	}
	forceExpireLeaseCmd = &cobra.Command{
		Use:   "force-expire [session_id]",
		Short: "Force-expire a simulation session's ownership lease",
		Long: `Deletes the lease key directly in the state substrate, bypassing the
owning node's renewal. Use this to recover a session whose owning node
crashed without releasing its lease; a healthy node will otherwise keep
renewing every few seconds and this has no effect.`,
		Args: cobra.ExactArgs(1),
		Run:  runForceExpireLease,
	}

	// --- Watch ---
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Tail the session event stream",
		Long:  `Subscribes to the substrate's session event channel and prints each simulation, signaling, and document session lifecycle event as it happens.`,
		Run:   runWatch,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway-url", "http://localhost:12200", "Edge Gateway base URL")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "redis://localhost:6379/0", "state substrate connection string")

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(createSessionCmd)
	createSessionCmd.Flags().String("engine", "mujoco", "physics engine (mujoco, pybullet)")
	createSessionCmd.Flags().String("model-ref", "", "engine-specific model reference")
	createSessionCmd.Flags().Int("width", 640, "frame width in pixels")
	createSessionCmd.Flags().Int("height", 480, "frame height in pixels")
	createSessionCmd.Flags().Int("fps", 30, "control loop frame rate")
	createSessionCmd.Flags().Bool("headless", true, "run without a local renderer window")
	sessionCmd.AddCommand(deleteSessionCmd)
	sessionCmd.AddCommand(inspectSessionCmd)

	rootCmd.AddCommand(leaseCmd)
	leaseCmd.AddCommand(forceExpireLeaseCmd)

	rootCmd.AddCommand(watchCmd)
}
