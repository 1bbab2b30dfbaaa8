// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cosimlabs/cosim/pkg/substrate"
)

func newTestInstance(t *testing.T) (*Instance, substrate.Substrate) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sub := substrate.NewRedisFromClient(client)

	driver, err := NewDriver("mujoco")
	require.NoError(t, err)

	lease, err := substrate.AcquireLease(context.Background(), sub, substrate.SimLeaseKey("test-session"), substrate.DefaultLeaseTTL)
	require.NoError(t, err)

	cfg := Config{SessionID: "test-session", Engine: "mujoco", Width: 64, Height: 64, FPS: 30}
	inst, err := NewInstance(cfg, driver, sub, nil, lease, slog.Default(), NewMetrics())
	require.NoError(t, err)
	return inst, sub
}

func TestInstance_RunAndStep(t *testing.T) {
	inst, _ := newTestInstance(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go inst.Run(ctx)

	reply := make(chan State, 1)
	inst.Enqueue(Control{Kind: ControlPlay, Reply: reply})
	<-reply
	require.Equal(t, StatusRunning, inst.currentStatus())

	time.Sleep(50 * time.Millisecond)
	snap := inst.Snapshot()
	require.Greater(t, snap.FrameIndex, uint64(0))
}

func TestInstance_PauseStopsStepping(t *testing.T) {
	inst, _ := newTestInstance(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go inst.Run(ctx)

	reply := make(chan State, 1)
	inst.Enqueue(Control{Kind: ControlPause, Reply: reply})
	<-reply

	before := inst.Snapshot().FrameIndex
	time.Sleep(30 * time.Millisecond)
	after := inst.Snapshot().FrameIndex
	require.Equal(t, before, after)
}

func TestInstance_ResetZeroesClock(t *testing.T) {
	inst, _ := newTestInstance(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go inst.Run(ctx)

	play := make(chan State, 1)
	inst.Enqueue(Control{Kind: ControlPlay, Reply: play})
	<-play
	time.Sleep(30 * time.Millisecond)
	require.Greater(t, inst.Snapshot().FrameIndex, uint64(0))

	reset := make(chan State, 1)
	inst.Enqueue(Control{Kind: ControlReset, Reply: reset})
	state := <-reset
	require.Equal(t, uint64(0), state.FrameIndex)
	require.Zero(t, state.SimTime)
}

func TestInstance_TryExecuteSingleSlot(t *testing.T) {
	inst, _ := newTestInstance(t)

	require.True(t, inst.TryExecute())
	require.False(t, inst.TryExecute())
	inst.ReleaseExecute()
	require.True(t, inst.TryExecute())
}

func TestInstance_TerminateReleasesLease(t *testing.T) {
	inst, sub := newTestInstance(t)

	ctx, cancel := context.WithCancel(context.Background())
	go inst.Run(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()

	inst.Terminate(context.Background())
	require.Equal(t, StatusTerminated, inst.currentStatus())

	_, err := sub.Get(context.Background(), substrate.SimLeaseKey("test-session"))
	require.Error(t, err)
}

// alwaysFailDriver wraps a real driver but fails every Step and Reset,
// so markDegraded's own reinit attempt cannot self-heal.
type alwaysFailDriver struct {
	Driver
}

func (d alwaysFailDriver) Step(h Handle, action map[string]any) (map[string]any, error) {
	return nil, fmt.Errorf("synthetic step failure")
}

func (d alwaysFailDriver) Reset(h Handle) (map[string]any, error) {
	return nil, fmt.Errorf("synthetic reset failure")
}

func TestInstance_TickerStepFailureMarksDegraded(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sub := substrate.NewRedisFromClient(client)

	inner, err := NewDriver("mujoco")
	require.NoError(t, err)
	driver := alwaysFailDriver{Driver: inner}

	lease, err := substrate.AcquireLease(context.Background(), sub, substrate.SimLeaseKey("test-session-degraded"), substrate.DefaultLeaseTTL)
	require.NoError(t, err)

	cfg := Config{SessionID: "test-session-degraded", Engine: "mujoco", Width: 64, Height: 64, FPS: 30}
	inst, err := NewInstance(cfg, driver, sub, nil, lease, slog.Default(), NewMetrics())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go inst.Run(ctx)

	reply := make(chan State, 1)
	inst.Enqueue(Control{Kind: ControlPlay, Reply: reply})
	<-reply

	require.Eventually(t, func() bool {
		return inst.Snapshot().Degraded
	}, time.Second, 5*time.Millisecond, "ticker-driven step failure should mark the instance degraded")
}

func TestInstance_LeaseLossStopsLoop(t *testing.T) {
	inst, sub := newTestInstance(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		inst.Run(ctx)
		close(stopped)
	}()

	require.NoError(t, sub.Del(context.Background(), substrate.SimLeaseKey("test-session")))
	require.False(t, inst.lease.Renew(context.Background()))

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("control loop did not stop after lease loss")
	}
}
