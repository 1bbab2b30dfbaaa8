// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sub := substrate.NewRedisFromClient(client)
	ring, err := substrate.OpenFrameRing("", 64, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { ring.Close() })

	log := logging.New(logging.Config{Service: "simulation-test", Quiet: true})
	return New(ServiceConfig{Addr: ":0", NodeID: "test-node"}, sub, ring, authn.NopProvider{}, log)
}

func TestService_CreateGetDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	state, err := svc.Create(ctx, CreateRequest{SessionID: "s1", Engine: "mujoco", Width: 64, Height: 64, FPS: 30})
	require.NoError(t, err)
	require.Equal(t, StatusRunning, state.Status)

	got, err := svc.GetState("s1")
	require.NoError(t, err)
	require.Equal(t, "s1", got.SessionID)

	require.NoError(t, svc.Delete(ctx, "s1"))
	_, err = svc.GetState("s1")
	require.Error(t, err)

	// deleting again is idempotent
	require.NoError(t, svc.Delete(ctx, "s1"))
}

func TestService_UnknownEngineRejected(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create(context.Background(), CreateRequest{SessionID: "s2", Engine: "unreal", Width: 1, Height: 1, FPS: 1})
	require.Error(t, err)
}

func TestService_ExecuteBusySlot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateRequest{SessionID: "s3", Engine: "mujoco", Width: 64, Height: 64, FPS: 30})
	require.NoError(t, err)

	instance, err := svc.lookup("s3")
	require.NoError(t, err)
	require.True(t, instance.TryExecute())

	_, err = svc.Execute(ctx, ExecutionRequest{SessionID: "s3", Code: "1+1;"})
	require.Error(t, err)
	instance.ReleaseExecute()
}

func TestService_ReplayFramesServesLocallyRingedFrames(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{SessionID: "s5", Engine: "mujoco", Width: 64, Height: 64, FPS: 240})
	require.NoError(t, err)

	reply := make(chan State, 1)
	require.NoError(t, svc.SendControl("s5", Control{Kind: ControlPlay, Reply: reply}))
	<-reply

	require.Eventually(t, func() bool {
		frames, err := svc.ReplayFrames("s5", 0)
		return err == nil && len(frames) > 0
	}, time.Second, 5*time.Millisecond, "renderAndPublish should append frames to the local ring")
}
