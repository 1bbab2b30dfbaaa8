// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

const engineTimestep = time.Second / 240

// Instance is one running session: its driver handle, control loop state,
// and the lease that proves this node owns it. Only the lease holder
// steps the control loop, per spec.md's ownership contract.
type Instance struct {
	cfg    Config
	driver Driver
	handle Handle
	lease  *substrate.Lease
	sub    substrate.Substrate
	ring   *substrate.FrameRing
	log    *slog.Logger
	metrics *Metrics

	controlCh chan Control
	cancel    context.CancelFunc

	mu         sync.Mutex
	status     Status
	degraded   bool
	frameIndex uint64
	simTime    float64
	vars       map[string]any
	fps        int

	executing atomic.Bool
}

// NewInstance loads the driver and returns an Instance in StatusCreated,
// not yet running a control loop; call Run to start stepping.
func NewInstance(cfg Config, driver Driver, sub substrate.Substrate, ring *substrate.FrameRing, lease *substrate.Lease, log *slog.Logger, metrics *Metrics) (*Instance, error) {
	handle, err := driver.Load(cfg.ModelRef, cfg.Width, cfg.Height, cfg.Headless)
	if err != nil {
		return nil, cosimerr.Wrap(cosimerr.InvalidInput, err, "load model %q", cfg.ModelRef)
	}
	return &Instance{
		cfg: cfg, driver: driver, handle: handle, lease: lease, sub: sub, ring: ring, log: log, metrics: metrics,
		controlCh: make(chan Control, 32),
		status:    StatusCreated,
		fps:       cfg.FPS,
	}, nil
}

// Run starts the control loop; it returns when ctx is canceled or the
// lease is lost. Callers run it in its own goroutine per session.
func (inst *Instance) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	inst.cancel = cancel
	defer cancel()

	inst.setStatus(StatusRunning)

	ticker := time.NewTicker(engineTimestep)
	defer ticker.Stop()

	var lastFrameAt time.Time
	var lastAction map[string]any

	for {
		select {
		case <-ctx.Done():
			return
		case <-inst.lease.Lost():
			inst.log.Warn("lease lost, stopping control loop", "session_id", inst.cfg.SessionID)
			return
		case ctl := <-inst.controlCh:
			inst.applyControl(ctl, &lastAction)
		case <-ticker.C:
			if inst.currentStatus() != StatusRunning {
				continue
			}
			if err := inst.stepOnce(lastAction); err != nil {
				inst.log.Error("physics step failed", "session_id", inst.cfg.SessionID, "error", err)
				inst.markDegraded(err)
				continue
			}
			fpsInterval := time.Second / time.Duration(max(inst.currentFPS(), 1))
			if time.Since(lastFrameAt) >= fpsInterval {
				inst.renderAndPublish(ctx)
				lastFrameAt = time.Now()
			}
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Enqueue submits a control message, blocking only on channel backpressure.
func (inst *Instance) Enqueue(ctl Control) { inst.controlCh <- ctl }

func (inst *Instance) applyControl(ctl Control, lastAction *map[string]any) {
	switch ctl.Kind {
	case ControlPlay:
		inst.setStatus(StatusRunning)
	case ControlPause:
		inst.setStatus(StatusPaused)
	case ControlReset:
		err := WrapDriverCall(func() error {
			vars, err := inst.driver.Reset(inst.handle)
			if err != nil {
				return err
			}
			inst.mu.Lock()
			inst.vars, inst.frameIndex, inst.simTime = vars, 0, 0
			inst.mu.Unlock()
			return nil
		})
		if err != nil {
			inst.markDegraded(err)
		}
	case ControlStep:
		if action, ok := ctl.Action["action"].(map[string]any); ok {
			*lastAction = action
		}
		if err := inst.stepOnce(*lastAction); err != nil {
			inst.markDegraded(err)
		}
	case ControlSetFPS:
		inst.mu.Lock()
		inst.fps = ctl.FPS
		inst.mu.Unlock()
	}
	if ctl.Reply != nil {
		ctl.Reply <- inst.Snapshot()
	}
}

func (inst *Instance) stepOnce(action map[string]any) error {
	return WrapDriverCall(func() error {
		vars, err := inst.driver.Step(inst.handle, action)
		if err != nil {
			return err
		}
		inst.mu.Lock()
		inst.vars = vars
		inst.frameIndex++
		inst.simTime += engineTimestep.Seconds()
		inst.mu.Unlock()
		return nil
	})
}

func (inst *Instance) renderAndPublish(ctx context.Context) {
	var frameBytes []byte
	err := WrapDriverCall(func() error {
		b, err := inst.driver.Render(inst.handle)
		if err != nil {
			return err
		}
		frameBytes = b
		return nil
	})
	if err != nil {
		inst.markDegraded(err)
		return
	}

	snap := inst.Snapshot()
	frame := Frame{SessionID: inst.cfg.SessionID, FrameIndex: snap.FrameIndex, SimTime: snap.SimTime, Data: frameBytes, RenderedAt: time.Now()}
	payload, err := json.Marshal(frame)
	if err != nil {
		inst.log.Error("marshal frame", "error", err)
		return
	}
	if err := inst.sub.Publish(ctx, substrate.FramesChannel(inst.cfg.SessionID), string(payload)); err != nil {
		inst.log.Warn("publish frame", "error", err)
	}
	if inst.ring != nil {
		if err := inst.ring.Append(inst.cfg.SessionID, snap.FrameIndex, frameBytes); err != nil {
			inst.log.Debug("append frame to local ring", "error", err)
		}
	}
	if inst.metrics != nil {
		inst.metrics.FramesRendered.Inc()
	}
	fields := map[string]string{"frame_index": fmt.Sprint(snap.FrameIndex), "sim_time": fmt.Sprintf("%f", snap.SimTime)}
	if err := inst.sub.HSet(ctx, substrate.SimStateKey(inst.cfg.SessionID), fields); err != nil {
		inst.log.Debug("mirror frame_index", "error", err)
	}
}

// markDegraded attempts one re-initialization before flipping the
// Degraded flag, per spec.md's "recovered locally (one reinit attempt);
// persistent driver failure flips ... Degraded" contract: a single
// transient error self-heals silently and never surfaces as Degraded.
func (inst *Instance) markDegraded(cause error) {
	inst.log.Warn("driver call failed, attempting reinit", "session_id", inst.cfg.SessionID, "error", cause)

	if err := WrapDriverCall(func() error {
		_, err := inst.driver.Reset(inst.handle)
		return err
	}); err == nil {
		return
	}

	inst.mu.Lock()
	inst.degraded = true
	inst.mu.Unlock()
	inst.log.Error("reinit failed, instance degraded", "session_id", inst.cfg.SessionID, "error", cause)
}

func (inst *Instance) setStatus(s Status) {
	inst.mu.Lock()
	inst.status = s
	inst.mu.Unlock()
}

func (inst *Instance) currentStatus() Status {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.status
}

func (inst *Instance) currentFPS() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.fps
}

// Snapshot returns the current get_state view.
func (inst *Instance) Snapshot() State {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return State{
		SessionID: inst.cfg.SessionID, Status: inst.status, Degraded: inst.degraded,
		FrameIndex: inst.frameIndex, SimTime: inst.simTime, Vars: inst.vars,
	}
}

// Terminate stops the control loop and disposes the driver handle.
// Terminated is absorbing: calling Terminate again is a no-op.
func (inst *Instance) Terminate(ctx context.Context) {
	if inst.cancel != nil {
		inst.cancel()
	}
	inst.driver.Dispose(inst.handle)
	inst.setStatus(StatusTerminated)
	_ = inst.lease.Release(ctx)
}

// TryExecute claims the single user-code slot, returning false if already
// occupied (callers translate this to cosimerr.Busy).
func (inst *Instance) TryExecute() bool { return inst.executing.CompareAndSwap(false, true) }

// ReleaseExecute frees the user-code slot.
func (inst *Instance) ReleaseExecute() { inst.executing.Store(false) }
