// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
)

// RunSandbox executes req.Code in a fresh goja VM whose only ambient
// capability is get_simulation(), returning a facade with reset()/step()/
// get_state(). Each facade call enqueues a Control into inst's control
// loop and blocks on the resulting State, implementing the spec's
// capability-facade redesign: user code gets no other host API, no
// filesystem, no network. wallClockCap bounds how long RunSandbox waits,
// per spec.md §6's EXEC_WALL_CLOCK_MS: once it elapses RunSandbox returns
// an error/timeout result, but the goja VM goroutine is not interrupted
// and keeps running until the script itself ends.
func RunSandbox(ctx context.Context, inst *Instance, req ExecutionRequest, wallClockCap time.Duration) ExecutionResult {
	result := ExecutionResult{SessionID: req.SessionID, FinishedAt: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, wallClockCap)
	defer cancel()

	var stdout, stderr bytes.Buffer
	done := make(chan struct{})

	go func() {
		defer close(done)
		vm := goja.New()
		vm.Set("get_simulation", func() map[string]any {
			return map[string]any{
				"reset":     func() map[string]any { return facadeCall(ctx, inst, Control{Kind: ControlReset}) },
				"step":      func(action map[string]any) map[string]any { return facadeCall(ctx, inst, Control{Kind: ControlStep, Action: map[string]any{"action": action}}) },
				"get_state": func() map[string]any { return stateToMap(inst.Snapshot()) },
			}
		})
		vm.Set("print", func(args ...any) {
			for _, a := range args {
				stdout.WriteString(toString(a))
				stdout.WriteString(" ")
			}
			stdout.WriteString("\n")
		})

		if _, err := vm.RunString(req.Code); err != nil {
			stderr.WriteString(err.Error())
			result.Status, result.Reason = "error", "exception"
			return
		}
		result.Status = "success"
	}()

	select {
	case <-done:
	case <-ctx.Done():
		result.Status, result.Reason = "error", "timeout"
	}

	result.Stdout, result.Stderr = stdout.String(), stderr.String()
	result.FinishedAt = time.Now()
	return result
}

func facadeCall(ctx context.Context, inst *Instance, ctl Control) map[string]any {
	ctl.Reply = make(chan State, 1)
	inst.Enqueue(ctl)
	select {
	case state := <-ctl.Reply:
		return stateToMap(state)
	case <-ctx.Done():
		return map[string]any{"error": "timeout"}
	}
}

func stateToMap(s State) map[string]any {
	return map[string]any{
		"status": string(s.Status), "degraded": s.Degraded,
		"frame_index": s.FrameIndex, "sim_time": s.SimTime, "vars": s.Vars,
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// slotBusyErr builds the Busy error execute() returns when a session's
// single user-code slot is already occupied.
func slotBusyErr(sessionID string) error {
	return cosimerr.New(cosimerr.Busy, "execution slot busy for session %q", sessionID)
}
