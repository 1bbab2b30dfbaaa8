// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

import (
	"fmt"
	"math"
	"sync"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
)

// Driver is the minimal capability set the control loop depends on,
// following original_source/CoSim/backend/src/co_sim/agents/simulation/main.py's
// distinction between MuJoCoStreamManager and PyBulletStreamManager behind
// a single manager abstraction the control loop steps without caring which
// engine is underneath.
type Driver interface {
	Load(modelRef string, width, height int, headless bool) (Handle, error)
	Reset(h Handle) (map[string]any, error)
	Step(h Handle, action map[string]any) (map[string]any, error)
	Render(h Handle) ([]byte, error)
	Dispose(h Handle)
}

// Handle identifies a loaded model instance within a Driver.
type Handle int

// NewDriver returns the driver for engine, or an InvalidInput error for an
// unknown engine name.
func NewDriver(engine string) (Driver, error) {
	switch engine {
	case "mujoco":
		return newSyntheticDriver("mujoco"), nil
	case "pybullet":
		return newSyntheticDriver("pybullet"), nil
	default:
		return nil, cosimerr.New(cosimerr.InvalidInput, "unknown engine %q", engine)
	}
}

// syntheticDriver produces deterministic synthetic physics and frames
// without a real MuJoCo/PyBullet dependency, standing in for the engines
// original_source selects via MUJOCO_AVAILABLE / PYBULLET_AVAILABLE. Swap
// in a cgo-backed driver behind the same interface for real simulation.
type syntheticDriver struct {
	engine string

	mu       sync.Mutex
	handles  map[Handle]*syntheticState
	nextID   Handle
}

type syntheticState struct {
	width, height int
	t             float64
	position      float64
	velocity      float64
}

func newSyntheticDriver(engine string) *syntheticDriver {
	return &syntheticDriver{engine: engine, handles: make(map[Handle]*syntheticState)}
}

func (d *syntheticDriver) Load(modelRef string, width, height int, headless bool) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.handles[d.nextID] = &syntheticState{width: width, height: height}
	return d.nextID, nil
}

func (d *syntheticDriver) state(h Handle) (*syntheticState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.handles[h]
	if !ok {
		return nil, cosimerr.New(cosimerr.NotFound, "handle %d not loaded", h)
	}
	return s, nil
}

func (d *syntheticDriver) Reset(h Handle) (map[string]any, error) {
	s, err := d.state(h)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	s.t, s.position, s.velocity = 0, 0, 0
	d.mu.Unlock()
	return d.vars(s), nil
}

func (d *syntheticDriver) Step(h Handle, action map[string]any) (map[string]any, error) {
	s, err := d.state(h)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	accel := 0.0
	if v, ok := action["accel"].(float64); ok {
		accel = v
	}
	const dt = 1.0 / 60.0
	s.velocity += accel * dt
	s.position += s.velocity * dt
	s.t += dt
	return d.vars(s), nil
}

func (d *syntheticDriver) vars(s *syntheticState) map[string]any {
	return map[string]any{"position": s.position, "velocity": s.velocity}
}

func (d *syntheticDriver) Render(h Handle) ([]byte, error) {
	s, err := d.state(h)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	// Deterministic placeholder payload encoding (t, position) so tests
	// can assert content without a real rasterizer.
	frame := make([]byte, 16)
	bits := math.Float64bits(s.t)
	for i := 0; i < 8; i++ {
		frame[i] = byte(bits >> (8 * i))
	}
	bits = math.Float64bits(s.position)
	for i := 0; i < 8; i++ {
		frame[8+i] = byte(bits >> (8 * i))
	}
	return frame, nil
}

func (d *syntheticDriver) Dispose(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handles, h)
}

var _ Driver = (*syntheticDriver)(nil)

// WrapDriverCall runs fn and converts a panic into an error so the control
// loop can mark an instance Degraded instead of crashing the node, per
// spec.md's "if it throws ... marks instance Degraded" contract.
func WrapDriverCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver call panicked: %v", r)
		}
	}()
	return fn()
}
