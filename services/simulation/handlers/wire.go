// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cosimlabs/cosim/services/simulation"
)

// frameMagic tags every binary frame message per spec.md §6's
// `{magic:"F1", frame_index, sim_time, image_bytes}` wire format.
const frameMagic = "F1"

// encodeBinaryFrame renders f as the binary message a stream client
// expects: a 2-byte magic, frame_index (uint64 big-endian), sim_time
// (float64 big-endian bits), then the raw image bytes.
func encodeBinaryFrame(f simulation.Frame) []byte {
	buf := make([]byte, 0, len(frameMagic)+8+8+len(f.Data))
	buf = append(buf, frameMagic...)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], f.FrameIndex)
	buf = append(buf, idx[:]...)
	var st [8]byte
	binary.BigEndian.PutUint64(st[:], math.Float64bits(f.SimTime))
	buf = append(buf, st[:]...)
	buf = append(buf, f.Data...)
	return buf
}

// parsedControl is one decoded text control command:
// "play|pause|reset|step|set_fps <n>".
type parsedControl struct {
	kind simulation.ControlKind
	fps  int
}

// parseControlCommand decodes a text control message per spec.md §6. An
// unrecognized verb or a set_fps missing/with a non-numeric argument
// returns an error describing the problem.
func parseControlCommand(raw string) (parsedControl, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return parsedControl{}, fmt.Errorf("empty control command")
	}
	verb := fields[0]
	switch simulation.ControlKind(verb) {
	case simulation.ControlPlay, simulation.ControlPause, simulation.ControlReset, simulation.ControlStep:
		return parsedControl{kind: simulation.ControlKind(verb)}, nil
	case simulation.ControlSetFPS:
		if len(fields) < 2 {
			return parsedControl{}, fmt.Errorf("set_fps requires an argument")
		}
		fps, err := strconv.Atoi(fields[1])
		if err != nil {
			return parsedControl{}, fmt.Errorf("set_fps argument %q is not an integer", fields[1])
		}
		return parsedControl{kind: simulation.ControlSetFPS, fps: fps}, nil
	default:
		return parsedControl{}, fmt.Errorf("unrecognized control command %q", verb)
	}
}
