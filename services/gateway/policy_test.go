// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicy_ClassForLongestPrefixWins(t *testing.T) {
	policy := NewPolicy([]RouteClassConfig{
		{Prefix: "/v1/simulations", Class: "simulation", Limit: 100, Window: time.Minute},
		{Prefix: "/v1/simulations/s1/execute", Class: "execute", Limit: 10, Window: time.Minute},
	})

	class, ok := policy.ClassFor("/v1/simulations/s1/execute")
	require.True(t, ok)
	require.Equal(t, "execute", class.Class)

	class, ok = policy.ClassFor("/v1/simulations/s1/state")
	require.True(t, ok)
	require.Equal(t, "simulation", class.Class)
}

func TestPolicy_ClassForUnmatchedIsUnlimited(t *testing.T) {
	policy := DefaultPolicy()
	_, ok := policy.ClassFor("/v1/unrelated")
	require.False(t, ok)
}

func TestLoadPolicyFile_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	contents := `
routes:
  - prefix: /v1/simulations
    class: simulation
    limit: 50
    window: 1m
    burst: 10
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	policy, err := LoadPolicyFile(path)
	require.NoError(t, err)
	class, ok := policy.ClassFor("/v1/simulations/s1/state")
	require.True(t, ok)
	require.Equal(t, int64(50), class.Limit)
}

func TestWatchPolicyFile_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - prefix: /v1/simulations\n    class: simulation\n    limit: 10\n    window: 1m\n"), 0o644))

	policy, err := LoadPolicyFile(path)
	require.NoError(t, err)

	log := testLogger()
	watcher, err := WatchPolicyFile(path, policy, log)
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - prefix: /v1/simulations\n    class: simulation\n    limit: 999\n    window: 1m\n"), 0o644))

	require.Eventually(t, func() bool {
		class, ok := policy.ClassFor("/v1/simulations/s1/state")
		return ok && class.Limit == 999
	}, 2*time.Second, 20*time.Millisecond)
}
