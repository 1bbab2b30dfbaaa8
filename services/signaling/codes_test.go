// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signaling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
)

func TestMintAndResolveCode_RoundTrips(t *testing.T) {
	sub := newTestPair(t)
	svc := newTestServiceOn(t, sub, "node-a")

	code, err := svc.MintCode(context.Background(), "room-1")
	require.NoError(t, err)
	require.NotEmpty(t, code)

	roomID, err := svc.ResolveCode(context.Background(), code)
	require.NoError(t, err)
	require.Equal(t, "room-1", roomID)
}

func TestResolveCode_UnknownCodeIsNotFound(t *testing.T) {
	sub := newTestPair(t)
	svc := newTestServiceOn(t, sub, "node-a")

	_, err := svc.ResolveCode(context.Background(), "does-not-exist")
	require.Error(t, err)
	require.Equal(t, cosimerr.NotFound, cosimerr.KindOf(err))
}
