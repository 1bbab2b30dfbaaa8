// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signaling

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

// verificationCodePurpose namespaces room-join codes from any other
// verification-code use of the same substrate key layout.
const verificationCodePurpose = "room-join"

// verificationCodeTTL bounds how long a minted code can be redeemed,
// short enough that a leaked pairing link is useless within minutes.
const verificationCodeTTL = 10 * time.Minute

// MintCode issues a short, single-use-window code that ResolveCode can
// later exchange for roomID, so an operator can hand out an ad-hoc
// pairing link instead of the raw room ID.
func (s *Service) MintCode(ctx context.Context, roomID string) (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", cosimerr.Wrap(cosimerr.Internal, err, "generate verification code")
	}
	key := substrate.VerificationCodeKey(verificationCodePurpose, code)
	if err := s.sub.Set(ctx, key, roomID, verificationCodeTTL); err != nil {
		return "", err
	}
	return code, nil
}

// ResolveCode returns the room ID a previously minted code refers to, or
// NotFound if the code is unknown or has expired.
func (s *Service) ResolveCode(ctx context.Context, code string) (string, error) {
	key := substrate.VerificationCodeKey(verificationCodePurpose, code)
	roomID, err := s.sub.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return roomID, nil
}

func randomCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
