// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package substrate

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// FrameRing is a per-node, bounded, TTL-backed local cache of the most
// recent frames published on a session's frames channel. It lets
// subscribe_stream serve a short replay window to a reconnecting client
// without re-reading the substrate for every reconnect; the distributed
// source of truth remains the frame_index counter kept in the substrate
// hash, per spec.md's control-loop contract. Built on BadgerDB the way
// services/trace/storage/badger/badger.go wraps it for local embedded
// storage, narrowed to the single ring-buffer use case.
type FrameRing struct {
	db       *badger.DB
	capacity int
	ttl      time.Duration
}

// OpenFrameRing opens (or creates) a badger database at dir holding up to
// capacity frames per session, each expiring after ttl.
func OpenFrameRing(dir string, capacity int, ttl time.Duration) (*FrameRing, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open frame ring: %w", err)
	}
	return &FrameRing{db: db, capacity: capacity, ttl: ttl}, nil
}

func ringKey(sessionID string, frameIndex uint64) []byte {
	buf := make([]byte, len(sessionID)+1+8)
	n := copy(buf, sessionID)
	buf[n] = ':'
	binary.BigEndian.PutUint64(buf[n+1:], frameIndex)
	return buf
}

func ringPrefix(sessionID string) []byte {
	return append([]byte(sessionID), ':')
}

// Append stores frame at frameIndex for sessionID and evicts the oldest
// entries beyond capacity.
func (r *FrameRing) Append(sessionID string, frameIndex uint64, frame []byte) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(ringKey(sessionID, frameIndex), frame).WithTTL(r.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("append frame: %w", err)
	}
	return r.evictOld(sessionID, frameIndex)
}

func (r *FrameRing) evictOld(sessionID string, latest uint64) error {
	if latest < uint64(r.capacity) {
		return nil
	}
	cutoff := latest - uint64(r.capacity)
	return r.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := ringPrefix(sessionID)
		var toDelete [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			idx := binary.BigEndian.Uint64(key[len(prefix):])
			if idx <= cutoff {
				toDelete = append(toDelete, key)
			}
		}
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Replay returns every retained frame for sessionID with index >= fromFrame,
// in ascending order. Gaps (evicted or expired frames) are simply absent;
// callers fall back to a live subscription for anything missing.
func (r *FrameRing) Replay(sessionID string, fromFrame uint64) ([][]byte, error) {
	var frames [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := ringPrefix(sessionID)
		start := ringKey(sessionID, fromFrame)
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			frames = append(frames, val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay frames: %w", err)
	}
	return frames, nil
}

func (r *FrameRing) Close() error { return r.db.Close() }
