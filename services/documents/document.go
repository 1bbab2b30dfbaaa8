// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package documents

import (
	"context"
	"sync"

	"github.com/automerge/automerge-go"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

// document wraps a single automerge.Doc with the mutex and dirty flag the
// write-behind coalescer needs. The CRDT merge law means concurrent
// access from multiple goroutines only ever needs mutual exclusion
// around the Doc itself, never coordination about ordering.
type document struct {
	id string

	mu    sync.Mutex
	doc   *automerge.Doc
	dirty bool
}

// loadDocument reads doc_id's persisted state from the substrate,
// starting a fresh empty document if none exists yet.
func loadDocument(ctx context.Context, sub substrate.Substrate, docID string) (*document, error) {
	encoded, err := sub.Get(ctx, substrate.DocStateKey(docID))
	if err != nil {
		if cosimerr.KindOf(err) != cosimerr.NotFound {
			return nil, err
		}
		return &document{id: docID, doc: automerge.New()}, nil
	}
	doc, err := automerge.Load([]byte(encoded))
	if err != nil {
		return nil, cosimerr.Wrap(cosimerr.Internal, err, "load document %q", docID)
	}
	return &document{id: docID, doc: doc}, nil
}

// applyUpdate merges the sender's encoded state into this document.
func (d *document) applyUpdate(raw []byte) ([]byte, error) {
	remote, err := automerge.Load(raw)
	if err != nil {
		return nil, cosimerr.Wrap(cosimerr.InvalidInput, err, "decode CRDT update")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.doc.Merge(remote); err != nil {
		return nil, cosimerr.Wrap(cosimerr.Internal, err, "merge CRDT update")
	}
	d.dirty = true
	return d.doc.Save(), nil
}

// mergeRemoteState merges a persisted snapshot written by another node,
// returning the merged encoding only if the merge actually changed
// anything locally.
func (d *document) mergeRemoteState(raw []byte) ([]byte, bool, error) {
	remote, err := automerge.Load(raw)
	if err != nil {
		return nil, false, cosimerr.Wrap(cosimerr.Internal, err, "decode persisted document state")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	changes, err := d.doc.Merge(remote)
	if err != nil {
		return nil, false, cosimerr.Wrap(cosimerr.Internal, err, "merge persisted document state")
	}
	if len(changes) == 0 {
		return nil, false, nil
	}
	d.dirty = true
	return d.doc.Save(), true, nil
}

// snapshotIfDirty returns the current encoding and clears the dirty flag,
// or returns ok=false if nothing has changed since the last flush.
func (d *document) snapshotIfDirty() (encoded []byte, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty {
		return nil, false
	}
	d.dirty = false
	return d.doc.Save(), true
}

func (d *document) snapshot() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Save()
}
