package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Tracker records a fingerprint of each file's content as last read in this
// session, so mutating tools can detect edits against stale content.
type Tracker struct {
	mu           sync.Mutex
	fingerprints map[string]string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{fingerprints: make(map[string]string)}
}

// NoteRead records the content a path was last seen with.
func (t *Tracker) NoteRead(path, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fingerprints[path] = fingerprint(content)
}

// Seen reports whether the path has been read this session.
func (t *Tracker) Seen(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.fingerprints[path]
	return ok
}

// Fresh reports whether the current content matches what was last read.
// An unseen path is never fresh: the model must read before mutating.
func (t *Tracker) Fresh(path, content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	fp, ok := t.fingerprints[path]
	return ok && fp == fingerprint(content)
}

func fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
