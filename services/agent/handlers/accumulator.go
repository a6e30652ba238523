// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// AccumulatorBufferSize is the mlocked buffer size for answer accumulation.
// Client consultations can reference passports, shareholdings, and contract
// values; 256 KB covers the longest answers with room to spare.
const AccumulatorBufferSize = 256 * 1024

var (
	memguardInitOnce sync.Once
	mlockSufficient  bool
)

// TokenAccumulator assembles streamed answer tokens with an incremental
// integrity hash.
//
// # Description
//
// The secure implementation keeps the assembled answer in mlocked memory so
// it cannot be swapped to disk mid-stream; the insecure fallback is used
// when the process lacks RLIMIT_MEMLOCK headroom. Both hash tokens as they
// arrive.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type TokenAccumulator interface {
	// Write appends one token. Fails on overflow or after finalization.
	Write(token string) error

	// Finalize returns the assembled answer and its SHA-256 hex hash, then
	// wipes the buffer. Single use.
	Finalize() (answer string, hashHex string, err error)

	// Destroy wipes without returning data. Idempotent.
	Destroy()
}

// NewTokenAccumulator returns a secure accumulator when mlock limits allow,
// falling back to a heap-backed one otherwise.
func NewTokenAccumulator() TokenAccumulator {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient = checkMlockLimit()
		if !mlockSufficient {
			slog.Warn("RLIMIT_MEMLOCK too low for secure accumulation, using heap buffers")
		}
	})

	if mlockSufficient {
		return &secureAccumulator{
			buffer: memguard.NewBuffer(AccumulatorBufferSize),
			hasher: sha256.New(),
		}
	}
	return &insecureAccumulator{hasher: sha256.New()}
}

// checkMlockLimit reports whether the locked-memory limit covers our buffer.
func checkMlockLimit() bool {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		return false
	}
	return rlimit.Cur == unix.RLIM_INFINITY || rlimit.Cur >= AccumulatorBufferSize
}

// =============================================================================
// Secure Implementation
// =============================================================================

type secureAccumulator struct {
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	hasher    hash.Hash
	length    int
	finalized bool
}

func (a *secureAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized || a.buffer == nil {
		return fmt.Errorf("accumulator already finalized")
	}
	if a.length+len(token) > AccumulatorBufferSize {
		return fmt.Errorf("answer exceeds %d byte accumulation buffer", AccumulatorBufferSize)
	}

	copy(a.buffer.Bytes()[a.length:], token)
	a.length += len(token)
	a.hasher.Write([]byte(token))
	return nil
}

func (a *secureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized || a.buffer == nil {
		return "", "", fmt.Errorf("accumulator already finalized")
	}
	a.finalized = true

	answer := string(a.buffer.Bytes()[:a.length])
	hashHex := hex.EncodeToString(a.hasher.Sum(nil))
	a.buffer.Destroy()
	a.buffer = nil
	return answer, hashHex, nil
}

func (a *secureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true
	if a.buffer != nil {
		a.buffer.Destroy()
		a.buffer = nil
	}
}

// =============================================================================
// Insecure Fallback
// =============================================================================

type insecureAccumulator struct {
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	finalized bool
}

func (a *insecureAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return fmt.Errorf("accumulator already finalized")
	}
	if len(a.data)+len(token) > AccumulatorBufferSize {
		return fmt.Errorf("answer exceeds %d byte accumulation buffer", AccumulatorBufferSize)
	}
	a.data = append(a.data, token...)
	a.hasher.Write([]byte(token))
	return nil
}

func (a *insecureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return "", "", fmt.Errorf("accumulator already finalized")
	}
	a.finalized = true

	answer := string(a.data)
	hashHex := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return answer, hashHex, nil
}

func (a *insecureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true
	a.wipe()
}

// wipe is best-effort on the heap; the GC may have copied the slice.
func (a *insecureAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
}
