// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"strings"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
)

// tokenChunkSize is the approximate size of emitted token events. The loop
// produces whole answers, so streaming re-chunks them for progressive render.
const tokenChunkSize = 24

// Emitter delivers stream events in strict causal order.
//
// # Description
//
// A nil *Emitter is valid and drops every event, so the blocking and
// streaming paths share one loop implementation. Sends respect the consumer
// context: a disconnected consumer cancels the context and the emitter stops
// delivering without blocking the loop.
type Emitter struct {
	ch chan datatypes.StreamEvent
}

// NewEmitter creates an emitter with a buffered event channel.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Emitter{ch: make(chan datatypes.StreamEvent, buffer)}
}

// Events returns the receive side of the stream.
func (e *Emitter) Events() <-chan datatypes.StreamEvent {
	return e.ch
}

// Close signals end of stream. No sends may follow.
func (e *Emitter) Close() {
	if e != nil {
		close(e.ch)
	}
}

// Emit delivers one event, dropping it when the consumer is gone.
func (e *Emitter) Emit(ctx context.Context, event datatypes.StreamEvent) {
	if e == nil {
		return
	}
	select {
	case e.ch <- event:
	case <-ctx.Done():
	}
}

// EmitStatus sends a status frame.
func (e *Emitter) EmitStatus(ctx context.Context, message string) {
	e.Emit(ctx, datatypes.StreamEvent{Type: datatypes.EventStatus, Message: message})
}

// EmitTokens re-chunks the answer into token frames.
func (e *Emitter) EmitTokens(ctx context.Context, answer string) {
	if e == nil {
		return
	}
	remaining := answer
	for len(remaining) > 0 {
		cut := len(remaining)
		if cut > tokenChunkSize {
			// Break on a space where possible so words stay intact.
			cut = tokenChunkSize
			if idx := strings.LastIndexByte(remaining[:cut], ' '); idx > 0 {
				cut = idx + 1
			}
		}
		e.Emit(ctx, datatypes.StreamEvent{Type: datatypes.EventToken, Content: remaining[:cut]})
		remaining = remaining[cut:]
	}
}
