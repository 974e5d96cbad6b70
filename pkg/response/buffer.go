// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package response

import (
	"context"
	"strings"
	"sync"
)

// Buffer is an in-memory Sink that records everything sent through
// it. Used by tests and by callers that need to inspect output before
// forwarding it. Safe for concurrent use.
type Buffer struct {
	mu        sync.Mutex
	streaming bool
	messages  []string
	chunks    []string
	open      bool
	streams   int
}

// NewBuffer creates a buffer sink. streaming controls what
// SupportsStreaming reports.
func NewBuffer(streaming bool) *Buffer {
	return &Buffer{streaming: streaming}
}

func (b *Buffer) SupportsStreaming() bool { return b.streaming }

func (b *Buffer) SendMessage(_ context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, text)
	return nil
}

func (b *Buffer) StartStream(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = true
	b.streams++
	b.chunks = b.chunks[:0]
	return nil
}

func (b *Buffer) SendChunk(_ context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, text)
	return nil
}

func (b *Buffer) EndStream(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.messages = append(b.messages, strings.Join(b.chunks, ""))
	return nil
}

// Messages returns every completed message, streamed or batch, in
// send order.
func (b *Buffer) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.messages))
	copy(out, b.messages)
	return out
}

// Chunks returns the fragments of the most recent stream.
func (b *Buffer) Chunks() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Streams returns how many streams were started.
func (b *Buffer) Streams() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams
}
