// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package response abstracts how agent output reaches the caller:
// a single batch message, or an incremental stream of chunks.
package response

import "context"

// Sink receives agent output for one turn. Implementations decide the
// transport (HTTP response body, test buffer, chat channel API).
type Sink interface {
	// SupportsStreaming reports whether StartStream/SendChunk/EndStream
	// may be used for this turn.
	SupportsStreaming() bool

	// SendMessage emits one complete message.
	SendMessage(ctx context.Context, text string) error

	// StartStream opens an incremental response. Must be followed by
	// EndStream. Callers should not start a stream when
	// SupportsStreaming is false.
	StartStream(ctx context.Context) error

	// SendChunk appends a fragment to the open stream.
	SendChunk(ctx context.Context, text string) error

	// EndStream closes the stream and flushes the final message.
	EndStream(ctx context.Context) error
}

// Emit writes text through the sink, streaming it as a single chunk
// when the sink supports streaming and falling back to one batch
// message otherwise.
func Emit(ctx context.Context, sink Sink, text string) error {
	if !sink.SupportsStreaming() {
		return sink.SendMessage(ctx, text)
	}
	if err := sink.StartStream(ctx); err != nil {
		return err
	}
	if err := sink.SendChunk(ctx, text); err != nil {
		return err
	}
	return sink.EndStream(ctx)
}
