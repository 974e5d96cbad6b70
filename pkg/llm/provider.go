// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package llm defines the model/completion provider contract consumed
// by the turn orchestrator and the notification router. Providers are
// external collaborators; this package holds only the narrow
// interface and its message types.
package llm

import "context"

// Message is a single message in a chat completion request.
type Message struct {
	// Role is the message sender: user, assistant, or system.
	Role string
	// Content is the message text.
	Content string
}

// Roles for Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Citation points at source material used in a response.
type Citation struct {
	Title   string
	URL     string
	Snippet string
}

// Usage tracks token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a completed chat response.
type Response struct {
	// Content is the response text.
	Content string
	// Citations are optional source references.
	Citations []Citation
	// StopReason indicates why generation stopped.
	StopReason string
	// Usage tracks token counts when the provider reports them.
	Usage Usage
}

// TokenCallback receives each text chunk during streaming.
// Implementations should be lightweight and non-blocking.
type TokenCallback func(chunk string)

// Provider is the chat completion contract.
type Provider interface {
	// Chat sends a message list and returns the complete response.
	Chat(ctx context.Context, messages []Message) (*Response, error)

	// Name returns the provider name.
	Name() string

	// Model returns the model identifier.
	Model() string
}

// StreamingProvider is implemented by providers that can deliver the
// response as a token stream. Callers fall back to Chat when the
// provider (or the transport) does not support streaming.
type StreamingProvider interface {
	Provider

	// ChatStream sends a message list, invoking cb for each chunk,
	// and returns the assembled response.
	ChatStream(ctx context.Context, messages []Message, cb TokenCallback) (*Response, error)
}
