// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package anthropic

// messagesRequest is a request to the Anthropic Messages API.
type messagesRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature,omitempty"`
	System      string       `json:"system,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

// messagesResponse is a response from the Anthropic Messages API.
type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      apiUsage       `json:"usage"`
}

type apiMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	Citation *blockCitation `json:"citation,omitempty"`
}

type blockCitation struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	Cited string `json:"cited_text,omitempty"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// streamEvent is one SSE event from a streaming response.
type streamEvent struct {
	Type  string       `json:"type"`
	Index int          `json:"index"`
	Delta *streamDelta `json:"delta,omitempty"`
	Usage *apiUsage    `json:"usage,omitempty"`
}

type streamDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}
