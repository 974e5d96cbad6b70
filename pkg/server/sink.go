// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// outboundActivity is one response event on the wire. Streamed turns
// produce a sequence of "typing" events followed by one "message";
// batch turns produce "message" events only.
type outboundActivity struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	StreamSeq  int    `json:"streamSequence,omitempty"`
	StreamType string `json:"streamType,omitempty"`
}

// httpSink writes turn output to the HTTP response. Batch mode buffers
// messages and writes one application/json array member per message;
// streaming mode writes newline-delimited JSON events and flushes
// each one.
type httpSink struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	streaming bool
	wrote     bool
	seq       int
	chunks    []string
}

func newHTTPSink(w http.ResponseWriter, streaming bool) *httpSink {
	flusher, ok := w.(http.Flusher)
	return &httpSink{w: w, flusher: flusher, streaming: streaming && ok}
}

func (s *httpSink) SupportsStreaming() bool { return s.streaming }

func (s *httpSink) SendMessage(_ context.Context, text string) error {
	return s.writeEvent(outboundActivity{Type: "message", Text: text})
}

func (s *httpSink) StartStream(context.Context) error {
	s.seq = 0
	s.chunks = s.chunks[:0]
	return nil
}

func (s *httpSink) SendChunk(_ context.Context, text string) error {
	s.seq++
	s.chunks = append(s.chunks, text)
	return s.writeEvent(outboundActivity{
		Type:       "typing",
		Text:       text,
		StreamSeq:  s.seq,
		StreamType: "streaming",
	})
}

func (s *httpSink) EndStream(_ context.Context) error {
	s.seq++
	return s.writeEvent(outboundActivity{
		Type:       "message",
		Text:       strings.Join(s.chunks, ""),
		StreamSeq:  s.seq,
		StreamType: "final",
	})
}

func (s *httpSink) writeEvent(ev outboundActivity) error {
	if !s.wrote {
		if s.streaming {
			s.w.Header().Set("Content-Type", "application/x-ndjson")
			s.w.Header().Set("Cache-Control", "no-cache")
		} else {
			s.w.Header().Set("Content-Type", "application/json")
		}
		s.w.WriteHeader(http.StatusOK)
		s.wrote = true
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal response event: %w", err)
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write response event: %w", err)
	}
	if s.streaming && s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *httpSink) wroteHeader() bool { return s.wrote }

// finish ensures a turn that produced no output still returns 200
// with an empty body.
func (s *httpSink) finish() {
	if !s.wrote {
		s.w.WriteHeader(http.StatusOK)
	}
}
