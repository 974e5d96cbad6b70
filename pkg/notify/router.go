// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fieldline-labs/relay/pkg/llm"
	"github.com/fieldline-labs/relay/pkg/observability"
	"github.com/fieldline-labs/relay/pkg/response"
)

// Result reports how a notification was dispatched.
type Result int

const (
	// ResultHandled means a dedicated handler produced the response,
	// including the missing-details fallback texts.
	ResultHandled Result = iota
	// ResultUnhandled means no handler matched and the default
	// placeholder was emitted.
	ResultUnhandled
)

// User-visible fallback texts. The missing-details texts are part of
// the external contract; clients match on them.
const (
	msgMissingEmailDetails   = "I could not find the email notification details."
	msgMissingCommentDetails = "I could not find the document comment details."
	msgUnknownNotification   = "Notification type not yet implemented"
	msgHandlerFailure        = "Sorry, I ran into a problem while handling that notification."
)

// Router dispatches notification envelopes by tag. Handlers run two
// staged model calls, a retrieval step that reconstructs the
// referenced content and a generation step that summarizes it, and
// emit the result through the turn's response sink.
type Router struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewRouter creates a notification router. logger defaults to
// zap.NewNop().
func NewRouter(provider llm.Provider, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{provider: provider, logger: logger}
}

// Route dispatches one envelope. It never returns an error or lets a
// handler panic escape: failures are recorded on the scope and
// replaced with a generic apology.
func (r *Router) Route(ctx context.Context, env Envelope, scope *observability.Scope, sink response.Sink) (result Result) {
	path := markerPath(env.Tag)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("notification handler panicked",
				zap.String("tag", env.Tag.String()), zap.Any("panic", rec))
			scope.RecordError(fmt.Errorf("notification handler panic: %v", rec))
			scope.AddMarker(observability.MarkerError(path))
			if err := response.Emit(ctx, sink, msgHandlerFailure); err != nil {
				r.logger.Error("failed to emit failure message", zap.Error(err))
			}
			result = ResultHandled
		}
	}()

	scope.AddMarker(observability.MarkerStarting(path))

	var (
		text string
		err  error
	)
	switch env.Tag {
	case TagEmailReference:
		text, err = r.handleEmail(ctx, env)
	case TagDocumentComment:
		text, err = r.handleDocumentComment(ctx, env)
	case TagGeneric:
		text, err = r.handleGeneric(ctx, env)
	default:
		scope.AddMarker(observability.MarkerCompleted(path))
		r.emit(ctx, sink, msgUnknownNotification)
		return ResultUnhandled
	}

	if err != nil {
		r.logger.Error("notification handler failed",
			zap.String("tag", env.Tag.String()), zap.Error(err))
		scope.RecordError(err)
		scope.AddMarker(observability.MarkerError(path))
		r.emit(ctx, sink, msgHandlerFailure)
		return ResultHandled
	}

	scope.RecordOutputMessages([]string{text})
	scope.AddMarker(observability.MarkerCompleted(path))
	r.emit(ctx, sink, text)
	return ResultHandled
}

func markerPath(tag Tag) string {
	switch tag {
	case TagEmailReference:
		return observability.MarkerEmailNotification
	case TagDocumentComment:
		return observability.MarkerDocumentComment
	case TagGeneric:
		return observability.MarkerGenericNotification
	default:
		return observability.MarkerDefaultNotification
	}
}

func (r *Router) emit(ctx context.Context, sink response.Sink, text string) {
	if err := response.Emit(ctx, sink, text); err != nil {
		r.logger.Error("failed to emit notification response", zap.Error(err))
	}
}

// handleEmail summarizes a referenced email. A missing payload is a
// terminal condition reported to the user without touching the model.
func (r *Router) handleEmail(ctx context.Context, env Envelope) (string, error) {
	if env.Email == nil {
		r.logger.Info("email notification missing payload")
		return msgMissingEmailDetails, nil
	}

	retrieved, err := r.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You retrieve email content. Given an email reference, reconstruct the key facts of the message."},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Retrieve the email with message id %q in conversation %q, sent by %q with subject %q.",
			env.Email.MessageID, env.Email.ConversationID, env.Email.Sender, env.Email.Subject)},
	})
	if err != nil {
		return "", fmt.Errorf("email retrieval call: %w", err)
	}

	generated, err := r.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You write short, friendly notification summaries for a busy user."},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Summarize this email from %s (subject: %s) in two sentences and suggest one next step:\n\n%s",
			env.Email.Sender, env.Email.Subject, retrieved.Content)},
	})
	if err != nil {
		return "", fmt.Errorf("email summary call: %w", err)
	}
	return generated.Content, nil
}

// handleDocumentComment summarizes a comment that mentioned the agent.
func (r *Router) handleDocumentComment(ctx context.Context, env Envelope) (string, error) {
	if env.Doc == nil {
		r.logger.Info("document comment notification missing payload")
		return msgMissingCommentDetails, nil
	}

	retrieved, err := r.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You retrieve document context. Given a comment reference, reconstruct the surrounding discussion."},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Retrieve the context for comment %q by %q on document %q. Comment text: %s",
			env.Doc.CommentID, env.Doc.Author, env.Doc.DocumentID, env.Doc.Text)},
	})
	if err != nil {
		return "", fmt.Errorf("comment retrieval call: %w", err)
	}

	generated, err := r.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You write short, friendly notification summaries for a busy user."},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"%s commented on a document you are working on. Summarize the comment and its context in two sentences:\n\n%s",
			env.Doc.Author, retrieved.Content)},
	})
	if err != nil {
		return "", fmt.Errorf("comment summary call: %w", err)
	}
	return generated.Content, nil
}

// handleGeneric acknowledges a notification we can only echo. Single
// model call; there is nothing to retrieve.
func (r *Router) handleGeneric(ctx context.Context, env Envelope) (string, error) {
	resp, err := r.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You write short, friendly notification summaries for a busy user."},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Rephrase this notification for the user in one sentence: %s", env.Text)},
	})
	if err != nil {
		return "", fmt.Errorf("generic notification call: %w", err)
	}
	return resp.Content, nil
}
