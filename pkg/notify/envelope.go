// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package notify routes proactive notification events to their
// handlers and turns them into conversational summaries.
package notify

import "github.com/fieldline-labs/relay/pkg/activity"

// Tag discriminates the envelope union.
type Tag int

const (
	// TagGeneric is any notification we have no dedicated handler for.
	TagGeneric Tag = iota
	// TagEmailReference points at an email the user should look at.
	TagEmailReference
	// TagDocumentComment points at a comment left on a shared document.
	TagDocumentComment
	// TagUnknown is a typed notification whose type has no handler.
	TagUnknown
)

func (t Tag) String() string {
	switch t {
	case TagEmailReference:
		return "email_reference"
	case TagDocumentComment:
		return "document_comment"
	case TagUnknown:
		return "unknown"
	default:
		return "generic"
	}
}

// EmailReference identifies an email message to summarize.
type EmailReference struct {
	MessageID      string
	ConversationID string
	Sender         string
	Subject        string
}

// DocumentComment identifies a document comment to summarize.
type DocumentComment struct {
	DocumentID string
	CommentID  string
	Author     string
	Text       string
}

// Envelope is one decoded notification event. Exactly the payload
// matching Tag is populated; the rest stay nil. Treat as immutable.
type Envelope struct {
	Tag   Tag
	Text  string
	Email *EmailReference
	Doc   *DocumentComment
}

// EnvelopeFromActivity maps a decoded notification value onto an
// envelope. An untyped notification becomes TagGeneric, a typed one
// with no matching handler becomes TagUnknown, and a known type with
// a missing inner payload keeps its tag with a nil payload so the
// handler can report the gap.
func EnvelopeFromActivity(v *activity.NotificationValue) Envelope {
	if v == nil {
		return Envelope{Tag: TagGeneric}
	}
	switch v.NotificationType {
	case activity.NotificationTypeEmail:
		env := Envelope{Tag: TagEmailReference, Text: v.Text}
		if v.Email != nil {
			env.Email = &EmailReference{
				MessageID:      v.Email.MessageID,
				ConversationID: v.Email.ConversationID,
				Sender:         v.Email.Sender,
				Subject:        v.Email.Subject,
			}
		}
		return env
	case activity.NotificationTypeComment:
		env := Envelope{Tag: TagDocumentComment, Text: v.Text}
		if v.Comment != nil {
			env.Doc = &DocumentComment{
				DocumentID: v.Comment.DocumentID,
				CommentID:  v.Comment.CommentID,
				Author:     v.Comment.Author,
				Text:       v.Comment.Text,
			}
		}
		return env
	case "":
		return Envelope{Tag: TagGeneric, Text: v.Text}
	default:
		return Envelope{Tag: TagUnknown, Text: v.Text}
	}
}
