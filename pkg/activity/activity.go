// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package activity models the inbound turn delivered by the hosting
// transport: a tagged activity carrying conversation, sender, and
// recipient identifiers plus a type-specific payload.
package activity

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Type tags an inbound activity.
type Type string

const (
	// TypeMessage is a user chat message.
	TypeMessage Type = "message"
	// TypeInstallationUpdate signals agent install or removal.
	TypeInstallationUpdate Type = "installationUpdate"
	// TypeNotification is an application notification (email mention,
	// document comment, ...), with details in Value.
	TypeNotification Type = "notification"
)

// Installation actions carried by TypeInstallationUpdate.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// Account identifies the sender of an activity.
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AADObjectID string `json:"aadObjectId"`
	UPN         string `json:"userPrincipalName"`
}

// Recipient identifies the receiving agent, carrying the agent and
// tenant hints the runtime correlates on.
type Recipient struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	TenantID     string `json:"tenantId"`
	AgenticAppID string `json:"agenticAppId"`
}

// Conversation identifies the conversation an activity belongs to.
type Conversation struct {
	ID string `json:"id"`
}

// ChannelData carries transport hints that are not part of the
// activity payload proper.
type ChannelData struct {
	// StreamingSupported reports whether the transport accepts a
	// streamed response for this turn.
	StreamingSupported bool `json:"streamingSupported"`
	// SessionID is the transport session used for presence tracking.
	SessionID string `json:"sessionId"`
}

// Activity is one inbound turn.
type Activity struct {
	Type         Type            `json:"type"`
	ID           string          `json:"id"`
	ChannelID    string          `json:"channelId"`
	Conversation Conversation    `json:"conversation"`
	From         Account         `json:"from"`
	Recipient    Recipient       `json:"recipient"`
	Text         string          `json:"text"`
	Action       string          `json:"action"`
	Value        json.RawMessage `json:"value"`
	ChannelData  ChannelData     `json:"channelData"`
}

// Decode reads one activity from the transport body.
func Decode(r io.Reader) (*Activity, error) {
	var a Activity
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode activity: %w", err)
	}
	if a.Type == "" {
		return nil, fmt.Errorf("activity has no type")
	}
	if a.Conversation.ID == "" {
		return nil, fmt.Errorf("activity has no conversation id")
	}
	return &a, nil
}

// IsInstallAdd reports whether this is an installation Add event.
func (a *Activity) IsInstallAdd() bool {
	return a.Type == TypeInstallationUpdate && strings.EqualFold(a.Action, ActionAdd)
}

// IsInstallRemove reports whether this is an installation Remove event.
func (a *Activity) IsInstallRemove() bool {
	return a.Type == TypeInstallationUpdate && strings.EqualFold(a.Action, ActionRemove)
}

// SupportsStreaming reports whether the transport advertises
// streaming support for this turn.
func (a *Activity) SupportsStreaming() bool {
	return a.ChannelData.StreamingSupported
}

// NotificationValue is the decoded payload of a TypeNotification
// activity. Exactly one of Email and Comment is set for the typed
// variants; neither for generic notifications.
type NotificationValue struct {
	NotificationType string           `json:"notificationType"`
	Text             string           `json:"text"`
	Email            *EmailPayload    `json:"email"`
	Comment          *CommentPayload  `json:"wpxComment"`
}

// Notification type tags on the wire.
const (
	NotificationTypeEmail   = "emailNotification"
	NotificationTypeComment = "wpxComment"
)

// EmailPayload references the email that mentioned the agent.
type EmailPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Subject        string `json:"subject"`
}

// CommentPayload references the document comment that mentioned the
// agent.
type CommentPayload struct {
	DocumentID string `json:"documentId"`
	CommentID  string `json:"commentId"`
	Author     string `json:"author"`
	Text       string `json:"text"`
}

// DecodeNotification parses the Value payload of a notification
// activity. A missing or empty value yields a generic notification
// with the activity text; the typed payload pointers stay nil when
// the wire payload omits them, which handlers treat as the
// missing-details condition.
func (a *Activity) DecodeNotification() (*NotificationValue, error) {
	if a.Type != TypeNotification {
		return nil, fmt.Errorf("activity type is %q, not notification", a.Type)
	}
	v := &NotificationValue{Text: a.Text}
	if len(a.Value) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(a.Value, v); err != nil {
		return nil, fmt.Errorf("failed to decode notification value: %w", err)
	}
	if v.Text == "" {
		v.Text = a.Text
	}
	return v, nil
}
