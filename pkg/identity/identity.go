// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package identity defines the directory/identity provider contract:
// paged enumeration of agent identities by blueprint, and the
// presence-set operation the keep-alive scheduler calls.
package identity

import (
	"context"
	"time"
)

// Availability is the presence availability state.
type Availability string

const (
	AvailabilityAvailable Availability = "Available"
	AvailabilityBusy      Availability = "Busy"
	AvailabilityAway      Availability = "Away"
	AvailabilityOffline   Availability = "Offline"
)

// ActivityState is the presence activity detail.
type ActivityState string

const (
	ActivityAvailable ActivityState = "Available"
	ActivityInACall   ActivityState = "InACall"
	ActivityAway      ActivityState = "Away"
	ActivityOffline   ActivityState = "Offline"
)

// AgentIdentity is one directory entry for a provisioned agent
// instance.
type AgentIdentity struct {
	ID          string
	TenantID    string
	UserID      string
	SessionID   string
	DisplayName string
	BlueprintID string
}

// Page is one page of a directory listing.
type Page struct {
	Items []AgentIdentity
	// NextPageToken is empty on the last page.
	NextPageToken string
}

// PresenceRequest is one presence-set operation.
type PresenceRequest struct {
	UserID       string
	SessionID    string
	Availability Availability
	Activity     ActivityState
	// ExpiresIn is the upstream presence TTL.
	ExpiresIn time.Duration
}

// Directory is the identity provider consumed by the presence
// scheduler and its bootstrap loop.
type Directory interface {
	// ListByBlueprint pages through all identities whose parent
	// blueprint id matches blueprintID. Pass an empty pageToken for
	// the first page.
	ListByBlueprint(ctx context.Context, blueprintID string, pageSize int, pageToken string) (*Page, error)

	// SetPresence refreshes the presence record for a session.
	SetPresence(ctx context.Context, req PresenceRequest) error
}
