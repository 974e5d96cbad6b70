// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

// Standard scope names. Use these constants instead of hardcoding
// strings so exported traces stay queryable.
const (
	ScopeNameBaggage    = "conversation.baggage"
	ScopeNameInvocation = "agent.invoke"
	ScopeNameInference  = "llm.inference"
	ScopeNameToolCall   = "tool.execute"
)

// Marker paths for notification handlers. Each handler records
// Starting/Completed/Error markers built from its path.
const (
	MarkerEmailNotification   = "EmailNotification"
	MarkerDocumentComment     = "DocumentCommentNotification"
	MarkerGenericNotification = "GenericNotification"
	MarkerDefaultNotification = "DefaultNotification"
)

// MarkerStarting builds the stage-start marker for a handler path.
func MarkerStarting(path string) string { return path + ": Starting" }

// MarkerCompleted builds the stage-completion marker for a handler path.
func MarkerCompleted(path string) string { return path + ": Completed" }

// MarkerError builds the stage-failure marker for a handler path.
func MarkerError(path string) string { return path + ": Error" }
