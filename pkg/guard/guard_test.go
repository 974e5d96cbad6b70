// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_InstallFlow(t *testing.T) {
	m := NewMachine(Config{})
	require.Equal(t, StateUninstalled, m.State())

	eff := m.OnInstallation(ActionAdd)
	assert.Equal(t, StatePendingConsent, eff.State)
	assert.Contains(t, eff.Message, "I accept")

	// Consent prompt until the phrase arrives.
	dec := m.OnTurn("hello there")
	assert.False(t, dec.Admitted)
	assert.Equal(t, ReasonConsentPending, dec.Reason)
	assert.Contains(t, dec.Message, "I accept")

	dec = m.OnTurn("I accept")
	assert.False(t, dec.Admitted)
	assert.Empty(t, dec.Reason)
	assert.NotEmpty(t, dec.Message)
	require.Equal(t, StateActive, m.State())

	dec = m.OnTurn("What is 2+2?")
	assert.True(t, dec.Admitted)
	assert.Empty(t, dec.Message)
}

func TestMachine_AcceptPhraseNormalization(t *testing.T) {
	variants := []string{"I accept", "i accept", "  I ACCEPT  ", "\tI Accept\n"}
	for _, v := range variants {
		t.Run(v, func(t *testing.T) {
			m := NewMachine(Config{})
			m.OnInstallation(ActionAdd)
			dec := m.OnTurn(v)
			assert.False(t, dec.Admitted)
			assert.Equal(t, StateActive, m.State())
		})
	}

	// Phrase embedded in a longer sentence does not count.
	m := NewMachine(Config{})
	m.OnInstallation(ActionAdd)
	dec := m.OnTurn("sure, I accept the terms")
	assert.Equal(t, ReasonConsentPending, dec.Reason)
	assert.Equal(t, StatePendingConsent, m.State())
}

func TestMachine_ConsentGrantedOnce(t *testing.T) {
	m := NewMachine(Config{})
	m.OnInstallation(ActionAdd)

	first := m.OnTurn("I accept")
	assert.NotEmpty(t, first.Message)

	// A second accept phrase is an ordinary admitted turn.
	second := m.OnTurn("I accept")
	assert.True(t, second.Admitted)
	assert.Empty(t, second.Message)
}

func TestMachine_RejectsWhileUninstalled(t *testing.T) {
	m := NewMachine(Config{})

	dec := m.OnTurn("hello")
	assert.False(t, dec.Admitted)
	assert.Equal(t, ReasonNotInstalled, dec.Reason)
	assert.NotEmpty(t, dec.Message)

	// Accept phrase is meaningless before install.
	dec = m.OnTurn("I accept")
	assert.Equal(t, ReasonNotInstalled, dec.Reason)
	assert.Equal(t, StateUninstalled, m.State())
}

func TestMachine_RemoveResetsConsent(t *testing.T) {
	m := NewMachine(Config{})
	m.OnInstallation(ActionAdd)
	m.OnTurn("I accept")
	require.Equal(t, StateActive, m.State())

	eff := m.OnInstallation(ActionRemove)
	assert.Equal(t, StateUninstalled, eff.State)
	assert.NotEmpty(t, eff.Message)

	// Reinstall requires consent again.
	m.OnInstallation(ActionAdd)
	assert.Equal(t, StatePendingConsent, m.State())
}

func TestMachine_RedundantAdd(t *testing.T) {
	m := NewMachine(Config{})
	m.OnInstallation(ActionAdd)

	eff := m.OnInstallation(ActionAdd)
	assert.Equal(t, StatePendingConsent, eff.State)
	assert.NotEmpty(t, eff.Message)

	quiet := NewMachine(Config{SuppressRepeatGreeting: true})
	quiet.OnInstallation(ActionAdd)
	eff = quiet.OnInstallation(ActionAdd)
	assert.Empty(t, eff.Message)
}

func TestMachine_PreAcceptConsent(t *testing.T) {
	m := NewMachine(Config{PreAcceptConsent: true})

	eff := m.OnInstallation(ActionAdd)
	assert.Equal(t, StateActive, eff.State)
	assert.NotContains(t, eff.Message, "I accept")

	dec := m.OnTurn("hello")
	assert.True(t, dec.Admitted)
}

func TestMachine_CustomAcceptPhrase(t *testing.T) {
	m := NewMachine(Config{AcceptPhrase: "agree to terms"})
	m.OnInstallation(ActionAdd)

	dec := m.OnTurn("I accept")
	assert.Equal(t, ReasonConsentPending, dec.Reason)
	assert.Contains(t, dec.Message, "agree to terms")

	m.OnTurn("Agree To Terms")
	assert.Equal(t, StateActive, m.State())
}

func TestMachine_CustomMessages(t *testing.T) {
	m := NewMachine(Config{Messages: Messages{Farewell: "bye now"}})
	m.OnInstallation(ActionAdd)

	eff := m.OnInstallation(ActionRemove)
	assert.Equal(t, "bye now", eff.Message)
}
