package threat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLabeledThreatHeadings(t *testing.T) {
	text := `# Threat Model

## Threat: SQL Injection

**Description:** Attacker injects SQL through the login form.

**Mitigation:** Use parameterized queries.

## Threat: Broken Access Control

Attackers can view other users' records by changing the ID in the URL.
`
	recs := Extract(text)
	require.Len(t, recs, 2)

	assert.Equal(t, "SQL Injection", recs[0].Title)
	assert.Equal(t, "Attacker injects SQL through the login form.", recs[0].Description)
	assert.Equal(t, "Use parameterized queries.", recs[0].Mitigation)

	assert.Equal(t, "Broken Access Control", recs[1].Title)
	assert.Equal(t, "Attackers can view other users' records by changing the ID in the URL.", recs[1].Description)
	assert.Empty(t, recs[1].Mitigation)
}

func TestExtractGenericHeadings(t *testing.T) {
	// The blank-line pass takes every heading it matches, structural or not.
	text := `## Overview

This document lists threats for the payment service.

## Data Exfiltration

An insider copies the customer table to an external drive.

Mitigation: Restrict export permissions and audit bulk reads.

## Summary

See above.
`
	recs := Extract(text)
	require.Len(t, recs, 3)

	assert.Equal(t, "Overview", recs[0].Title)
	assert.Equal(t, "Data Exfiltration", recs[1].Title)
	assert.Equal(t, "An insider copies the customer table to an external drive.", recs[1].Description)
	assert.Equal(t, "Restrict export permissions and audit bulk reads.", recs[1].Mitigation)
	assert.Equal(t, "Summary", recs[2].Title)
}

func TestExtractLooseHeadingsSkipStructural(t *testing.T) {
	// Without blank lines after the headings the loose pass fires, and it
	// drops structural section titles.
	text := `## Overview
This document lists threats for the payment service.
## Data Exfiltration
An insider copies the customer table to an external drive.
## Summary
See above.
`
	recs := Extract(text)
	require.Len(t, recs, 1, "structural headings are not threats")

	assert.Equal(t, "Data Exfiltration", recs[0].Title)
	assert.Equal(t, "An insider copies the customer table to an external drive.", recs[0].Description)
}

func TestExtractHeadingWithoutBlankLine(t *testing.T) {
	// No blank line after the heading, so the stricter heading pattern does
	// not fire and the loose one picks the block up instead.
	text := "## Phishing\nEmployees receive credential-harvesting emails."

	recs := Extract(text)
	require.Len(t, recs, 1)
	assert.Equal(t, "Phishing", recs[0].Title)
	assert.Equal(t, "Employees receive credential-harvesting emails.", recs[0].Description)
}

func TestExtractNumberedItems(t *testing.T) {
	text := `Identified threats:

1. XSS
   Stored script in the comment field executes in every visitor's browser.
2. Weak password policy
   Eight-character passwords with no lockout invite brute forcing.
3. Backup files are stored unencrypted.
`
	recs := Extract(text)
	require.Len(t, recs, 2)

	assert.Equal(t, "XSS", recs[0].Title)
	assert.Equal(t, "Stored script in the comment field executes in every visitor's browser.", recs[0].Description)
	assert.Equal(t, "Weak password policy", recs[1].Title)
}

func TestExtractNumberedItemsSkipShortBodies(t *testing.T) {
	// The noise rule keys on the item's trailing prose, not its title: a
	// terse title with a real description stays, a title-only line goes.
	text := `1. XSS
   Stored script in the comment field executes in every visitor's browser.
2. Credential stuffing against the login endpoint.
3. CSRF
   n/a
`
	recs := Extract(text)
	require.Len(t, recs, 1, "items without descriptive prose are noise")
	assert.Equal(t, "XSS", recs[0].Title)
}

func TestExtractUntitledFallback(t *testing.T) {
	text := "## Threat:  \nSome body text describing the problem."

	recs := Extract(text)
	require.Len(t, recs, 1)
	assert.Equal(t, UntitledTitle, recs[0].Title)
	assert.Equal(t, "Some body text describing the problem.", recs[0].Description)
}

func TestExtractPatternPrecedence(t *testing.T) {
	// Labeled threat headings win even when generic headings are present.
	text := `## Architecture

The system has three tiers.

## Threat: Token Replay

**Description:** Stolen session tokens are replayed against the API.
`
	recs := Extract(text)
	require.Len(t, recs, 1)
	assert.Equal(t, "Token Replay", recs[0].Title)
}

func TestExtractNoMatch(t *testing.T) {
	assert.Empty(t, Extract(""))
	assert.Empty(t, Extract("   \n\t\n"))
	assert.Empty(t, Extract("just some prose without any recognizable structure"))
}
