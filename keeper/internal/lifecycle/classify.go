// Package lifecycle assigns each scraped profile one of four states from
// the signals gathered while fetching it.
package lifecycle

import (
	"slices"
	"strings"

	"github.com/hazyhaar/profkeeper/keeper/internal/signal"
)

// State is the lifecycle state stored in the STATUS column.
type State string

const (
	Active     State = "Active"
	Unverified State = "Unverified"
	Banned     State = "Banned"
	Dead       State = "Dead"
)

// States lists every state in reporting order.
var States = []State{Active, Unverified, Banned, Dead}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case Active, Unverified, Banned, Dead:
		return true
	}
	return false
}

var (
	deadMarkers      = []string{"timeout", "timed out", "not found", "404", "does not exist"}
	bannedLabels     = []string{"banned", "suspended"}
	bannedBioMarkers = []string{"suspended", "suspension", "banned", "blocked"}
	unverifiedLabels = []string{"unverified", "not verified"}
)

// Classify is total: every bundle maps to exactly one state. Checks run
// in precedence order Dead, Banned, Unverified, Active.
func Classify(b signal.Bundle) State {
	reason := strings.ToLower(b.FailureReason)
	if reason != "" && containsAny(reason, deadMarkers) {
		return Dead
	}

	// Labels match whole; "unbanned" is not "banned". The bio is free
	// prose and matches on any marker it contains.
	label := strings.ToLower(strings.TrimSpace(b.Label))
	if slices.Contains(bannedLabels, label) {
		return Banned
	}
	if containsAny(strings.ToLower(b.Bio), bannedBioMarkers) {
		return Banned
	}

	if slices.Contains(unverifiedLabels, label) {
		return Unverified
	}
	return Active
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
