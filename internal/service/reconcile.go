package service

import (
	"github.com/chatterdesk/presence-engine/internal/model"
)

// Plan is the minimal set of session operations that moves the live set to
// the desired-active set. ToOpen and ToClose are disjoint by construction
// and may be applied in any order.
type Plan struct {
	ToOpen  []model.Pair
	ToClose []model.AttendanceSession
}

// Reconcile diffs the desired-active set against the currently live
// sessions. Pure: all I/O stays in the drivers, so the diff itself is
// testable without a database.
//
// The desired slice may contain duplicates (several shift declarations can
// cover the same pair at once); ToOpen is deduplicated.
func Reconcile(desired []model.Pair, live []model.AttendanceSession) Plan {
	desiredKeys := make(map[model.Pair]bool, len(desired))
	for _, pair := range desired {
		desiredKeys[pair] = true
	}

	liveKeys := make(map[model.Pair]bool, len(live))
	var toClose []model.AttendanceSession
	for _, session := range live {
		pair := session.Pair()
		liveKeys[pair] = true
		if !desiredKeys[pair] {
			toClose = append(toClose, session)
		}
	}

	seen := make(map[model.Pair]bool, len(desired))
	var toOpen []model.Pair
	for _, pair := range desired {
		if liveKeys[pair] || seen[pair] {
			continue
		}
		seen[pair] = true
		toOpen = append(toOpen, pair)
	}

	return Plan{ToOpen: toOpen, ToClose: toClose}
}

// RunSummary is the structured result every reconciliation run returns to
// its caller, successful or not.
type RunSummary struct {
	Status          string `json:"status"`
	ClockedIn       int    `json:"clockedIn"`
	ClockedOut      int    `json:"clockedOut"`
	ActiveCount     int    `json:"activeCount"`
	TotalCandidates int    `json:"totalCandidates"`
	Partial         bool   `json:"partial,omitempty"`
	Skipped         int    `json:"skipped,omitempty"`
}

const (
	StatusOK            = "ok"
	StatusNotConfigured = "not_configured"
)
