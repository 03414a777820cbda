package riskprofile

import "time"

// SequenceStep is one step of a named sequence pattern: a domain plus the set
// of event types that satisfy it.
type SequenceStep struct {
	Domain     Domain
	EventTypes map[string]struct{}
}

// SequencePattern is a named ordered template matched greedily against a
// seller's event history.
type SequencePattern struct {
	Name        string
	Steps       []SequenceStep
	MaxDuration time.Duration
	Severity    string
}

func step(domain Domain, eventTypes ...string) SequenceStep {
	set := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		set[t] = struct{}{}
	}
	return SequenceStep{Domain: domain, EventTypes: set}
}

// BustOutPattern is the literal pattern from spec.md §8 scenario 1.
var BustOutPattern = SequencePattern{
	Name: "BUST_OUT",
	Steps: []SequenceStep{
		step(DomainOnboarding, "SELLER_APPROVED"),
		step(DomainAccountSetup, "ACCOUNT_SETUP_OK"),
		step(DomainListing, "LISTING_APPROVED"),
		step(DomainTransaction, "VELOCITY_SPIKE"),
		step(DomainProfileUpdates, "BANK_CHANGE_DURING_DISPUTE"),
		step(DomainPayout, "PAYOUT_VELOCITY_SPIKE"),
	},
	MaxDuration: 60 * 24 * time.Hour,
	Severity:    "CRITICAL",
}

// SequenceMatch is the result of matching a pattern against a seller's history.
type SequenceMatch struct {
	Pattern        string
	MatchScore     float64
	StepsCompleted int
	Severity       string
}

// MatchSequence greedily advances lastMatchedTime: each step takes the first
// qualifying event at or after the previous match. If no event satisfies the
// current step, that step is skipped (partial match) and the anchor still
// holds, so later steps are searched from the same point. This
// preserves the spec's documented under-matching behaviour (spec.md §9 Open
// Questions) rather than backtracking to find a better alignment.
func MatchSequence(pattern SequencePattern, events []Event) SequenceMatch {
	sorted := append([]Event(nil), events...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].CreatedAt.After(sorted[j].CreatedAt); j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	var lastMatchedTime time.Time
	stepsCompleted := 0
	cursor := 0

	for stepIdx, s := range pattern.Steps {
		matched := false
		stepStart := cursor
		for ; cursor < len(sorted); cursor++ {
			ev := sorted[cursor]
			if ev.Domain != s.Domain {
				continue
			}
			if _, ok := s.EventTypes[ev.EventType]; !ok {
				continue
			}
			if stepIdx > 0 && !lastMatchedTime.IsZero() && ev.CreatedAt.Before(lastMatchedTime) {
				continue
			}
			lastMatchedTime = ev.CreatedAt
			stepsCompleted++
			matched = true
			cursor++
			break
		}
		// If no match found for this step, skip it (partial match) — the
		// temporal anchor (lastMatchedTime) still holds for subsequent steps.
		if !matched {
			cursor = stepStart
		}
	}

	if stepsCompleted == 0 || len(pattern.Steps) == 0 {
		return SequenceMatch{Pattern: pattern.Name, MatchScore: 0, StepsCompleted: stepsCompleted, Severity: pattern.Severity}
	}

	completionRatio := float64(stepsCompleted) / float64(len(pattern.Steps))

	withinDuration := 1.0
	if len(sorted) > 0 && stepsCompleted > 0 {
		first, last := findBoundEvents(sorted, pattern)
		if !first.IsZero() && !last.IsZero() && last.Sub(first) > pattern.MaxDuration {
			withinDuration = 0.5
		}
	}

	score := completionRatio * withinDuration

	return SequenceMatch{
		Pattern:        pattern.Name,
		MatchScore:     score,
		StepsCompleted: stepsCompleted,
		Severity:       pattern.Severity,
	}
}

// findBoundEvents returns the timestamp of the first and last events in the
// sorted history that matched any step of the pattern, for duration scoring.
func findBoundEvents(sorted []Event, pattern SequencePattern) (first, last time.Time) {
	for _, ev := range sorted {
		for _, s := range pattern.Steps {
			if ev.Domain != s.Domain {
				continue
			}
			if _, ok := s.EventTypes[ev.EventType]; !ok {
				continue
			}
			if first.IsZero() {
				first = ev.CreatedAt
			}
			last = ev.CreatedAt
		}
	}
	return first, last
}
