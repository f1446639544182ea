package enrichment

import (
	"time"

	"stockpile/internal/catalog"
)

// Trigger names why a batch ran.
type Trigger string

const (
	TriggerBackground Trigger = "background"
	TriggerForce      Trigger = "force"
	TriggerEnqueue    Trigger = "enqueue"
)

// Outcome is what one provider did for one entry.
type Outcome string

const (
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeNoMatch     Outcome = "no_match"
	OutcomeRejected    Outcome = "rejected"
	OutcomeError       Outcome = "error"
	OutcomeAccepted    Outcome = "accepted"
)

// ProviderTally counts outcomes for one provider across a batch.
type ProviderTally struct {
	Unavailable int `json:"unavailable"`
	NoMatch     int `json:"no_match"`
	Rejected    int `json:"rejected"`
	Errors      int `json:"error"`
	Accepted    int `json:"accepted"`
}

func (t *ProviderTally) add(outcome Outcome) {
	switch outcome {
	case OutcomeUnavailable:
		t.Unavailable++
	case OutcomeNoMatch:
		t.NoMatch++
	case OutcomeRejected:
		t.Rejected++
	case OutcomeError:
		t.Errors++
	case OutcomeAccepted:
		t.Accepted++
	}
}

// EntryResult is the final state of one processed entry.
type EntryResult struct {
	ID     int64         `json:"id"`
	Name   string        `json:"name"`
	State  catalog.State `json:"state"`
	Source string        `json:"source,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// BatchResult summarises one batch.
type BatchResult struct {
	ID        string                   `json:"id"`
	Trigger   Trigger                  `json:"trigger"`
	StartedAt time.Time                `json:"started_at"`
	Duration  time.Duration            `json:"duration"`
	Selected  int                      `json:"selected"`
	Enriched  int                      `json:"enriched"`
	Failed    int                      `json:"failed"`
	NotFound  int                      `json:"not_found"`
	Skipped   int                      `json:"skipped"`
	Busy      int                      `json:"busy"`
	Cancelled bool                     `json:"cancelled,omitempty"`
	Providers map[string]ProviderTally `json:"providers"`
	Entries   []EntryResult            `json:"entries,omitempty"`
}

func (r *BatchResult) tally(provider string, outcome Outcome) {
	if r.Providers == nil {
		r.Providers = make(map[string]ProviderTally)
	}
	t := r.Providers[provider]
	t.add(outcome)
	r.Providers[provider] = t
}

// Processed is the number of entries that reached a final state.
func (r BatchResult) Processed() int {
	return r.Enriched + r.Failed + r.NotFound + r.Skipped
}
