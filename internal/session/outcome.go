package session

import (
	"github.com/rs/zerolog/log"

	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

// OutcomeTracker holds the call's terminal classification. It starts at
// OutcomeUnset and takes the last valid value written; no transition is
// disallowed, writes overwrite rather than accumulate. The zero value is
// ready to use.
type OutcomeTracker struct {
	current models.OutcomeState
}

// Set replaces the current outcome when v is a member of the enumerated set.
// A non-member is a logged no-op: conversational logic must never be able to
// break a call by reporting a bad outcome.
func (t *OutcomeTracker) Set(v models.OutcomeState) {
	if !v.IsValid() {
		log.Warn().
			Str("outcome", string(v)).
			Str("current", string(t.Value())).
			Msg("Ignoring invalid call outcome")
		return
	}
	t.current = v
}

// Value returns the current outcome, OutcomeUnset when nothing has been set.
func (t *OutcomeTracker) Value() models.OutcomeState {
	if t.current == "" {
		return models.OutcomeUnset
	}
	return t.current
}
