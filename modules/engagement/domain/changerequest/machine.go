package changerequest

import (
	"fmt"
	"sort"
)

// InvalidTransitionError reports an action that is not defined for the
// current status. Attempts from terminal statuses land here too: terminal
// statuses have no outgoing transitions at all.
type InvalidTransitionError struct {
	From   Status
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("action %q is not allowed from status %q", e.Action, e.From)
}

// transitions is the full (status, action) -> next status table. Actor and
// payload guards live with the orchestrator; this table only answers whether
// the move exists at all.
var transitions = map[Status]map[Action]Status{
	StatusDraft: {
		ActionSaveDraft: StatusDraft,
		ActionSubmit:    StatusSubmitted,
		ActionTerminate: StatusTerminated,
	},
	StatusSubmitted: {
		ActionAttachImpact: StatusProcessing,
		ActionTerminate:    StatusTerminated,
	},
	StatusProcessing: {
		ActionAttachImpact: StatusProcessing,
		ActionSendToClient: StatusClientUnderReview,
		ActionTerminate:    StatusTerminated,
	},
	StatusClientUnderReview: {
		ActionApprove:          StatusApproved,
		ActionRequestForChange: StatusRequestForChange,
		ActionTerminate:        StatusTerminated,
	},
	StatusRequestForChange: {
		ActionReopen:    StatusDraft,
		ActionResubmit:  StatusSubmitted,
		ActionTerminate: StatusTerminated,
	},
	StatusApproved:   {},
	StatusTerminated: {},
}

// Next resolves the status the given action leads to from the current one.
func Next(current Status, action Action) (Status, error) {
	allowed, ok := transitions[current]
	if !ok {
		return "", &InvalidTransitionError{From: current, Action: action}
	}
	next, ok := allowed[action]
	if !ok {
		return "", &InvalidTransitionError{From: current, Action: action}
	}
	return next, nil
}

func CanTransition(current Status, action Action) bool {
	_, err := Next(current, action)
	return err == nil
}

// AllowedActions lists the actions defined for a status, sorted for stable
// output.
func AllowedActions(current Status) []Action {
	allowed := transitions[current]
	out := make([]Action, 0, len(allowed))
	for action := range allowed {
		out = append(out, action)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllStatuses enumerates every status the machine knows, sorted.
func AllStatuses() []Status {
	out := make([]Status, 0, len(transitions))
	for s := range transitions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllActions enumerates every action the machine knows, sorted.
func AllActions() []Action {
	seen := map[Action]struct{}{}
	for _, allowed := range transitions {
		for action := range allowed {
			seen[action] = struct{}{}
		}
	}
	out := make([]Action, 0, len(seen))
	for action := range seen {
		out = append(out, action)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
