package proposal

import "sort"

// statusPriority orders the reviewable statuses a client may see. A freshly
// sent proposal always outranks an already approved one, which in turn
// outranks one awaiting revision, regardless of recency.
var statusPriority = []Status{StatusSentToClient, StatusApproved, StatusRevisionRequested}

// SelectDisplay picks the single proposal a client-facing view should show
// for a contact, or nil when there is nothing to show.
//
// Among reviewable proposals the first non-empty status group in priority
// order wins; within a group, current proposals beat superseded ones and
// newer beat older. Remaining ties break on id ascending so the result is a
// total order and repeated calls agree. When no reviewable proposal exists,
// the most recent legacy record is shown instead.
//
// The input slice is never modified.
func SelectDisplay(proposals []Proposal) *Proposal {
	reviewable := make([]Proposal, 0, len(proposals))
	for _, p := range proposals {
		if p.Status.Reviewable() {
			reviewable = append(reviewable, p)
		}
	}

	if len(reviewable) == 0 {
		return legacyFallback(proposals)
	}

	for _, status := range statusPriority {
		group := make([]Proposal, 0, len(reviewable))
		for _, p := range reviewable {
			if p.Status == status {
				group = append(group, p)
			}
		}
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].IsCurrent != group[j].IsCurrent {
				return group[i].IsCurrent
			}
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.After(group[j].CreatedAt)
			}
			return group[i].ID.String() < group[j].ID.String()
		})
		head := group[0]
		return &head
	}

	return nil
}

func legacyFallback(proposals []Proposal) *Proposal {
	var best *Proposal
	for i := range proposals {
		p := proposals[i]
		if !p.Legacy {
			continue
		}
		if best == nil ||
			p.CreatedAt.After(best.CreatedAt) ||
			(p.CreatedAt.Equal(best.CreatedAt) && p.ID.String() < best.ID.String()) {
			candidate := p
			best = &candidate
		}
	}
	return best
}
