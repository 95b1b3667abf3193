package lifecycle

import "github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"

var transitions = map[model.Status][]model.Status{
	model.StatusPending:  {model.StatusApproved, model.StatusDenied, model.StatusRescheduled},
	model.StatusApproved: {model.StatusCancelled},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// rank orders statuses by how far along the lifecycle they are. A refresh never replaces a
// local status with a lower-ranked remote one.
func rank(s model.Status) int {
	switch s {
	case model.StatusPending:
		return 0
	case model.StatusApproved:
		return 1
	case model.StatusDenied, model.StatusRescheduled:
		return 2
	case model.StatusCancelled:
		return 3
	}
	return -1
}

const maxProposedSlots = 3
