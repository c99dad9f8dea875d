package domain

// Action is an admin operation that moves a Submission between states.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionDelist  Action = "delist"
)

// transitions is the complete lifecycle table. Any (from, to) pair missing
// here is an invalid transition. rejected and delisted are terminal.
var transitions = map[Status]map[Status]Action{
	StatusPending: {
		StatusApproved: ActionApprove,
		StatusRejected: ActionReject,
	},
	StatusApproved: {
		StatusDelisted: ActionDelist,
	},
}

// CanTransition reports whether the table allows moving from -> to.
// A same-state pair is not a transition and returns false.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// Target returns the status an action leads to.
func (a Action) Target() (Status, bool) {
	switch a {
	case ActionApprove:
		return StatusApproved, true
	case ActionReject:
		return StatusRejected, true
	case ActionDelist:
		return StatusDelisted, true
	}
	return "", false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// EventType names what happened to a submission.
type EventType string

const (
	EventSubmitted EventType = "submitted"
	EventApproved  EventType = "approved"
	EventRejected  EventType = "rejected"
	EventDelisted  EventType = "delisted"
	EventDeleted   EventType = "deleted"
)

// EventFor maps a target status to the event announcing it.
func EventFor(s Status) EventType {
	switch s {
	case StatusApproved:
		return EventApproved
	case StatusRejected:
		return EventRejected
	case StatusDelisted:
		return EventDelisted
	}
	return EventSubmitted
}

// Event is a "something changed" signal. It carries no payload beyond the id;
// readers re-derive state from the store.
type Event struct {
	Type EventType `json:"type"`
	ID   string    `json:"id"`
}
