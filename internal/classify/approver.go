package classify

import "context"

// ReviseFailedNotice is attached to the next proposal when a revision
// request could not be applied.
const ReviseFailedNotice = "Failed to update lists. Please try again."

// Action is the reviewer's answer to a proposal.
type Action int

const (
	ActionAccept Action = iota
	ActionRequestChanges
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionRequestChanges:
		return "request-changes"
	case ActionAbort:
		return "abort"
	}
	return "unknown"
}

// Decision is returned by an Approver. Changes carries the free-text
// revision request for ActionRequestChanges.
type Decision struct {
	Action  Action
	Changes string
}

// Proposal is shown to the reviewer once per round.
type Proposal struct {
	Round        int
	Included     []Item
	Excluded     []Item
	AutoExcluded []Item
	// Notice is non-empty when the previous revision request failed.
	Notice string
}

// Approver reviews proposals. The revise loop has no bound; it ends only
// when the Approver accepts or aborts, or ctx is cancelled.
type Approver interface {
	Review(ctx context.Context, p Proposal) (Decision, error)
}

// AutoAccept accepts every proposal unchanged.
type AutoAccept struct{}

func (AutoAccept) Review(context.Context, Proposal) (Decision, error) {
	return Decision{Action: ActionAccept}, nil
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, p Proposal) (Decision, error)

func (f ApproverFunc) Review(ctx context.Context, p Proposal) (Decision, error) {
	return f(ctx, p)
}
