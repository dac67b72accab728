package domain

import "fmt"

// Action names an admin lifecycle operation.
type Action string

const (
	ActionBeginProcessing Action = "begin_processing"
	ActionComplete        Action = "complete"
	ActionFail            Action = "fail"
	ActionAttachArtifact  Action = "attach_artifact"
)

var transitions = map[Action]map[Status]Status{
	ActionBeginProcessing: {
		StatusPending: StatusProcessing,
	},
	ActionComplete: {
		StatusPending:    StatusCompleted,
		StatusProcessing: StatusCompleted,
	},
	ActionFail: {
		StatusPending:    StatusFailed,
		StatusProcessing: StatusFailed,
	},
}

// Transition returns the status action moves current to. Attaching an
// artifact is only legal on a completed request and leaves status unchanged.
func Transition(requestID string, current Status, action Action) (Status, error) {
	if action == ActionAttachArtifact {
		if current == StatusCompleted {
			return current, nil
		}
		return "", &TransitionError{RequestID: requestID, Current: current, Action: action}
	}
	next, ok := transitions[action][current]
	if !ok {
		return "", &TransitionError{RequestID: requestID, Current: current, Action: action}
	}
	return next, nil
}

// TransitionError reports an operation that is illegal in the current status.
type TransitionError struct {
	RequestID string
	Current   Status
	Action    Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s request %s in status %s", ErrInvalidTransition.Error(), e.Action, e.RequestID, e.Current)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
