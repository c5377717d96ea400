package api

import "fmt"

// ValidateInvocationTransition checks whether a tool invocation state change is
// valid. An empty "from" state is the initial state before the invocation has
// been announced. Completed is terminal.
func ValidateInvocationTransition(from, to InvocationState) *APIError {
	valid := map[InvocationState][]InvocationState{
		"":                {InvocationPending},
		InvocationPending: {InvocationCompleted},
	}

	for _, s := range valid[from] {
		if s == to {
			return nil
		}
	}

	return NewInvalidRequestError("state",
		fmt.Sprintf("invalid transition from %q to %q", from, to))
}
