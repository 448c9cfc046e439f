// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package admission

// State represents a connection with respect to admission.
// There is no transition out of Admitted and no re-authentication.
type State int

const (
	// Before the token was checked, or after it was rejected
	StatePending State = 0
	// After the token was accepted and the transport upgraded
	StateAdmitted State = 1
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAdmitted:
		return "admitted"
	}
	return "<unknown>"
}
