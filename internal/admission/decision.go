// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package admission

import (
	"fmt"
	"net/http"

	"github.com/tolstoyevsky/shirow/internal/token"
)

// Decision is the outcome of an admission attempt: either an upgrade
// carrying the resolved identity or a rejection carrying an HTTP status.
type Decision struct {
	status   int
	identity *token.Identity
}

func Upgrade(identity *token.Identity) Decision {
	return Decision{status: http.StatusSwitchingProtocols, identity: identity}
}

func Reject(status int) Decision {
	return Decision{status: status}
}

func (d Decision) Admitted() bool {
	return d.identity != nil
}

func (d Decision) State() State {
	if d.Admitted() {
		return StateAdmitted
	}
	return StatePending
}

func (d Decision) Identity() *token.Identity {
	return d.identity
}

func (d Decision) Status() int {
	return d.status
}

func (d Decision) String() string {
	if d.Admitted() {
		return fmt.Sprintf("upgrade(%s)", d.identity)
	}
	return fmt.Sprintf("reject(%d)", d.status)
}
