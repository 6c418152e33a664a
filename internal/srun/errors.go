// Copyright (c) 2026 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package srun

import (
	"errors"
	"fmt"
)

// Phase names the part of the protocol an Error comes from.
type Phase string

const (
	PhaseChallenge Phase = "challenge"
	PhaseLogin     Phase = "login"
	PhaseLogout    Phase = "logout"
	PhaseConfig    Phase = "config"
	PhaseNetwork   Phase = "network"
)

var (
	// ErrNoBindAddress means neither the configuration nor the gateway
	// status provided the IPv4 address to log in.
	ErrNoBindAddress = errors.New("no IP address configured")
	// ErrNoChallenge means get_challenge answered without a token.
	ErrNoChallenge = errors.New("server returned no challenge token")
	// ErrRetriesExhausted means every login attempt failed.
	ErrRetriesExhausted = errors.New("exceeded maximum retry attempts")
)

// Error is a terminal failure of a protocol operation.
type Error struct {
	Phase Phase
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "":
		return fmt.Sprintf("%s error: %v", e.Phase, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s error: %s", e.Phase, e.Msg)
	default:
		return fmt.Sprintf("%s error: %s: %v", e.Phase, e.Msg, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RejectedError is an explicit refusal by the portal.
type RejectedError struct {
	Action string
	Result *PortalResult
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("portal rejected %s: %s", e.Action, e.Result.Error)

	if e.Result.ErrorMsg != "" {
		msg += " (" + e.Result.ErrorMsg + ")"
	}

	if !e.Result.ECode.OK() {
		msg += ", ecode " + e.Result.ECode.String()
	}

	return msg
}

// PhaseOf returns the phase of the first *Error in err's chain.
func PhaseOf(err error) (Phase, bool) {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Phase, true
	}

	return "", false
}
