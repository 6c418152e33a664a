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

import "fmt"

// State is the position of a Client in the login handshake.
type State int

const (
	StateIdle State = iota
	StateChallengeRequested
	StateChallengeReceived
	StateSigned
	StateSubmitted
	StateSuccess
	StateRejected
	StateRetryPending
	StateTerminal
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateChallengeRequested: "challenge_requested",
	StateChallengeReceived:  "challenge_received",
	StateSigned:             "signed",
	StateSubmitted:          "submitted",
	StateSuccess:            "success",
	StateRejected:           "rejected",
	StateRetryPending:       "retry_pending",
	StateTerminal:           "terminal",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}

	return fmt.Sprintf("State(%d)", int(s))
}
