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
	"context"
	"errors"
	"net/netip"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srunctl/internal/config"
	"srunctl/internal/metrics"
)

func TestFlow(t *testing.T) {
	testcases := map[string]struct {
		action  Action
		force   bool
		online  bool
		logins  int
		logouts int
	}{
		"login when offline": {
			action: ActionLogin,
			logins: 1,
		},
		"login skipped when online": {
			action: ActionLogin,
			online: true,
		},
		"forced login when online": {
			action: ActionLogin,
			force:  true,
			online: true,
			logins: 1,
		},
		"logout when online": {
			action:  ActionLogout,
			online:  true,
			logouts: 1,
		},
		"logout skipped when offline": {
			action: ActionLogout,
		},
		"forced logout when offline": {
			action:  ActionLogout,
			force:   true,
			logouts: 1,
		},
		"status only": {
			action: ActionStatus,
			online: true,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			g := newFakeGateway(t)
			g.status = func() any {
				if tc.online {
					return StatusReport{Error: "ok", OnlineIP: "127.0.0.1", BytesIn: 10, BytesOut: 20}
				}

				return StatusReport{Error: "not_online_error", OnlineIP: "127.0.0.1"}
			}

			user := config.User{Username: "u1", Password: "p"}
			rec := metrics.NewRecorder()

			var seen []bool

			flow := &Flow{
				Config:  g.config(user),
				Action:  tc.action,
				Force:   tc.force,
				Metrics: rec,
				Options: []Option{WithTimer(newFakeTimer())},
				OnStatus: func(_ context.Context, u config.User, online bool, _ *StatusReport) {
					assert.Equal(t, netip.MustParseAddr("127.0.0.1"), u.BindAddr)
					seen = append(seen, online)
				},
			}

			require.NoError(t, flow.Run(context.Background(), user))
			assert.Equal(t, []bool{tc.online}, seen)
			assert.Len(t, g.logins, tc.logins)
			assert.Len(t, g.logouts, tc.logouts)

			online := "0"
			if tc.online {
				online = "1"
			}

			expected := `
# HELP srun_online Whether the gateway reported the user as online.
# TYPE srun_online gauge
srun_online{user="u1"} ` + online + "\n"

			assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "srun_online"))
		})
	}
}

func TestFlowLoginFailure(t *testing.T) {
	g := newFakeGateway(t)
	g.portal = func(int, url.Values) any {
		return PortalResult{Res: "login_error", Error: "login_error"}
	}

	user := config.User{Username: "u1", Password: "p"}
	cfg := g.config(user)
	cfg.RetryCount = 2

	flow := &Flow{
		Config:  cfg,
		Action:  ActionLogin,
		Options: []Option{WithTimer(newFakeTimer())},
	}

	err := flow.Run(context.Background(), user)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Len(t, g.logins, 2)
}

type recordingRunner struct {
	users []string
	fail  map[string]error
}

func (r *recordingRunner) Run(_ context.Context, user config.User) error {
	r.users = append(r.users, user.Username)
	return r.fail[user.Username]
}

func TestSequential(t *testing.T) {
	errBoom := errors.New("boom")
	runner := &recordingRunner{fail: map[string]error{"b": errBoom}}

	users := []config.User{{Username: "a"}, {Username: "b"}, {Username: "c"}}

	err := Sequential{Runner: runner}.Run(context.Background(), users)
	require.ErrorIs(t, err, errBoom)
	assert.ErrorContains(t, err, "user b")
	assert.Equal(t, []string{"a", "b", "c"}, runner.users, "a failing user does not stop the others")
}

func TestSequentialCancelled(t *testing.T) {
	runner := &recordingRunner{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sequential{Runner: runner}.Run(ctx, []config.User{{Username: "a"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runner.users)
}

func TestSequentialSuccess(t *testing.T) {
	runner := &recordingRunner{}
	assert.NoError(t, Sequential{Runner: runner}.Run(context.Background(),
		[]config.User{{Username: "a"}, {Username: "b"}}))
	assert.Equal(t, []string{"a", "b"}, runner.users)
}
