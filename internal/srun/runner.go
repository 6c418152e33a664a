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
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"srunctl/internal/config"
	"srunctl/internal/metrics"
)

// Action is what a Flow does for each user.
type Action string

const (
	ActionStatus Action = "status"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
)

// Runner processes a single user. Implementations own every resource they
// use for that user, so runs never share state.
type Runner interface {
	Run(ctx context.Context, user config.User) error
}

// StatusFunc receives the status checked before an action.
type StatusFunc func(ctx context.Context, user config.User, online bool, report *StatusReport)

// Flow checks the status of a user, then logs in when offline or logs out
// when online. Force skips the status condition.
type Flow struct {
	Config   *config.Config
	Action   Action
	Force    bool
	Options  []Option
	Metrics  *metrics.Recorder
	OnStatus StatusFunc
}

func (f *Flow) Run(ctx context.Context, user config.User) (err error) {
	start := time.Now()

	defer func() {
		f.Metrics.Operation(user.Username, string(f.Action), time.Since(start), err)
	}()

	options := append([]Option{WithMetrics(f.Metrics)}, f.Options...)

	client, err := NewClient(ctx, f.Config, user, options...)
	if err != nil {
		return err
	}

	defer func() {
		//nolint:errcheck // nothing left to do with the connection
		client.Close()
	}()

	online, report, err := client.CheckStatus(ctx)
	if err != nil {
		return err
	}

	f.Metrics.Status(user.Username, online, report.BytesIn, report.BytesOut, report.SumSeconds)

	if f.OnStatus != nil {
		f.OnStatus(ctx, client.User(), online, report)
	}

	log := zerolog.Ctx(ctx)

	switch f.Action {
	case ActionStatus:
		return nil
	case ActionLogin:
		if online && !f.Force {
			log.Info().Msg("Already online, skipping login")
			return nil
		}

		_, err = client.Login(ctx)
	case ActionLogout:
		if !online && !f.Force {
			log.Info().Msg("Not online, skipping logout")
			return nil
		}

		_, err = client.Logout(ctx)
	default:
		return fmt.Errorf("unknown action %q", f.Action)
	}

	return err
}

// Sequential runs users one after another. A failing user does not stop the
// following ones; all failures are returned joined.
type Sequential struct {
	Runner Runner
}

func (s Sequential) Run(ctx context.Context, users []config.User) error {
	var errs []error

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		log := zerolog.Ctx(ctx).With().Str("username", user.Username).Logger()
		uctx := log.WithContext(ctx)

		log.Info().Object("user", user).Msg("Processing user")

		if err := s.Runner.Run(uctx, user); err != nil {
			log.Error().Err(err).Msg("User failed")
			errs = append(errs, fmt.Errorf("user %s: %w", user.Username, err))
		}
	}

	return errors.Join(errs...)
}
