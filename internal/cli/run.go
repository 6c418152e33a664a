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

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"srunctl/internal/config"
	"srunctl/internal/logger"
	"srunctl/internal/metrics"
	"srunctl/internal/pathutil"
	"srunctl/internal/resolver"
	"srunctl/internal/srun"
	"srunctl/internal/transport"
)

func actionCmd(ctx context.Context, e *env, flags *globalFlags, action srun.Action, short string) *cobra.Command {
	return &cobra.Command{
		Use:          string(action),
		Short:        short,
		Example:      "srunctl " + string(action) + " --config /etc/srunctl/config.yaml",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(ctx, cmd, e, flags, action)
		},
	}
}

func (f *globalFlags) newLogger(cmd *cobra.Command, level string) (*logger.Logger, error) {
	return logger.New(logger.Options{
		Level:  level,
		File:   f.logFile,
		Syslog: f.syslog,
		Out:    stderr(cmd),
	})
}

// withRun attaches the logger to ctx with a fresh run id.
func withRun(ctx context.Context, l *logger.Logger) context.Context {
	log := l.With().Str("run", uuid.NewString()).Logger()
	return log.WithContext(ctx)
}

func loadConfig(cmd *cobra.Command, e *env, flags *globalFlags) (*config.Config, string, error) {
	path, optional := pathutil.ConfigFile(e.fs, flags.config)

	cfg, err := config.Load(e.fs, path, optional)
	if err != nil {
		return nil, path, err
	}

	flags.overrides(cmd).Apply(cfg)

	return cfg, path, nil
}

// portalResolver queries dns_server directly when one is configured.
func portalResolver(ctx context.Context, cfg *config.Config) (transport.Resolver, error) {
	if cfg.DNSServer == "" {
		return resolver.System{}, nil
	}

	r, err := resolver.NewDNS(cfg.DNSServer, resolver.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Str("server", r.Server()).Msg("Resolving portal through DNS server")

	return r, nil
}

func runAction(ctx context.Context, cmd *cobra.Command, e *env, flags *globalFlags,
	action srun.Action) (err error) {
	cfg, path, err := loadConfig(cmd, e, flags)
	if err != nil {
		return err
	}

	l, err := flags.newLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}

	defer func() {
		//nolint:errcheck // nothing to report the failure to
		l.Close()
	}()

	ctx = withRun(ctx, l)
	log := zerolog.Ctx(ctx)
	log.Debug().Str("file", path).Msg("Configuration loaded")

	ifaces, err := e.ifaces()
	if err != nil {
		return fmt.Errorf("listing network interfaces: %w", err)
	}

	if err := cfg.Check(ctx, ifaces); err != nil {
		return err
	}

	log.Debug().Object("config", cfg).Msg("Effective configuration")

	r, err := portalResolver(ctx, cfg)
	if err != nil {
		return err
	}

	options := append([]srun.Option{srun.WithResolver(r)}, e.options...)

	var rec *metrics.Recorder

	if cfg.MetricsFile != "" {
		rec = metrics.NewRecorder()

		defer func() {
			if werr := rec.WriteTextfile(cfg.MetricsFile, e.now()); werr != nil {
				err = errors.Join(err, fmt.Errorf("writing metrics: %w", werr))
			}
		}()
	}

	out := cmd.OutOrStdout()

	flow := &srun.Flow{
		Config:  cfg,
		Action:  action,
		Force:   flags.force,
		Options: options,
		Metrics: rec,
		OnStatus: func(ctx context.Context, user config.User, online bool, report *srun.StatusReport) {
			logStatus(ctx, online, report)

			if action == srun.ActionStatus {
				printStatus(out, user, online, report, e.now())
			}
		},
	}

	return srun.Sequential{Runner: flow}.Run(ctx, cfg.Users)
}
