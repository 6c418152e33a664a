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
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"srunctl/internal/config"
	"srunctl/internal/netif"
)

func genConfigCmd(ctx context.Context, e *env, flags *globalFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:          "gen-config",
		Short:        "Write an example configuration file.",
		Example:      "srunctl gen-config --file ./config.yaml",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := flags.newLogger(cmd, flags.logLevel)
			if err != nil {
				return err
			}

			defer func() {
				//nolint:errcheck // nothing to report the failure to
				l.Close()
			}()

			ctx := withRun(ctx, l)
			zerolog.Ctx(ctx).Info().Str("file", file).Msg("Generating example configuration")

			cfg, err := config.GenerateExample(e.fs, file)
			if err != nil {
				return err
			}

			zerolog.Ctx(ctx).Debug().Object("config", cfg).Msg("Example configuration")

			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "./config.yaml", "Where to write the example configuration")

	return cmd
}

func showConfigCmd(ctx context.Context, e *env, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:          "show-config",
		Short:        "Print the effective configuration with passwords masked.",
		Example:      "srunctl show-config --config /etc/srunctl/config.yaml",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			zerolog.Ctx(withRun(ctx, l)).Debug().Str("file", path).Msg("Configuration loaded")

			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("encoding configuration: %w", err)
			}

			_, err = cmd.OutOrStdout().Write(data)

			return err
		},
	}
}

func interfacesCmd(ctx context.Context, e *env, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:          "interfaces",
		Short:        "List local network interfaces and their addresses.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := flags.newLogger(cmd, flags.logLevel)
			if err != nil {
				return err
			}

			defer func() {
				//nolint:errcheck // nothing to report the failure to
				l.Close()
			}()

			zerolog.Ctx(withRun(ctx, l)).Debug().Msg("Listing network interfaces")

			ifaces, err := e.ifaces()
			if err != nil {
				return fmt.Errorf("listing network interfaces: %w", err)
			}

			out := cmd.OutOrStdout()

			for _, entry := range netif.Entries(ifaces) {
				family := "IPv4"
				if !entry.Addr.Is4() {
					family = "IPv6"
				}

				//nolint:errcheck // best effort output
				fmt.Fprintf(out, "(%s) %s: %s\n", family, entry.Name, entry.Addr)
			}

			return nil
		},
	}
}
