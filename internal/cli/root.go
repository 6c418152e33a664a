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
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"srunctl/internal/netif"
	"srunctl/internal/srun"
)

// env holds what the commands take from the host.
type env struct {
	fs     afero.Fs
	ifaces netif.Lister
	now    func() time.Time
	// options are appended to the client options of every run.
	options []srun.Option
}

func defaultEnv() *env {
	return &env{
		fs:     afero.NewOsFs(),
		ifaces: netif.System,
		now:    time.Now,
	}
}

func RootCmd(ctx context.Context) *cobra.Command {
	return newRootCmd(ctx, defaultEnv())
}

func newRootCmd(ctx context.Context, e *env) *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "srunctl",
		Short: "Log in to and out of srun captive portals.",
		// Silence because we want to use our logger instead
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolP("help", "h", false,
		"Help information about a command")
	flags.register(cmd)

	cmd.AddCommand(actionCmd(ctx, e, flags, srun.ActionLogin,
		"Log in every configured user that is not online yet."))
	cmd.AddCommand(actionCmd(ctx, e, flags, srun.ActionLogout,
		"Log out every configured user that is online."))
	cmd.AddCommand(actionCmd(ctx, e, flags, srun.ActionStatus,
		"Show the portal status of every configured user."))
	cmd.AddCommand(genConfigCmd(ctx, e, flags))
	cmd.AddCommand(showConfigCmd(ctx, e, flags))
	cmd.AddCommand(interfacesCmd(ctx, e, flags))

	cmd.InitDefaultHelpCmd()

	return cmd
}

func stderr(cmd *cobra.Command) io.Writer {
	return cmd.ErrOrStderr()
}
