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
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"srunctl/internal/config"
	"srunctl/internal/srun"
)

func logStatus(ctx context.Context, online bool, r *srun.StatusReport) {
	log := zerolog.Ctx(ctx)

	if !online {
		log.Info().Str("online_ip", r.OnlineIP).Msg("Not logged in")
		return
	}

	log.Info().Str("online_ip", r.OnlineIP).Str("mac", r.UserMAC).Str("user_name", r.UserName).
		Msg("Already logged in")
	log.Info().
		Str("bytes_in", humanize.IBytes(r.BytesIn)).
		Str("bytes_out", humanize.IBytes(r.BytesOut)).
		Str("all_bytes", humanize.IBytes(r.AllBytes)).
		Str("sum_bytes", humanize.IBytes(r.SumBytes)).
		Dur("sum_time", time.Duration(r.SumSeconds)*time.Second).
		Msg("Usage")

	if r.AddTime > 0 {
		log.Info().Time("since", time.Unix(r.AddTime, 0)).Msg("Online")
	}

	log.Debug().Str("sysver", r.SysVer).Msg("Gateway version")
}

func printStatus(w io.Writer, user config.User, online bool, r *srun.StatusReport, now time.Time) {
	if !online {
		//nolint:errcheck // best effort output
		fmt.Fprintf(w, "%s: offline (gateway sees %s)\n", user.Username, r.OnlineIP)
		return
	}

	since := ""
	if r.AddTime > 0 {
		since = ", since " + humanize.RelTime(time.Unix(r.AddTime, 0), now, "ago", "from now")
	}

	//nolint:errcheck // best effort output
	fmt.Fprintf(w, "%s: online at %s, %s in, %s out, %s total%s\n",
		user.Username, r.OnlineIP,
		humanize.IBytes(r.BytesIn), humanize.IBytes(r.BytesOut), humanize.IBytes(r.SumBytes), since)
}
