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
	"time"

	"github.com/spf13/cobra"

	"srunctl/internal/config"
)

// globalFlags are shared by every command. Every configuration field can be
// overridden; only flags given on the command line take effect.
type globalFlags struct {
	config  string
	force   bool
	logFile string
	syslog  bool

	server      string
	serverIP    string
	verifyCert  string
	username    string
	password    string
	ip          string
	iface       string
	strictBind  bool
	enc         string
	n           uint32
	typ         uint32
	acid        uint32
	doubleStack bool
	os          string
	osName      string
	retryCount  uint32
	retryDelay  uint64
	timeout     time.Duration
	dnsServer   string
	logLevel    string
	metricsFile string
}

func (f *globalFlags) register(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()

	fs.StringVarP(&f.config, "config", "c", "", "Config file path")
	fs.BoolVarP(&f.force, "force", "f", false, "Log in or out even if already in the desired state")
	fs.StringVar(&f.logFile, "log-file", "", "Write logs to this file instead of stderr")
	fs.BoolVar(&f.syslog, "syslog", false, "Write logs to syslog instead of stderr")

	fs.StringVarP(&f.server, "server", "s", "", `Portal server (default "http://10.0.0.1")`)
	fs.StringVar(&f.serverIP, "server-ip", "", "Portal server IP, skips name resolution")
	fs.StringVar(&f.verifyCert, "verify-cert", "",
		`Certificate verification: skip, system, none, sha256:<fingerprint> or a CA file (default "system")`)
	fs.StringVarP(&f.username, "username", "u", "", "Username")
	fs.StringVarP(&f.password, "password", "p", "", "Password")
	fs.StringVar(&f.ip, "ip", "", "IPv4 address to log in")
	fs.StringVar(&f.iface, "iface", "", "Network interface whose IPv4 address is logged in")
	fs.BoolVar(&f.strictBind, "strict-bind", false, "Bind the connection to the user's address")
	fs.StringVar(&f.enc, "enc", "", `Portal enc parameter (default "srun_bx1")`)
	fs.Uint32Var(&f.n, "n", 0, "Portal n parameter (default 200)")
	fs.Uint32Var(&f.typ, "type", 0, "Portal type parameter (default 1)")
	fs.Uint32Var(&f.acid, "acid", 0, "Portal ac_id parameter (default 1)")
	fs.BoolVar(&f.doubleStack, "double-stack", false, "Enable double stack")
	fs.StringVar(&f.os, "os", "", `Operating system reported to the portal (default "Linux")`)
	fs.StringVar(&f.osName, "os-name", "", `Operating system name reported to the portal (default "Linux")`)
	fs.Uint32Var(&f.retryCount, "retry-count", 0, "Login attempts (default 10)")
	fs.Uint64Var(&f.retryDelay, "retry-delay", 0, "Delay between login attempts in milliseconds (default 500)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Connect and request timeout (default 10s)")
	fs.StringVar(&f.dnsServer, "dns-server", "", "DNS server used to resolve the portal")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (trace|debug|info|warn|error)")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
}

func changed[T any](cmd *cobra.Command, name string, v *T) *T {
	if cmd.Flags().Changed(name) {
		return v
	}

	return nil
}

func (f *globalFlags) overrides(cmd *cobra.Command) config.Overrides {
	return config.Overrides{
		Server:      changed(cmd, "server", &f.server),
		ServerIP:    changed(cmd, "server-ip", &f.serverIP),
		VerifyCert:  changed(cmd, "verify-cert", &f.verifyCert),
		Username:    changed(cmd, "username", &f.username),
		Password:    changed(cmd, "password", &f.password),
		IP:          changed(cmd, "ip", &f.ip),
		Iface:       changed(cmd, "iface", &f.iface),
		StrictBind:  changed(cmd, "strict-bind", &f.strictBind),
		Enc:         changed(cmd, "enc", &f.enc),
		N:           changed(cmd, "n", &f.n),
		Type:        changed(cmd, "type", &f.typ),
		ACID:        changed(cmd, "acid", &f.acid),
		DoubleStack: changed(cmd, "double-stack", &f.doubleStack),
		OS:          changed(cmd, "os", &f.os),
		OSName:      changed(cmd, "os-name", &f.osName),
		RetryCount:  changed(cmd, "retry-count", &f.retryCount),
		RetryDelay:  changed(cmd, "retry-delay", &f.retryDelay),
		Timeout:     changed(cmd, "timeout", &f.timeout),
		DNSServer:   changed(cmd, "dns-server", &f.dnsServer),
		LogLevel:    changed(cmd, "log-level", &f.logLevel),
		MetricsFile: changed(cmd, "metrics-file", &f.metricsFile),
	}
}
