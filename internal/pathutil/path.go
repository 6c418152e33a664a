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

package pathutil

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	appName           = "srunctl"
	configFileName    = "config.yaml"
	defaultConfigDir  = "/etc/srunctl"
	configFileEnvName = "SRUN_CONFIG"
)

// ConfigPath returns the system config path (snap or deb) with the given
// relative path appended.
func ConfigPath(path string) string {
	path = filepath.Clean(path)

	base := defaultConfigDir
	if dataDir := os.Getenv("SNAP_COMMON"); dataDir != "" {
		base = filepath.Join(filepath.Clean(dataDir), defaultConfigDir)
	}

	return filepath.Join(base, path)
}

// UserConfigPath returns the per-user config path with the given relative
// path appended, or "" when no user config directory is known.
func UserConfigPath(path string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(dir, appName, filepath.Clean(path))
}

// ConfigFile picks the configuration file to load. An explicit path wins,
// then $SRUN_CONFIG, then an existing per-user file, then the system file.
// Only the system file is optional, a missing file elsewhere is an error.
func ConfigFile(fs afero.Fs, explicit string) (path string, optional bool) {
	if explicit != "" {
		return explicit, false
	}

	if f, ok := os.LookupEnv(configFileEnvName); ok && f != "" {
		return f, false
	}

	if user := UserConfigPath(configFileName); user != "" {
		if ok, err := afero.Exists(fs, user); err == nil && ok {
			return user, false
		}
	}

	return ConfigPath(configFileName), true
}
