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

package config

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"srunctl/internal/atomicfile"
)

const exampleTemplateName = "config.yaml.tmpl"

//go:embed config.yaml.tmpl
var exampleFS embed.FS

var exampleTmpl = template.Must(
	template.New(exampleTemplateName).ParseFS(exampleFS, exampleTemplateName),
)

// GenerateExample renders an example configuration with the defaults and two
// placeholder users, writes it to file and returns the parsed result.
func GenerateExample(fsys afero.Fs, file string) (*Config, error) {
	var buf bytes.Buffer

	if err := exampleTmpl.Execute(&buf, Default()); err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}

	if err := atomicfile.WriteFileWithFs(fsys, file, buf.Bytes(), 0o600); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(buf.Bytes(), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
