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

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"srunctl/internal/certutil"
)

// TrustMode selects how the gateway certificate is checked.
type TrustMode int

const (
	// TrustNone means no TLS is available. HTTPS endpoints are rejected.
	TrustNone TrustMode = iota
	// TrustSkip accepts any certificate, without chain or host checks.
	// Captive portals often serve self-signed or mismatched certificates.
	TrustSkip
	// TrustSystem validates against the platform trust store.
	TrustSystem
	// TrustCustom validates against the CA certificate(s) in CAFile only.
	TrustCustom
	// TrustPinned accepts a leaf certificate whose SHA-256 fingerprint is
	// listed in Fingerprints.
	TrustPinned
)

const fingerprintPrefix = "sha256:"

func (m TrustMode) String() string {
	switch m {
	case TrustNone:
		return "none"
	case TrustSkip:
		return "skip"
	case TrustSystem:
		return "system"
	case TrustCustom:
		return "custom"
	case TrustPinned:
		return "pinned"
	default:
		return fmt.Sprintf("TrustMode(%d)", int(m))
	}
}

// TrustPolicy is the certificate trust policy of an HTTPS endpoint.
type TrustPolicy struct {
	Mode         TrustMode
	CAFile       string
	Fingerprints []string
}

// ParseTrustPolicy maps a verify_cert setting to a policy:
// "skip", "system", "none", "sha256:<hex>[,<hex>...]", or a CA file path.
func ParseTrustPolicy(s string) (TrustPolicy, error) {
	s = strings.TrimSpace(s)

	switch {
	case s == "" || s == "system":
		return TrustPolicy{Mode: TrustSystem}, nil
	case s == "skip":
		return TrustPolicy{Mode: TrustSkip}, nil
	case s == "none":
		return TrustPolicy{Mode: TrustNone}, nil
	case strings.HasPrefix(s, fingerprintPrefix):
		var fps []string

		for _, fp := range strings.Split(strings.TrimPrefix(s, fingerprintPrefix), ",") {
			fp = certutil.NormalizeFingerprint(fp)
			if len(fp) != 64 {
				return TrustPolicy{}, fmt.Errorf("invalid SHA-256 fingerprint %q", fp)
			}

			fps = append(fps, fp)
		}

		return TrustPolicy{Mode: TrustPinned, Fingerprints: fps}, nil
	default:
		return TrustPolicy{Mode: TrustCustom, CAFile: s}, nil
	}
}

func (p TrustPolicy) String() string {
	switch p.Mode {
	case TrustCustom:
		return p.CAFile
	case TrustPinned:
		return fingerprintPrefix + strings.Join(p.Fingerprints, ",")
	default:
		return p.Mode.String()
	}
}

// TLSConfig builds the client TLS configuration for serverName.
func (p TrustPolicy) TLSConfig(fs afero.Fs, serverName string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	switch p.Mode {
	case TrustSystem:
		// nil RootCAs means the host's root set.
	case TrustSkip:
		//nolint:gosec // explicitly requested for captive portals
		cfg.InsecureSkipVerify = true
	case TrustCustom:
		pool, err := certutil.LoadCAPool(fs, p.CAFile)
		if err != nil {
			return nil, err
		}

		cfg.RootCAs = pool
	case TrustPinned:
		fps := make([]string, len(p.Fingerprints))
		for i, fp := range p.Fingerprints {
			fps[i] = certutil.NormalizeFingerprint(fp)
		}

		//nolint:gosec // the leaf is checked in VerifyPeerCertificate
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("server presented no certificate")
			}

			fp := certutil.Fingerprint(rawCerts[0])
			if !slices.Contains(fps, fp) {
				return fmt.Errorf("certificate fingerprint %s is not pinned", fp)
			}

			return nil
		}
	default:
		return nil, ErrTLSUnavailable
	}

	return cfg, nil
}
