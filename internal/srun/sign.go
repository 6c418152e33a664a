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
	"crypto/hmac"
	"encoding/hex"
	"strings"

	//nolint:gosec // gosec flags MD5 and SHA1 as weak crypto, but the portal requires them
	"crypto/md5"
	//nolint:gosec // see above
	"crypto/sha1"
)

// passwordTag prefixes the keyed password signature on the wire.
const passwordTag = "{MD5}"

// PasswordHMAC returns the lowercase hex HMAC-MD5 of password keyed by the
// challenge. The cleartext password is never sent.
func PasswordHMAC(password, challenge string) string {
	mac := hmac.New(md5.New, []byte(challenge))
	mac.Write([]byte(password))

	return hex.EncodeToString(mac.Sum(nil))
}

// ChecksumInput joins an empty leading element and fields using the
// challenge as separator. The portal expects fields to be
// username, hmd5, ac_id, ip, n, type and info, in that order.
func ChecksumInput(challenge string, fields ...string) string {
	return strings.Join(append([]string{""}, fields...), challenge)
}

// Checksum returns the lowercase hex SHA-1 of ChecksumInput.
func Checksum(challenge string, fields ...string) string {
	//nolint:gosec // required by the portal
	sum := sha1.Sum([]byte(ChecksumInput(challenge, fields...)))

	return hex.EncodeToString(sum[:])
}
