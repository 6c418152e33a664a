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

// Package xencode produces the "info" field of an srun login request.
//
// The credential record is serialised as JSON, encrypted with the XXTEA
// variant used by the srun portal page (keyed by the challenge), and encoded
// with Base64 over the portal's own alphabet. The result is prefixed with
// {SRBX1}. Gateways decrypt the value with the same challenge, so the
// transform has to match theirs bit for bit.
package xencode

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
)

const (
	// Version is the default enc_ver sent inside the payload.
	Version = "srun_bx1"
	// Prefix marks the payload format.
	Prefix = "{SRBX1}"
	// Alphabet is the Base64 alphabet used by the portal.
	Alphabet = "LVoJPiCN2R8G90yg+hmFHuacZ1OWMnrsSTXkYpUq/3dlbfKwv6xztjI7DeBE45QA"

	delta uint32 = 0x9E3779B9
)

// Encoding is standard-padded Base64 over Alphabet.
var Encoding = base64.NewEncoding(Alphabet)

// Field order matters to gateways that compare the decrypted text.
type userInfo struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IP       string `json:"ip"`
	ACID     string `json:"acid"`
	EncVer   string `json:"enc_ver"`
}

// Encode returns the opaque payload for the default enc_ver.
func Encode(username, password, ip, acid, challenge string) string {
	return EncodeVersion(username, password, ip, acid, challenge, Version)
}

// EncodeVersion returns the opaque payload for the given enc_ver.
func EncodeVersion(username, password, ip, acid, challenge, encVer string) string {
	if encVer == "" {
		encVer = Version
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	// A struct of strings always encodes.
	_ = enc.Encode(userInfo{
		Username: username,
		Password: password,
		IP:       ip,
		ACID:     acid,
		EncVer:   encVer,
	})

	msg := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})

	return Prefix + Encoding.EncodeToString(Encrypt(msg, []byte(challenge)))
}

// Encrypt runs the portal's XXTEA variant over msg. The plaintext length is
// appended as an extra word before encryption, and the key is zero padded to
// four words. An empty message encrypts to nil.
func Encrypt(msg, key []byte) []byte {
	if len(msg) == 0 {
		return nil
	}

	v := toWords(msg, true)
	k := toWords(key, false)

	if len(k) < 4 {
		k = append(k, make([]uint32, 4-len(k))...)
	}

	n := uint32(len(v) - 1)
	z := v[n]

	var (
		y   uint32
		sum uint32
	)

	for q := 6 + 52/(n+1); q > 0; q-- {
		sum += delta
		e := (sum >> 2) & 3

		var p uint32
		for p = 0; p < n; p++ {
			y = v[p+1]
			v[p] += mx(sum, y, z, p, e, k)
			z = v[p]
		}

		y = v[0]
		v[n] += mx(sum, y, z, p, e, k)
		z = v[n]
	}

	return fromWords(v)
}

func mx(sum, y, z, p, e uint32, k []uint32) uint32 {
	return (z>>5 ^ y<<2) + (y>>3 ^ z<<4 ^ (sum ^ y)) + (k[(p&3)^e] ^ z)
}

func toWords(data []byte, withLength bool) []uint32 {
	words := make([]uint32, (len(data)+3)/4, (len(data)+3)/4+1)

	for i, b := range data {
		words[i>>2] |= uint32(b) << ((i & 3) << 3)
	}

	if withLength {
		words = append(words, uint32(len(data)))
	}

	return words
}

func fromWords(words []uint32) []byte {
	out := make([]byte, len(words)*4)

	for i, w := range words {
		out[i*4] = byte(w)
		out[i*4+1] = byte(w >> 8)
		out[i*4+2] = byte(w >> 16)
		out[i*4+3] = byte(w >> 24)
	}

	return out
}
