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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Success marker used by the res and error fields.
const successMarker = "ok"

// ECodeKind tells which representation an ECode carries.
type ECodeKind int

const (
	ECodeNumeric ECodeKind = iota
	ECodeText
)

// ECode is the portal error code. Gateway versions disagree on whether it
// is a JSON number or a string, so both are kept as sent.
type ECode struct {
	Kind    ECodeKind
	Numeric int64
	Text    string
}

func (e *ECode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case bytes.Equal(data, []byte("null")):
		*e = ECode{}
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*e = ECode{Kind: ECodeText, Text: s}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("ecode: %w", err)
		}

		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return fmt.Errorf("ecode: %w", err)
			}

			i = int64(f)
		}

		*e = ECode{Kind: ECodeNumeric, Numeric: i}
	}

	return nil
}

func (e ECode) MarshalJSON() ([]byte, error) {
	if e.Kind == ECodeText {
		return json.Marshal(e.Text)
	}

	return json.Marshal(e.Numeric)
}

func (e ECode) String() string {
	if e.Kind == ECodeText {
		return e.Text
	}

	return strconv.FormatInt(e.Numeric, 10)
}

// OK reports whether the code means no error in its own representation:
// 0 when numeric, "", "0" or "ok" when textual.
func (e ECode) OK() bool {
	if e.Kind == ECodeNumeric {
		return e.Numeric == 0
	}

	switch e.Text {
	case "", "0", successMarker:
		return true
	default:
		return false
	}
}

// StatusReport is the rad_user_info answer. Most fields are only present
// while the user is online.
type StatusReport struct {
	OnlineIP      string  `json:"online_ip"`
	Error         string  `json:"error"`
	ServerFlag    int64   `json:"ServerFlag"`
	AddTime       int64   `json:"add_time"`
	AllBytes      uint64  `json:"all_bytes"`
	BytesIn       uint64  `json:"bytes_in"`
	BytesOut      uint64  `json:"bytes_out"`
	CheckoutDate  int64   `json:"checkout_date"`
	Domain        string  `json:"domain"`
	KeepaliveTime int64   `json:"keepalive_time"`
	RealName      string  `json:"real_name"`
	RemainSeconds int64   `json:"remain_seconds"`
	SumBytes      uint64  `json:"sum_bytes"`
	SumSeconds    int64   `json:"sum_seconds"`
	SysVer        string  `json:"sysver"`
	UserBalance   float64 `json:"user_balance"`
	UserCharge    float64 `json:"user_charge"`
	UserMAC       string  `json:"user_mac"`
	UserName      string  `json:"user_name"`
	WalletBalance float64 `json:"wallet_balance"`
	ClientIP      string  `json:"client_ip"`
	ECode         ECode   `json:"ecode"`
	ErrorMsg      string  `json:"error_msg"`
	Res           string  `json:"res"`
	SrunVer       string  `json:"srun_ver"`
	ST            int64   `json:"st"`
}

// PortalResult is the srun_portal answer to a login or logout.
type PortalResult struct {
	ServerFlag             int64   `json:"ServerFlag"`
	ServicesIntfServerIP   string  `json:"ServicesIntfServerIP"`
	ServicesIntfServerPort string  `json:"ServicesIntfServerPort"`
	AccessToken            string  `json:"access_token"`
	CheckoutDate           int64   `json:"checkout_date"`
	ECode                  ECode   `json:"ecode"`
	Error                  string  `json:"error"`
	ErrorMsg               string  `json:"error_msg"`
	ClientIP               string  `json:"client_ip"`
	OnlineIP               string  `json:"online_ip"`
	RealName               string  `json:"real_name"`
	RemainFlux             int64   `json:"remain_flux"`
	RemainTimes            int64   `json:"remain_times"`
	Res                    string  `json:"res"`
	SrunVer                string  `json:"srun_ver"`
	SucMsg                 string  `json:"suc_msg"`
	SysVer                 string  `json:"sysver"`
	Username               string  `json:"username"`
	WalletBalance          float64 `json:"wallet_balance"`
	ST                     int64   `json:"st"`
}

// OK reports whether the portal accepted the request.
func (r *PortalResult) OK() bool {
	return r.Res == successMarker && r.Error == successMarker
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
	ClientIP  string `json:"client_ip"`
	ECode     ECode  `json:"ecode"`
	Error     string `json:"error"`
	ErrorMsg  string `json:"error_msg"`
	Expire    string `json:"expire"`
	OnlineIP  string `json:"online_ip"`
	Res       string `json:"res"`
	SrunVer   string `json:"srun_ver"`
	ST        int64  `json:"st"`
}
