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

// Package srun implements the srun portal protocol: status query, and the
// challenge, encode, sign and submit handshake for login and logout.
package srun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"srunctl/internal/config"
	"srunctl/internal/jsonp"
	"srunctl/internal/metrics"
	"srunctl/internal/transport"
	"srunctl/internal/xencode"
)

const (
	PathChallenge = "/cgi-bin/get_challenge"
	PathPortal    = "/cgi-bin/srun_portal"
	PathStatus    = "/cgi-bin/rad_user_info"
)

// Requester sends one request over an established gateway connection.
type Requester interface {
	Request(ctx context.Context, method, path string, query transport.Query) (*transport.Response, error)
	Close() error
}

// Client runs the protocol for a single user over one connection.
type Client struct {
	cfg      *config.Config
	user     config.User
	conn     Requester
	resolver transport.Resolver
	fs       afero.Fs
	now      func() time.Time
	timer    backoff.Timer
	metrics  *metrics.Recorder
	state    State
}

type Option func(*Client)

// WithClock replaces time.Now for callback tokens and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithTimer replaces the timer used to wait between login attempts.
func WithTimer(timer backoff.Timer) Option {
	return func(c *Client) {
		c.timer = timer
	}
}

// WithResolver sets the resolver for the gateway host name.
func WithResolver(resolver transport.Resolver) Option {
	return func(c *Client) {
		c.resolver = resolver
	}
}

// WithFs sets the filesystem the custom CA is read from.
func WithFs(fs afero.Fs) Option {
	return func(c *Client) {
		c.fs = fs
	}
}

// WithMetrics records login attempts in r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = r
	}
}

// WithRequester uses conn instead of dialing the gateway.
func WithRequester(conn Requester) Option {
	return func(c *Client) {
		c.conn = conn
	}
}

// NewClient connects to the gateway for user. The connection is kept for
// all requests issued by the returned client.
func NewClient(ctx context.Context, cfg *config.Config, user config.User, options ...Option) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		user: user,
		now:  time.Now,
	}

	for _, opt := range options {
		opt(c)
	}

	if c.conn != nil {
		return c, nil
	}

	ep, err := cfg.Endpoint()
	if err != nil {
		return nil, &Error{Phase: PhaseConfig, Msg: "invalid gateway endpoint", Err: err}
	}

	opts := transport.DialOptions{
		Resolver: c.resolver,
		Timeout:  cfg.Timeout,
		FS:       c.fs,
	}

	// The socket is pinned to the user's address only with strict binding,
	// otherwise the routing table picks the uplink.
	if cfg.StrictBind && user.BindAddr.IsValid() {
		opts.LocalAddr = user.BindAddr
	}

	conn, err := transport.Dial(ctx, ep, opts)
	if err != nil {
		return nil, &Error{Phase: PhaseNetwork, Msg: "failed to connect to gateway", Err: err}
	}

	c.conn = conn

	return c, nil
}

// Close releases the gateway connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// User returns the user, including a bind address learned by CheckStatus.
func (c *Client) User() config.User {
	return c.user
}

// State returns the current handshake state.
func (c *Client) State() State {
	return c.state
}

func (c *Client) setState(ctx context.Context, s State) {
	zerolog.Ctx(ctx).Debug().Stringer("from", c.state).Stringer("to", s).Msg("State transition")
	c.state = s
}

func (c *Client) timestamp() string {
	return strconv.FormatInt(c.now().Unix(), 10)
}

// call issues a JSONP request and decodes the unwrapped payload into out.
func (c *Client) call(ctx context.Context, path string, query transport.Query, out any) error {
	token := jsonp.NewCallback(c.now())
	query.Add("callback", token)

	resp, err := c.conn.Request(ctx, "GET", path, query)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: unexpected HTTP status %d %s", path, resp.StatusCode, resp.Reason)
	}

	payload, err := jsonp.Unwrap(resp.Body, token)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}

	return nil
}

// CheckStatus asks the gateway whether the user is online. When the bind
// address is known the gateway must report it as the online IP; otherwise
// the reported online IP becomes the bind address.
func (c *Client) CheckStatus(ctx context.Context) (bool, *StatusReport, error) {
	var report StatusReport

	if err := c.call(ctx, PathStatus, transport.Query{}, &report); err != nil {
		return false, nil, &Error{Phase: PhaseNetwork, Msg: "status query failed", Err: err}
	}

	log := zerolog.Ctx(ctx)
	log.Debug().Interface("status", report).Msg("Status report")

	online := report.Error == successMarker

	if c.user.BindAddr.IsValid() {
		online = online && report.OnlineIP == c.user.BindAddr.String()
	} else {
		addr, err := netip.ParseAddr(report.OnlineIP)
		if err != nil || !addr.Is4() {
			return false, &report, &Error{
				Phase: PhaseNetwork,
				Msg:   fmt.Sprintf("gateway reported invalid online IP %q", report.OnlineIP),
				Err:   err,
			}
		}

		c.user.BindAddr = addr
		log.Info().Stringer("ip", addr).Msg("Using online IP reported by gateway")
	}

	return online, &report, nil
}

func (c *Client) bindIP() (string, error) {
	if !c.user.BindAddr.IsValid() {
		return "", ErrNoBindAddress
	}

	return c.user.BindAddr.String(), nil
}

func (c *Client) challenge(ctx context.Context, ip string) (string, error) {
	c.setState(ctx, StateChallengeRequested)

	query := transport.Query{
		{Key: "username", Value: c.user.Username},
		{Key: "ip", Value: ip},
		{Key: "_", Value: c.timestamp()},
	}

	var resp challengeResponse
	if err := c.call(ctx, PathChallenge, query, &resp); err != nil {
		return "", err
	}

	if resp.Challenge == "" {
		return "", &Error{Phase: PhaseChallenge, Err: ErrNoChallenge}
	}

	c.setState(ctx, StateChallengeReceived)

	return resp.Challenge, nil
}

// loginQuery builds the signed login parameters. Each signed value is built
// once and used for both the checksum and the query.
func (c *Client) loginQuery(ip, challenge string) transport.Query {
	acid := strconv.FormatUint(uint64(c.cfg.ACID), 10)
	n := strconv.FormatUint(uint64(c.cfg.N), 10)
	typ := strconv.FormatUint(uint64(c.cfg.Type), 10)

	hmd5 := PasswordHMAC(c.user.Password, challenge)
	info := xencode.EncodeVersion(c.user.Username, c.user.Password, ip, acid, challenge, c.cfg.Enc)
	chksum := Checksum(challenge, c.user.Username, hmd5, acid, ip, n, typ, info)

	doubleStack := "0"
	if c.cfg.DoubleStack {
		doubleStack = "1"
	}

	return transport.Query{
		{Key: "action", Value: "login"},
		{Key: "username", Value: c.user.Username},
		{Key: "password", Value: passwordTag + hmd5},
		{Key: "ip", Value: ip},
		{Key: "ac_id", Value: acid},
		{Key: "n", Value: n},
		{Key: "type", Value: typ},
		{Key: "os", Value: c.cfg.OS},
		{Key: "name", Value: c.cfg.OSName},
		{Key: "double_stack", Value: doubleStack},
		{Key: "info", Value: info},
		{Key: "chksum", Value: chksum},
		{Key: "_", Value: c.timestamp()},
	}
}

func (c *Client) loginAttempt(ctx context.Context, ip string) (*PortalResult, error) {
	challenge, err := c.challenge(ctx, ip)
	if err != nil {
		return nil, err
	}

	query := c.loginQuery(ip, challenge)
	c.setState(ctx, StateSigned)

	zerolog.Ctx(ctx).Trace().Str("challenge", challenge).Str("info", query.Get("info")).
		Str("chksum", query.Get("chksum")).Msg("Signed login request")

	var result PortalResult

	c.setState(ctx, StateSubmitted)

	if err := c.call(ctx, PathPortal, query, &result); err != nil {
		return nil, err
	}

	logResult(ctx, &result)

	if !result.OK() {
		c.setState(ctx, StateRejected)
		return &result, &RejectedError{Action: "login", Result: &result}
	}

	c.setState(ctx, StateSuccess)

	return &result, nil
}

// Login runs up to retry_count attempts, waiting retry_delay between them.
// Every attempt fetches a fresh challenge over the same connection.
func (c *Client) Login(ctx context.Context) (*PortalResult, error) {
	ip, err := c.bindIP()
	if err != nil {
		return nil, &Error{Phase: PhaseConfig, Err: err}
	}

	log := zerolog.Ctx(ctx)
	log.Info().Str("ip", ip).Msg("Using online IP")

	attempts := c.cfg.RetryCount
	if attempts == 0 {
		attempts = 1
	}

	var (
		attempt uint32
		lastErr error
	)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryInterval()), uint64(attempts-1)),
		ctx,
	)

	operation := func() (*PortalResult, error) {
		attempt++
		log.Info().Uint32("attempt", attempt).Uint32("of", attempts).Msg("Login attempt")

		result, err := c.loginAttempt(ctx, ip)
		if err == nil {
			c.metrics.LoginAttempt(c.user.Username, metrics.ResultSuccess)
			return result, nil
		}

		lastErr = err

		var rejected *RejectedError
		if errors.As(err, &rejected) {
			c.metrics.LoginAttempt(c.user.Username, metrics.ResultRejected)
			log.Warn().Str("error", rejected.Result.Error).Str("error_msg", rejected.Result.ErrorMsg).
				Msg("Login failed")
		} else {
			c.metrics.LoginAttempt(c.user.Username, metrics.ResultError)
			log.Warn().Err(err).Msg("Login error")
		}

		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}

		return nil, err
	}

	notify := func(_ error, next time.Duration) {
		c.setState(ctx, StateRetryPending)
		log.Debug().Dur("delay", next).Msg("Retrying login")
	}

	result, err := backoff.RetryNotifyWithTimerAndData(operation, policy, notify, c.timer)
	if err == nil {
		log.Info().Str("message", result.SucMsg).Msg("Login successful")
		return result, nil
	}

	c.setState(ctx, StateTerminal)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if lastErr == nil {
			return nil, &Error{Phase: PhaseLogin, Msg: "interrupted", Err: ctxErr}
		}

		return nil, &Error{Phase: PhaseLogin, Msg: "interrupted",
			Err: fmt.Errorf("%w, last attempt: %w", ctxErr, lastErr)}
	}

	return nil, &Error{Phase: PhaseLogin,
		Err: fmt.Errorf("%w after %d attempts, last: %w", ErrRetriesExhausted, attempt, lastErr)}
}

// Logout submits a single logout request.
func (c *Client) Logout(ctx context.Context) (*PortalResult, error) {
	ip, err := c.bindIP()
	if err != nil {
		return nil, &Error{Phase: PhaseConfig, Err: err}
	}

	query := transport.Query{
		{Key: "action", Value: "logout"},
		{Key: "username", Value: c.user.Username},
		{Key: "ip", Value: ip},
		{Key: "ac_id", Value: strconv.FormatUint(uint64(c.cfg.ACID), 10)},
		{Key: "_", Value: c.timestamp()},
	}

	var result PortalResult

	c.setState(ctx, StateSubmitted)

	if err := c.call(ctx, PathPortal, query, &result); err != nil {
		c.setState(ctx, StateTerminal)
		return nil, &Error{Phase: PhaseNetwork, Msg: "failed to communicate with server", Err: err}
	}

	logResult(ctx, &result)

	if !result.OK() {
		c.setState(ctx, StateTerminal)
		return &result, &Error{Phase: PhaseLogout, Msg: "server rejected logout request",
			Err: &RejectedError{Action: "logout", Result: &result}}
	}

	c.setState(ctx, StateSuccess)
	zerolog.Ctx(ctx).Info().Str("message", result.SucMsg).Msg("Logout successful")

	return &result, nil
}

func logResult(ctx context.Context, r *PortalResult) {
	zerolog.Ctx(ctx).Info().
		Str("res", r.Res).
		Str("error", r.Error).
		Str("client_ip", r.ClientIP).
		Str("online_ip", r.OnlineIP).
		Msg("Portal response")
}
