// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/browsegate/browsegate/domain/proxy"
	"github.com/browsegate/browsegate/domain/session"
	"github.com/browsegate/browsegate/domain/usage"
	"github.com/browsegate/browsegate/ports"
	"github.com/rs/zerolog"
)

// ProxyService runs the request pipeline: quota guard, upstream fetch,
// and usage recording. Header sanitization and HTML rewriting are pure
// domain functions applied by the HTTP handler around the body stream.
type ProxyService struct {
	store    ports.SessionStore
	recorder ports.UsageRecorder
	upstream ports.Upstream
	clock    ports.Clock
	idGen    ports.IDGenerator
	logger   zerolog.Logger

	// Dynamic configuration (hot-reloadable)
	dynamicCfg atomic.Pointer[DynamicConfig]
}

// DynamicConfig contains hot-reloadable configuration.
type DynamicConfig struct {
	// SimpleModeEnabled keeps the unauthenticated demo path available.
	SimpleModeEnabled bool
}

// ProxyDeps contains dependencies for ProxyService.
type ProxyDeps struct {
	Store    ports.SessionStore
	Recorder ports.UsageRecorder
	Upstream ports.Upstream
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   zerolog.Logger
}

// NewProxyService creates a new proxy service.
func NewProxyService(deps ProxyDeps, cfg DynamicConfig) *ProxyService {
	s := &ProxyService{
		store:    deps.Store,
		recorder: deps.Recorder,
		upstream: deps.Upstream,
		clock:    deps.Clock,
		idGen:    deps.IDGen,
		logger:   deps.Logger,
	}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig swaps the hot-reloadable configuration.
// Thread-safe; can be called while handling requests.
func (s *ProxyService) UpdateConfig(cfg DynamicConfig) {
	c := cfg
	s.dynamicCfg.Store(&c)
}

// Config returns the current dynamic configuration.
func (s *ProxyService) Config() DynamicConfig {
	return *s.dynamicCfg.Load()
}

// AuthContext identifies the metered principal of a request.
type AuthContext struct {
	Mode      proxy.Mode
	SessionID string
	UserID    string
}

// HandleResult represents the outcome of the guarded fetch. Exactly
// one of Fetch or Error is set. The caller owns Fetch.Body.
type HandleResult struct {
	Fetch  *ports.FetchResult
	Target string // normalized absolute URL
	Auth   *AuthContext
	Error  *proxy.ErrorResponse
}

// Handle runs classification follow-up, the quota guard, and the
// upstream fetch for an already classified request.
//
// Pipeline: normalize target (PURE) -> quota guard (I/O) -> fetch
// (I/O). Any failure short-circuits; the caller maps the error to the
// wire shape and triggers the audit write via RecordFailure.
func (s *ProxyService) Handle(ctx context.Context, req proxy.Request) HandleResult {
	auth := &AuthContext{Mode: req.Mode, SessionID: req.SessionID}

	// 1. Normalize and validate the target (PURE).
	target, perr := proxy.NormalizeTarget(req.TargetURL)
	if perr != nil {
		return HandleResult{Auth: auth, Error: perr}
	}

	// 2. Quota guard. Simple mode bypasses metering entirely; legacy
	// requests without a session id behave the same way.
	if req.Mode.Metered() && req.SessionID != "" {
		userID, perr := s.guard(ctx, req.SessionID)
		if perr != nil {
			return HandleResult{Auth: auth, Error: perr}
		}
		auth.UserID = userID
	}

	// 3. Upstream fetch (I/O). Not retried at this layer.
	fetch, err := s.upstream.Fetch(ctx, target, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("target", target).Msg("upstream fetch failed")
		return HandleResult{Auth: auth, Target: target, Error: &proxy.ErrUpstreamFetch}
	}

	return HandleResult{Fetch: &fetch, Target: target, Auth: auth}
}

// guard validates the session and the owning user's entitlement.
// Returns the owning user id on success.
func (s *ProxyService) guard(ctx context.Context, sessionID string) (string, *proxy.ErrorResponse) {
	sess, err := s.store.GetActiveSession(ctx, sessionID)
	if err != nil || sess.Status != session.StatusActive {
		return "", &proxy.ErrSessionInvalid
	}

	quota, err := s.store.GetUserQuota(ctx, sess.UserID)
	if err != nil {
		return "", &proxy.ErrUserNotFound
	}

	result := session.Admit(quota)
	if result.Allowed {
		return sess.UserID, nil
	}

	// Balance exhausted and no active subscription: expire the session
	// before failing. The conditional update in the store keeps this
	// idempotent under concurrent exhaustion checks.
	now := s.clock.Now()
	if err := s.store.ExpireSession(ctx, sessionID, result.Reason, now); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("expire session failed")
	}
	s.recorder.Record(usage.NewSessionEnd(s.idGen.New(), sessionID, sess.UserID, result.Reason, now))

	return "", &proxy.ErrInsufficientBalance
}

// RecordSuccess meters a completed proxied response. Fire-and-forget:
// store or log failures are diagnosed locally and never reach the
// caller. bytes is the transmitted byte count — for rewritten HTML
// that is the post-rewrite length, since that is what was sent.
func (s *ProxyService) RecordSuccess(auth *AuthContext, target, method, contentType, userAgent string,
	statusCode int, bytes, latencyMs int64) {
	if auth == nil || !auth.Mode.Metered() || auth.SessionID == "" {
		return
	}
	now := s.clock.Now()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.IncrementSessionMetrics(ctx, auth.SessionID, bytes, latencyMs, now); err != nil {
			s.logger.Warn().Err(err).Str("session_id", auth.SessionID).Msg("metrics increment failed")
		}
	}()

	s.recorder.Record(usage.NewPageRequest(
		s.idGen.New(), auth.SessionID, auth.UserID,
		target, method, contentType, userAgent,
		statusCode, bytes, latencyMs, now,
	))
}

// RecordFailure attempts the best-effort error audit entry. Any mode.
func (s *ProxyService) RecordFailure(auth *AuthContext, target, method, message string) {
	sessionID, userID := "", ""
	if auth != nil {
		sessionID, userID = auth.SessionID, auth.UserID
	}
	s.recorder.Record(usage.NewError(
		s.idGen.New(), sessionID, userID, target, method, message, s.clock.Now(),
	))
}
