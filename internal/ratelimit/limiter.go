// Package ratelimit enforces per-tenant request budgets over fixed one-minute
// windows. Counters live in a shared backend so every instance of the service
// sees the same budget; when the backend is unreachable the limiter fails
// open, since throttling is protective rather than a security boundary.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"rightshub.io/internal/obs"
)

// Window is the fixed accounting window. Keys embed the window index, so a
// new window starts with a fresh counter and no sliding bookkeeping.
const Window = time.Minute

// Default per-tenant budgets per window.
const (
	DefaultReadPerMinute  = 1000
	DefaultWritePerMinute = 500
)

// Class partitions operations into independently budgeted groups.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

// ClassForMethod maps an HTTP method to its budget class.
func ClassForMethod(method string) Class {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return ClassRead
	default:
		return ClassWrite
	}
}

// Decision is the outcome of one budget check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allower is a windowed counter backend. Implementations must count
// atomically: concurrent callers over one key never observe the same slot.
type Allower interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Limits holds the per-window budgets of one tenant.
type Limits struct {
	ReadPerMinute  int
	WritePerMinute int
}

// DefaultLimits returns the standard tenant budgets.
func DefaultLimits() Limits {
	return Limits{ReadPerMinute: DefaultReadPerMinute, WritePerMinute: DefaultWritePerMinute}
}

func (l Limits) forClass(c Class) int {
	if c == ClassWrite {
		return l.WritePerMinute
	}
	return l.ReadPerMinute
}

// Service applies tenant budgets on top of a counter backend.
type Service struct {
	backend  Allower
	limits   Limits
	now      func() time.Time
	override map[string]Limits
}

// NewService builds a limiter with the given default budgets.
func NewService(backend Allower, limits Limits) *Service {
	if limits.ReadPerMinute <= 0 {
		limits.ReadPerMinute = DefaultReadPerMinute
	}
	if limits.WritePerMinute <= 0 {
		limits.WritePerMinute = DefaultWritePerMinute
	}
	return &Service{
		backend:  backend,
		limits:   limits,
		now:      time.Now,
		override: map[string]Limits{},
	}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// SetTenantLimits installs per-tenant budget overrides. Not safe for
// concurrent use with Check; call during startup.
func (s *Service) SetTenantLimits(tenantID string, limits Limits) {
	s.override[tenantID] = limits
}

// Check consumes one slot from the tenant's budget for the class. A backend
// fault admits the request: availability beats throttling precision.
func (s *Service) Check(ctx context.Context, tenantID string, class Class) Decision {
	limits := s.limits
	if o, ok := s.override[tenantID]; ok {
		limits = o
	}
	limit := limits.forClass(class)
	now := s.now()

	d, err := s.backend.Allow(ctx, s.key(tenantID, class, now), limit, Window)
	if err != nil {
		obs.LogEntry(map[string]any{
			"level":  "warn",
			"msg":    "rate limit backend unavailable, admitting request",
			"tenant": tenantID,
			"class":  class,
			"error":  err.Error(),
		})
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetAt:   now.Truncate(Window).Add(Window),
		}
	}
	if !d.Allowed {
		obs.ObserveRateLimitRejection(string(class))
	}
	return d
}

// key buckets a tenant/class pair into the current window. Embedding the
// window index makes expiry a TTL concern rather than an arithmetic one.
func (s *Service) key(tenantID string, class Class, now time.Time) string {
	bucket := now.Unix() / int64(Window/time.Second)
	return "rate:" + tenantID + ":" + string(class) + ":" + strconv.FormatInt(bucket, 10)
}
