// Package throttle enforces per-category request ceilings for the brokerage
// API. It is a burst-then-pause governor: up to N requests in a category fire
// immediately, then every Nth request sleeps just long enough to land on the
// next whole second (or whole minute) measured from the category's
// registration time. The long-run average stays at or below the configured
// ceiling while bursty callers pay close to zero added latency.
package throttle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrUnknownCategory is returned by Check when the category was never
// registered. Using an unregistered category is a programming error.
var ErrUnknownCategory = errors.New("unknown throttle category")

// Limit is the ceiling configuration for one category.
// RequestsPerSecond is required; RequestsPerMinute of zero means no
// per-minute ceiling.
type Limit struct {
	RequestsPerSecond uint `yaml:"rps"`
	RequestsPerMinute uint `yaml:"rpm"`
}

// Config maps category names to their limits.
type Config map[string]Limit

// category holds the runtime state for one registered category. The state is
// owned by the Throttle; the Config it was built from is never mutated.
type category struct {
	mu    sync.Mutex
	limit Limit
	start time.Time // window origin, fixed at registration
	count uint64    // monotonic, never reset
}

// Throttle tracks request counters per category and a single process-wide
// penalty counter for upstream rate-limit rejections. One instance should be
// shared by all callers of one session.
type Throttle struct {
	categories map[string]*category

	penaltyMu    sync.Mutex
	penaltyCount uint
	maxPenalty   uint

	log *slog.Logger

	// Overridable in tests to simulate time.
	now   func() time.Time
	sleep func(time.Duration)
}

// New builds a Throttle from cfg, anchoring every category's window origin
// at the current time. maxPenalty is the number of Penalize calls tolerated
// before Penalize starts reporting the ceiling as exceeded.
func New(cfg Config, maxPenalty uint, log *slog.Logger) (*Throttle, error) {
	if log == nil {
		log = slog.Default()
	}

	t := &Throttle{
		categories: make(map[string]*category, len(cfg)),
		maxPenalty: maxPenalty,
		log:        log,
		now:        time.Now,
		sleep:      time.Sleep,
	}

	start := t.now()
	for name, limit := range cfg {
		if limit.RequestsPerSecond == 0 {
			return nil, fmt.Errorf("throttle category %q: requests per second must be positive", name)
		}
		t.categories[name] = &category{
			limit: limit,
			start: start,
		}
	}

	return t, nil
}

// Check counts one request against the named category and blocks the caller
// when the request lands on a ceiling boundary. The per-minute ceiling is
// evaluated first; when it fires, the per-second check is skipped for that
// call. Returns ErrUnknownCategory for unregistered categories.
func (t *Throttle) Check(name string) error {
	c, ok := t.categories[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}

	// The increment, the boundary read, and the sleep form one atomic step
	// per category: two callers must not observe the same boundary.
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count++

	if rpm := uint64(c.limit.RequestsPerMinute); rpm > 0 && c.count%rpm == 0 {
		t.sleep(timeToBoundary(t.now().Sub(c.start), time.Minute))
		return nil
	}

	if c.count%uint64(c.limit.RequestsPerSecond) == 0 {
		t.sleep(timeToBoundary(t.now().Sub(c.start), time.Second))
	}

	return nil
}

// Penalize records one upstream rate-limit rejection, pauses the caller for
// a one second cooldown, and reports whether the penalty count has now
// exceeded the configured ceiling. The counter is global across categories
// because the upstream limit is enforced globally.
func (t *Throttle) Penalize() bool {
	t.penaltyMu.Lock()
	t.penaltyCount++
	count := t.penaltyCount
	t.penaltyMu.Unlock()

	t.log.Warn("too many requests to the API", "penalty_count", count, "max", t.maxPenalty)

	// Cooldown outside the lock so concurrent callers pause in parallel.
	t.sleep(time.Second)

	return count > t.maxPenalty
}

// timeToBoundary returns how long to sleep so that elapsed, rounded up to
// the next multiple of base, has passed.
func timeToBoundary(elapsed, base time.Duration) time.Duration {
	rounded := ((elapsed + base - 1) / base) * base
	return rounded - elapsed
}
