package guard

import (
	"context"
	"fmt"
	"time"

	"townsquare/internal/domain"
	"townsquare/internal/ratelimit"

	"golang.org/x/sync/errgroup"
)

// Action names the counter family of a guarded write, e.g. "posts:guest-create".
type Action struct {
	Resource string
	Verb     string
}

func (a Action) String() string { return a.Resource + ":" + a.Verb }

var (
	ActionPostCreate    = Action{Resource: "posts", Verb: "guest-create"}
	ActionPostUpdate    = Action{Resource: "posts", Verb: "guest-update"}
	ActionPostDelete    = Action{Resource: "posts", Verb: "guest-delete"}
	ActionCommentCreate = Action{Resource: "comments", Verb: "guest-create"}
	ActionCommentUpdate = Action{Resource: "comments", Verb: "guest-update"}
	ActionCommentDelete = Action{Resource: "comments", Verb: "guest-delete"}
	ActionImageUpload   = Action{Resource: "uploads", Verb: "guest-image"}
)

// Window is one fixed-window limit. Limit <= 0 disables it.
type Window struct {
	Label  string
	Limit  int
	Length time.Duration
	Cost   int
}

// RateLimitRequest is a single counter check.
type RateLimitRequest struct {
	Key    string
	Limit  int
	Window time.Duration
	Cost   int
}

// EditLimits are the runtime-configured windows for guest updates and deletes.
type EditLimits struct {
	Limit10m int
	Limit1h  int
}

func PostCreationWindows(p domain.GuestPostPolicy) []Window {
	return []Window{
		{Label: "10m", Limit: p.PostLimit10m, Length: 10 * time.Minute},
		{Label: "1h", Limit: p.PostLimit1h, Length: time.Hour},
		{Label: "24h", Limit: p.PostLimit24h, Length: 24 * time.Hour},
	}
}

// UploadWindows charges one unit per image.
func UploadWindows(p domain.GuestPostPolicy, images int) []Window {
	if images <= 0 {
		return nil
	}
	return []Window{
		{Label: "10m", Limit: p.UploadLimit10m, Length: 10 * time.Minute, Cost: images},
	}
}

func EditWindows(l EditLimits) []Window {
	return []Window{
		{Label: "10m", Limit: l.Limit10m, Length: 10 * time.Minute},
		{Label: "1h", Limit: l.Limit1h, Length: time.Hour},
	}
}

// RateLimitKey builds the counter key for one action, identity and window.
func RateLimitKey(action Action, set IdentityHashSet, label string) string {
	fp := "none"
	if set.FingerprintHash != nil {
		fp = *set.FingerprintHash
	}
	return fmt.Sprintf("%s:ip:%s:fp:%s:%s", action, set.IPHash, fp, label)
}

// EnforceRateLimit checks a single counter.
func (g *Guard) EnforceRateLimit(ctx context.Context, req RateLimitRequest) error {
	if g.limiter == nil || req.Limit <= 0 {
		return nil
	}

	cost := req.Cost
	if cost <= 0 {
		cost = 1
	}
	decision, err := g.limiter.Allow(ctx, req.Key, req.Limit, cost, req.Window)
	if err != nil {
		return g.storeFailure("rate_limit", err)
	}
	if decision.Allowed {
		return nil
	}
	return g.rateLimited("direct", "", decision)
}

// ActionWindows pairs a counter family with its windows.
type ActionWindows struct {
	Action  Action
	Windows []Window
}

// EnforceWindows counts the write against every enabled window concurrently
// and rejects if any is exceeded. The reported window is the one that stays
// closed longest.
func (g *Guard) EnforceWindows(ctx context.Context, action Action, set IdentityHashSet, windows []Window) error {
	return g.enforceWindows(ctx, set, []ActionWindows{{Action: action, Windows: windows}})
}

type keyedWindow struct {
	action Action
	key    string
	Window
}

func (g *Guard) enforceWindows(ctx context.Context, set IdentityHashSet, groups []ActionWindows) error {
	if g.limiter == nil {
		return nil
	}

	var active []keyedWindow
	for _, group := range groups {
		for _, w := range group.Windows {
			if w.Limit > 0 {
				active = append(active, keyedWindow{
					action: group.Action,
					key:    RateLimitKey(group.Action, set, w.Label),
					Window: w,
				})
			}
		}
	}
	if len(active) == 0 {
		return nil
	}

	decisions := make([]ratelimit.Decision, len(active))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, w := range active {
		eg.Go(func() error {
			cost := w.Cost
			if cost <= 0 {
				cost = 1
			}
			d, err := g.limiter.Allow(egCtx, w.key, w.Limit, cost, w.Length)
			if err != nil {
				return fmt.Errorf("window %s %s: %w", w.action, w.Label, err)
			}
			decisions[i] = d
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return g.storeFailure("rate_limit", err)
	}

	worst := -1
	for i, d := range decisions {
		if d.Allowed {
			continue
		}
		if worst < 0 || d.ResetAt.After(decisions[worst].ResetAt) {
			worst = i
		}
	}
	if worst < 0 {
		return nil
	}
	return g.rateLimited(active[worst].action.String(), active[worst].Label, decisions[worst])
}

func (g *Guard) rateLimited(action, window string, d ratelimit.Decision) error {
	g.metrics.RecordRateLimited(action, window)

	retry := d.ResetAt.Sub(g.now())
	if retry < 0 {
		retry = 0
	}
	msg := "too many guest writes, try again later"
	if window != "" {
		msg = fmt.Sprintf("guest write limit of %d per %s reached", d.Limit, window)
	}
	return &Error{
		Code:       CodeRateLimited,
		Message:    msg,
		RetryAfter: retry,
		Window:     window,
	}
}
