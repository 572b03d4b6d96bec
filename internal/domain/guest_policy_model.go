package domain

import (
	"errors"
	"fmt"
)

const (
	GuestPolicySettingKey = "guest_post_policy"

	// PolicyDisabled switches off a rate-limit window or ban tier.
	PolicyDisabled = -1

	ScopeRestrictionNone         = "none"
	ScopeRestrictionNeighborhood = "neighborhood"
)

// GuestPostPolicy parameterizes guest content rules, rate limits and ban
// escalation. Zero values mean "use the default" when loaded from storage;
// PolicyDisabled on a limit or threshold turns that check off.
type GuestPostPolicy struct {
	Version int `json:"version"`

	BlockedContentTypes StringList `json:"blocked_content_types"`
	BlockedKeywords     StringList `json:"blocked_keywords"`
	MaxImageCount       int        `json:"max_image_count"`
	AllowLinks          bool       `json:"allow_links"`
	AllowContact        bool       `json:"allow_contact"`
	ScopeRestriction    string     `json:"scope_restriction"`

	PostLimit10m   int `json:"post_limit_10m"`
	PostLimit1h    int `json:"post_limit_1h"`
	PostLimit24h   int `json:"post_limit_24h"`
	UploadLimit10m int `json:"upload_limit_10m"`

	BanThreshold24h      int `json:"ban_threshold_24h"`
	BanThreshold7dMedium int `json:"ban_threshold_7d_medium"`
	BanThreshold7dHigh   int `json:"ban_threshold_7d_high"`

	BanDurationHoursShort  int `json:"ban_duration_hours_short"`
	BanDurationHoursMedium int `json:"ban_duration_hours_medium"`
	BanDurationHoursLong   int `json:"ban_duration_hours_long"`
}

func DefaultGuestPostPolicy() GuestPostPolicy {
	return GuestPostPolicy{
		Version:                1,
		BlockedContentTypes:    StringList{"market", "job"},
		MaxImageCount:          4,
		AllowLinks:             false,
		AllowContact:           false,
		ScopeRestriction:       ScopeRestrictionNeighborhood,
		PostLimit10m:           3,
		PostLimit1h:            10,
		PostLimit24h:           30,
		UploadLimit10m:         10,
		BanThreshold24h:        3,
		BanThreshold7dMedium:   5,
		BanThreshold7dHigh:     8,
		BanDurationHoursShort:  24,
		BanDurationHoursMedium: 168,
		BanDurationHoursLong:   720,
	}
}

// WithDefaults fills unset numeric fields and the scope restriction from
// DefaultGuestPostPolicy. Booleans and lists are taken as stored.
func (p GuestPostPolicy) WithDefaults() GuestPostPolicy {
	d := DefaultGuestPostPolicy()
	fill := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}

	fill(&p.Version, d.Version)
	fill(&p.MaxImageCount, d.MaxImageCount)
	fill(&p.PostLimit10m, d.PostLimit10m)
	fill(&p.PostLimit1h, d.PostLimit1h)
	fill(&p.PostLimit24h, d.PostLimit24h)
	fill(&p.UploadLimit10m, d.UploadLimit10m)
	fill(&p.BanThreshold24h, d.BanThreshold24h)
	fill(&p.BanThreshold7dMedium, d.BanThreshold7dMedium)
	fill(&p.BanThreshold7dHigh, d.BanThreshold7dHigh)
	fill(&p.BanDurationHoursShort, d.BanDurationHoursShort)
	fill(&p.BanDurationHoursMedium, d.BanDurationHoursMedium)
	fill(&p.BanDurationHoursLong, d.BanDurationHoursLong)

	if p.ScopeRestriction == "" {
		p.ScopeRestriction = d.ScopeRestriction
	}
	p.BlockedContentTypes = p.BlockedContentTypes.Normalized()
	p.BlockedKeywords = p.BlockedKeywords.Normalized()
	return p
}

// Validate checks an admin-submitted policy. Rate limits and ban thresholds
// accept PolicyDisabled to switch a window or tier off; 0 falls back to the
// default. Any other negative value is rejected.
func (p GuestPostPolicy) Validate() error {
	var errs []error

	nonNegative := map[string]int{
		"max_image_count":           p.MaxImageCount,
		"ban_duration_hours_short":  p.BanDurationHoursShort,
		"ban_duration_hours_medium": p.BanDurationHoursMedium,
		"ban_duration_hours_long":   p.BanDurationHoursLong,
	}
	for name, v := range nonNegative {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	disableable := map[string]int{
		"post_limit_10m":          p.PostLimit10m,
		"post_limit_1h":           p.PostLimit1h,
		"post_limit_24h":          p.PostLimit24h,
		"upload_limit_10m":        p.UploadLimit10m,
		"ban_threshold_24h":       p.BanThreshold24h,
		"ban_threshold_7d_medium": p.BanThreshold7dMedium,
		"ban_threshold_7d_high":   p.BanThreshold7dHigh,
	}
	for name, v := range disableable {
		if v < 0 && v != PolicyDisabled {
			errs = append(errs, fmt.Errorf("%s must be %d (disabled) or not negative", name, PolicyDisabled))
		}
	}

	switch p.ScopeRestriction {
	case "", ScopeRestrictionNone, ScopeRestrictionNeighborhood:
	default:
		errs = append(errs, fmt.Errorf("unknown scope_restriction %q", p.ScopeRestriction))
	}

	n := p.WithDefaults()
	if n.BanThreshold7dMedium > 0 && n.BanThreshold7dHigh > 0 && n.BanThreshold7dMedium > n.BanThreshold7dHigh {
		errs = append(errs, errors.New("ban_threshold_7d_medium must not exceed ban_threshold_7d_high"))
	}
	if n.BanDurationHoursShort > n.BanDurationHoursMedium || n.BanDurationHoursMedium > n.BanDurationHoursLong {
		errs = append(errs, errors.New("ban durations must satisfy short <= medium <= long"))
	}

	return errors.Join(errs...)
}
