package guard

import (
	"fmt"
	"regexp"
	"strings"

	"townsquare/internal/domain"
)

// Draft is the screened part of a guest post or comment.
type Draft struct {
	Title       string
	Body        string
	ContentType string
	ScopeKind   string
	ImageCount  int
}

var (
	urlPattern        = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	bareDomainPattern = regexp.MustCompile(`(?i)\b[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9-]+)*\.(?:com|net|org|io|co|me|app|dev|info|biz|xyz|ly|gg|tv|kr|us|uk|de|jp)\b`)
	emailPattern      = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	phonePattern      = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
)

const minPhoneDigits = 9

// Screen checks a draft against the policy. It returns ErrTooManyImages for
// an oversized gallery, a *ViolationError for policy breaches, or nil.
func Screen(p domain.GuestPostPolicy, d Draft) error {
	if p.MaxImageCount > 0 && d.ImageCount > p.MaxImageCount {
		return fmt.Errorf("%w: %d > %d", ErrTooManyImages, d.ImageCount, p.MaxImageCount)
	}

	if ct := strings.ToLower(strings.TrimSpace(d.ContentType)); ct != "" && p.BlockedContentTypes.Contains(ct) {
		return &ViolationError{
			Category: domain.ViolationContentType,
			Reason:   fmt.Sprintf("content type %q is not open to guests", ct),
		}
	}

	if p.ScopeRestriction == domain.ScopeRestrictionNeighborhood {
		if scope := strings.TrimSpace(d.ScopeKind); scope != "" && scope != domain.ScopeNeighborhood {
			return &ViolationError{
				Category: domain.ViolationScope,
				Reason:   fmt.Sprintf("guests may only post to a neighborhood, not %q", scope),
			}
		}
	}

	text := d.Title + "\n" + d.Body
	lower := strings.ToLower(text)
	for _, kw := range p.BlockedKeywords {
		if kw != "" && strings.Contains(lower, kw) {
			return &ViolationError{
				Category: domain.ViolationForbiddenKeyword,
				Reason:   fmt.Sprintf("contains blocked keyword %q", kw),
			}
		}
	}

	// Emails are contact info, so they are stripped before looking for links.
	withoutEmails := emailPattern.ReplaceAllString(text, " ")
	if !p.AllowLinks {
		if m := findLink(withoutEmails); m != "" {
			return &ViolationError{
				Category: domain.ViolationLink,
				Reason:   fmt.Sprintf("contains link %q", m),
			}
		}
	}

	if !p.AllowContact {
		if m := emailPattern.FindString(text); m != "" {
			return &ViolationError{Category: domain.ViolationContact, Reason: "contains an email address"}
		}
		if findPhone(withoutEmails) != "" {
			return &ViolationError{Category: domain.ViolationContact, Reason: "contains a phone number"}
		}
	}

	return nil
}

func findLink(text string) string {
	if m := urlPattern.FindString(text); m != "" {
		return m
	}
	return bareDomainPattern.FindString(text)
}

// findPhone ignores short digit runs such as dates and prices.
func findPhone(text string) string {
	for _, m := range phonePattern.FindAllString(text, -1) {
		digits := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= minPhoneDigits {
			return m
		}
	}
	return ""
}
