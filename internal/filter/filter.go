// Package filter decides which resource groups are eligible for deletion.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/sweeper/pkg/resource"
)

// GracePeriod is how far past its expiration a group must be before it is deleted.
const GracePeriod = 24 * time.Hour

// ErrTagParse is returned when an expiration tag value is not a timestamp.
var ErrTagParse = errors.New("expiration tag is not a timestamp")

// layouts accepted for expiration tag values, tried in order.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 15:04:05",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
}

// Policy is the expiration policy: a tag name plus optional protection tag.
type Policy struct {
	tagName    string
	protectTag string
	location   *time.Location
}

// Option configures a Policy.
type Option func(*Policy)

// WithProtectTag makes groups tagged protectTag=true never eligible.
func WithProtectTag(tag string) Option {
	return func(p *Policy) {
		p.protectTag = tag
	}
}

// WithLocation sets the zone used for tag values that carry no offset.
func WithLocation(loc *time.Location) Option {
	return func(p *Policy) {
		if loc != nil {
			p.location = loc
		}
	}
}

// New creates a Policy for the given expiration tag name.
func New(tagName string, opts ...Option) *Policy {
	p := &Policy{
		tagName:  tagName,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TagName returns the configured expiration tag key.
func (p *Policy) TagName() string {
	return p.tagName
}

// Cutoff returns the instant a group must have expired before to be eligible.
func (p *Policy) Cutoff(now time.Time) time.Time {
	return now.Add(-GracePeriod)
}

// Eligible reports whether g has a parseable expiration tag strictly before cutoff.
// A missing or malformed tag is never eligible.
func (p *Policy) Eligible(g resource.ResourceGroup, cutoff time.Time) bool {
	if p.isProtected(g) {
		return false
	}

	value, ok := g.Tag(p.tagName)
	if !ok {
		return false
	}

	expires, err := ParseExpiration(value, p.location)
	if err != nil {
		log.Debug().
			Err(err).
			Str("resource_group", g.Name).
			Str("tag", p.tagName).
			Str("value", value).
			Msg("ignoring resource group with unparseable expiration tag")
		return false
	}

	return expires.Before(cutoff)
}

// Predicate binds the policy to cutoff for use with a directory listing.
func (p *Policy) Predicate(cutoff time.Time) func(resource.ResourceGroup) bool {
	return func(g resource.ResourceGroup) bool {
		return p.Eligible(g, cutoff)
	}
}

func (p *Policy) isProtected(g resource.ResourceGroup) bool {
	if p.protectTag == "" {
		return false
	}
	v, ok := g.Tag(p.protectTag)
	return ok && strings.EqualFold(strings.TrimSpace(v), "true")
}

// ParseExpiration parses an expiration tag value. Values without an offset
// are read in loc.
func ParseExpiration(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrTagParse)
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTagParse, value)
}
