// Package notify contains the public interfaces and domain models for the
// guardian notification dispatch service.
package notify

import "errors"

// ErrNoDeviceTokens signals that an audience resolved to real guardians but
// none of them has a registered device. Distinct from an empty audience,
// which is a successful no-op.
var ErrNoDeviceTokens = errors.New("no device tokens registered for audience")

// Payload is the notification content broadcast verbatim to every resolved
// device token.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AudienceKind discriminates the audience variants.
type AudienceKind int

const (
	// AudienceGroup targets the guardians of every student in one group.
	AudienceGroup AudienceKind = iota + 1
	// AudienceSchool targets the guardians of every student in every group
	// of one school.
	AudienceSchool
	// AudienceGuardian targets a single guardian directly.
	AudienceGuardian
)

// Audience is the target selector for one dispatch. Exactly one variant is
// populated; construct via GroupAudience, SchoolAudience or GuardianAudience
// so a zero Audience is always detectable with IsZero.
type Audience struct {
	kind AudienceKind
	id   string
}

func GroupAudience(groupID string) Audience {
	return Audience{kind: AudienceGroup, id: groupID}
}

func SchoolAudience(schoolID string) Audience {
	return Audience{kind: AudienceSchool, id: schoolID}
}

func GuardianAudience(userID string) Audience {
	return Audience{kind: AudienceGuardian, id: userID}
}

func (a Audience) Kind() AudienceKind { return a.kind }
func (a Audience) ID() string         { return a.id }
func (a Audience) IsZero() bool       { return a.kind == 0 }

// TokenError records one failed delivery attempt.
type TokenError struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// Result is the aggregate outcome of one dispatch. Attempted always equals
// Delivered plus the number of Failures.
type Result struct {
	DispatchID string       `json:"dispatch_id"`
	Attempted  int          `json:"attempted"`
	Delivered  int          `json:"delivered"`
	Failures   []TokenError `json:"failures,omitempty"`
}

// Failed returns the number of per-token delivery failures.
func (r Result) Failed() int { return len(r.Failures) }
