package notify

import "context"

// Directory exposes the relational lookups needed to expand an audience
// into guardian ids. Backed by the school's Postgres.
type Directory interface {
	// GuardiansByGroup returns the guardian ids linked to students of one
	// group. Students without a linked guardian are excluded.
	GuardiansByGroup(ctx context.Context, groupID string) ([]string, error)

	// GroupIDsBySchool returns the ids of every group belonging to a school.
	GroupIDsBySchool(ctx context.Context, schoolID string) ([]string, error)

	// GuardiansByGroups returns the guardian ids linked to students of any
	// of the given groups.
	GuardiansByGroups(ctx context.Context, groupIDs []string) ([]string, error)
}

// Resolver expands an audience selector into a deduplicated set of
// guardian ids.
type Resolver interface {
	Resolve(ctx context.Context, audience Audience) ([]string, error)
}

// TokenStore defines the contract for managing guardian device tokens.
// It allows the service to remember "where" to send notifications for a user.
type TokenStore interface {
	// TokensForUsers retrieves the registered device tokens for each of the
	// given users, keyed by user id. Users with no tokens are absent from
	// the returned map.
	TokensForUsers(ctx context.Context, userIDs []string) (map[string][]string, error)

	// RegisterToken adds or updates a device token for a specific user.
	// Re-registering a token moves it to the new user (upsert).
	RegisterToken(ctx context.Context, userID, token string) error

	// UnregisterToken removes a device token for a specific user.
	UnregisterToken(ctx context.Context, userID, token string) error
}

// AccessTokenSource mints a short-lived bearer token for the push gateway.
// A fresh token is minted per dispatch; implementations do not cache.
type AccessTokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Dispatcher delivers one payload to a batch of device tokens, best-effort.
// A failure for one token never aborts delivery to the others; per-token
// outcomes are reported in the Result.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, payload Payload, bearer string) Result
}
