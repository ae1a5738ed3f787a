// Package audience expands a notification's target selector into the set of
// guardian ids that should receive it.
package audience

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-guardian-notification-service/pkg/notify"
)

type Resolver struct {
	directory notify.Directory
	logger    *slog.Logger
}

func NewResolver(directory notify.Directory, logger *slog.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		logger:    logger.With("component", "AudienceResolver"),
	}
}

// Resolve expands the audience into a deduplicated set of guardian ids.
// An empty result is not an error: it means nobody matched the selector.
func (r *Resolver) Resolve(ctx context.Context, audience notify.Audience) ([]string, error) {
	switch audience.Kind() {
	case notify.AudienceGuardian:
		return []string{audience.ID()}, nil

	case notify.AudienceGroup:
		guardians, err := r.directory.GuardiansByGroup(ctx, audience.ID())
		if err != nil {
			return nil, fmt.Errorf("failed to look up guardians for group %s: %w", audience.ID(), err)
		}
		return dedupe(guardians), nil

	case notify.AudienceSchool:
		// Two sequential lookups: group membership first, then the
		// students of those groups.
		groupIDs, err := r.directory.GroupIDsBySchool(ctx, audience.ID())
		if err != nil {
			return nil, fmt.Errorf("failed to look up groups for school %s: %w", audience.ID(), err)
		}
		if len(groupIDs) == 0 {
			return nil, nil
		}
		guardians, err := r.directory.GuardiansByGroups(ctx, groupIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to look up guardians for school %s: %w", audience.ID(), err)
		}
		return dedupe(guardians), nil

	default:
		return nil, fmt.Errorf("audience selector is empty or unknown")
	}
}

// dedupe removes repeated guardian ids, keeping first-seen order. A guardian
// linked to several matching students must receive exactly one push.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
