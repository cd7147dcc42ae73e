package cache

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cohortlabs/cohort-stack/membership/internal/metrics"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

// maxParallelDeletes bounds concurrent deletes per invalidation.
const maxParallelDeletes = 8

// MembershipKeys returns the keys made stale by mutations applied for
// userID: each group's member list, then the user's group list.
func MembershipKeys(mutations []models.MembershipMutation, userID string) []string {
	keys := make([]string, 0, len(mutations)+1)
	seen := make(map[string]bool, len(mutations)+1)
	for _, m := range mutations {
		k := GroupMembersKey(m.GroupID)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	if k := UserKey(userID); !seen[k] {
		keys = append(keys, k)
	}
	return keys
}

// Invalidate deletes keys concurrently. Every key is attempted; the first
// error is returned.
func Invalidate(ctx context.Context, store Store, keys []string) error {
	g := new(errgroup.Group)
	g.SetLimit(maxParallelDeletes)
	for _, key := range keys {
		g.Go(func() error {
			if err := store.Delete(ctx, key); err != nil {
				metrics.CacheInvalidations.WithLabelValues(metrics.OutcomeFailed).Inc()
				return err
			}
			metrics.CacheInvalidations.WithLabelValues(metrics.OutcomeSuccess).Inc()
			return nil
		})
	}
	return g.Wait()
}
