package identity

import (
	"context"
	"slices"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

// collectCluster walks linked_id edges in both directions from seed until no
// new contact is discovered. Each id is read at most once and every frontier
// costs one batched lookup per direction.
func (r *Resolver) collectCluster(ctx context.Context, seed []int64) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.collectCluster")
	defer span.End()

	seen := make(map[int64]struct{}, len(seed))
	toFetch := make([]int64, 0, len(seed))
	for _, id := range seed {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		toFetch = append(toFetch, id)
	}

	var cluster []models.Contact
	// children come back as full rows, so they skip the id lookup
	var loaded []models.Contact

	for len(toFetch) > 0 || len(loaded) > 0 {
		for batch := range slices.Chunk(toFetch, r.batchSize) {
			found, err := r.store.FindByIDs(ctx, batch)
			if err != nil {
				return nil, err
			}
			loaded = append(loaded, found...)
		}
		toFetch = toFetch[:0]

		cluster = append(cluster, loaded...)

		expand := make([]int64, 0, len(loaded))
		for _, c := range loaded {
			expand = append(expand, c.ID)
			if c.LinkedID == nil {
				continue
			}
			if _, ok := seen[*c.LinkedID]; !ok {
				seen[*c.LinkedID] = struct{}{}
				toFetch = append(toFetch, *c.LinkedID)
			}
		}
		loaded = loaded[:0]

		for batch := range slices.Chunk(expand, r.batchSize) {
			children, err := r.store.FindByLinkedIDs(ctx, batch)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				if _, ok := seen[child.ID]; ok {
					continue
				}
				seen[child.ID] = struct{}{}
				loaded = append(loaded, child)
			}
		}
	}

	return cluster, nil
}

// seedIDs is every matched contact plus the primary each secondary points at.
func seedIDs(matches []models.Contact) []int64 {
	ids := make([]int64, 0, len(matches)*2)
	for _, c := range matches {
		ids = append(ids, c.ID)
		if c.LinkedID != nil {
			ids = append(ids, *c.LinkedID)
		}
	}
	return ids
}

// primariesOf returns the primaries in cluster, oldest first.
func primariesOf(cluster []models.Contact) []*models.Contact {
	var primaries []*models.Contact
	for i := range cluster {
		if cluster[i].IsPrimary() {
			primaries = append(primaries, &cluster[i])
		}
	}
	slices.SortFunc(primaries, compareContacts)
	return primaries
}

func compareContacts(a, b *models.Contact) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}

func contactIDs(cluster []models.Contact) []int64 {
	return ectolinq.Map(cluster, func(c models.Contact) int64 { return c.ID })
}
