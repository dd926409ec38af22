// Package aggregation rebuilds the derived documents served on the hot
// path: per-secret getMeetings XML, Prometheus metric text and the
// per-tenant statistics table.
package aggregation

import (
	"context"

	"github.com/DE-IBH/b3lb/internal/bbb"
	"github.com/DE-IBH/b3lb/internal/logging"
	"github.com/DE-IBH/b3lb/internal/state"
	"github.com/DE-IBH/b3lb/internal/store"
)

// Aggregator owns the rebuild passes.
type Aggregator struct {
	store  *store.Store
	cache  *state.MeetingListCache
	logger logging.Logger
}

func New(st *store.Store, cache *state.MeetingListCache, logger logging.Logger) *Aggregator {
	return &Aggregator{store: st, cache: cache, logger: logger}
}

// RebuildSecretMeetingList merges every node's getMeetings document,
// keeps the meetings the secret owns and stores the rendered result.
// The Redis copy of a node document is preferred, the database row is
// the fallback.
func (a *Aggregator) RebuildSecretMeetingList(ctx context.Context, secret *store.Secret) error {
	ownedIDs, err := a.store.ListMeetingIDsOwnedBySecret(ctx, secret)
	if err != nil {
		return err
	}

	nodes, err := a.store.ListNodes(ctx)
	if err != nil {
		return err
	}

	var kept []bbb.Element
	for _, node := range nodes {
		raw, found := a.cache.Get(ctx, node.UUID.String())
		if !found {
			raw, err = a.store.GetNodeMeetingList(ctx, node.UUID)
			if err != nil {
				a.logger.WithError(err).WithField("node", node.Hostname()).
					Warn("Failed to load node meeting list")
				continue
			}
		}
		if raw == "" {
			continue
		}

		meetings, err := bbb.ExtractMeetings(raw)
		if err != nil {
			a.logger.WithError(err).WithField("node", node.Hostname()).
				Warn("Node meeting list unparsable")
			continue
		}
		for _, meeting := range meetings {
			if ownedIDs[meeting.ChildText("meetingID")] {
				kept = append(kept, meeting)
			}
		}
	}

	document := bbb.ReturnNoMeetings
	if len(kept) > 0 {
		document = bbb.RenderGetMeetings(kept)
	}
	return a.store.SetSecretMeetingList(ctx, secret.UUID, document)
}

// RebuildAllSecretMeetingLists runs the meeting list rebuild for every
// secret.
func (a *Aggregator) RebuildAllSecretMeetingLists(ctx context.Context) {
	secrets, err := a.store.ListSecrets(ctx)
	if err != nil {
		a.logger.WithError(err).Error("Failed to list secrets for meeting list rebuild")
		return
	}
	for _, secret := range secrets {
		if err := a.RebuildSecretMeetingList(ctx, secret); err != nil {
			a.logger.WithError(err).WithField("secret", secret.Slug()).
				Warn("Failed to rebuild secret meeting list")
		}
	}
}
