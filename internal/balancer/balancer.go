// Package balancer picks target nodes for new meetings and enforces
// tenant and secret capacity limits.
package balancer

import (
	"context"
	"errors"
	"math/rand"

	"github.com/google/uuid"

	"github.com/DE-IBH/b3lb/internal/logging"
	"github.com/DE-IBH/b3lb/internal/store"
)

// ErrNoNodeAvailable means no node in the tenant's cluster group is
// accepting meetings.
var ErrNoNodeAvailable = errors.New("no node available")

// ErrLimitReached means the tenant or secret hit its meeting or
// attendee cap.
var ErrLimitReached = errors.New("limit reached")

// The selector treats any load at or above this sentinel as worse than
// every real node.
const loadSentinel = 10000000

// Balancer selects nodes and gates creates against capacity limits.
type Balancer struct {
	store  *store.Store
	logger logging.Logger
}

func New(st *store.Store, logger logging.Logger) *Balancer {
	return &Balancer{store: st, logger: logger}
}

// SelectNode returns a random node among those sharing the lowest
// non-negative load in the tenant's cluster group.
func (b *Balancer) SelectNode(ctx context.Context, secret *store.Secret) (*store.Node, error) {
	nodes, err := b.store.ListNodesInClusterGroup(ctx, secret.Tenant.ClusterGroupUUID)
	if err != nil {
		return nil, err
	}

	lowest := loadSentinel
	var candidates []*store.Node
	for _, node := range nodes {
		load := node.Load()
		if load < 0 || load > lowest {
			continue
		}
		if load == lowest {
			candidates = append(candidates, node)
		} else {
			candidates = []*store.Node{node}
			lowest = load
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoNodeAvailable
	}
	return candidates[rand.Intn(len(candidates))], nil
}

// CheckLimits verifies the tenant and secret meeting and attendee caps
// before a create. A zero limit means unlimited. Hits are counted on
// the limited scope: tenant-level hits land on the tenant-wide sub_id=0
// secret, attributed to the already selected node.
func (b *Balancer) CheckLimits(ctx context.Context, secret *store.Secret, node *store.Node) error {
	var nodeUUID *uuid.UUID
	if node != nil {
		nodeUUID = &node.UUID
	}

	if secret.Tenant.MeetingLimit > 0 {
		count, err := b.store.CountMeetingsForTenant(ctx, secret.Tenant.UUID)
		if err != nil {
			return err
		}
		if count >= secret.Tenant.MeetingLimit {
			b.countLimitHit(ctx, store.MetricMeetingLimitHits, secret, nodeUUID, true)
			return ErrLimitReached
		}
	}

	if secret.MeetingLimit > 0 {
		count, err := b.store.CountMeetingsForSecret(ctx, secret.UUID)
		if err != nil {
			return err
		}
		if count >= secret.MeetingLimit {
			b.countLimitHit(ctx, store.MetricMeetingLimitHits, secret, nodeUUID, false)
			return ErrLimitReached
		}
	}

	if secret.Tenant.AttendeeLimit > 0 {
		sum, err := b.store.SumAttendeesForTenant(ctx, secret.Tenant.UUID)
		if err != nil {
			return err
		}
		if sum >= secret.Tenant.AttendeeLimit {
			b.countLimitHit(ctx, store.MetricAttendeeLimitHits, secret, nodeUUID, true)
			return ErrLimitReached
		}
	}

	if secret.AttendeeLimit > 0 {
		sum, err := b.store.SumAttendeesForSecret(ctx, secret.UUID)
		if err != nil {
			return err
		}
		if sum >= secret.AttendeeLimit {
			b.countLimitHit(ctx, store.MetricAttendeeLimitHits, secret, nodeUUID, false)
			return ErrLimitReached
		}
	}

	return nil
}

func (b *Balancer) countLimitHit(ctx context.Context, metric string, secret *store.Secret, nodeUUID *uuid.UUID, tenantWide bool) {
	target := secret.UUID
	if tenantWide && secret.SubID != 0 {
		root, err := b.store.GetTenantRootSecret(ctx, secret.Tenant.UUID)
		if err != nil {
			b.logger.WithError(err).WithField("tenant", secret.Tenant.Slug).
				Warn("Failed to resolve tenant root secret for limit metric")
			return
		}
		target = root.UUID
	}
	if err := b.store.IncrMetric(ctx, metric, target, nodeUUID, 1); err != nil {
		b.logger.WithError(err).WithField("metric", metric).Warn("Failed to count limit hit")
	}
}
