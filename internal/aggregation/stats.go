package aggregation

import (
	"context"
	"sort"

	"github.com/DE-IBH/b3lb/internal/store"
)

// RebuildTenantStats regroups a tenant's live meetings by origin and
// origin server name. Meetings on errored nodes are skipped, their
// counters are stale.
func (a *Aggregator) RebuildTenantStats(ctx context.Context, tenant *store.Tenant) error {
	meetings, nodeErrors, err := a.store.ListMeetingsForTenant(ctx, tenant.UUID)
	if err != nil {
		return err
	}

	type key struct {
		origin string
		server string
	}
	grouped := make(map[key]*store.Stats)
	for _, meeting := range meetings {
		if nodeErrors[meeting.NodeUUID.String()] {
			continue
		}
		if meeting.Origin == "" || meeting.OriginServerName == "" {
			continue
		}
		k := key{meeting.Origin, meeting.OriginServerName}
		st := grouped[k]
		if st == nil {
			st = &store.Stats{
				TenantUUID:       tenant.UUID,
				Origin:           meeting.Origin,
				OriginServerName: meeting.OriginServerName,
			}
			grouped[k] = st
		}
		st.Meetings++
		st.Attendees += meeting.Attendees
		st.ListenerCount += meeting.ListenerCount
		st.VoiceParticipantCount += meeting.VoiceParticipantCount
		st.ModeratorCount += meeting.ModeratorCount
		st.VideoCount += meeting.VideoCount
	}

	stats := make([]*store.Stats, 0, len(grouped))
	for _, st := range grouped {
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Origin != stats[j].Origin {
			return stats[i].Origin < stats[j].Origin
		}
		return stats[i].OriginServerName < stats[j].OriginServerName
	})

	return a.store.ReplaceStatsForTenant(ctx, tenant.UUID, stats)
}

// RebuildAllTenantStats runs the statistics rebuild for every tenant.
func (a *Aggregator) RebuildAllTenantStats(ctx context.Context) {
	tenants, err := a.store.ListTenants(ctx)
	if err != nil {
		a.logger.WithError(err).Error("Failed to list tenants for statistics rebuild")
		return
	}
	for _, tenant := range tenants {
		if err := a.RebuildTenantStats(ctx, tenant); err != nil {
			a.logger.WithError(err).WithField("tenant", tenant.Slug).
				Warn("Failed to rebuild tenant statistics")
		}
	}
}
