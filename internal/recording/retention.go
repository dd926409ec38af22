package recording

import (
	"context"

	"github.com/DE-IBH/b3lb/internal/store"
)

// Sweep expires record sets past their hold time and finishes the
// cleanup of everything already marked DELETING: rendered records, the
// blob prefix and finally the set itself.
func (p *Pipeline) Sweep(ctx context.Context) {
	if _, err := p.store.MarkExpiredRecordSets(ctx); err != nil {
		p.logger.WithError(err).Error("Failed to mark expired record sets")
		return
	}

	sets, err := p.store.ListRecordSetsByStatus(ctx, store.RecordSetDeleting, 0)
	if err != nil {
		p.logger.WithError(err).Error("Failed to list deleting record sets")
		return
	}

	for _, rs := range sets {
		if err := p.deleteRecordSet(ctx, rs); err != nil {
			p.logger.WithError(err).WithField("record_set", rs.UUID).
				Warn("Failed to delete record set")
		}
	}
}

func (p *Pipeline) deleteRecordSet(ctx context.Context, rs *store.RecordSet) error {
	records, err := p.store.ListRecordsForRecordSet(ctx, rs.UUID)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := p.store.DeleteRecord(ctx, record.UUID); err != nil {
			return err
		}
	}

	if rs.FilePath != "" {
		if n, err := p.blobs.DeletePrefix(ctx, rs.FilePath); err != nil {
			return err
		} else if n > 0 {
			p.logger.WithField("record_set", rs.UUID).WithField("objects", n).
				Debug("Deleted recording blobs")
		}
	}

	return p.store.DeleteRecordSet(ctx, rs.UUID)
}
