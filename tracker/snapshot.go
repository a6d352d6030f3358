package tracker

import (
	"context"
	"fmt"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/pkg/sidecar"
)

// loadSnapshot reads the whole poolMembers map, retrying until it succeeds or ctx ends.
func (s *Service) loadSnapshot(ctx context.Context, out chan<- snapshot) {
	for {
		snap, err := s.fetchSnapshot(ctx)
		if err == nil {
			select {
			case out <- snap:
			case <-ctx.Done():
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.metrics.errors.WithLabelValues(stageSnapshot).Inc()
		s.emit(SnapshotError{Err: err})

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.retryInterval):
		}
	}
}

// fetchSnapshot pages through poolMembers until the gateway reports no next key.
// Every page after the first is read at the block the first one was answered at.
func (s *Service) fetchSnapshot(ctx context.Context) (snapshot, error) {
	start := s.clock.Now()

	var snap snapshot
	req := sidecar.PoolMembersPageRequest{Count: s.pageSize}
	for {
		page, err := s.api.PoolMembersPage(ctx, req)
		if err != nil {
			return snapshot{}, fmt.Errorf("%w: page %d: %w", ErrSnapshotFailed, snap.pages+1, err)
		}

		if snap.pages == 0 {
			if page.At.Height != "" {
				snap.height, err = sidecar.ParseHeight(page.At.Height)
				if err != nil {
					return snapshot{}, fmt.Errorf("%w: %w", ErrSnapshotFailed, err)
				}
			}
			req.At = pinnedBlock(page.At)
		}
		snap.pages++

		for _, e := range page.Entries {
			entry, err := toEntry(e)
			if err != nil {
				snap.skipped++
				continue
			}
			snap.entries = append(snap.entries, entry)
		}

		if page.NextKey == "" || len(page.Entries) == 0 {
			break
		}
		if page.NextKey == req.StartKey {
			return snapshot{}, fmt.Errorf("%w: %w: next key %s repeats", ErrSnapshotFailed, ErrPagingStalled, page.NextKey)
		}
		req.StartKey = page.NextKey
	}

	snap.duration = s.clock.Now().Sub(start)
	s.metrics.snapshotDuration.Observe(snap.duration.Seconds())
	return snap, nil
}

// pinnedBlock names the block of at, by hash when the gateway reported one
func pinnedBlock(at sidecar.At) string {
	if at.Hash != "" {
		return at.Hash
	}
	return at.Height
}

// toEntry converts a storage entry. Entries with an unreadable key or pool id are rejected.
func toEntry(e sidecar.StorageEntry) (members.Entry, error) {
	key, err := members.ParseAccountID(e.Key)
	if err != nil {
		return members.Entry{}, err
	}
	if e.Value == nil {
		return members.Entry{Key: key}, nil
	}

	info, err := toInfo(*e.Value)
	if err != nil {
		return members.Entry{}, err
	}
	return members.Entry{Key: key, Value: &info}, nil
}

// toInfo converts a gateway delegator record to the domain record
func toInfo(m sidecar.PoolMember) (members.Info, error) {
	poolID, err := members.ParsePoolID(m.PoolID)
	if err != nil {
		return members.Info{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return members.Info{
		PoolID:                    poolID,
		Points:                    m.Points,
		LastRecordedRewardCounter: m.LastRecordedRewardCounter,
		UnbondingEras:             m.UnbondingEras,
	}, nil
}
