package tracker

import (
	"context"
	"fmt"

	"github.com/screwyprof/poolmembers/members"
)

// lookup resolves each batch of joined accounts to their current records.
// A failed batch is reported and dropped.
func (s *Service) lookup(ctx context.Context, batches <-chan lookupBatch, merges chan<- additions) {
	for batch := range batches {
		found, err := s.fetchMembers(ctx, batch.accounts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.errors.WithLabelValues(stageLookup).Inc()
			s.emit(LookupError{Height: batch.height, Accounts: len(batch.accounts), Err: err})
			continue
		}
		if len(found) == 0 {
			continue
		}

		select {
		case merges <- additions{height: batch.height, members: found}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) fetchMembers(ctx context.Context, accounts []members.AccountID) ([]members.Member, error) {
	keys := make([]string, len(accounts))
	for i, account := range accounts {
		keys[i] = account.String()
	}

	start := s.clock.Now()
	records, err := s.api.PoolMembers(ctx, keys)
	s.metrics.lookupDuration.Observe(s.clock.Now().Sub(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	infos := make([]*members.Info, len(records))
	for i, record := range records {
		if record == nil {
			continue
		}
		info, err := toInfo(*record)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", keys[i], err)
		}
		infos[i] = &info
	}

	found, err := members.CollectLookups(accounts, infos)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	return found, nil
}
