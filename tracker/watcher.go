package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/pkg/sidecar"
)

// watch anchors at the current head and then scans every new block once per poll interval.
// Accounts that joined a pool are handed to the lookup worker, one batch per block.
// A block that fails to load is retried on the next tick.
func (s *Service) watch(ctx context.Context, batches chan<- lookupBatch, fatals chan<- fatal) {
	defer close(batches)

	var (
		next     uint64
		anchored bool
	)
	for {
		if !anchored {
			head, err := s.api.Head(ctx)
			switch {
			case err == nil:
				next, anchored = head+1, true
			case ctx.Err() == nil:
				s.watchFailed(fmt.Errorf("%w: %w", ErrHeadFailed, err))
			}
		} else {
			var err error
			next, err = s.scan(ctx, next, batches)
			switch {
			case errors.Is(err, members.ErrMalformedEvent):
				select {
				case fatals <- fatal{height: next, err: err}:
				case <-ctx.Done():
				}
				return
			case err != nil && ctx.Err() == nil:
				s.watchFailed(err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.pollInterval):
		}
	}
}

// scan processes blocks from `from` up to the current head and returns the next height to scan.
func (s *Service) scan(ctx context.Context, from uint64, batches chan<- lookupBatch) (uint64, error) {
	head, err := s.api.Head(ctx)
	if err != nil {
		return from, fmt.Errorf("%w: %w", ErrHeadFailed, err)
	}

	next, joined := from, 0
	defer func() {
		if next > from {
			s.emit(BlocksScanned{From: from, To: next - 1, Joined: joined})
		}
	}()

	for ; next <= head; next++ {
		block, err := s.api.Block(ctx, next)
		if err != nil {
			return next, fmt.Errorf("%w: height %d: %w", ErrBlockFailed, next, err)
		}

		changes, err := members.FilterBondedAdditions(poolEvents(block))
		if err != nil {
			return next, fmt.Errorf("height %d: %w", next, err)
		}
		if len(changes.Added) == 0 {
			continue
		}

		joined += len(changes.Added)
		s.metrics.joined.Add(float64(len(changes.Added)))

		select {
		case batches <- lookupBatch{height: next, accounts: changes.Added}:
		case <-ctx.Done():
			return next, ctx.Err()
		}
	}

	return next, nil
}

func (s *Service) watchFailed(err error) {
	s.metrics.errors.WithLabelValues(stageWatch).Inc()
	s.emit(WatchError{Err: err})
}

// poolEvents keeps the nominationPools events of a block
func poolEvents(block sidecar.Block) []members.ChainEvent {
	var events []members.ChainEvent
	for _, ev := range block.Events() {
		if ev.Method.Pallet != members.PalletNominationPools {
			continue
		}
		events = append(events, members.ChainEvent{
			Pallet: ev.Method.Pallet,
			Method: ev.Method.Method,
			Data:   ev.Data,
		})
	}
	return events
}
