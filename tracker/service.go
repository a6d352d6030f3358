package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/screwyprof/poolmembers/members"
	"github.com/screwyprof/poolmembers/pkg/clock"
)

// Option configures the Service
// ------------------------------------------------
type Option func(*Service)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPollInterval sets how often the watcher looks for new blocks
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.pollInterval = d }
}

// WithRetryInterval sets the delay between failed snapshot attempts
func WithRetryInterval(d time.Duration) Option {
	return func(s *Service) { s.retryInterval = d }
}

// WithPageSize sets the number of storage entries per snapshot page
func WithPageSize(n uint64) Option {
	return func(s *Service) { s.pageSize = n }
}

// WithSinks appends sinks that receive every published view
func WithSinks(sinks ...Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// WithInitialVersion continues numbering after a version published by an earlier run,
// so consumers never see a version go backwards across restarts
func WithInitialVersion(v uint64) Option {
	return func(s *Service) { s.version = v }
}

// Service keeps the membership view current: one snapshot, then Bonded events
// ---------------------------------------------------------------------------
type Service struct {
	api           Client
	clock         Clock
	pollInterval  time.Duration
	retryInterval time.Duration
	pageSize      uint64
	sinks         []Sink
	behind        []bool
	metrics       *metrics
	events        chan Event

	// owned by the run loop
	view    members.View
	version uint64
}

// NewService constructs a Service with required dependencies and options
// ---------------------------------------------------------------------
// By default, it uses a real clock, a 6s poll interval, a 15s snapshot retry and 1000 entry pages.
func NewService(api Client, opts ...Option) *Service {
	s := &Service{
		api:           api,
		clock:         clock.SystemClock{},
		pollInterval:  DefaultPollInterval,
		retryInterval: DefaultRetryInterval,
		pageSize:      DefaultPageSize,
		metrics:       newMetrics(metricsNamespace),
		events:        make(chan Event, 10),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.behind = make([]bool, len(s.sinks))
	return s
}

// Start launches the tracker and returns the events channel and done channel.
//
// Shutdown pattern:
//  1. Cancel context to request shutdown: cancel()
//  2. Service stops its sources, emits Stopped and closes the events channel
//  3. Wait for complete shutdown: <-done
//
// The service also stops on its own when it meets a chain event it cannot decode;
// SchemaMismatch precedes Stopped in that case.
func (s *Service) Start(ctx context.Context) (<-chan Event, <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(s.events)
		defer close(done)
		s.run(ctx)
	}()
	return s.events, done
}

type snapshot struct {
	height   uint64
	entries  []members.Entry
	pages    int
	skipped  int
	duration time.Duration
}

type lookupBatch struct {
	height   uint64
	accounts []members.AccountID
}

type additions struct {
	height  uint64
	members []members.Member
}

type fatal struct {
	height uint64
	err    error
}

// run starts the sources and applies what they deliver until shutdown
// -------------------------------------------------------------------
func (s *Service) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s.emit(Started{
		StartedAt:    s.clock.Now(),
		PollInterval: s.pollInterval,
		PageSize:     s.pageSize,
	})

	snapshots := make(chan snapshot, 1)
	batches := make(chan lookupBatch, DefaultLookupQueue)
	merges := make(chan additions, DefaultLookupQueue)
	fatals := make(chan fatal, 1)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.loadSnapshot(ctx, snapshots)
	}()
	go func() {
		defer wg.Done()
		s.watch(ctx, batches, fatals)
	}()
	go func() {
		defer wg.Done()
		s.lookup(ctx, batches, merges)
	}()

	reason := s.loop(ctx, snapshots, merges, fatals)

	cancel()
	wg.Wait()

	s.emit(Stopped{Reason: reason})
}

// loop is the only writer of the view
func (s *Service) loop(ctx context.Context, snapshots <-chan snapshot, merges <-chan additions, fatals <-chan fatal) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case snap := <-snapshots:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.install(ctx, snap)

		case add := <-merges:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.apply(ctx, add)

		case f := <-fatals:
			s.metrics.errors.WithLabelValues(stageWatch).Inc()
			s.emit(SchemaMismatch{Height: f.height, Err: f.err})
			return f.err
		}
	}
}

// install builds the initial view. Only the first snapshot is used.
func (s *Service) install(ctx context.Context, snap snapshot) {
	if s.view != nil {
		return
	}

	s.view = members.BuildInitialView(snap.entries)
	s.emit(SnapshotLoaded{
		Height:   snap.height,
		Pages:    snap.pages,
		Entries:  len(snap.entries),
		Skipped:  snap.skipped,
		Duration: snap.duration,
	})

	s.publish(ctx, Publication{
		Height:  snap.height,
		Reason:  ReasonSnapshot,
		View:    s.view,
		Touched: s.view.Pools(),
	})
}

// apply merges looked-up members into the view, or drops them while there is none.
func (s *Service) apply(ctx context.Context, add additions) {
	if s.view == nil {
		s.metrics.mergesDropped.Inc()
		s.emit(MergeDropped{Height: add.height, Members: len(add.members)})
		return
	}

	result := members.Merge(s.view, add.members)
	s.view = result.View

	s.publish(ctx, Publication{
		Height:  add.height,
		Reason:  ReasonMerge,
		View:    s.view,
		Touched: result.Touched,
	})
}

func (s *Service) publish(ctx context.Context, pub Publication) {
	s.version++
	pub.Version = s.version
	pub.PublishedAt = s.clock.Now()

	s.metrics.observePublication(pub)
	s.emit(ViewPublished{
		Version: pub.Version,
		Height:  pub.Height,
		Reason:  pub.Reason,
		Pools:   len(pub.View),
		Members: pub.View.MemberCount(),
		Touched: len(pub.Touched),
	})

	for i, sink := range s.sinks {
		out := pub
		if s.behind[i] {
			out = resync(pub)
		}
		if err := sink.Publish(ctx, out); err != nil {
			s.behind[i] = true
			s.metrics.errors.WithLabelValues(stageSink).Inc()
			s.emit(SinkError{Version: pub.Version, Err: fmt.Errorf("%w: %w", ErrSinkFailed, err)})
			continue
		}
		s.behind[i] = false
	}
}

// resync turns pub into a full rewrite for a sink that missed an earlier publication
func resync(pub Publication) Publication {
	pub.Resync = true
	pub.Touched = pub.View.Pools()
	return pub
}

// emit hands an event to the subscriber. Any goroutine of the service may call it.
func (s *Service) emit(e Event) {
	s.events <- e
}
