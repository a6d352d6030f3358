package tracker

// Subscriber handles event subscriptions.
type Subscriber struct {
	done                  chan struct{}
	startedHandler        func(Started)
	snapshotLoadedHandler func(SnapshotLoaded)
	snapshotErrorHandler  func(SnapshotError)
	blocksScannedHandler  func(BlocksScanned)
	watchErrorHandler     func(WatchError)
	lookupErrorHandler    func(LookupError)
	mergeDroppedHandler   func(MergeDropped)
	viewPublishedHandler  func(ViewPublished)
	sinkErrorHandler      func(SinkError)
	schemaMismatchHandler func(SchemaMismatch)
	stoppedHandler        func(Stopped)
}

// OnStarted sets the handler for Started events
func OnStarted(fn func(Started)) func(*Subscriber) {
	return func(s *Subscriber) { s.startedHandler = fn }
}

// OnSnapshotLoaded sets the handler for SnapshotLoaded events
func OnSnapshotLoaded(fn func(SnapshotLoaded)) func(*Subscriber) {
	return func(s *Subscriber) { s.snapshotLoadedHandler = fn }
}

// OnSnapshotError sets the handler for SnapshotError events
func OnSnapshotError(fn func(SnapshotError)) func(*Subscriber) {
	return func(s *Subscriber) { s.snapshotErrorHandler = fn }
}

// OnBlocksScanned sets the handler for BlocksScanned events
func OnBlocksScanned(fn func(BlocksScanned)) func(*Subscriber) {
	return func(s *Subscriber) { s.blocksScannedHandler = fn }
}

// OnWatchError sets the handler for WatchError events
func OnWatchError(fn func(WatchError)) func(*Subscriber) {
	return func(s *Subscriber) { s.watchErrorHandler = fn }
}

// OnLookupError sets the handler for LookupError events
func OnLookupError(fn func(LookupError)) func(*Subscriber) {
	return func(s *Subscriber) { s.lookupErrorHandler = fn }
}

// OnMergeDropped sets the handler for MergeDropped events
func OnMergeDropped(fn func(MergeDropped)) func(*Subscriber) {
	return func(s *Subscriber) { s.mergeDroppedHandler = fn }
}

// OnViewPublished sets the handler for ViewPublished events
func OnViewPublished(fn func(ViewPublished)) func(*Subscriber) {
	return func(s *Subscriber) { s.viewPublishedHandler = fn }
}

// OnSinkError sets the handler for SinkError events
func OnSinkError(fn func(SinkError)) func(*Subscriber) {
	return func(s *Subscriber) { s.sinkErrorHandler = fn }
}

// OnSchemaMismatch sets the handler for SchemaMismatch events
func OnSchemaMismatch(fn func(SchemaMismatch)) func(*Subscriber) {
	return func(s *Subscriber) { s.schemaMismatchHandler = fn }
}

// OnStopped sets the handler for Stopped events
func OnStopped(fn func(Stopped)) func(*Subscriber) {
	return func(s *Subscriber) { s.stoppedHandler = fn }
}

// NewSubscriber creates a Subscriber with the given options and starts the dispatch loop.
// Returns a closer function that waits for all events to be processed.
//
// Example:
//
//	closer := tracker.NewSubscriber(events,
//	  tracker.OnViewPublished(func(e tracker.ViewPublished) { ... }),
//	)
//	defer closer()  // Ensures all events processed before exit
//
// Handlers run on the dispatch goroutine, one at a time, in emission order.
func NewSubscriber(events <-chan Event, opts ...func(*Subscriber)) func() {
	s := &Subscriber{
		done:                  make(chan struct{}),
		startedHandler:        func(Started) {},
		snapshotLoadedHandler: func(SnapshotLoaded) {},
		snapshotErrorHandler:  func(SnapshotError) {},
		blocksScannedHandler:  func(BlocksScanned) {},
		watchErrorHandler:     func(WatchError) {},
		lookupErrorHandler:    func(LookupError) {},
		mergeDroppedHandler:   func(MergeDropped) {},
		viewPublishedHandler:  func(ViewPublished) {},
		sinkErrorHandler:      func(SinkError) {},
		schemaMismatchHandler: func(SchemaMismatch) {},
		stoppedHandler:        func(Stopped) {},
	}

	for _, opt := range opts {
		opt(s)
	}

	go func() {
		defer close(s.done)
		for ev := range events {
			switch e := ev.(type) {
			case Started:
				s.startedHandler(e)
			case SnapshotLoaded:
				s.snapshotLoadedHandler(e)
			case SnapshotError:
				s.snapshotErrorHandler(e)
			case BlocksScanned:
				s.blocksScannedHandler(e)
			case WatchError:
				s.watchErrorHandler(e)
			case LookupError:
				s.lookupErrorHandler(e)
			case MergeDropped:
				s.mergeDroppedHandler(e)
			case ViewPublished:
				s.viewPublishedHandler(e)
			case SinkError:
				s.sinkErrorHandler(e)
			case SchemaMismatch:
				s.schemaMismatchHandler(e)
			case Stopped:
				s.stoppedHandler(e)
			}
		}
	}()

	return func() {
		<-s.done
	}
}
