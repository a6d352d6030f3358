package tracker

import (
	"context"

	"github.com/screwyprof/poolmembers/pkg/viewbus"
)

// Broadcaster is the publishing side of a viewbus.Bus
type Broadcaster interface {
	Publish(ctx context.Context, msg viewbus.Message, latest viewbus.Latest) error
}

// BusSink announces publications on the view bus
type BusSink struct {
	bus Broadcaster
}

// NewBusSink creates a sink that forwards publications to bus
func NewBusSink(bus Broadcaster) *BusSink {
	return &BusSink{bus: bus}
}

// Publish implements Sink. Snapshots and resyncs are announced without pools;
// subscribers read the full view from Latest.
func (b *BusSink) Publish(ctx context.Context, pub Publication) error {
	msg := viewbus.Message{
		Type:        viewbus.TypeViewPublished,
		Version:     pub.Version,
		Height:      pub.Height,
		Reason:      string(pub.Reason),
		PublishedAt: pub.PublishedAt,
		Resync:      pub.Resync,
	}
	if !pub.ReplacesAll() {
		msg.Pools = viewbus.Select(pub.View, pub.Touched)
	}

	return b.bus.Publish(ctx, msg, viewbus.Latest{
		Version:     pub.Version,
		Height:      pub.Height,
		PublishedAt: pub.PublishedAt,
		View:        pub.View,
	})
}
