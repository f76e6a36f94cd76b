package knxip

import (
	"context"
	"time"
)

// TimeBroadcaster periodically writes the current time, date, and/or
// combined date-time to configured group addresses, adapted from the
// source's KNXDateTimeUpdater. The day/night group address that source
// derived from a solar altitude calculation is dropped: nothing in this
// codebase's dependency surface provides an ephemeris library, and
// faking sunrise/sunset with a fixed-hour heuristic would be a silent
// correctness regression rather than a faithful port.
type TimeBroadcaster struct {
	Tunnel       *Tunnel
	TimeAddr     *GroupAddress
	DateAddr     *GroupAddress
	DateTimeAddr *GroupAddress
	Weekday      int // 0-7, passed through to EncodeTime/EncodeDateTime
	Interval     time.Duration
}

// Run sends updates immediately and then every Interval until ctx is
// cancelled. It is intended to be started in its own goroutine.
func (b *TimeBroadcaster) Run(ctx context.Context) {
	interval := b.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	b.sendUpdates(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sendUpdates(ctx)
		}
	}
}

func (b *TimeBroadcaster) sendUpdates(ctx context.Context) {
	now := time.Now()

	if b.TimeAddr != nil {
		data, err := EncodeTime(KNXTime{
			Weekday: b.Weekday,
			Hour:    now.Hour(),
			Minute:  now.Minute(),
			Second:  now.Second(),
		})
		if err == nil {
			_ = b.Tunnel.GroupWrite(ctx, *b.TimeAddr, data)
		}
	}

	if b.DateAddr != nil {
		data, err := EncodeDate(now)
		if err == nil {
			_ = b.Tunnel.GroupWrite(ctx, *b.DateAddr, data)
		}
	}

	if b.DateTimeAddr != nil {
		data, err := EncodeDateTime(KNXDateTime{Time: now, Weekday: b.Weekday})
		if err == nil {
			_ = b.Tunnel.GroupWrite(ctx, *b.DateTimeAddr, data)
		}
	}
}
