package index

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Op is the kind of filesystem change carried by an Event.
type Op int

const (
	Created Op = iota + 1
	Modified
	Deleted
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a filesystem change under the vault root.
type Event struct {
	Op    Op
	Path  string // absolute
	IsDir bool
}

// DefaultDebounce is the quiet period Run waits for before handling a path.
const DefaultDebounce = 250 * time.Millisecond

// Handle applies a single event to the index. Errors are logged and never
// returned, so one bad document cannot stop the event loop.
func (s *Synchronizer) Handle(ctx context.Context, ev Event) {
	rel, err := s.vault.Rel(ev.Path)
	if err != nil || rel == "." {
		return
	}

	switch ev.Op {
	case Created, Modified:
		if ev.IsDir {
			s.indexDir(ctx, rel)
			return
		}
		if !s.vault.Qualifies(rel) {
			return
		}
		if _, err := s.IndexFile(ctx, rel); err != nil {
			s.logger.Warn("sync: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

	case Deleted:
		// A removed directory arrives as a single event for its own path and
		// the flag cannot be known after the fact, so drop anything below it too.
		if s.vault.Qualifies(rel) && !ev.IsDir {
			if _, err := s.RemoveFile(ctx, rel); err != nil {
				s.logger.Warn("sync: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			}
			return
		}
		if _, err := s.RemoveDir(ctx, rel); err != nil {
			s.logger.Warn("sync: delete dir failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}
}

// indexDir indexes every qualifying document found in a newly created directory.
func (s *Synchronizer) indexDir(ctx context.Context, rel string) {
	metas, err := s.vault.List(rel)
	if err != nil {
		s.logger.Warn("sync: list dir failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	for _, m := range metas {
		if _, err := s.IndexFile(ctx, m.Path); err != nil {
			s.logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		}
	}
}

// Run consumes events until ctx is cancelled or the channel is closed.
// Events for the same path are coalesced: the latest event is handled once
// the path has been quiet for debounce. A non-positive debounce handles
// every event as it arrives.
func (s *Synchronizer) Run(ctx context.Context, events <-chan Event, debounce time.Duration) error {
	if debounce <= 0 {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				s.Handle(ctx, ev)
			}
		}
	}

	pending := make(map[string]pendingEvent)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	armed := false

	// schedule arms the timer for the oldest pending event. Later events
	// never push it back, so a busy path cannot hold up the others.
	schedule := func() {
		if len(pending) == 0 {
			return
		}
		var oldest time.Time
		for _, pe := range pending {
			if oldest.IsZero() || pe.at.Before(oldest) {
				oldest = pe.at
			}
		}
		timer.Reset(max(time.Until(oldest.Add(debounce)), 0))
		armed = true
	}

	flush := func(all bool) {
		now := time.Now()
		var due []pendingEvent
		for p, pe := range pending {
			if all || now.Sub(pe.at) >= debounce {
				due = append(due, pe)
				delete(pending, p)
			}
		}
		sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })
		for _, pe := range due {
			s.Handle(ctx, pe.Event)
		}
	}

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				flush(true)
				return nil
			}
			seq++
			pending[ev.Path] = pendingEvent{Event: ev, at: time.Now(), seq: seq}
			if !armed {
				schedule()
			}

		case <-timer.C:
			armed = false
			flush(false)
			schedule()
		}
	}
}

type pendingEvent struct {
	Event
	at  time.Time
	seq uint64
}
