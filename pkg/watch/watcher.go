// Package watch maintains a last-observed stage cache for every known display
// element and notifies subscribers on transitions. One poll loop owns all
// cache writes; reads and subscriptions are safe from any goroutine.
package watch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"stagebridge/pkg/ident"
	"stagebridge/pkg/ledger"
)

const minInterval = 250 * time.Millisecond

var ErrAlreadyRunning = errors.New("watch: already running")

// Element is a display subscriber entity declaring its raw id.
type Element interface {
	ElementID() string
}

// InfoReceiver is an optional Element capability: elements implementing it
// get the entity's note pushed every poll, independent of stage changes.
type InfoReceiver interface {
	SetInfo(note string, updatedAtUnix int64)
}

// Source enumerates the currently present elements. Called once per poll, so
// elements may come and go between iterations.
type Source interface {
	Elements() []Element
}

type Options struct {
	// Bridge is the preferred stage source. Nil disables the bridge path
	// and reads the ledger directly through Direct.
	Bridge *Client
	Direct ledger.Accessor
	Source Source
	// Interval between polls; values under 250ms are raised to 250ms.
	Interval time.Duration
	Logf     func(format string, args ...any)
}

type Watcher struct {
	opts Options

	mu     sync.RWMutex
	stages map[string]int

	subMu sync.RWMutex
	subs  map[int]func(normalizedID string, stage int)
	nextS int

	startMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Interval < minInterval {
		opts.Interval = minInterval
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}
	return &Watcher{
		opts:   opts,
		stages: map[string]int{},
		subs:   map[int]func(string, int){},
	}
}

// Start launches the poll loop. It returns ErrAlreadyRunning on a second
// call; the loop stops when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	if w.cancel != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx)
	return nil
}

// Stop cancels the loop and waits for the in-flight iteration to finish.
func (w *Watcher) Stop() {
	w.startMu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.startMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// StageOf returns the last observed stage for a normalized id. The value is
// last-observed, not last-true: it may trail the ledger between polls.
func (w *Watcher) StageOf(normalizedID string) (int, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, found := w.stages[normalizedID]
	return s, found
}

// Subscription unregisters its callback on Cancel. After Cancel returns the
// callback is never invoked again, even against concurrent emission.
type Subscription struct {
	w  *Watcher
	id int
}

func (s *Subscription) Cancel() {
	s.w.subMu.Lock()
	delete(s.w.subs, s.id)
	s.w.subMu.Unlock()
}

// Subscribe registers a change callback fired once per observed transition
// with (normalizedId, newStage).
func (w *Watcher) Subscribe(fn func(normalizedID string, stage int)) *Subscription {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	w.nextS++
	id := w.nextS
	w.subs[id] = fn
	return &Subscription{w: w, id: id}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		w.pollOnce(ctx)
		select {
		case <-time.After(w.opts.Interval):
		case <-ctx.Done():
			return
		}
	}
}

// pollOnce observes every known element and updates the cache. Per-element
// failures default the stage to 0 and never abort the iteration.
func (w *Watcher) pollOnce(ctx context.Context) {
	if w.opts.Source == nil {
		return
	}
	for _, el := range w.opts.Source.Elements() {
		if ctx.Err() != nil {
			return
		}
		raw := el.ElementID()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		norm := ident.Normalize(raw)
		stage, note, updatedAt := w.observe(ctx, norm)

		w.mu.Lock()
		old, known := w.stages[norm]
		changed := !known || old != stage
		if changed {
			w.stages[norm] = stage
		}
		w.mu.Unlock()
		if changed {
			w.opts.Logf("watch: %s -> stage %d", norm, stage)
			w.emit(norm, stage)
		}

		// Side-channel note push: opportunistic, not change-gated.
		if note != "" {
			if rcv, okr := el.(InfoReceiver); okr {
				rcv.SetInfo(note, updatedAt)
			}
		}
	}
}

func (w *Watcher) observe(ctx context.Context, norm string) (stage int, note string, updatedAt int64) {
	if w.opts.Bridge != nil {
		info, err := w.opts.Bridge.Info(ctx, norm)
		if err != nil || !info.OK {
			w.opts.Logf("watch: info fetch failed for %q: %v", norm, err)
			return 0, "", 0
		}
		if info.Version >= 5 && info.Stage == nil {
			return w.stageFromVotes(ctx, norm), info.Note, info.UpdatedAt
		}
		if info.Stage != nil && *info.Stage > 0 {
			stage = *info.Stage
		}
		return stage, info.Note, info.UpdatedAt
	}
	if w.opts.Direct != nil {
		if res := w.opts.Direct.StageOf(ctx, ident.HashID(norm)); res.Supported() {
			return int(res.Value), "", 0
		}
	}
	return 0, "", 0
}

// stageFromVotes derives the stage on deployments that report no numeric
// stage: 1 only when every roster member has voted, else 0. Vote direction
// is deliberately not consulted.
func (w *Watcher) stageFromVotes(ctx context.Context, norm string) int {
	votes, err := w.opts.Bridge.Votes(ctx, norm)
	if err != nil || !votes.OK || len(votes.Voters) == 0 {
		return 0
	}
	for _, v := range votes.Voters {
		if v.Voted == nil || !*v.Voted {
			return 0
		}
	}
	return 1
}

func (w *Watcher) emit(norm string, stage int) {
	// Held across callbacks so Cancel (write lock) cannot interleave: once
	// Cancel returns, no further delivery is possible.
	w.subMu.RLock()
	defer w.subMu.RUnlock()
	for _, fn := range w.subs {
		fn(norm, stage)
	}
}
