package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// ErrQueueClosed is returned when operations are attempted on a closed queue
var ErrQueueClosed = errors.New("queue is closed")

// DefaultPollInterval is how often the loop checks whether the orchestrator
// has finished the item in flight.
const DefaultPollInterval = 100 * time.Millisecond

// Option configures a PlaybackQueue.
type Option func(*PlaybackQueue)

// WithPollInterval sets how often the orchestrator state is polled.
func WithPollInterval(d time.Duration) Option {
	return func(q *PlaybackQueue) {
		if d > 0 {
			q.poll = d
		}
	}
}

// WithLookahead sets how many newly enqueued utterances are handed to a
// prefetching orchestrator. Zero disables prefetch.
func WithLookahead(n int) Option {
	return func(q *PlaybackQueue) { q.lookahead = n }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(q *PlaybackQueue) { q.logger = l }
}

// WithMeterProvider sets where queue metrics are reported.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(q *PlaybackQueue) { q.meterProvider = mp }
}

// Stats tracks queue activity.
type Stats struct {
	TotalEnqueued   int64
	TotalPlayed     int64
	TotalUnresolved int64
	TotalFailed     int64
	PeakSize        int
	LastEnqueue     time.Time
	LastPlay        time.Time
}

// pending is a queued utterance with the roster it was enqueued with.
type pending struct {
	utterance ttypes.Utterance
	roster    []ttypes.Participant
}

// Subscriber is called once per utterance when it begins processing.
type Subscriber func(ttypes.Utterance)

// PlaybackQueue hands utterances to an orchestrator strictly one at a time,
// in the order they were enqueued. It never calls Play while the
// orchestrator still reports an item in flight.
type PlaybackQueue struct {
	orch          ttypes.Orchestrator
	poll          time.Duration
	lookahead     int
	logger        *log.Logger
	meterProvider metric.MeterProvider
	metrics       *metrics

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}

	mu          sync.Mutex
	items       []pending
	processing  bool
	paused      bool
	closed      bool
	gen         uint64
	loopCancel  context.CancelFunc
	subscribers map[uint64]Subscriber
	nextSubID   uint64
	stats       Stats
}

// New creates a queue feeding orch.
func New(orch ttypes.Orchestrator, opts ...Option) *PlaybackQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &PlaybackQueue{
		orch:        orch,
		poll:        DefaultPollInterval,
		lookahead:   3,
		ctx:         ctx,
		cancel:      cancel,
		wake:        make(chan struct{}, 1),
		subscribers: make(map[uint64]Subscriber),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = log.Default()
	}
	q.logger = q.logger.WithPrefix("queue")
	if q.meterProvider == nil {
		q.meterProvider = otel.GetMeterProvider()
	}

	m, err := newMetrics(q.meterProvider.Meter(meterName), q)
	if err != nil {
		q.logger.Warn("metrics disabled", "err", err)
		m, _ = newMetrics(noop.NewMeterProvider().Meter(meterName), q)
	}
	q.metrics = m
	return q
}

// EnqueueAndProcess appends utterances in order and starts the processing
// loop if it is not already running. It never fails: problems with single
// utterances are logged and skipped when they reach the head of the queue.
func (q *PlaybackQueue) EnqueueAndProcess(utterances []ttypes.Utterance, participants []ttypes.Participant) {
	if len(utterances) == 0 {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("dropping utterances for closed queue", "count", len(utterances))
		return
	}

	roster := append([]ttypes.Participant(nil), participants...)
	for _, u := range utterances {
		q.items = append(q.items, pending{utterance: u, roster: roster})
	}
	q.stats.TotalEnqueued += int64(len(utterances))
	q.stats.LastEnqueue = time.Now()
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}
	q.metrics.enqueued.Add(q.ctx, int64(len(utterances)))

	if !q.processing {
		q.startLocked()
	}
	q.mu.Unlock()

	q.nudge()
	q.prefetch(utterances, roster)
}

func (q *PlaybackQueue) startLocked() {
	ctx, cancel := context.WithCancel(q.ctx)
	q.processing = true
	q.loopCancel = cancel
	go q.run(ctx, q.gen)
}

// run is the processing loop. It suspends only while waiting for the
// orchestrator to become idle (or for the queue to be resumed).
func (q *PlaybackQueue) run(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		for !q.ready(gen) {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-q.wake:
			}
		}

		next, ok := q.pop(gen)
		if !ok {
			return
		}

		u := next.utterance
		p, found := resolve(u, next.roster)
		if !found {
			q.logger.Warn("skipping utterance with unknown speaker",
				"id", u.ID, "speaker_id", u.SpeakerID, "speaker", u.SpeakerName)
			q.mu.Lock()
			q.stats.TotalUnresolved++
			q.mu.Unlock()
			q.metrics.unresolved.Add(ctx, 1, speaker(u.SpeakerID))
			continue
		}

		if !q.notify(gen, u) || !q.hand(gen, u, p) {
			return
		}
	}
}

// ready reports whether the loop may hand over the next item.
func (q *PlaybackQueue) ready(gen uint64) bool {
	q.mu.Lock()
	if q.gen != gen {
		q.mu.Unlock()
		return true // pop will notice and exit
	}
	held := q.paused
	q.mu.Unlock()
	return !held && q.orch.GetState().Idle()
}

// pop removes the head item. It returns false when the loop should exit,
// either because the queue drained or because it was stopped.
func (q *PlaybackQueue) pop(gen uint64) (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.gen != gen {
		return pending{}, false
	}
	if len(q.items) == 0 {
		q.processing = false
		q.loopCancel()
		q.logger.Debug("queue drained")
		return pending{}, false
	}
	next := q.items[0]
	q.items[0] = pending{}
	q.items = q.items[1:]
	return next, true
}

// hand passes u to the orchestrator unless the loop went stale meanwhile.
func (q *PlaybackQueue) hand(gen uint64, u ttypes.Utterance, p ttypes.Participant) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.gen != gen {
		return false
	}

	if err := q.orch.Play(u, p, true); err != nil {
		q.logger.Error("orchestrator refused utterance", "id", u.ID, "err", err)
		q.stats.TotalFailed++
		q.metrics.failed.Add(q.ctx, 1, speaker(p.ID))
		return true
	}
	q.logger.Debug("playing", "id", u.ID, "speaker", p.Name)
	q.stats.TotalPlayed++
	q.stats.LastPlay = time.Now()
	q.metrics.played.Add(q.ctx, 1, speaker(p.ID))
	return true
}

// notify calls subscribers for u. It returns false, calling nobody, when
// the loop went stale after pop.
func (q *PlaybackQueue) notify(gen uint64, u ttypes.Utterance) bool {
	q.mu.Lock()
	if q.gen != gen {
		q.mu.Unlock()
		return false
	}
	subs := make([]Subscriber, 0, len(q.subscribers))
	for id := uint64(0); id < q.nextSubID; id++ {
		if fn, ok := q.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	q.mu.Unlock()

	for _, fn := range subs {
		fn(u)
	}
	return true
}

func (q *PlaybackQueue) nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *PlaybackQueue) prefetch(utterances []ttypes.Utterance, roster []ttypes.Participant) {
	pf, ok := q.orch.(ttypes.Prefetcher)
	if !ok || q.lookahead <= 0 {
		return
	}

	var cues []ttypes.Cue
	for _, u := range utterances {
		if len(cues) == q.lookahead {
			break
		}
		if p, found := resolve(u, roster); found {
			cues = append(cues, ttypes.Cue{Utterance: u, Participant: p})
		}
	}
	if len(cues) == 0 {
		return
	}

	go func() {
		if err := pf.Prefetch(q.ctx, cues); err != nil && !errors.Is(err, context.Canceled) {
			q.logger.Warn("prefetch failed", "err", err)
		}
	}()
}

// resolve finds the participant who speaks u, by id first and then by
// case-insensitive name.
func resolve(u ttypes.Utterance, roster []ttypes.Participant) (ttypes.Participant, bool) {
	if u.SpeakerID != "" {
		for _, p := range roster {
			if p.ID == u.SpeakerID {
				return p, true
			}
		}
	}
	if u.SpeakerName != "" {
		for _, p := range roster {
			if strings.EqualFold(p.Name, u.SpeakerName) {
				return p, true
			}
		}
	}
	return ttypes.Participant{}, false
}

// Pause stops the loop from advancing and pauses the current item. Pending
// items are kept.
func (q *PlaybackQueue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()

	q.orch.Pause()
	q.logger.Debug("paused")
}

// Resume continues a paused item in place, or restarts processing of the
// pending items when nothing is paused.
func (q *PlaybackQueue) Resume() {
	q.mu.Lock()
	q.paused = false
	if !q.closed && !q.processing && len(q.items) > 0 {
		q.startLocked()
	}
	q.mu.Unlock()

	if q.orch.GetState().IsPaused {
		q.orch.Resume()
	}
	q.nudge()
	q.logger.Debug("resumed")
}

// Stop discards every pending item and the item in flight. Nothing else
// plays until the next EnqueueAndProcess.
func (q *PlaybackQueue) Stop() {
	q.mu.Lock()
	q.stopLocked()
	q.mu.Unlock()

	q.orch.Stop()
	q.logger.Debug("stopped")
}

func (q *PlaybackQueue) stopLocked() {
	q.gen++
	clear(q.items)
	q.items = q.items[:0]
	q.paused = false
	q.processing = false
	if q.loopCancel != nil {
		q.loopCancel()
		q.loopCancel = nil
	}
}

// SkipCurrent ends the item in flight; the loop moves on to the next one.
func (q *PlaybackQueue) SkipCurrent() {
	q.orch.SkipToNext()
	q.nudge()
}

// Subscribe registers fn to be called, on the processing goroutine, each
// time an utterance begins processing. The returned function unregisters it.
func (q *PlaybackQueue) Subscribe(fn Subscriber) (unsubscribe func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextSubID
	q.nextSubID++
	q.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.subscribers, id)
			q.mu.Unlock()
		})
	}
}

// Len returns the number of utterances waiting to be processed.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsProcessing reports whether the processing loop is active.
func (q *PlaybackQueue) IsProcessing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// IsPaused reports whether the queue was paused.
func (q *PlaybackQueue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// GetStats returns queue statistics.
func (q *PlaybackQueue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Wait blocks until the queue has drained and the last item finished, or
// ctx is done.
func (q *PlaybackQueue) Wait(ctx context.Context) error {
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		if !q.IsProcessing() && q.orch.GetState().Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops processing and releases the queue. Later enqueues are
// dropped.
func (q *PlaybackQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.closed = true
	q.stopLocked()
	q.mu.Unlock()

	q.orch.Stop()
	q.cancel()
	if q.metrics.reg != nil {
		return q.metrics.reg.Unregister()
	}
	return nil
}
