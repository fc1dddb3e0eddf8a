// Package dictation maintains the live transcript for each dictation
// session. It consumes partial and final recognizer fragments from the bus,
// threads every session's merged text back through the transcript engine,
// and publishes a view update whenever the displayed text changes.
package dictation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxlabs-io/voxscribe/internal/bus"
	"github.com/voxlabs-io/voxscribe/internal/config"
	"github.com/voxlabs-io/voxscribe/internal/protocol"
	"github.com/voxlabs-io/voxscribe/internal/transcript"
)

type Service struct {
	cfg    config.DictationConfig
	bus    *bus.Client
	logger *slog.Logger
	merger transcript.Merger
	clock  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subPartial *nats.Subscription
	subFinal   *nats.Subscription

	mu       sync.Mutex
	sessions map[string]*sessionState

	meter        metric.Meter
	mergeCounter metric.Int64Counter
	truncCounter metric.Int64Counter
}

type sessionState struct {
	view     protocol.TranscriptView
	lastSeen time.Time
}

func NewService(parent context.Context, cfg config.DictationConfig, busClient *bus.Client, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:    cfg,
		bus:    busClient,
		logger: log.With(slog.String("component", "dictation")),
		merger: transcript.Merger{
			TrailingPunct: cfg.TrailingPunct,
			FoldCase:      cfg.FoldCase,
		},
		clock:    time.Now,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*sessionState),
		meter:    otel.Meter("github.com/voxlabs-io/voxscribe/dictation"),
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	var err error
	s.mergeCounter, err = s.meter.Int64Counter("dictation_merges_total",
		metric.WithDescription("Recognizer fragments merged, by outcome."))
	if err != nil {
		s.logger.Warn("failed to initialize merge counter", slogError(err))
	}
	s.truncCounter, err = s.meter.Int64Counter("dictation_truncations_total",
		metric.WithDescription("Merges that dropped older content to honor the character budget."))
	if err != nil {
		s.logger.Warn("failed to initialize truncation counter", slogError(err))
	}
	_, err = s.meter.Int64ObservableGauge("dictation_active_sessions",
		metric.WithDescription("Dictation sessions currently held in memory."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			s.mu.Lock()
			n := len(s.sessions)
			s.mu.Unlock()
			o.Observe(int64(n))
			return nil
		}))
	if err != nil {
		s.logger.Warn("failed to initialize session gauge", slogError(err))
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subPartial, err := s.bus.Conn().Subscribe(protocol.SubjectTranscriptPartial, s.handleFragment)
	if err != nil {
		return err
	}
	s.subPartial = subPartial

	// Finality is advisory: classification stays purely textual, so both
	// subjects flow through the same handler.
	subFinal, err := s.bus.Conn().Subscribe(protocol.SubjectTranscriptFinal, s.handleFragment)
	if err != nil {
		_ = s.subPartial.Drain()
		return err
	}
	s.subFinal = subFinal

	s.wg.Add(1)
	go s.pruneLoop()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subPartial != nil {
		_ = s.subPartial.Drain()
	}
	if s.subFinal != nil {
		_ = s.subFinal.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || (s.subPartial != nil && s.subFinal != nil)
}

func (s *Service) handleFragment(msg *nats.Msg) {
	var fragment protocol.Transcript
	if err := json.Unmarshal(msg.Data, &fragment); err != nil {
		s.logger.Warn("failed to decode transcript fragment", slogError(err))
		return
	}
	if fragment.SessionID == "" {
		s.logger.Warn("dropping transcript fragment without session id")
		return
	}

	view, changed := s.applyFragment(fragment.SessionID, fragment.Text)
	if changed {
		s.publishView(view)
	}
}

// applyFragment merges one fragment into its session's transcript and
// reports whether the displayed view changed. Each session forms one merge
// chain: the stored view text is the base for the next fragment.
func (s *Service) applyFragment(sessionID, text string) (protocol.TranscriptView, bool) {
	now := s.clock().UTC()

	s.mu.Lock()
	state := s.sessions[sessionID]
	if state == nil {
		state = &sessionState{view: protocol.TranscriptView{SessionID: sessionID}}
		s.sessions[sessionID] = state
	}
	state.lastSeen = now

	base := state.view.Text
	outcome := s.merger.Classify(lastLineOf(base), text)
	res := s.merger.Combine(base, text, s.cfg.MaxChars)

	changed := res.Text != state.view.Text || res.Truncated != state.view.Truncated
	if changed {
		state.view.Text = res.Text
		state.view.Truncated = res.Truncated
		state.view.Revision++
		state.view.UpdatedAt = now
	}
	view := state.view
	s.mu.Unlock()

	s.recordMerge(outcome, res.Truncated)
	return view, changed
}

func (s *Service) recordMerge(outcome transcript.Outcome, truncated bool) {
	if s.mergeCounter != nil {
		s.mergeCounter.Add(s.ctx, 1,
			metric.WithAttributes(attribute.String("outcome", outcome.String())))
	}
	if truncated && s.truncCounter != nil {
		s.truncCounter.Add(s.ctx, 1)
	}
}

func (s *Service) publishView(view protocol.TranscriptView) {
	data, err := json.Marshal(view)
	if err != nil {
		s.logger.Warn("failed to marshal transcript view", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.ViewSubject(view.SessionID), data); err != nil {
		s.logger.Warn("failed to publish transcript view", slogError(err))
	}
}

// Snapshot returns the current view for a session, if one exists.
func (s *Service) Snapshot(sessionID string) (protocol.TranscriptView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.sessions[sessionID]
	if state == nil {
		return protocol.TranscriptView{}, false
	}
	return state.view, true
}

func (s *Service) pruneLoop() {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.IdleTimeoutMS) * time.Millisecond / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.pruneIdle(s.clock().UTC())
		}
	}
}

func (s *Service) pruneIdle(now time.Time) {
	timeout := time.Duration(s.cfg.IdleTimeoutMS) * time.Millisecond

	s.mu.Lock()
	var pruned int
	for id, state := range s.sessions {
		if now.Sub(state.lastSeen) > timeout {
			delete(s.sessions, id)
			pruned++
		}
	}
	s.mu.Unlock()

	if pruned > 0 {
		s.logger.Info("pruned idle dictation sessions", slog.Int("count", pruned))
	}
}

func lastLineOf(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
