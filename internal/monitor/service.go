// Package monitor owns the live evaluation engine and fans every result out
// to storage and broadcast sinks.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/freshness-monitor/backend/internal/evaluator"
	"github.com/freshness-monitor/backend/internal/models"
	"github.com/freshness-monitor/backend/internal/storage"
	"github.com/sirupsen/logrus"
)

// Sink receives every evaluated result.
type Sink interface {
	Publish(ctx context.Context, result *models.Result) error
}

// Service serializes access to one engine. It is safe for concurrent use.
type Service struct {
	mu     sync.Mutex
	engine *evaluator.Engine

	// outMu is taken before mu is released so results reach the store and
	// sinks in evaluation order.
	outMu sync.Mutex
	store storage.Store

	sinksMu sync.RWMutex
	sinks   []Sink

	log logrus.FieldLogger
}

// NewService wraps engine. store may be nil when results are not kept.
func NewService(engine *evaluator.Engine, store storage.Store, log logrus.FieldLogger, sinks ...Sink) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		engine: engine,
		store:  store,
		sinks:  sinks,
		log:    log.WithField("component", "monitor"),
	}
}

// AddSink registers another result receiver.
func (s *Service) AddSink(sink Sink) {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Process evaluates a reading, stores the result and publishes it. Storage
// and sink failures are logged; only evaluation errors are returned.
func (s *Service) Process(ctx context.Context, reading models.Reading) (*models.Result, error) {
	s.mu.Lock()
	result, err := s.engine.Evaluate(reading)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.outMu.Lock()
	s.mu.Unlock()
	defer s.outMu.Unlock()

	entry := s.log.WithFields(logrus.Fields{
		"id":         result.ID,
		"status":     result.Status,
		"confidence": result.Confidence,
		"count":      result.ReadingCount,
	})
	entry.Debug("reading evaluated")
	if !result.Acceptable() {
		entry.WithField("explanation", result.Explanation).Info("reading unacceptable")
	}

	if s.store != nil {
		if err := s.store.Append(ctx, result); err != nil {
			entry.WithError(err).Error("failed to persist result")
		}
	}

	s.sinksMu.RLock()
	sinks := append([]Sink(nil), s.sinks...)
	s.sinksMu.RUnlock()
	for _, sink := range sinks {
		if err := sink.Publish(ctx, result); err != nil {
			entry.WithError(err).WithField("sink", fmt.Sprintf("%T", sink)).Warn("failed to publish result")
		}
	}

	return result, nil
}

// Observe feeds a labelled sample into the baseline without evaluating it.
func (s *Service) Observe(reading models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Observe(reading)
}

// Reset clears the engine's learning state. Stored results are kept.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Reset()
	s.log.Info("engine reset")
}

// Status reports the engine's learning state.
func (s *Service) Status() models.EngineStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Status()
}

// Thresholds reports the default and current range of every channel.
func (s *Service) Thresholds() []models.ChannelThreshold {
	s.mu.Lock()
	current := s.engine.Thresholds()
	s.mu.Unlock()

	profiles := s.engine.Profiles()
	out := make([]models.ChannelThreshold, 0, models.NumChannels)
	for _, c := range models.Channels {
		p := profiles[c]
		out = append(out, models.ChannelThreshold{
			Channel: c,
			Name:    p.Name,
			Unit:    p.Unit,
			Default: p.DefaultThreshold(),
			Current: current[c],
		})
	}
	return out
}

// Latest returns the newest stored result.
func (s *Service) Latest(ctx context.Context) (*models.Result, error) {
	if s.store == nil {
		return nil, storage.ErrNotFound
	}
	return s.store.Latest(ctx)
}

// History returns up to limit stored results, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*models.Result, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.History(ctx, limit)
}

// WarmStart replays the newest n stored results, oldest first, into the
// engine's baseline. It returns how many were replayed.
func (s *Service) WarmStart(ctx context.Context, n int) (int, error) {
	if s.store == nil || n <= 0 {
		return 0, nil
	}
	results, err := s.store.History(ctx, n)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("warm start: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(results) - 1; i >= 0; i-- {
		if err := s.engine.Observe(results[i].Values.Reading()); err != nil {
			return len(results) - 1 - i, fmt.Errorf("warm start: %w", err)
		}
	}
	s.log.WithField("readings", len(results)).Info("baseline restored from storage")
	return len(results), nil
}

// Close releases the store.
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
