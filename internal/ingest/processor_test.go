package ingest

import (
	"context"
	"sync"

	"github.com/freshness-monitor/backend/internal/evaluator"
	"github.com/freshness-monitor/backend/internal/models"
)

// engineProcessor evaluates readings with a real engine and records results.
type engineProcessor struct {
	mu      sync.Mutex
	engine  *evaluator.Engine
	results []*models.Result
	err     error
	got     chan *models.Result
}

func newEngineProcessor() *engineProcessor {
	return &engineProcessor{
		engine: evaluator.NewDefault(),
		got:    make(chan *models.Result, 16),
	}
}

func (p *engineProcessor) Process(_ context.Context, reading models.Reading) (*models.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	res, err := p.engine.Evaluate(reading)
	if err != nil {
		return nil, err
	}
	p.results = append(p.results, res)
	select {
	case p.got <- res:
	default:
	}
	return res, nil
}

func (p *engineProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}
