package payout

import (
	"context"

	"github.com/smallbiznis/payway/internal/observability/metrics"
	"github.com/smallbiznis/payway/internal/payout/domain"
)

// Registry routes payout requests by method.
type Registry struct {
	executors map[string]domain.Executor
	metrics   *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics, executors ...domain.Executor) *Registry {
	byMethod := make(map[string]domain.Executor, len(executors))
	for _, e := range executors {
		byMethod[e.Method()] = e
	}
	return &Registry{executors: byMethod, metrics: m}
}

func (r *Registry) Execute(ctx context.Context, req domain.Request) (domain.Result, error) {
	executor, ok := r.executors[req.Method]
	if !ok {
		return domain.Result{}, domain.ErrUnsupportedMethod
	}

	result, err := executor.Execute(ctx, req)
	if err != nil {
		r.metrics.RecordPayout(ctx, req.Method, "failure")
		return domain.Result{}, err
	}
	r.metrics.RecordPayout(ctx, req.Method, "success")
	return result, nil
}

var _ domain.Dispatcher = (*Registry)(nil)
