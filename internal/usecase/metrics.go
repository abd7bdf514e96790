package usecase

import "context"

// MetricsSummary represents aggregated capture insights.
type MetricsSummary struct {
	TotalCaptures   int64   `json:"total_captures"`
	AverageWidth    float64 `json:"average_width"`
	AverageHeight   float64 `json:"average_height"`
	AverageValueMax float64 `json:"average_value_max"`
}

// GetMetricsSummary aggregates capture metrics from persisted logs.
func (uc *ProcessingUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrHistoryDisabled
	}

	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	return &MetricsSummary{
		TotalCaptures:   aggregation.TotalCount,
		AverageWidth:    aggregation.AverageWidth,
		AverageHeight:   aggregation.AverageHeight,
		AverageValueMax: aggregation.AverageValueMax,
	}, nil
}
