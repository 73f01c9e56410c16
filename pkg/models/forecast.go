package models

import (
	"strings"
	"time"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// Strategy identifies a forecasting strategy
type Strategy string

const (
	StrategyBaseline    Strategy = constants.StrategyBaseline
	StrategyStatistical Strategy = constants.StrategyStatistical
	StrategyBoosted     Strategy = constants.StrategyBoosted
	StrategyAuto        Strategy = constants.StrategyAuto
)

// ConcreteStrategies lists the strategies auto-selection evaluates, simplest first
var ConcreteStrategies = []Strategy{StrategyBaseline, StrategyStatistical, StrategyBoosted}

// ParseStrategy normalizes a strategy name, accepting legacy aliases
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case constants.StrategyBaseline:
		return StrategyBaseline, nil
	case constants.StrategyStatistical, constants.StrategyAliasARIMA:
		return StrategyStatistical, nil
	case constants.StrategyBoosted, constants.StrategyAliasXGBoost:
		return StrategyBoosted, nil
	case constants.StrategyAuto:
		return StrategyAuto, nil
	}
	return "", errors.NewConfigurationError(errors.CodeUnknownStrategy, "unknown forecasting strategy").
		WithContext("strategy", s)
}

// ForecastRequest is what the API layer hands to the orchestrator
type ForecastRequest struct {
	SourceURL   string `json:"source_url"`
	Strategy    string `json:"strategy"`
	Horizon     int    `json:"horizon"`
	Granularity string `json:"granularity"`
}

// Validate checks the request before it reaches the pipeline
func (r *ForecastRequest) Validate() error {
	if strings.TrimSpace(r.SourceURL) == "" {
		return errors.NewValidationError(errors.CodeInvalidInput, "source_url is required")
	}
	if r.Horizon < constants.MinHorizon || r.Horizon > constants.MaxHorizon {
		return errors.NewValidationError(errors.CodeInvalidHorizon, "horizon must be between 1 and 365").
			WithContext("horizon", r.Horizon)
	}
	if _, err := ParseStrategy(r.Strategy); err != nil {
		return err
	}
	if _, err := ParseGranularity(r.Granularity); err != nil {
		return err
	}
	return nil
}

// MetricsBundle is the fixed set of accuracy scores for one actual/predicted pair
type MetricsBundle struct {
	MAE      float64 `json:"mae"`
	RMSE     float64 `json:"rmse"`
	MAPE     float64 `json:"mape"`
	SMAPE    float64 `json:"smape"`
	R2       float64 `json:"r2"`
	RMSSE    float64 `json:"rmsse"`
	Accuracy float64 `json:"accuracy"`
}

// Prediction is one dated forecast value
type Prediction struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// CandidateScore is the backtest result of one strategy during auto-selection
type CandidateScore struct {
	Strategy Strategy      `json:"strategy"`
	Metrics  MetricsBundle `json:"metrics"`
	Degraded bool          `json:"degraded"`
	Failed   bool          `json:"failed"`
}

// ForecastResponse is what the orchestrator returns to the API layer
type ForecastResponse struct {
	RequestID         string           `json:"request_id"`
	Strategy          Strategy         `json:"strategy"`
	RequestedStrategy Strategy         `json:"requested_strategy"`
	Granularity       Granularity      `json:"granularity"`
	Predictions       []Prediction     `json:"predictions"`
	Metrics           MetricsBundle    `json:"metrics"`
	Degraded          bool             `json:"degraded"`
	Degradation       string           `json:"degradation,omitempty"`
	Candidates        []CandidateScore `json:"candidates,omitempty"`
	GeneratedAt       time.Time        `json:"generated_at"`
}
