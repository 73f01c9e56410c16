package forecast

import (
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/validation/metrics"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/models"
)

// Select backtests every candidate strategy on the validation partition at
// horizon min(|validation|, cap) and returns the best by (accuracy, R²) with
// every candidate's score. Candidates run one after another; a candidate that
// panics or is not registered scores accuracy 0 and R² -1.
func (o *Orchestrator) Select(train, validation *models.TimeSeries) (models.Strategy, []models.CandidateScore) {
	horizon := validation.Len()
	if horizon > o.config.ValidationCap {
		horizon = o.config.ValidationCap
	}
	actual := validation.Values()[:horizon]

	scores := make([]models.CandidateScore, 0, len(o.config.Candidates))
	for _, strategy := range o.config.Candidates {
		score := o.evaluate(strategy, train, actual, horizon)

		o.logger.WithFields(logrus.Fields{
			"strategy": strategy,
			"accuracy": score.Metrics.Accuracy,
			"r2":       score.Metrics.R2,
			"degraded": score.Degraded,
			"failed":   score.Failed,
		}).Debug("Scored candidate")

		scores = append(scores, score)
	}

	best := Rank(scores, o.config.TiePolicy)

	o.logger.WithFields(logrus.Fields{
		"selected":          best,
		"validation_points": horizon,
	}).Info("Auto-selected strategy")

	return best, scores
}

func (o *Orchestrator) evaluate(strategy models.Strategy, train *models.TimeSeries, actual []float64, horizon int) models.CandidateScore {
	score := models.CandidateScore{Strategy: strategy}

	fn, ok := o.strategies[strategy]
	if !ok {
		score.Metrics = metrics.Worst()
		score.Failed = true
		return score
	}

	if horizon == 0 {
		score.Metrics = metrics.Zero()
		return score
	}

	outcome, err := call(fn, train, horizon)
	if err != nil {
		o.logger.WithError(err).WithField("strategy", strategy).Warn("Candidate failed during selection")
		score.Metrics = metrics.Worst()
		score.Failed = true
		return score
	}

	score.Metrics = metrics.Round(metrics.Score(actual, outcome.Predictions))
	score.Degraded = outcome.Degraded
	return score
}

// Rank returns the strategy of the best score. Ties on (accuracy, R²) go to
// the simplest strategy under the prefer_simpler policy and to the earliest
// candidate otherwise.
func Rank(scores []models.CandidateScore, tiePolicy string) models.Strategy {
	if len(scores) == 0 {
		return models.StrategyBaseline
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		cmp := metrics.Compare(scores[i].Metrics, scores[best].Metrics)
		if cmp > 0 {
			best = i
			continue
		}
		if cmp == 0 && tiePolicy == constants.TieBreakPreferSimpler &&
			complexity(scores[i].Strategy) < complexity(scores[best].Strategy) {
			best = i
		}
	}
	return scores[best].Strategy
}

// complexity orders strategies from simplest to most complex
func complexity(s models.Strategy) int {
	for i, concrete := range models.ConcreteStrategies {
		if concrete == s {
			return i
		}
	}
	return len(models.ConcreteStrategies)
}
