package forecast

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Stage is a step of the forecast pipeline
type Stage string

const (
	StageIdle         Stage = "idle"
	StageLoaded       Stage = "loaded"
	StagePreprocessed Stage = "preprocessed"
	StageSelecting    Stage = "selecting"
	StageFitted       Stage = "fitted"
	StageScored       Stage = "scored"
	StageFormatted    Stage = "formatted"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// transitions lists the forward moves of the pipeline. Failed is reachable
// from every non-terminal stage and is not listed.
var transitions = map[Stage][]Stage{
	StageIdle:         {StageLoaded},
	StageLoaded:       {StagePreprocessed},
	StagePreprocessed: {StageSelecting, StageFitted},
	StageSelecting:    {StageFitted},
	StageFitted:       {StageScored},
	StageScored:       {StageFormatted},
	StageFormatted:    {StageDone},
}

// Terminal reports whether no further transition is possible
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// CanTransition reports whether next may follow s
func (s Stage) CanTransition(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Execution records the progress of one forecast request
type Execution struct {
	ID          string        `json:"id"`
	Stage       Stage         `json:"stage"`
	Path        []Stage       `json:"path"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       error         `json:"-"`
	FailedAt    Stage         `json:"failed_at,omitempty"`

	logger *logrus.Logger
}

func newExecution(id string, logger *logrus.Logger) *Execution {
	return &Execution{
		ID:        id,
		Stage:     StageIdle,
		Path:      []Stage{StageIdle},
		StartedAt: time.Now(),
		logger:    logger,
	}
}

// advance moves to next, refusing moves the pipeline does not define
func (e *Execution) advance(next Stage) error {
	if !e.Stage.CanTransition(next) {
		return fmt.Errorf("invalid stage transition %s -> %s", e.Stage, next)
	}

	e.logger.WithFields(logrus.Fields{
		"request_id": e.ID,
		"from":       e.Stage,
		"to":         next,
	}).Debug("Forecast stage transition")

	e.Stage = next
	e.Path = append(e.Path, next)
	if next.Terminal() {
		completed := time.Now()
		e.CompletedAt = &completed
		e.Duration = completed.Sub(e.StartedAt)
	}
	return nil
}

// fail records err and moves to the failed stage
func (e *Execution) fail(err error) error {
	e.FailedAt = e.Stage
	e.Error = err
	if advanceErr := e.advance(StageFailed); advanceErr != nil {
		return advanceErr
	}
	return err
}
