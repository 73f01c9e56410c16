package handlers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/inferloop/tsforecast/internal/api/responses"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

const maxRequestBytes = 1 << 20

// Forecaster runs one forecast request to completion
type Forecaster interface {
	Forecast(ctx context.Context, req *models.ForecastRequest) (*models.ForecastResponse, error)
}

type ForecastHandler struct {
	forecaster Forecaster
	logger     *logrus.Logger
}

// forecastPayload is the request body. datasetUrl and modelType are the
// field names used by earlier clients.
type forecastPayload struct {
	SourceURL   string      `json:"source_url"`
	DatasetURL  string      `json:"datasetUrl"`
	Strategy    string      `json:"strategy"`
	ModelType   string      `json:"modelType"`
	Horizon     interface{} `json:"horizon"`
	Granularity string      `json:"granularity"`
}

func NewForecastHandler(forecaster Forecaster, logger *logrus.Logger) *ForecastHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ForecastHandler{forecaster: forecaster, logger: logger}
}

// CreateForecast decodes a forecast request, runs it and writes the dated
// predictions with their accuracy report
func (h *ForecastHandler) CreateForecast(w http.ResponseWriter, r *http.Request) {
	req, err := decodeForecastRequest(r)
	if err != nil {
		responses.WriteError(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"request_id":  w.Header().Get(responses.RequestIDHeader),
		"strategy":    req.Strategy,
		"horizon":     req.Horizon,
		"granularity": req.Granularity,
	}).Info("Received forecast request")

	response, err := h.forecaster.Forecast(r.Context(), req)
	if err != nil {
		responses.WriteError(w, r, err)
		return
	}

	responses.WriteJSON(w, http.StatusOK, response)
}

func decodeForecastRequest(r *http.Request) (*models.ForecastRequest, error) {
	var payload forecastPayload

	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	if err := decoder.Decode(&payload); err != nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "invalid request body").
			WithDetails(err.Error())
	}

	horizon, err := parseHorizon(payload.Horizon)
	if err != nil {
		return nil, err
	}

	req := &models.ForecastRequest{
		SourceURL:   payload.SourceURL,
		Strategy:    payload.Strategy,
		Horizon:     horizon,
		Granularity: payload.Granularity,
	}
	if req.SourceURL == "" {
		req.SourceURL = payload.DatasetURL
	}
	if req.Strategy == "" {
		req.Strategy = payload.ModelType
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// parseHorizon accepts integral JSON numbers and numeric strings
func parseHorizon(v interface{}) (int, error) {
	invalid := errors.NewValidationError(errors.CodeInvalidHorizon, "horizon must be an integer between 1 and 365").
		WithContext("horizon", v)

	if v == nil {
		return 0, invalid
	}
	if f, ok := v.(float64); ok && f != math.Trunc(f) {
		return 0, invalid
	}

	horizon, err := cast.ToIntE(v)
	if err != nil {
		return 0, invalid
	}
	return horizon, nil
}
