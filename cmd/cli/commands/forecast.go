package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	appconfig "github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/server"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/models"
)

type ForecastOptions struct {
	Source      string
	Strategy    string
	Horizon     int
	Granularity string
	Format      string
	OutputFile  string
	ServerURL   string
}

// ConfigLoader returns the configuration a command runs with
type ConfigLoader func() (*appconfig.Config, error)

func NewForecastCmd(loadConfig ConfigLoader, logger *logrus.Logger) *cobra.Command {
	opts := &ForecastOptions{}

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast a sales time series",
		Long: `Load a CSV dataset, fit the requested forecasting strategy and print
dated predictions with their backtested accuracy.

The source may be an http(s) URL, an s3://bucket/key URI or a local path.
With --server the request is sent to a running forecasting service instead.`,
		Example: `  # Auto-select a strategy for the next 30 days
  tsforecast forecast --source sales.csv --horizon 30

  # Monthly statistical forecast written as CSV
  tsforecast forecast --source s3://bucket/sales.csv --strategy statistical --granularity monthly --format csv -o out.csv

  # Ask a running service
  tsforecast forecast --source https://example.com/sales.csv --server http://localhost:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForecast(cmd.Context(), cmd.OutOrStdout(), opts, loadConfig, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "Dataset URL, s3:// URI or file path (required)")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", constants.StrategyAuto, "Strategy (baseline, statistical, boosted, auto)")
	cmd.Flags().IntVar(&opts.Horizon, "horizon", 30, "Number of periods to forecast (1-365)")
	cmd.Flags().StringVarP(&opts.Granularity, "granularity", "g", constants.GranularityDaily, "Granularity (daily, weekly, monthly)")
	cmd.Flags().StringVar(&opts.Format, "format", "json", "Output format (json, csv, table)")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "-", "Output file (- for stdout)")
	cmd.Flags().StringVar(&opts.ServerURL, "server", "", "Forecasting service URL; runs locally when empty")

	cmd.MarkFlagRequired("source")

	return cmd
}

func runForecast(ctx context.Context, stdout io.Writer, opts *ForecastOptions, loadConfig ConfigLoader, logger *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req := &models.ForecastRequest{
		SourceURL:   opts.Source,
		Strategy:    opts.Strategy,
		Horizon:     opts.Horizon,
		Granularity: opts.Granularity,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	var (
		response *models.ForecastResponse
		err      error
	)
	if opts.ServerURL != "" {
		response, err = forecastRemote(ctx, opts.ServerURL, req)
	} else {
		response, err = forecastLocal(ctx, req, loadConfig, logger)
	}
	if err != nil {
		return err
	}

	out := stdout
	if opts.OutputFile != "" && opts.OutputFile != "-" {
		file, err := os.Create(opts.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	return writeForecast(out, response, opts.Format)
}

func forecastLocal(ctx context.Context, req *models.ForecastRequest, loadConfig ConfigLoader, logger *logrus.Logger) (*models.ForecastResponse, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	objects, err := server.NewObjectSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	orchestrator, err := server.NewPipeline(cfg, nil, objects, nil, logger)
	if err != nil {
		return nil, err
	}

	return orchestrator.Forecast(ctx, req)
}

// forecastRemote posts req to a running service and decodes its answer
func forecastRemote(ctx context.Context, serverURL string, req *models.ForecastRequest) (*models.ForecastResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(serverURL, "/") + "/forecast"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", constants.MimeTypeJSON)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil || failure.Error.Code == "" {
			return nil, fmt.Errorf("forecast request failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("forecast request failed with status %d: %s: %s",
			resp.StatusCode, failure.Error.Code, failure.Error.Message)
	}

	var response models.ForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode forecast response: %w", err)
	}
	return &response, nil
}

func writeForecast(w io.Writer, response *models.ForecastResponse, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)

	case "csv":
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{"date", "value"}); err != nil {
			return err
		}
		for _, p := range response.Predictions {
			if err := writer.Write([]string{p.Date, strconv.FormatFloat(p.Value, 'f', -1, 64)}); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()

	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Strategy:\t%s\n", response.Strategy)
		if response.Degraded {
			fmt.Fprintf(tw, "Degraded:\t%s\n", response.Degradation)
		}
		m := response.Metrics
		fmt.Fprintf(tw, "Accuracy:\t%.2f%%\n", m.Accuracy)
		fmt.Fprintf(tw, "MAE / RMSE / MAPE:\t%.2f / %.2f / %.2f%%\n\n", m.MAE, m.RMSE, m.MAPE)
		fmt.Fprintln(tw, "DATE\tVALUE")
		for _, p := range response.Predictions {
			fmt.Fprintf(tw, "%s\t%.2f\n", p.Date, p.Value)
		}
		return tw.Flush()
	}

	return fmt.Errorf("unsupported output format: %s", format)
}
