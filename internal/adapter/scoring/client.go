// Package scoring calls a TensorFlow Serving model endpoint for regression
// track forecasts.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/cyclone-track-service/internal/fetch"
)

// Client posts feature windows to a served model. It implements
// forecast.Scorer.
type Client struct {
	fetcher *fetch.Client
	baseURL string
	model   string
}

// New creates a scoring client. baseURL is the serving root, e.g.
// http://localhost:9000.
func New(baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		fetcher: fetch.New("scoring", timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

type predictRequest struct {
	Instances [][][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions [][][]float64 `json:"predictions"`
}

// Score sends the instances for prediction and returns one prediction per
// instance.
func (c *Client) Score(ctx context.Context, instances [][][]float64) ([][][]float64, error) {
	url := fmt.Sprintf("%s/v1/models/%s:predict", c.baseURL, c.model)
	body, err := c.fetcher.PostJSON(ctx, url, predictRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("model predict: %w", err)
	}

	var resp predictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	if len(resp.Predictions) != len(instances) {
		return nil, fmt.Errorf("got %d predictions for %d instances", len(resp.Predictions), len(instances))
	}
	return resp.Predictions, nil
}
