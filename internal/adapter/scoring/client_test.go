package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	var gotPath string
	var gotReq predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"predictions":[[[0.5,0.4,0.9],[0.6,0.3,0.8]]]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "hurricane", 5*time.Second)
	instances := [][][]float64{{{0.1, 0.2}, {0.3, 0.4}}}
	preds, err := c.Score(context.Background(), instances)
	require.NoError(t, err)

	assert.Equal(t, "/v1/models/hurricane:predict", gotPath)
	assert.Equal(t, instances, gotReq.Instances)
	require.Len(t, preds, 1)
	assert.Equal(t, [][]float64{{0.5, 0.4, 0.9}, {0.6, 0.3, 0.8}}, preds[0])
}

func TestScorePredictionCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"predictions":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "hurricane", 5*time.Second)
	_, err := c.Score(context.Background(), [][][]float64{{{0.1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 predictions for 1 instances")
}

func TestScoreUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "missing", 5*time.Second)
	_, err := c.Score(context.Background(), [][][]float64{{{0.1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
