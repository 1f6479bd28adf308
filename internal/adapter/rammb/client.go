// Package rammb scrapes the RAMMB/CIRA tropical-cyclone realtime pages:
// a basin-grouped index of active storms, each with a detail page holding
// forecast/history tables and satellite imagery links.
package rammb

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
	"github.com/couchcryptid/cyclone-track-service/internal/fetch"
)

// SourceName is the provenance tag stamped on every entry this adapter emits.
const SourceName = "rammb"

// Client fetches and scrapes the RAMMB realtime pages.
type Client struct {
	fetcher *fetch.Client
	baseURL *url.URL
	logger  *slog.Logger
}

// New creates a RAMMB adapter rooted at the realtime index URL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("rammb base url: %w", err)
	}
	return &Client{
		fetcher: fetch.New("rammb", timeout),
		baseURL: u,
		logger:  logger,
	}, nil
}

// Name returns the adapter identifier.
func (c *Client) Name() string { return SourceName }

// Fetch scrapes every storm linked from the index page. An unreachable index
// is a hard error for the cycle; a single storm page that cannot be fetched
// or parsed is logged and skipped.
func (c *Client) Fetch(ctx context.Context) ([]domain.TrackEntry, error) {
	body, err := c.fetcher.Get(ctx, c.baseURL.String())
	if err != nil {
		return nil, fmt.Errorf("%w: rammb index: %v", domain.ErrSourceFetch, err)
	}
	refs, err := parseIndex(body, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: rammb index: %v", domain.ErrSourceFetch, err)
	}

	var entries []domain.TrackEntry
	for _, ref := range refs {
		page, err := c.fetchStorm(ctx, ref)
		if err != nil {
			c.logger.Warn("skipping storm", "source", SourceName, "storm", ref.ID, "error", err)
			continue
		}
		c.logger.Debug("scraped storm page",
			"source", SourceName,
			"storm", ref.ID,
			"entries", len(page.Entries),
			"images", len(page.ImageURLs),
			"has_forecast", page.ForecastTable != nil,
		)
		entries = append(entries, page.Entries...)
	}
	return entries, nil
}

func (c *Client) fetchStorm(ctx context.Context, ref stormRef) (stormPage, error) {
	body, err := c.fetcher.Get(ctx, ref.Href)
	if err != nil {
		return stormPage{}, err
	}
	page, dropped, err := parseStormPage(body, ref.ID, c.baseURL)
	if err != nil {
		return stormPage{}, err
	}
	for _, dropErr := range dropped {
		c.logger.Warn("skipping malformed history row", "source", SourceName, "storm", ref.ID, "error", dropErr)
	}
	return page, nil
}
