// Package nhc ingests the National Hurricane Center active-storms KML feed
// and the per-storm past-track KMZ archives it links to.
package nhc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
	"github.com/couchcryptid/cyclone-track-service/internal/fetch"
)

// SourceName is the provenance tag stamped on every entry this adapter emits.
const SourceName = "nhc"

// activePrefix marks index folders that are active storms; other folder ids
// (e.g. "wsp" wind-speed-probability overlays) are skipped.
const activePrefix = "at"

// Client fetches and parses the NHC feed.
type Client struct {
	fetcher  *fetch.Client
	indexURL string
	logger   *slog.Logger
}

// New creates an NHC adapter pointed at the given active-storms index URL.
func New(indexURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		fetcher:  fetch.New("nhc", timeout),
		indexURL: indexURL,
		logger:   logger,
	}
}

// Name returns the adapter identifier.
func (c *Client) Name() string { return SourceName }

// Fetch retrieves all active storms with their historical tracks.
//
// An unreachable or unparsable index is a hard error for the cycle. A single
// storm that fails to parse, or whose past-track archive cannot be fetched,
// is logged and skipped so the rest of the batch survives. Storms without an
// ExtendedData block are weak systems with no usable fields and are skipped
// silently, matching the upstream convention.
func (c *Client) Fetch(ctx context.Context) ([]domain.TrackEntry, error) {
	body, err := c.fetcher.Get(ctx, c.indexURL)
	if err != nil {
		return nil, fmt.Errorf("%w: nhc index: %v", domain.ErrSourceFetch, err)
	}
	doc, err := parseActiveIndex(body)
	if err != nil {
		return nil, fmt.Errorf("%w: nhc index: %v", domain.ErrSourceFetch, err)
	}

	var entries []domain.TrackEntry
	for _, folder := range doc.Folders {
		if !strings.HasPrefix(folder.ID, activePrefix) {
			continue
		}
		if folder.ExtendedData == nil || folder.ExtendedData.ATCFID == "" {
			continue
		}

		stormEntries, err := c.fetchStorm(ctx, folder)
		if err != nil {
			c.logger.Warn("skipping storm",
				"source", SourceName,
				"storm", folder.ExtendedData.ATCFID,
				"error", err,
			)
			continue
		}
		entries = append(entries, stormEntries...)
	}
	return entries, nil
}

// fetchStorm builds the latest-advisory entry and follows the pasttrack
// link for the storm's history.
func (c *Client) fetchStorm(ctx context.Context, folder activeFolder) ([]domain.TrackEntry, error) {
	latest, err := folder.ExtendedData.latestEntry()
	if err != nil {
		return nil, err
	}
	entries := []domain.TrackEntry{latest}

	href := folder.pastTrackHref()
	if href == "" {
		return entries, nil
	}

	kmz, err := c.fetcher.Get(ctx, href)
	if err != nil {
		return nil, fmt.Errorf("past track %s: %w", href, err)
	}
	history, dropped, err := parsePastTrack(kmz, latest.ID)
	if err != nil {
		return nil, err
	}
	for _, dropErr := range dropped {
		c.logger.Warn("skipping malformed track placemark",
			"source", SourceName, "storm", latest.ID, "error", dropErr)
	}
	return append(entries, history...), nil
}
