// Package hwrf ingests HWRF best-track (ATCF b-deck) files from the NHC
// deck archive.
package hwrf

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
	"github.com/couchcryptid/cyclone-track-service/internal/fetch"
)

// SourceName is the provenance tag stamped on every entry this adapter emits.
const SourceName = "hwrf"

var (
	// listingRowRe matches Apache-style directory index rows:
	// <a href="bal092024.dat">bal092024.dat</a>  25-Sep-2024 12:34  12K
	listingRowRe = regexp.MustCompile(`<a href="([^"?/][^"]*)">[^<]*</a>\s+(\d{2}-\w{3}-\d{4} \d{2}:\d{2})`)

	// bdeckNameRe selects best-track files; forecast-guidance decks (a-deck
	// "aal...", computes, etc.) are not wanted here.
	bdeckNameRe = regexp.MustCompile(`^b(al|ep|cp|wp|io|sh)\d{6}\.dat$`)
)

const listingTimeLayout = "02-Jan-2006 15:04"

// Client fetches recent best-track decks from a directory listing.
type Client struct {
	fetcher    *fetch.Client
	listingURL string
	interval   time.Duration // upstream forecast cycle interval
	clock      clockwork.Clock
	logger     *slog.Logger
}

// New creates an HWRF adapter. interval is the upstream forecast cycle
// length (6h in production); only listing rows newer than four intervals
// are fetched.
func New(listingURL string, interval, timeout time.Duration, clk clockwork.Clock, logger *slog.Logger) *Client {
	if !strings.HasSuffix(listingURL, "/") {
		listingURL += "/"
	}
	return &Client{
		fetcher:    fetch.New("hwrf", timeout),
		listingURL: listingURL,
		interval:   interval,
		clock:      clk,
		logger:     logger,
	}
}

// Name returns the adapter identifier.
func (c *Client) Name() string { return SourceName }

// Fetch lists the deck directory, downloads every fresh best-track file, and
// parses them into canonical entries. A failed listing is a hard error; a
// single file that fails to download or parse is logged and skipped.
func (c *Client) Fetch(ctx context.Context) ([]domain.TrackEntry, error) {
	body, err := c.fetcher.Get(ctx, c.listingURL)
	if err != nil {
		return nil, fmt.Errorf("%w: hwrf listing: %v", domain.ErrSourceFetch, err)
	}

	cutoff := c.clock.Now().UTC().Add(-4 * c.interval)
	var entries []domain.TrackEntry
	for _, name := range freshDeckFiles(body, cutoff) {
		data, err := c.fetcher.Get(ctx, c.listingURL+name)
		if err != nil {
			c.logger.Warn("skipping deck file", "source", SourceName, "file", name, "error", err)
			continue
		}
		parsed, dropped, err := ParseDeck(data)
		if err != nil {
			c.logger.Warn("skipping deck file", "source", SourceName, "file", name, "error", err)
			continue
		}
		for _, dropErr := range dropped {
			c.logger.Warn("skipping malformed deck row", "source", SourceName, "file", name, "error", dropErr)
		}
		entries = append(entries, parsed...)
	}
	return entries, nil
}

// freshDeckFiles extracts best-track file names newer than the cutoff from
// an HTML directory listing.
func freshDeckFiles(listing []byte, cutoff time.Time) []string {
	var names []string
	for _, m := range listingRowRe.FindAllStringSubmatch(string(listing), -1) {
		name, stamp := m[1], m[2]
		if !bdeckNameRe.MatchString(name) {
			continue
		}
		mod, err := time.Parse(listingTimeLayout, stamp)
		if err != nil {
			continue
		}
		if mod.Before(cutoff) {
			continue
		}
		names = append(names, name)
	}
	return names
}
