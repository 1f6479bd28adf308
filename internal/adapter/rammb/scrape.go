package rammb

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

const synopticLayout = "2006010215"

// stormRef is one storm link found on the basin-grouped index page.
type stormRef struct {
	ID   string
	Href string
}

// stormPage is the parsed content of one storm detail page. The forecast
// table and satellite imagery are auxiliary metadata; only the history table
// feeds the canonical pipeline.
type stormPage struct {
	Entries       []domain.TrackEntry
	ForecastTable [][]string
	ImageURLs     []string
}

// parseIndex extracts storm detail links from the index page. Links carry
// the identifier in the storm_identifier query parameter.
func parseIndex(body []byte, base *url.URL) ([]stormRef, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse index html: %w", err)
	}

	var refs []stormRef
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		href := attr(n, "href")
		if !strings.Contains(href, "storm_identifier=") {
			return
		}
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		id := strings.ToLower(u.Query().Get("storm_identifier"))
		if id == "" {
			return
		}
		refs = append(refs, stormRef{ID: id, Href: u.String()})
	})
	return refs, nil
}

// parseStormPage extracts the track tables and satellite image links from a
// storm detail page. Pages have a forecast table followed by a history
// table, or a history table alone when no official forecast exists.
func parseStormPage(body []byte, stormID string, base *url.URL) (stormPage, []error, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return stormPage{}, nil, fmt.Errorf("parse storm page: %w", err)
	}

	tables := collectTables(doc)
	if len(tables) == 0 {
		return stormPage{}, nil, fmt.Errorf("storm page for %s has no track table", stormID)
	}

	page := stormPage{ImageURLs: collectImages(doc, base)}
	history := tables[len(tables)-1]
	if len(tables) > 1 {
		page.ForecastTable = tables[0]
	}

	entries, dropped := historyEntries(history, stormID)
	page.Entries = entries
	return page, dropped, nil
}

// historyEntries converts history table rows into canonical entries. The
// first row is a header; malformed data rows are dropped with their errors
// returned for logging.
func historyEntries(table [][]string, stormID string) ([]domain.TrackEntry, []error) {
	var entries []domain.TrackEntry
	var dropped []error
	for i, row := range table {
		if i == 0 || len(row) == 0 {
			continue // header
		}
		entry, err := rowEntry(row, stormID)
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, dropped
}

// rowEntry parses one history row: synoptic time, latitude, longitude,
// intensity in knots.
func rowEntry(row []string, stormID string) (domain.TrackEntry, error) {
	if len(row) < 4 {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: history row has %d cells", domain.ErrRecordParse, stormID, len(row))
	}

	at, err := time.Parse(synopticLayout, strings.TrimSpace(row[0]))
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: synoptic time %q", domain.ErrRecordParse, stormID, row[0])
	}
	lat, err := parseCoordinate(row[1])
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: latitude %q", domain.ErrRecordParse, stormID, row[1])
	}
	lon, err := parseCoordinate(row[2])
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: longitude %q", domain.ErrRecordParse, stormID, row[2])
	}
	kt, err := strconv.Atoi(strings.TrimSpace(row[3]))
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: intensity %q", domain.ErrRecordParse, stormID, row[3])
	}

	return domain.TrackEntry{
		ID:        stormID,
		Time:      at.UTC(),
		Lat:       lat,
		Lon:       lon,
		WindSpeed: kt,
		Source:    SourceName,
	}, nil
}

// parseCoordinate accepts signed decimal degrees ("-80.0") or decimal
// degrees with a hemisphere suffix ("26.2N", "80.0W").
func parseCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty coordinate")
	}

	sign := 1.0
	switch s[len(s)-1] {
	case 'N', 'E':
		s = s[:len(s)-1]
	case 'S', 'W':
		sign = -1
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return sign * v, nil
}

// collectTables returns each table on the page as rows of trimmed cell text.
func collectTables(doc *html.Node) [][][]string {
	var tables [][][]string
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "table" {
			return
		}
		var rows [][]string
		walk(n, func(tr *html.Node) {
			if tr.Type != html.ElementNode || tr.Data != "tr" {
				return
			}
			var cells []string
			walk(tr, func(td *html.Node) {
				if td.Type == html.ElementNode && (td.Data == "td" || td.Data == "th") {
					cells = append(cells, strings.TrimSpace(text(td)))
				}
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		if len(rows) > 0 {
			tables = append(tables, rows)
		}
	})
	return tables
}

// collectImages returns absolute satellite image URLs found on the page.
func collectImages(doc *html.Node, base *url.URL) []string {
	var urls []string
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "img" {
			return
		}
		src := attr(n, "src")
		if src == "" {
			return
		}
		if u, err := base.Parse(src); err == nil {
			urls = append(urls, u.String())
		}
	})
	return urls
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}
