package nhc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

// atcfTimeLayout is the ATCF date-time-group form used by track placemarks,
// e.g. "2024092512" = 2024-09-25 12:00 UTC.
const atcfTimeLayout = "2006010215"

// advisoryZones maps the timezone abbreviations NHC uses in advisory
// timestamps to UTC offsets in hours. These are military/coastal
// abbreviations that tzdata lookups do not resolve, so the table is fixed.
var advisoryZones = map[string]int{
	"UTC": 0, "GMT": 0,
	"AST": -4, "ADT": -3,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
	"HST": -10, "SST": -11,
	"CVT": -1, "CHST": 10,
}

// activeKML models the nhc_active.kml index document.
type activeKML struct {
	XMLName xml.Name       `xml:"kml"`
	Folders []activeFolder `xml:"Document>Folder"`
}

type activeFolder struct {
	ID           string        `xml:"id,attr"`
	Name         string        `xml:"name"`
	ExtendedData *stormDetails `xml:"ExtendedData"`
	NetworkLinks []networkLink `xml:"NetworkLink"`
}

// stormDetails carries the tc:-namespaced advisory fields of one active
// storm. Wind is reported in mph, pressure in mb, both with unit suffixes.
type stormDetails struct {
	ATCFID       string `xml:"atcfID"`
	StormName    string `xml:"name"`
	AdvisoryDate string `xml:"dateTime"`
	CenterLat    string `xml:"centerLat"`
	CenterLon    string `xml:"centerLon"`
	Pressure     string `xml:"minimumPressure"`
	MaxWind      string `xml:"maxSustainedWind"`
}

type networkLink struct {
	ID   string `xml:"id,attr"`
	Href string `xml:"Link>href"`
}

// trackKML models the per-storm past-track document inside the KMZ archive.
type trackKML struct {
	XMLName xml.Name      `xml:"kml"`
	Folders []trackFolder `xml:"Document>Folder"`
}

type trackFolder struct {
	Name       string           `xml:"name"`
	Placemarks []trackPlacemark `xml:"Placemark"`
}

type trackPlacemark struct {
	DTG       string `xml:"atcfdtg"`
	Lat       string `xml:"lat"`
	Lon       string `xml:"lon"`
	Intensity string `xml:"intensity"` // knots
	MinSLP    string `xml:"minSeaLevelPres"`
}

func parseActiveIndex(data []byte) (*activeKML, error) {
	var doc activeKML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse active index: %w", err)
	}
	return &doc, nil
}

// pastTrackHref returns the KMZ link for the storm's historical track, or ""
// when the folder carries none.
func (f activeFolder) pastTrackHref() string {
	for _, link := range f.NetworkLinks {
		if link.ID == "pasttrack" {
			return link.Href
		}
	}
	return ""
}

// latestEntry converts the advisory fields into one canonical entry.
func (d stormDetails) latestEntry() (domain.TrackEntry, error) {
	id := strings.ToLower(strings.TrimSpace(d.ATCFID))

	at, err := parseAdvisoryTime(d.AdvisoryDate)
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: %v", domain.ErrRecordParse, id, err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(d.CenterLat), 64)
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: centerLat %q", domain.ErrRecordParse, id, d.CenterLat)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(d.CenterLon), 64)
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: centerLon %q", domain.ErrRecordParse, id, d.CenterLon)
	}
	mph, err := parseUnitNumber(d.MaxWind, "mph")
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: maxSustainedWind %q", domain.ErrRecordParse, id, d.MaxWind)
	}

	entry := domain.TrackEntry{
		ID:        id,
		Time:      at,
		Lat:       lat,
		Lon:       lon,
		WindSpeed: domain.KnotsFromMPH(mph),
		Source:    SourceName,
	}
	if mb, err := parseUnitNumber(d.Pressure, "mb"); err == nil {
		entry.Pressure = &mb
	}
	return entry, nil
}

// parseAdvisoryTime parses NHC advisory timestamps such as
// "11:00 PM EDT September 25, 2024", resolving the timezone abbreviation
// through the fixed offset table.
func parseAdvisoryTime(s string) (time.Time, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) < 6 {
		return time.Time{}, fmt.Errorf("advisory time %q: unexpected form", s)
	}

	zone := fields[2]
	offset, ok := advisoryZones[zone]
	if !ok {
		return time.Time{}, fmt.Errorf("advisory time %q: unknown timezone %q", s, zone)
	}

	wall := fields[0] + " " + fields[1] + " " + strings.Join(fields[3:], " ")
	t, err := time.Parse("3:04 PM January 2, 2006", wall)
	if err != nil {
		return time.Time{}, fmt.Errorf("advisory time %q: %w", s, err)
	}

	loc := time.FixedZone(zone, offset*3600)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc).UTC(), nil
}

// parseUnitNumber parses values like "115 mph" or "955 mb".
func parseUnitNumber(s, unit string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), unit))
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

// extractTrackKML pulls the "al*" KML member out of a KMZ archive.
func extractTrackKML(kmz []byte) ([]byte, error) {
	archive, err := zip.NewReader(bytes.NewReader(kmz), int64(len(kmz)))
	if err != nil {
		return nil, fmt.Errorf("open kmz: %w", err)
	}

	for _, member := range archive.File {
		if !strings.HasPrefix(member.Name, "al") || !strings.HasSuffix(member.Name, ".kml") {
			continue
		}
		rc, err := member.Open()
		if err != nil {
			return nil, fmt.Errorf("open kmz member %s: %w", member.Name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("kmz has no track kml member")
}

// parsePastTrack decodes a KMZ archive into track entries. Malformed
// placemarks are dropped; the per-placemark errors are returned so the
// caller can log each skipped-entry diagnostic.
func parsePastTrack(kmz []byte, stormID string) ([]domain.TrackEntry, []error, error) {
	raw, err := extractTrackKML(kmz)
	if err != nil {
		return nil, nil, err
	}

	var doc trackKML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse track kml: %w", err)
	}

	var entries []domain.TrackEntry
	var dropped []error
	for _, folder := range doc.Folders {
		if folder.Name != "Data" {
			continue
		}
		for _, pm := range folder.Placemarks {
			entry, err := pm.entry(stormID)
			if err != nil {
				dropped = append(dropped, err)
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, dropped, nil
}

// entry converts one track placemark into a canonical entry.
func (p trackPlacemark) entry(stormID string) (domain.TrackEntry, error) {
	at, err := time.Parse(atcfTimeLayout, strings.TrimSpace(p.DTG))
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: atcfdtg %q", domain.ErrRecordParse, stormID, p.DTG)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(p.Lat), 64)
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: lat %q", domain.ErrRecordParse, stormID, p.Lat)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(p.Lon), 64)
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: lon %q", domain.ErrRecordParse, stormID, p.Lon)
	}
	kt, err := strconv.Atoi(strings.TrimSpace(p.Intensity))
	if err != nil {
		return domain.TrackEntry{}, fmt.Errorf("%w: %s: intensity %q", domain.ErrRecordParse, stormID, p.Intensity)
	}

	entry := domain.TrackEntry{
		ID:        stormID,
		Time:      at.UTC(),
		Lat:       lat,
		Lon:       lon,
		WindSpeed: kt,
		Source:    SourceName,
	}
	if mb, err := strconv.ParseFloat(strings.TrimSpace(p.MinSLP), 64); err == nil && mb > 0 {
		entry.Pressure = &mb
	}
	return entry, nil
}
