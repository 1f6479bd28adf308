// Package domain models canonical tropical-cyclone track data.
//
// # Data Sources
//
// Track observations are reconciled from three public feeds, each with its
// own conventions:
//
// NHC (National Hurricane Center) publishes an active-storms KML index at
// https://www.nhc.noaa.gov/gis/kml/nhc_active.kml. Folders whose id begins
// with "at" are active Atlantic systems; other prefixes such as "wsp" mark
// wind-speed-probability overlays and are skipped. Each storm folder carries
// an ExtendedData block (absent for systems too weak to have one) with the
// ATCF identifier and the latest advisory position, plus a "pasttrack"
// NetworkLink to a KMZ archive holding the full historical track. Advisory
// timestamps use US coastal timezone abbreviations (AST, EDT, CDT, ...)
// that common timezone databases do not resolve, so a fixed offset table is
// applied. Track placemark timestamps use the ATCF "YYYYMMDDHH" form in UTC.
//
// HWRF best-track (b-deck) files use the ATCF comma-delimited layout:
//
//	AL, 09, 2024090112,   , BEST,   0, 262N,  800W, 100,  955, HU, ...
//
// Coordinates are tenths of degrees with a trailing hemisphere letter
// ("262N" = 26.2, "800W" = -80.0); winds are already knots; the trailing
// column count varies by writer, so parsing over-allocates column names and
// drops fully empty columns afterwards.
//
// RAMMB/CIRA publishes per-basin HTML indexes with per-storm detail pages
// containing a forecast table and a history table (history only for systems
// without an official forecast), plus satellite imagery links.
//
// # Canonical Form
//
// All sources normalize to [TrackEntry]: signed decimal degrees (north/east
// positive), winds in knots (mph sources divided by 1.151 exactly once, at
// the adapter boundary), UTC timestamps, and an ATCF-style composite id
// (basin + two-digit number + season, e.g. "al092024") synthesized when the
// source does not carry one.
//
// # Fingerprinting
//
// Each ingest cycle hashes the full canonical set after an explicit
// (id, time, source) sort; the digest is the idempotence token that gates
// snapshot replacement. See [Fingerprint].
package domain
