// Command genfixture reads an ATCF best-track deck file and generates a
// canonical track fixture for the test suites. It runs the actual deck
// parser and canonicalizer so fixture contents match real pipeline
// behavior.
//
// Usage:
//
//	go run ./cmd/genfixture -deck bal092024.dat -out internal/ingest/testdata/al092024.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/couchcryptid/cyclone-track-service/internal/adapter/hwrf"
	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	deckPath := flag.String("deck", "", "path to an ATCF b-deck file")
	outPath := flag.String("out", "", "output path for the canonical JSON fixture")
	flag.Parse()

	if *deckPath == "" || *outPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -deck, -out")
	}

	data, err := os.ReadFile(*deckPath)
	if err != nil {
		return fmt.Errorf("reading deck: %w", err)
	}

	entries, dropped, err := hwrf.ParseDeck(data)
	if err != nil {
		return fmt.Errorf("parsing deck: %w", err)
	}
	for _, derr := range dropped {
		log.Printf("dropped row: %v", derr)
	}

	canonical, invalid := domain.Canonicalize(entries)
	if invalid > 0 {
		log.Printf("dropped %d invalid entries", invalid)
	}
	log.Printf("%s: %d canonical entries, fingerprint %s",
		filepath.Base(*deckPath), len(canonical), domain.Fingerprint(canonical))

	out, err := json.MarshalIndent(canonical, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling fixture: %w", err)
	}
	out = append(out, '\n')

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(*outPath, out, 0o600); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote fixture: %s", *outPath)
	return nil
}
