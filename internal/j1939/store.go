package j1939

import (
	"encoding/json"
	"os"

	"github.com/fleetpulse/telemetry-core/internal/types"
)

// Record is a static (spn, fmi) -> fault description mapping, loaded once at
// start and never mutated afterward, so it is safe for concurrent reads
// without synchronization.
type Record struct {
	Name             string          `json:"name"`
	DescriptionEs    string          `json:"description_es"`
	SPNExplanationEs string          `json:"spn_explanation_es,omitempty"`
	FMIExplanationEs string          `json:"fmi_explanation_es,omitempty"`
	Severity         types.DTCSeverity `json:"severity"`
	Category         string          `json:"category"`
	Action           string          `json:"action,omitempty"`
	OEM              string          `json:"oem"`
}

type key struct {
	SPN int
	FMI int
}

// Store holds the DETAILED and COMPLETE lookup tiers. Construct once via
// NewStore/LoadFromFile and share the pointer read-only across all truck
// workers.
type Store struct {
	detailed map[key]Record
	complete map[key]Record
}

// NewStore builds a store from in-memory detailed/complete tables, used by
// the seeded defaults in data.go and by tests.
func NewStore(detailed, complete map[key]Record) *Store {
	return &Store{detailed: detailed, complete: complete}
}

// NewEmptyStore returns a store with no records loaded; every lookup falls
// through to the decoder's synthesized-unknown path.
func NewEmptyStore() *Store {
	return &Store{detailed: map[key]Record{}, complete: map[key]Record{}}
}

// LookupDetailed probes the curated DETAILED tier.
func (s *Store) LookupDetailed(spn, fmi int) (Record, bool) {
	rec, ok := s.detailed[key{spn, fmi}]
	return rec, ok
}

// LookupComplete probes the generic COMPLETE tier.
func (s *Store) LookupComplete(spn, fmi int) (Record, bool) {
	rec, ok := s.complete[key{spn, fmi}]
	return rec, ok
}

// fileRecord is the on-disk shape: SPN/FMI carried as top-level fields next
// to the Record payload, since map[struct]Record isn't directly JSON-able.
type fileRecord struct {
	SPN int `json:"spn"`
	FMI int `json:"fmi"`
	Record
}

type dataFile struct {
	Detailed []fileRecord `json:"detailed"`
	Complete []fileRecord `json:"complete"`
}

// LoadFromFile reads a J1939 data file (§6, J1939 Data File) and merges it
// over the curated seed tables in data.go. A missing or unreadable file is
// not fatal: the seed tables alone still serve the DETAILED tier and the
// decoder degrades gracefully to COMPLETE/synthesized lookups.
func LoadFromFile(path string) (*Store, error) {
	s := SeedStore()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}

	var df dataFile
	if err := json.Unmarshal(data, &df); err != nil {
		return s, err
	}

	for _, fr := range df.Detailed {
		s.detailed[key{fr.SPN, fr.FMI}] = fr.Record
	}
	for _, fr := range df.Complete {
		s.complete[key{fr.SPN, fr.FMI}] = fr.Record
	}

	return s, nil
}
