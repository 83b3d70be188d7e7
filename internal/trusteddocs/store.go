// Package trusteddocs implements a local, manifest-backed
// operation.TrustedDocumentStore: a JSON file mapping (client name,
// document id) pairs to query text, loaded once at startup. Fetching
// that manifest from a remote schema registry is out of scope (spec's
// Non-goals name remote trusted-documents/schema-registry client code
// explicitly) — this package only consumes an already-materialized
// manifest file, the "manifest-only execution" mode spec.md §6 names.
package trusteddocs

import (
	"encoding/json"
	"fmt"
	"os"
)

// manifest is the on-disk shape: per-client maps of document id to
// query text, e.g.:
//
//	{"web": {"a1b2c3": "query Hello { hello }"}}
type manifest map[string]map[string]string

// Store is an in-memory, read-only lookup table loaded from a
// manifest file.
type Store struct {
	documents manifest
}

// Load reads and parses a trusted-document manifest from path.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trusteddocs: reading manifest %q: %w", path, err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("trusteddocs: parsing manifest %q: %w", path, err)
	}

	return &Store{documents: m}, nil
}

// Lookup satisfies operation.TrustedDocumentStore.
func (s *Store) Lookup(clientName, documentID string) (string, bool) {
	if s == nil {
		return "", false
	}
	client, ok := s.documents[clientName]
	if !ok {
		return "", false
	}
	query, ok := client[documentID]
	return query, ok
}
