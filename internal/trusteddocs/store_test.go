package trusteddocs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/internal/trusteddocs"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	return path
}

func TestLoad_ResolvesByClientAndDocumentID(t *testing.T) {
	path := writeManifest(t, `{"web": {"a1b2c3": "query Hello { hello }"}}`)

	store, err := trusteddocs.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	query, ok := store.Lookup("web", "a1b2c3")
	if !ok || query != "query Hello { hello }" {
		t.Fatalf("expected a hit, got query=%q ok=%v", query, ok)
	}
}

func TestLookup_MissesUnknownClientOrDocument(t *testing.T) {
	path := writeManifest(t, `{"web": {"a1b2c3": "query Hello { hello }"}}`)
	store, err := trusteddocs.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := store.Lookup("mobile", "a1b2c3"); ok {
		t.Fatalf("expected a miss for an unknown client")
	}
	if _, ok := store.Lookup("web", "unknown"); ok {
		t.Fatalf("expected a miss for an unknown document id")
	}
}

func TestLoad_ErrorsOnMissingFile(t *testing.T) {
	if _, err := trusteddocs.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected an error for a missing manifest file")
	}
}
