// Package composer ingests subgraph SDLs (static or fetched over HTTP)
// and produces a composed internal/schema.SuperGraph.
package composer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

// SubgraphSource describes one federated service to ingest.
type SubgraphSource struct {
	Name string
	Host string
	// SDL is used verbatim when non-empty; otherwise the SDL is fetched
	// from Host via the `{ _service { sdl } }` introspection query.
	SDL []byte
}

// RetryPolicy bounds SDL-fetch retries.
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration
}

func (r RetryPolicy) orDefaults() RetryPolicy {
	if r.Attempts <= 0 {
		r.Attempts = 3
	}
	if r.Timeout <= 0 {
		r.Timeout = 5 * time.Second
	}
	return r
}

// Result is the outcome of a composition pass.
type Result struct {
	SuperGraph  *schema.SuperGraph
	Fingerprint [32]byte
	Diagnostics []schema.Diagnostic
}

// Compose ingests every source (fetching SDL over HTTP where Source.SDL
// is empty) and composes them into a SuperGraph.
func Compose(ctx context.Context, httpClient *http.Client, sources []SubgraphSource, retry RetryPolicy) (*Result, error) {
	retry = retry.orDefaults()

	subGraphs := make([]*schema.SubGraph, 0, len(sources))
	var diags []schema.Diagnostic

	for _, src := range sources {
		sdl := src.SDL
		if len(sdl) == 0 {
			fetched, err := FetchSubgraphSDL(ctx, httpClient, src.Host, retry)
			if err != nil {
				return nil, fmt.Errorf("composer: fetch SDL for subgraph %q: %w", src.Name, err)
			}
			sdl = []byte(fetched)
		}

		sg, err := schema.NewSubGraph(src.Name, sdl, src.Host)
		if err != nil {
			return nil, fmt.Errorf("composer: parse subgraph %q: %w", src.Name, err)
		}
		if len(sg.GetEntities()) == 0 {
			diags = append(diags, schema.Diagnostic{
				Severity: "warning",
				Code:     "NO_ENTITIES",
				Message:  fmt.Sprintf("subgraph %q declares no @key entities", src.Name),
			})
		}
		subGraphs = append(subGraphs, sg)
	}

	sg, err := schema.Compose(subGraphs)
	if err != nil {
		return nil, err
	}
	sg.Diagnostics = diags

	return &Result{
		SuperGraph:  sg,
		Fingerprint: schema.Fingerprint(subGraphs),
		Diagnostics: diags,
	}, nil
}

type serviceSDLResponse struct {
	Data struct {
		Service struct {
			SDL string `json:"sdl"`
		} `json:"_service"`
	} `json:"data"`
}

// FetchSubgraphSDL retrieves a subgraph's SDL via the federation
// `_service { sdl }` introspection field, retrying up to retry.Attempts
// times with a per-attempt timeout.
func FetchSubgraphSDL(ctx context.Context, httpClient *http.Client, host string, retry RetryPolicy) (string, error) {
	retry = retry.orDefaults()
	body := []byte(`{"query":"{_service{sdl}}"}`)

	var lastErr error
	for i := 0; i < retry.Attempts; i++ {
		sdl, err := doFetchSDL(ctx, httpClient, host, body, retry.Timeout)
		if err == nil {
			return sdl, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("fetch SDL from %s after %d attempt(s): %w", host, retry.Attempts, lastErr)
}

func doFetchSDL(ctx context.Context, httpClient *http.Client, host string, body []byte, timeout time.Duration) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, host, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, host)
	}

	var svcResp serviceSDLResponse
	if err := json.NewDecoder(resp.Body).Decode(&svcResp); err != nil {
		return "", fmt.Errorf("decode SDL response: %w", err)
	}
	if svcResp.Data.Service.SDL == "" {
		return "", fmt.Errorf("empty SDL returned from %s", host)
	}
	return svcResp.Data.Service.SDL, nil
}
