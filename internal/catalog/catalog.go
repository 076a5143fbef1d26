// Package catalog loads the static champion list from Data Dragon once at
// startup. The resulting slice is read-only and shared by every session.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// DefaultURL is the Data Dragon champion document for the pinned patch.
const DefaultURL = "https://ddragon.leagueoflegends.com/cdn/14.12.1/data/ko_KR/champion.json"

// document mirrors the shape of champion.json: a "data" object keyed by
// champion name, each entry carrying its string id.
type document struct {
	Data map[string]struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Load fetches and parses the champion document, returning the sorted
// champion ids. Callers treat a failure as non-fatal and run with an
// empty catalog.
func Load(ctx context.Context, client *http.Client, url string) ([]string, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: unexpected status %d", resp.StatusCode)
	}

	var doc document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	ids := make([]string, 0, len(doc.Data))
	for _, c := range doc.Data {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
