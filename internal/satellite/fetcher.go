package satellite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPDoer executes HTTP requests. Satisfied by *http.Client and *resilience.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxSnapshotBytes bounds a downloaded snapshot.
const maxSnapshotBytes = 64 << 20

// FetcherConfig configures snapshot downloads.
type FetcherConfig struct {
	// URL serves the current grid as JSON.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	HTTPClient HTTPDoer
	Store      SnapshotStore
	Logger     zerolog.Logger
}

// Fetcher downloads fresh snapshots into a store.
type Fetcher struct {
	url        string
	token      string
	httpClient HTTPDoer
	store      SnapshotStore
	logger     zerolog.Logger
}

// NewFetcher creates a snapshot fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Fetcher{
		url:        cfg.URL,
		token:      cfg.Token,
		httpClient: httpClient,
		store:      cfg.Store,
		logger:     cfg.Logger,
	}
}

// Refresh downloads one snapshot, validates it and saves it. It returns the stored name.
func (f *Fetcher) Refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading snapshot: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return "", fmt.Errorf("reading snapshot: %w", err)
	}

	grid, err := Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	observed := grid.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	name := fmt.Sprintf("%s_%s", productOrDefault(grid.Product), observed.UTC().Format("20060102T150405Z"))

	if err := f.store.Save(ctx, name, data); err != nil {
		return "", err
	}

	f.logger.Info().
		Str("snapshot", name).
		Int("bytes", len(data)).
		Int("rows", len(grid.Lats)).
		Int("cols", len(grid.Lons)).
		Msg("satellite snapshot stored")

	return name, nil
}

func productOrDefault(product string) string {
	if product == "" {
		return "tempo_no2"
	}
	return product
}
