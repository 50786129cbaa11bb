package logpipe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// storeRecord is the wire shape the log-store's query endpoint streams
// back, per §4.G "Log-store source".
type storeRecord struct {
	Labels      map[string]string `json:"labels"`
	TimestampNs int64             `json:"timestampNs"`
	Line        string            `json:"line"`
}

// StoreSource polls an HTTP query endpoint for a set of label selectors
// over a time window.
type StoreSource struct {
	baseURL string
	client  *http.Client
	log     *logrus.Entry
}

// NewStoreSource builds a source polling baseURL (e.g.
// "http://127.0.0.1:7070/v1/query") for matching label selectors.
func NewStoreSource(baseURL string, client *http.Client, log *logrus.Entry) *StoreSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &StoreSource{baseURL: baseURL, client: client, log: log}
}

// Query fetches entries for the given labels within [since, until) and
// returns them as normalized LogEntry values, sorted by arrival order from
// the store.
func (s *StoreSource) Query(ctx context.Context, project, service string, since, until time.Time) ([]LogEntry, error) {
	q := url.Values{}
	if project != "" {
		q.Set("project", project)
	}
	if service != "" {
		q.Set("service", service)
	}
	if !since.IsZero() {
		q.Set("since", since.Format(time.RFC3339Nano))
	}
	if !until.IsZero() {
		q.Set("until", until.Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("log-store query request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("log-store query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("log-store query: unexpected status %d", resp.StatusCode)
	}

	var records []storeRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("log-store query decode: %w", err)
	}

	entries := make([]LogEntry, 0, len(records))
	for _, rec := range records {
		entry := ParseLine(SourceLogStore, rec.Line)
		entry.Timestamp = time.Unix(0, rec.TimestampNs).UTC()
		entry.Project = rec.Labels["project"]
		entry.Service = rec.Labels["service"]
		entry.Instance = rec.Labels["instance"]
		entries = append(entries, entry)
	}
	return entries, nil
}

// Poll runs Query on a ticker, delivering newly observed entries to out
// until ctx is cancelled. It tracks the last-seen timestamp so each poll
// only requests the window since the previous one.
func (s *StoreSource) Poll(ctx context.Context, project, service string, interval time.Duration, out func(LogEntry)) {
	since := time.Now().UTC()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			entries, err := s.Query(ctx, project, service, since, now)
			if err != nil {
				if s.log != nil {
					s.log.WithError(err).Debug("log-store poll failed")
				}
				continue
			}
			for _, e := range entries {
				out(e)
			}
			since = now
		}
	}
}
