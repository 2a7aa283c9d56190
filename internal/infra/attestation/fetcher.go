package attestation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SourceFetcher retrieves raw revocation-list bytes from a configured
// source URL. Implementations must honor context cancellation.
type SourceFetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

type httpFetcher struct {
	client *http.Client
}

const maxRevocationListBytes = 8 << 20

func NewHTTPFetcher(timeout time.Duration) SourceFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *httpFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxRevocationListBytes))
}
