package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CoordinateUpdater writes geocoding results back to the owning service.
type CoordinateUpdater interface {
	UpdateCoordinates(ctx context.Context, customerID string, coords Coordinates) error
}

// StatusError is returned for non-2xx write-back responses, letting the
// handler separate client errors (permanent) from server errors (retryable).
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("coordinate update %s returned status %d", e.URL, e.StatusCode)
}

// HTTPCoordinateUpdater PATCHes coordinates to the CRM internal endpoint
// with an explicit per-request timeout.
type HTTPCoordinateUpdater struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCoordinateUpdater creates an updater against the CRM internal API.
func NewHTTPCoordinateUpdater(baseURL string, timeout time.Duration) *HTTPCoordinateUpdater {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCoordinateUpdater{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// UpdateCoordinates PATCHes /internal/customers/{id}/coordinates.
func (u *HTTPCoordinateUpdater) UpdateCoordinates(ctx context.Context, customerID string, coords Coordinates) error {
	body, err := json.Marshal(coords)
	if err != nil {
		return fmt.Errorf("marshal coordinates: %w", err)
	}

	url := fmt.Sprintf("%s/internal/customers/%s/coordinates", u.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build coordinate update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("coordinate update request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return nil
}
