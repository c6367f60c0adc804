/*
Package remote is the transport to the practice's remote clinical data
store. The engine treats it as an opaque fetch returning wire-format
payloads; pushing data back is not modeled here.
*/
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"MediSync_V1.0/internal/clinical"
)

// Client fetches a patient's clinical payload over HTTPS with a bearer
// token. It implements clinical.RemoteFetcher.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the given API base URL. The timeout bounds
// the whole fetch; the engine itself never enforces one.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchPatientClinicalData retrieves the current record and history for a
// patient, still in wire format. Any transport or status failure comes back
// as an error; the caller degrades to cache-only reconciliation.
func (c *Client) FetchPatientClinicalData(ctx context.Context, patientID string) (clinical.RemotePayload, error) {
	endpoint := fmt.Sprintf("%s/patients/%s/clinical", c.baseURL, url.PathEscape(patientID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return clinical.RemotePayload{}, fmt.Errorf("build clinical data request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return clinical.RemotePayload{}, fmt.Errorf("fetch clinical data for patient %s: %w", patientID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return clinical.RemotePayload{}, fmt.Errorf("remote store returned status %d for patient %s", resp.StatusCode, patientID)
	}

	var payload clinical.RemotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return clinical.RemotePayload{}, fmt.Errorf("decode clinical payload for patient %s: %w", patientID, err)
	}
	return payload, nil
}
