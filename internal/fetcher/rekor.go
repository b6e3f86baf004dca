// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

package fetcher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

var ErrRekorFetchFailed = errors.New("failed to fetch Rekor entry")

// DefaultRekorURL is the public-good Rekor instance.
const DefaultRekorURL = "https://rekor.sigstore.dev"

// RekorEntry is a transparency log entry fetched from a Rekor instance.
type RekorEntry struct {
	LogIndex       int64
	IntegratedTime int64
	Body           []byte
}

// rekorLogEntry mirrors the values of the UUID-keyed map the Rekor API
// returns from its log entry endpoints.
type rekorLogEntry struct {
	Body           string `json:"body"`
	IntegratedTime int64  `json:"integratedTime"`
	LogIndex       int64  `json:"logIndex"`
}

// RekorLogEntry fetches the log entry at logIndex from the Rekor instance
// at baseURL.
func RekorLogEntry(ctx context.Context, baseURL string, logIndex int64) (*RekorEntry, error) {
	url := fmt.Sprintf("%s/api/v1/log/entries?logIndex=%d", strings.TrimSuffix(baseURL, "/"), logIndex)
	slog.Debug(fmt.Sprintf("Fetching Rekor entry from '%s'...", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRekorFetchFailed, err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRekorFetchFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP error: %s", ErrRekorFetchFailed, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRekorFetchFailed, err)
	}

	entries := map[string]rekorLogEntry{}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRekorFetchFailed, err)
	}

	for _, entry := range entries {
		entryBody, err := base64.StdEncoding.DecodeString(entry.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid entry body: %v", ErrRekorFetchFailed, err)
		}

		return &RekorEntry{
			LogIndex:       entry.LogIndex,
			IntegratedTime: entry.IntegratedTime,
			Body:           entryBody,
		}, nil
	}

	return nil, fmt.Errorf("%w: no entry at log index %d", ErrRekorFetchFailed, logIndex)
}
