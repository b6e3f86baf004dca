// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetcher downloads trust material over HTTP for hosts that do not
// ship a pinned trusted root. Nothing in this package is reachable from the
// verification core; it exists so the CLI can resolve a Fulcio chain when
// the caller has not supplied one.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sigstore/sigstore/pkg/cryptoutils"

	"github.com/zkattest/zkattest/internal/certificate"
)

var ErrTrustBundleFetch = errors.New("failed to fetch trust bundle")

var httpClient = &http.Client{Timeout: 30 * time.Second}

// trustBundleResponse is the JSON format served by Fulcio's trustBundle
// endpoint.
type trustBundleResponse struct {
	Chains []struct {
		Certificates []string `json:"certificates"`
	} `json:"chains"`
}

// FulcioTrustBundle fetches the certificate chain for a Fulcio instance
// from its trustBundle endpoint.
func FulcioTrustBundle(ctx context.Context, instance certificate.FulcioInstance) (*certificate.Chain, error) {
	return TrustBundleFromURL(ctx, instance.TrustBundleURL())
}

// TrustBundleFromURL fetches a certificate chain from an arbitrary URL. Two
// response formats are recognized: the Fulcio JSON trust bundle
// ({"chains": [{"certificates": [PEM, ...]}]}) and concatenated raw PEM
// certificates, as served by GitHub's TSA certchain endpoint.
func TrustBundleFromURL(ctx context.Context, url string) (*certificate.Chain, error) {
	slog.Debug(fmt.Sprintf("Fetching trust bundle from '%s'...", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrustBundleFetch, err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrustBundleFetch, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP error: %s", ErrTrustBundleFetch, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrustBundleFetch, err)
	}

	if strings.HasPrefix(strings.TrimSpace(string(body)), "-----BEGIN") {
		return chainFromPEM(body)
	}

	var trustBundle trustBundleResponse
	if err := json.Unmarshal(body, &trustBundle); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrustBundleFetch, err)
	}

	if len(trustBundle.Chains) == 0 || len(trustBundle.Chains[0].Certificates) == 0 {
		return nil, fmt.Errorf("%w: no certificate chains in trust bundle", ErrTrustBundleFetch)
	}

	ders, err := derChain([]byte(strings.Join(trustBundle.Chains[0].Certificates, "\n")))
	if err != nil {
		return nil, err
	}
	if len(ders) < 2 {
		return nil, fmt.Errorf("%w: certificate chain too short", ErrTrustBundleFetch)
	}

	// Fulcio serves only the issuing chain; the leaf arrives in the bundle.
	return &certificate.Chain{
		Intermediates: ders[:len(ders)-1],
		Root:          ders[len(ders)-1],
	}, nil
}

// chainFromPEM parses concatenated PEM certificates ordered leaf,
// intermediates, root.
func chainFromPEM(pemData []byte) (*certificate.Chain, error) {
	ders, err := derChain(pemData)
	if err != nil {
		return nil, err
	}
	if len(ders) < 2 {
		return nil, fmt.Errorf("%w: certificate chain too short", ErrTrustBundleFetch)
	}

	return &certificate.Chain{
		Leaf:          ders[0],
		Intermediates: ders[1 : len(ders)-1],
		Root:          ders[len(ders)-1],
	}, nil
}

func derChain(pemData []byte) ([][]byte, error) {
	certs, err := cryptoutils.UnmarshalCertificatesFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrustBundleFetch, err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: no certificates found", ErrTrustBundleFetch)
	}

	ders := make([][]byte, 0, len(certs))
	for _, cert := range certs {
		ders = append(ders, cert.Raw)
	}

	return ders, nil
}
