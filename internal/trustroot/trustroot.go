// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package trustroot loads Sigstore trusted roots from JSONL and selects the
// certificate authority or timestamp authority chain that was valid at a
// given signing instant. Selection is purely temporal: the caller resolves
// the signing time from the bundle once, and the same instant drives both
// authority selection and the later leaf-validity check.
package trustroot

import (
	"fmt"
	"strings"
	"time"

	prototrustroot "github.com/sigstore/protobuf-specs/gen/pb-go/trustroot/v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/zkattest/zkattest/internal/bundle"
	"github.com/zkattest/zkattest/internal/certificate"
)

var unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// ParseJSONL parses trusted roots from JSONL content, one JSON document per
// non-blank line. Input without a single trusted root is rejected.
func ParseJSONL(content []byte) ([]*prototrustroot.TrustedRoot, error) {
	var roots []*prototrustroot.TrustedRoot

	for lineNum, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		root := &prototrustroot.TrustedRoot{}
		if err := unmarshalOptions.Unmarshal([]byte(line), root); err != nil {
			return nil, fmt.Errorf("%w: failed to parse trusted root on line %d: %v", bundle.ErrInvalidBundleFormat, lineNum+1, err)
		}

		roots = append(roots, root)
	}

	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: no trusted roots found in JSONL content", bundle.ErrInvalidBundleFormat)
	}

	return roots, nil
}

// SelectCertificateAuthority picks the Fulcio CA chain for the instance that
// was valid at signingTime. The returned chain has an empty leaf: Fulcio
// trust roots hold only the intermediates and the root, and the leaf is
// supplied by the bundle at verification time.
func SelectCertificateAuthority(roots []*prototrustroot.TrustedRoot, instance certificate.FulcioInstance, signingTime time.Time) (*certificate.Chain, error) {
	var authorities []*prototrustroot.CertificateAuthority
	for _, root := range roots {
		authorities = append(authorities, root.GetCertificateAuthorities()...)
	}

	authority, err := selectAuthority(authorities, instance.CADomain(), instance, signingTime, "certificate")
	if err != nil {
		return nil, err
	}

	return caChain(authority)
}

// SelectTimestampAuthority picks the TSA chain for the instance that was
// valid at signingTime. TSA trust roots carry the full chain including the
// timestamping leaf.
func SelectTimestampAuthority(roots []*prototrustroot.TrustedRoot, instance certificate.FulcioInstance, signingTime time.Time) (*certificate.Chain, error) {
	var authorities []*prototrustroot.CertificateAuthority
	for _, root := range roots {
		authorities = append(authorities, root.GetTimestampAuthorities()...)
	}

	authority, err := selectAuthority(authorities, instance.TSADomain(), instance, signingTime, "timestamp")
	if err != nil {
		return nil, err
	}

	return tsaChain(authority)
}

// selectAuthority returns the authority whose URI contains the expected
// domain and whose validity window covers the signing instant, preferring
// the latest start. Authorities without a start are skipped: temporal
// selection needs a lower bound. Ties on start keep the first authority
// seen, so list order is the tie-break.
func selectAuthority(authorities []*prototrustroot.CertificateAuthority, domain string, instance certificate.FulcioInstance, signingTime time.Time, kind string) (*prototrustroot.CertificateAuthority, error) {
	var (
		best      *prototrustroot.CertificateAuthority
		bestStart time.Time
	)

	for _, authority := range authorities {
		if !strings.Contains(authority.GetUri(), domain) {
			continue
		}

		validFor := authority.GetValidFor()
		if validFor.GetStart() == nil {
			continue
		}

		start := validFor.GetStart().AsTime()
		if signingTime.Before(start) {
			continue
		}
		if end := validFor.GetEnd(); end != nil && signingTime.After(end.AsTime()) {
			continue
		}

		if best == nil || start.After(bestStart) {
			best = authority
			bestStart = start
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no valid %s authority found for instance %s at timestamp %s",
			bundle.ErrInvalidBundleFormat, kind, instance, signingTime.UTC().Format(time.RFC3339))
	}

	return best, nil
}

func chainDER(authority *prototrustroot.CertificateAuthority) ([][]byte, error) {
	certs := authority.GetCertChain().GetCertificates()
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: certificate chain is empty", bundle.ErrInvalidBundleFormat)
	}

	ders := make([][]byte, 0, len(certs))
	for _, cert := range certs {
		if len(cert.GetRawBytes()) == 0 {
			return nil, fmt.Errorf("%w: certificate chain contains an empty certificate", bundle.ErrInvalidBundleFormat)
		}
		ders = append(ders, cert.GetRawBytes())
	}

	return ders, nil
}

// caChain maps a Fulcio authority's chain. A single certificate is a
// self-signed root; otherwise the last element is the root and everything
// before it is an intermediate, ordered leaf to root.
func caChain(authority *prototrustroot.CertificateAuthority) (*certificate.Chain, error) {
	ders, err := chainDER(authority)
	if err != nil {
		return nil, err
	}

	if len(ders) == 1 {
		return &certificate.Chain{Root: ders[0]}, nil
	}

	return &certificate.Chain{
		Intermediates: ders[:len(ders)-1],
		Root:          ders[len(ders)-1],
	}, nil
}

// tsaChain maps a timestamp authority's chain, which starts with the TSA
// signing leaf itself: one certificate is a self-signed leaf, two are leaf
// and root, three or more put intermediates between them.
func tsaChain(authority *prototrustroot.CertificateAuthority) (*certificate.Chain, error) {
	ders, err := chainDER(authority)
	if err != nil {
		return nil, err
	}

	switch len(ders) {
	case 1:
		return &certificate.Chain{Leaf: ders[0], Root: ders[0]}, nil
	case 2:
		return &certificate.Chain{Leaf: ders[0], Root: ders[1]}, nil
	default:
		return &certificate.Chain{
			Leaf:          ders[0],
			Intermediates: ders[1 : len(ders)-1],
			Root:          ders[len(ders)-1],
		}, nil
	}
}
