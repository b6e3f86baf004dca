// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package timestamp resolves the canonical signing instant of a bundle and
// checks it against the leaf certificate's validity window. An RFC 3161
// timestamp takes priority over the transparency log's integrated time, but
// its genTime is an unsigned hint: without a transparency log entry to back
// it, verification fails rather than trusting the hint in isolation.
package timestamp

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	dtimestamp "github.com/digitorus/timestamp"
	protorekor "github.com/sigstore/protobuf-specs/gen/pb-go/rekor/v1"

	"github.com/zkattest/zkattest/internal/bundle"
	"github.com/zkattest/zkattest/internal/certificate"
)

var (
	ErrRFC3161Parse         = errors.New("failed to parse RFC 3161 timestamp")
	ErrRFC3161NotSupported  = errors.New("RFC 3161 timestamp without a transparency log entry is not supported")
	ErrInvalidIntegratedTime = errors.New("invalid integrated time in transparency log entry")
	ErrNoTimestamp          = errors.New("no signing time available in bundle")
)

// SigningTime resolves the bundle's signing instant in UTC seconds. An RFC
// 3161 timestamp, when present, supplies genTime, but only alongside a
// transparency log entry whose inclusion proof is verified separately.
// Otherwise the first transparency log entry's integrated time is used.
func SigningTime(b *bundle.Bundle) (time.Time, error) {
	if stamps := b.RFC3161Timestamps(); len(stamps) > 0 {
		if len(b.TlogEntries()) == 0 {
			return time.Time{}, ErrRFC3161NotSupported
		}
		return genTime(stamps[0].GetSignedTimestamp())
	}

	if entries := b.TlogEntries(); len(entries) > 0 {
		return IntegratedTime(entries[0])
	}

	return time.Time{}, ErrNoTimestamp
}

// genTime extracts the genTime from a DER-encoded timestamp. Bundles carry
// either a full TimeStampResp or a bare TimeStampToken; try both.
func genTime(der []byte) (time.Time, error) {
	ts, err := dtimestamp.ParseResponse(der)
	if err != nil {
		ts, err = dtimestamp.Parse(der)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrRFC3161Parse, err)
	}

	return ts.Time.UTC().Truncate(time.Second), nil
}

// IntegratedTime returns the entry's integrated time as a UTC instant.
func IntegratedTime(entry *protorekor.TransparencyLogEntry) (time.Time, error) {
	seconds := entry.GetIntegratedTime()
	if seconds <= 0 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidIntegratedTime, seconds)
	}

	return time.Unix(seconds, 0).UTC(), nil
}

// VerifyInValidity checks that the signing instant falls inside the leaf
// certificate's validity window, bounds inclusive.
func VerifyInValidity(signingTime time.Time, leaf *x509.Certificate) error {
	if signingTime.Before(leaf.NotBefore) || signingTime.After(leaf.NotAfter) {
		return &certificate.ValidityError{
			SigningTime: signingTime,
			NotBefore:   leaf.NotBefore,
			NotAfter:    leaf.NotAfter,
		}
	}

	return nil
}
