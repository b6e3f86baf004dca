// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

package timestamp_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	dtimestamp "github.com/digitorus/timestamp"
	protobundle "github.com/sigstore/protobuf-specs/gen/pb-go/bundle/v1"
	protocommon "github.com/sigstore/protobuf-specs/gen/pb-go/common/v1"
	protorekor "github.com/sigstore/protobuf-specs/gen/pb-go/rekor/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkattest/zkattest/internal/bundle"
	"github.com/zkattest/zkattest/internal/certificate"
	"github.com/zkattest/zkattest/internal/testutils"
	"github.com/zkattest/zkattest/internal/timestamp"
)

var genTime = time.Date(2024, 11, 20, 4, 46, 13, 0, time.UTC)

// signedTimestamp mints an RFC 3161 timestamp response with genTime.
func signedTimestamp(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.Nil(t, err)

	// The CMS signing-time attribute carries the current wall-clock time and
	// is checked against the TSA certificate when the token is parsed, so the
	// validity window spans from before genTime to after now.
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "zkattest test tsa"},
		NotBefore:    genTime.Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.Nil(t, err)
	cert, err := x509.ParseCertificate(der)
	require.Nil(t, err)

	digest := sha256.Sum256([]byte("timestamped message"))
	ts := &dtimestamp.Timestamp{
		HashAlgorithm:     crypto.SHA256,
		HashedMessage:     digest[:],
		Time:              genTime,
		Policy:            asn1.ObjectIdentifier{1, 2, 3, 4, 1},
		SerialNumber:      big.NewInt(42),
		AddTSACertificate: true,
	}

	resp, err := ts.CreateResponse(cert, key)
	require.Nil(t, err)

	return resp
}

func bundleWith(t *testing.T, stamps []*protocommon.RFC3161SignedTimestamp, entries []*protorekor.TransparencyLogEntry) *bundle.Bundle {
	t.Helper()

	pki := testutils.CreateTestPKI(t)
	pb := pki.Bundle(t)
	pb.VerificationMaterial.TlogEntries = entries
	if stamps != nil {
		pb.VerificationMaterial.TimestampVerificationData = &protobundle.TimestampVerificationData{
			Rfc3161Timestamps: stamps,
		}
	}

	b, err := bundle.New(testutils.BundleJSON(t, pb))
	require.Nil(t, err)

	return b
}

func TestSigningTimeFromIntegratedTime(t *testing.T) {
	b := bundleWith(t, nil, []*protorekor.TransparencyLogEntry{
		{IntegratedTime: 1732077973, CanonicalizedBody: testutils.CanonicalizedBody},
	})

	signingTime, err := timestamp.SigningTime(b)
	require.Nil(t, err)
	assert.Equal(t, time.Date(2024, 11, 20, 4, 46, 13, 0, time.UTC), signingTime)
	assert.Equal(t, time.UTC, signingTime.Location())
}

func TestSigningTimeFromRFC3161(t *testing.T) {
	b := bundleWith(t,
		[]*protocommon.RFC3161SignedTimestamp{{SignedTimestamp: signedTimestamp(t)}},
		[]*protorekor.TransparencyLogEntry{
			{IntegratedTime: 1111111111, CanonicalizedBody: testutils.CanonicalizedBody},
		},
	)

	// The RFC 3161 genTime wins over the integrated time.
	signingTime, err := timestamp.SigningTime(b)
	require.Nil(t, err)
	assert.True(t, signingTime.Equal(genTime), "got %s, want %s", signingTime, genTime)
	assert.Equal(t, time.UTC, signingTime.Location())
}

func TestSigningTimeRejectsRFC3161WithoutTlogEntry(t *testing.T) {
	b := bundleWith(t,
		[]*protocommon.RFC3161SignedTimestamp{{SignedTimestamp: signedTimestamp(t)}},
		nil,
	)

	_, err := timestamp.SigningTime(b)
	assert.ErrorIs(t, err, timestamp.ErrRFC3161NotSupported)
}

func TestSigningTimeRejectsMalformedRFC3161(t *testing.T) {
	b := bundleWith(t,
		[]*protocommon.RFC3161SignedTimestamp{{SignedTimestamp: []byte("garbage")}},
		[]*protorekor.TransparencyLogEntry{
			{IntegratedTime: 1732068373, CanonicalizedBody: testutils.CanonicalizedBody},
		},
	)

	_, err := timestamp.SigningTime(b)
	assert.ErrorIs(t, err, timestamp.ErrRFC3161Parse)
}

func TestSigningTimeNoTimestamp(t *testing.T) {
	b := bundleWith(t, nil, nil)

	_, err := timestamp.SigningTime(b)
	assert.ErrorIs(t, err, timestamp.ErrNoTimestamp)
}

func TestIntegratedTimeRejectsNonPositive(t *testing.T) {
	for _, seconds := range []int64{0, -5} {
		_, err := timestamp.IntegratedTime(&protorekor.TransparencyLogEntry{IntegratedTime: seconds})
		assert.ErrorIs(t, err, timestamp.ErrInvalidIntegratedTime)
	}
}

func TestVerifyInValidity(t *testing.T) {
	pki := testutils.CreateTestPKI(t)
	leaf, err := certificate.ParseDER(pki.LeafDER)
	require.Nil(t, err)

	// Bounds are inclusive.
	for _, instant := range []time.Time{pki.NotBefore, pki.NotBefore.Add(time.Minute), pki.NotAfter} {
		assert.Nil(t, timestamp.VerifyInValidity(instant, leaf))
	}

	for _, instant := range []time.Time{pki.NotBefore.Add(-time.Second), pki.NotAfter.Add(time.Second)} {
		err := timestamp.VerifyInValidity(instant, leaf)
		assert.ErrorIs(t, err, certificate.ErrSigningTimeOutsideValidity)

		validityErr := &certificate.ValidityError{}
		require.ErrorAs(t, err, &validityErr)
		assert.Equal(t, instant, validityErr.SigningTime)
	}
}
