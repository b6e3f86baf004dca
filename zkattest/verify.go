// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package zkattest verifies Sigstore attestation bundles against a
// caller-supplied root of trust. The verification pipeline is deterministic
// and free of I/O: every input arrives as bytes, the signing instant comes
// from the bundle itself, and the same inputs always produce the same
// result. That property lets the identical code run inside a zkVM guest,
// where clocks, files, and sockets do not exist.
package zkattest

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/zkattest/zkattest/internal/bundle"
	"github.com/zkattest/zkattest/internal/certificate"
	"github.com/zkattest/zkattest/internal/signature"
	"github.com/zkattest/zkattest/internal/timestamp"
	"github.com/zkattest/zkattest/internal/transparency"
	verifyopts "github.com/zkattest/zkattest/zkattest/options/verify"
)

// OIDCIdentity is the identity Fulcio bound into the leaf certificate.
type OIDCIdentity = certificate.OIDCIdentity

// CertificateChain is a DER certificate chain ordered leaf to root.
type CertificateChain = certificate.Chain

// CertificateChainHashes holds the SHA-256 digest of each chain element.
type CertificateChainHashes = certificate.ChainHashes

// FulcioInstance identifies the Fulcio deployment that issued a leaf.
type FulcioInstance = certificate.FulcioInstance

// VerificationResult is the structured outcome of a successful
// verification.
type VerificationResult struct {
	CertificateHashes *CertificateChainHashes
	SigningTime       time.Time
	SubjectDigest     []byte
	OIDCIdentity      *OIDCIdentity
}

// AttestationVerifier verifies Sigstore attestation bundles. It carries no
// state; a zero value is ready to use.
type AttestationVerifier struct{}

// NewAttestationVerifier returns a new verifier.
func NewAttestationVerifier() *AttestationVerifier {
	return &AttestationVerifier{}
}

// VerifyBundle verifies the bundle stored at bundlePath. fulcioChain is the
// trust root for the signing certificate; its leaf slot is filled from the
// bundle. tsaChain is reserved for RFC 3161 countersignature verification
// and may be nil.
func (v *AttestationVerifier) VerifyBundle(bundlePath string, fulcioChain, tsaChain *CertificateChain, opts ...verifyopts.Option) (*VerificationResult, error) {
	b, err := bundle.NewFromPath(bundlePath)
	if err != nil {
		return nil, err
	}

	return v.verify(b, fulcioChain, tsaChain, opts...)
}

// VerifyBundleBytes verifies a bundle from raw JSON bytes.
func (v *AttestationVerifier) VerifyBundleBytes(bundleJSON []byte, fulcioChain, tsaChain *CertificateChain, opts ...verifyopts.Option) (*VerificationResult, error) {
	b, err := bundle.New(bundleJSON)
	if err != nil {
		return nil, err
	}

	return v.verify(b, fulcioChain, tsaChain, opts...)
}

func (v *AttestationVerifier) verify(b *bundle.Bundle, fulcioChain, _ *CertificateChain, opts ...verifyopts.Option) (*VerificationResult, error) {
	options := verifyopts.DefaultOptions()
	for _, fn := range opts {
		fn(options)
	}

	slog.Debug("Parsing DSSE payload...")
	statement, err := b.Statement()
	if err != nil {
		return nil, err
	}

	subjectDigest, err := bundle.SubjectDigest(statement)
	if err != nil {
		return nil, err
	}

	if len(options.ExpectedDigest) > 0 && !bytes.Equal(subjectDigest, options.ExpectedDigest) {
		return nil, &SubjectDigestMismatchError{Expected: options.ExpectedDigest, Actual: subjectDigest}
	}

	slog.Debug("Resolving signing time...")
	signingTime, err := timestamp.SigningTime(b)
	if err != nil {
		return nil, err
	}

	slog.Debug("Verifying certificate chain...")
	chain, chainHashes, err := certificate.VerifyChain(b.LeafCertificateDER(), fulcioChain)
	if err != nil {
		return nil, err
	}

	leaf, err := certificate.ParseDER(chain.Leaf)
	if err != nil {
		return nil, err
	}

	slog.Debug("Checking signing time against leaf validity...")
	if err := timestamp.VerifyInValidity(signingTime, leaf); err != nil {
		return nil, err
	}

	slog.Debug("Verifying DSSE signature...")
	if err := signature.VerifyEnvelope(leaf.PublicKey, b.Envelope()); err != nil {
		return nil, err
	}

	slog.Debug("Verifying transparency log...")
	if err := transparency.VerifyLog(b, !options.VerifyRekor); err != nil {
		return nil, err
	}

	identity := certificate.ExtractOIDCIdentity(leaf)
	if options.ExpectedIssuer != "" && identity.Issuer != options.ExpectedIssuer {
		return nil, &IdentityMismatchError{Expected: options.ExpectedIssuer, Actual: identity.Issuer}
	}
	if options.ExpectedSubject != "" && identity.Subject != options.ExpectedSubject {
		return nil, &IdentityMismatchError{Expected: options.ExpectedSubject, Actual: identity.Subject}
	}

	return &VerificationResult{
		CertificateHashes: chainHashes,
		SigningTime:       signingTime,
		SubjectDigest:     subjectDigest,
		OIDCIdentity:      identity,
	}, nil
}

// ResolveSigningTime resolves the signing instant of a bundle without
// verifying it. Hosts use this to select the matching authority from a
// trusted root before calling VerifyBundle with the selected chain.
func ResolveSigningTime(bundleJSON []byte) (time.Time, error) {
	b, err := bundle.New(bundleJSON)
	if err != nil {
		return time.Time{}, err
	}

	return timestamp.SigningTime(b)
}

// InstanceForBundle determines which Fulcio instance issued the bundle's
// signing certificate, from the leaf's issuer common name.
func InstanceForBundle(bundleJSON []byte) (FulcioInstance, error) {
	b, err := bundle.New(bundleJSON)
	if err != nil {
		return 0, err
	}

	leaf, err := certificate.ParseDER(b.LeafCertificateDER())
	if err != nil {
		return 0, err
	}

	return certificate.InstanceForCert(leaf)
}
