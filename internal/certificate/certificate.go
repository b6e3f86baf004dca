// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package certificate handles the X.509 side of bundle verification: parsing
// DER and PEM certificates, mapping a leaf's issuer to a known Fulcio
// instance, assembling and verifying the leaf-to-root chain, and extracting
// the OIDC identity recorded in Fulcio's certificate extensions.
package certificate

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCertificateParse           = errors.New("failed to parse certificate")
	ErrUnknownIssuer              = errors.New("unknown issuer")
	ErrChainVerificationFailed    = errors.New("certificate chain verification failed")
	ErrSigningTimeOutsideValidity = errors.New("signing time outside certificate validity period")
)

var oidCommonName = asn1.ObjectIdentifier{2, 5, 4, 3}

// Chain is a certificate chain in DER form, ordered leaf to root. Leaf may
// be empty for Fulcio trust roots, where the leaf travels in the bundle and
// is filled in at verification time.
type Chain struct {
	Leaf          []byte
	Intermediates [][]byte
	Root          []byte
}

// ChainHashes holds the SHA-256 digest of every DER element of a verified
// chain, in chain order.
type ChainHashes struct {
	Leaf          [sha256.Size]byte
	Intermediates [][sha256.Size]byte
	Root          [sha256.Size]byte
}

// Hashes computes the digest of each chain element in chain order.
func (c *Chain) Hashes() *ChainHashes {
	hashes := &ChainHashes{
		Leaf: sha256.Sum256(c.Leaf),
		Root: sha256.Sum256(c.Root),
	}
	for _, der := range c.Intermediates {
		hashes.Intermediates = append(hashes.Intermediates, sha256.Sum256(der))
	}
	return hashes
}

// FulcioInstance identifies which Fulcio deployment issued a leaf
// certificate, derived from the leaf's issuer common name.
type FulcioInstance int

const (
	FulcioGitHub FulcioInstance = iota
	FulcioPublicGood
)

func (i FulcioInstance) String() string {
	switch i {
	case FulcioGitHub:
		return "GitHub"
	case FulcioPublicGood:
		return "PublicGood"
	default:
		return "unknown"
	}
}

// CADomain returns the domain expected in the URI of the instance's
// certificate authority record in a trusted root.
func (i FulcioInstance) CADomain() string {
	if i == FulcioGitHub {
		return "fulcio.githubapp.com"
	}
	return "fulcio.sigstore.dev"
}

// TSADomain returns the domain expected in the URI of the instance's
// timestamp authority record in a trusted root.
func (i FulcioInstance) TSADomain() string {
	if i == FulcioGitHub {
		return "timestamp.githubapp.com"
	}
	return "timestamp.sigstore.dev"
}

// TrustBundleURL returns the endpoint serving the instance's certificate
// chain over HTTP.
func (i FulcioInstance) TrustBundleURL() string {
	return fmt.Sprintf("https://%s/api/v2/trustBundle", i.CADomain())
}

// FulcioInstanceFromIssuerCN maps a leaf issuer common name to the Fulcio
// instance that uses it for its issuing intermediate.
func FulcioInstanceFromIssuerCN(cn string) (FulcioInstance, bool) {
	switch cn {
	case "Fulcio Intermediate l2":
		return FulcioGitHub, true
	case "sigstore-intermediate":
		return FulcioPublicGood, true
	default:
		return 0, false
	}
}

// InstanceForCert determines the Fulcio instance that issued the leaf.
func InstanceForCert(leaf *x509.Certificate) (FulcioInstance, error) {
	cn, err := IssuerCN(leaf)
	if err != nil {
		return 0, err
	}

	instance, ok := FulcioInstanceFromIssuerCN(cn)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownIssuer, cn)
	}

	return instance, nil
}

// ParseDER decodes a single DER-encoded X.509 certificate.
func ParseDER(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertificateParse, err)
	}
	return cert, nil
}

// ParsePEM decodes the first CERTIFICATE block of a PEM document and returns
// its DER contents.
func ParsePEM(pemBytes []byte) ([]byte, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrCertificateParse)
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: expected CERTIFICATE block, got %s", ErrCertificateParse, block.Type)
	}
	return block.Bytes, nil
}

// IssuerCN extracts the common name from the certificate's issuer. The
// standard parser handles PrintableString and UTF8String attribute values;
// anything it could not turn into a string is interpreted as raw UTF-8.
func IssuerCN(cert *x509.Certificate) (string, error) {
	if cert.Issuer.CommonName != "" {
		return cert.Issuer.CommonName, nil
	}

	for _, atv := range cert.Issuer.Names {
		if !atv.Type.Equal(oidCommonName) {
			continue
		}
		switch value := atv.Value.(type) {
		case string:
			return value, nil
		case []byte:
			return string(value), nil
		}
	}

	return "", fmt.Errorf("%w: common name not found in issuer", ErrCertificateParse)
}

// ValidityError reports a signing time that falls outside the leaf
// certificate's validity window.
type ValidityError struct {
	SigningTime time.Time
	NotBefore   time.Time
	NotAfter    time.Time
}

func (e *ValidityError) Error() string {
	return fmt.Sprintf("%s: %s not in [%s, %s]",
		ErrSigningTimeOutsideValidity,
		e.SigningTime.UTC().Format(time.RFC3339),
		e.NotBefore.UTC().Format(time.RFC3339),
		e.NotAfter.UTC().Format(time.RFC3339),
	)
}

func (e *ValidityError) Unwrap() error {
	return ErrSigningTimeOutsideValidity
}

// VerifyChain fills the bundle's leaf into the trust root's chain and
// verifies every link: the leaf against the first intermediate (or directly
// against the root when there are no intermediates), each intermediate
// against its successor, the last intermediate against the root, and the
// root against itself. It returns the assembled chain and the per-element
// digests.
func VerifyChain(leafDER []byte, trust *Chain) (*Chain, *ChainHashes, error) {
	if len(leafDER) == 0 {
		return nil, nil, fmt.Errorf("%w: no leaf certificate", ErrChainVerificationFailed)
	}
	if trust == nil || len(trust.Root) == 0 {
		return nil, nil, fmt.Errorf("%w: no root certificate in trust chain", ErrChainVerificationFailed)
	}

	chain := &Chain{
		Leaf:          leafDER,
		Intermediates: trust.Intermediates,
		Root:          trust.Root,
	}

	leaf, err := ParseDER(chain.Leaf)
	if err != nil {
		return nil, nil, err
	}

	intermediates := make([]*x509.Certificate, 0, len(chain.Intermediates))
	for _, der := range chain.Intermediates {
		cert, err := ParseDER(der)
		if err != nil {
			return nil, nil, err
		}
		intermediates = append(intermediates, cert)
	}

	root, err := ParseDER(chain.Root)
	if err != nil {
		return nil, nil, err
	}

	if len(intermediates) == 0 {
		if err := verifySignedBy(leaf, root); err != nil {
			return nil, nil, err
		}
	} else {
		if err := verifySignedBy(leaf, intermediates[0]); err != nil {
			return nil, nil, err
		}
		for i := 0; i < len(intermediates)-1; i++ {
			if err := verifySignedBy(intermediates[i], intermediates[i+1]); err != nil {
				return nil, nil, err
			}
		}
		if err := verifySignedBy(intermediates[len(intermediates)-1], root); err != nil {
			return nil, nil, err
		}
	}

	if err := verifySignedBy(root, root); err != nil {
		return nil, nil, fmt.Errorf("%w: root is not self-signed", ErrChainVerificationFailed)
	}

	return chain, chain.Hashes(), nil
}

func verifySignedBy(cert, issuer *x509.Certificate) error {
	if err := issuer.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
		return fmt.Errorf("%w: %q is not signed by %q: %v",
			ErrChainVerificationFailed, cert.Subject.CommonName, issuer.Subject.CommonName, err)
	}
	return nil
}
