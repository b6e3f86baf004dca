// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutils mints the Fulcio-shaped certificate chains and signed
// bundles the package tests verify against. Everything is generated in
// memory; no fixture touches the network or the Sigstore infrastructure.
package testutils

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"math/big"
	"net/url"
	"testing"
	"time"

	ita "github.com/in-toto/attestation/go/v1"
	"github.com/secure-systems-lab/go-securesystemslib/dsse"
	fulciocert "github.com/sigstore/fulcio/pkg/certificate"
	protobundle "github.com/sigstore/protobuf-specs/gen/pb-go/bundle/v1"
	protocommon "github.com/sigstore/protobuf-specs/gen/pb-go/common/v1"
	protodsse "github.com/sigstore/protobuf-specs/gen/pb-go/dsse"
	protorekor "github.com/sigstore/protobuf-specs/gen/pb-go/rekor/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zkattest/zkattest/internal/certificate"
	"github.com/zkattest/zkattest/internal/merkle"
)

const (
	// PayloadType is the in-toto DSSE payload type used in fixtures.
	PayloadType = "application/vnd.in-toto+json"

	// MediaType is the bundle media type used in fixtures.
	MediaType = "application/vnd.dev.sigstore.bundle.v0.3+json"

	// IntegratedTime is the fixture log integration instant,
	// 2024-11-20T04:46:13Z, inside the fixture leaf's validity window.
	IntegratedTime = int64(1732077973)

	// OIDCIssuer and SubjectURI are the identity values baked into fixture
	// leaves.
	OIDCIssuer = "https://token.actions.githubusercontent.com"
	SubjectURI = "https://github.com/example/project/.github/workflows/release.yml@refs/heads/main"

	// Repository, WorkflowRef, and EventName fill the Fulcio extensions.
	Repository  = "https://github.com/example/project"
	WorkflowRef = "refs/heads/main"
	EventName   = "push"
)

// CanonicalizedBody is the fixture transparency log entry body.
var CanonicalizedBody = []byte("zkattest test log entry")

// ArtifactDigest returns the sha256 digest fixtures attest to.
func ArtifactDigest() []byte {
	digest := sha256.Sum256([]byte("zkattest test artifact"))
	return digest[:]
}

// PKI is a generated three-certificate hierarchy shaped like a Fulcio
// deployment: a self-signed root, an issuing intermediate, and a short-lived
// signing leaf carrying Fulcio's identity extensions.
type PKI struct {
	RootDER         []byte
	IntermediateDER []byte
	LeafDER         []byte

	RootKey         *ecdsa.PrivateKey
	IntermediateKey *ecdsa.PrivateKey
	LeafKey         *ecdsa.PrivateKey

	NotBefore time.Time
	NotAfter  time.Time
}

// CreateTestPKI generates a hierarchy whose intermediate uses the
// public-good Fulcio issuer common name.
func CreateTestPKI(t *testing.T) *PKI {
	t.Helper()
	return CreateTestPKIWithIssuerCN(t, "sigstore-intermediate")
}

// CreateTestPKIWithIssuerCN generates a hierarchy whose intermediate carries
// the given common name, which becomes the leaf's issuer CN.
func CreateTestPKIWithIssuerCN(t *testing.T, issuerCN string) *PKI {
	t.Helper()

	notBefore := time.Date(2024, 11, 20, 4, 30, 0, 0, time.UTC)
	notAfter := notBefore.Add(30 * time.Minute)

	rootKey := generateKey(t)
	intermediateKey := generateKey(t)
	leafKey := generateKey(t)

	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "zkattest test root", Organization: []string{"zkattest"}},
		NotBefore:             notBefore.Add(-24 * time.Hour),
		NotAfter:              notAfter.Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}
	rootCert, rootDER := createCert(t, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)

	intermediateTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: issuerCN, Organization: []string{"zkattest"}},
		NotBefore:             notBefore.Add(-12 * time.Hour),
		NotAfter:              notAfter.Add(12 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	intermediateCert, intermediateDER := createCert(t, intermediateTemplate, rootCert, &intermediateKey.PublicKey, rootKey)

	subjectURI, err := url.Parse(SubjectURI)
	if err != nil {
		t.Fatal(err)
	}

	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		URIs:         []*url.URL{subjectURI},
		ExtraExtensions: []pkix.Extension{
			{Id: fulciocert.OIDIssuerV2, Value: derString(t, OIDCIssuer)},
			{Id: fulciocert.OIDSourceRepositoryURI, Value: derString(t, Repository)},
			{Id: fulciocert.OIDSourceRepositoryRef, Value: derString(t, WorkflowRef)},
			// The deprecated workflow trigger extension carries a raw value.
			{Id: fulciocert.OIDGitHubWorkflowTrigger, Value: []byte(EventName)},
		},
	}
	_, leafDER := createCert(t, leafTemplate, intermediateCert, &leafKey.PublicKey, intermediateKey)

	return &PKI{
		RootDER:         rootDER,
		IntermediateDER: intermediateDER,
		LeafDER:         leafDER,
		RootKey:         rootKey,
		IntermediateKey: intermediateKey,
		LeafKey:         leafKey,
		NotBefore:       notBefore,
		NotAfter:        notAfter,
	}
}

// TrustChain returns the hierarchy as a Fulcio trust root: intermediates and
// root, with the leaf slot left for the bundle.
func (p *PKI) TrustChain() *certificate.Chain {
	return &certificate.Chain{
		Intermediates: [][]byte{p.IntermediateDER},
		Root:          p.RootDER,
	}
}

// Statement returns an in-toto statement attesting to digest.
func Statement(t *testing.T, digest []byte) *ita.Statement {
	t.Helper()

	predicate, err := structpb.NewStruct(map[string]any{
		"buildType": "https://github.com/actions/runner",
	})
	if err != nil {
		t.Fatal(err)
	}

	return &ita.Statement{
		Type: ita.StatementTypeUri,
		Subject: []*ita.ResourceDescriptor{
			{
				Name:   "artifact.tar.gz",
				Digest: map[string]string{"sha256": hex.EncodeToString(digest)},
			},
		},
		PredicateType: "https://slsa.dev/provenance/v1",
		Predicate:     predicate,
	}
}

// SignedEnvelope wraps statement in a DSSE envelope signed by the leaf key.
func (p *PKI) SignedEnvelope(t *testing.T, statement *ita.Statement) *protodsse.Envelope {
	t.Helper()

	payload, err := protojson.Marshal(statement)
	if err != nil {
		t.Fatal(err)
	}

	pae := dsse.PAE(PayloadType, payload)
	digest := sha256.Sum256(pae)
	sig, err := ecdsa.SignASN1(rand.Reader, p.LeafKey, digest[:])
	if err != nil {
		t.Fatal(err)
	}

	return &protodsse.Envelope{
		Payload:     payload,
		PayloadType: PayloadType,
		Signatures:  []*protodsse.Signature{{Sig: sig}},
	}
}

// TlogEntry returns a transparency log entry for a single-leaf tree: the
// entry body hashes directly to the log root, so the inclusion proof is
// empty and self-consistent.
func TlogEntry(t *testing.T) *protorekor.TransparencyLogEntry {
	t.Helper()

	leafHash := merkle.LeafHash(CanonicalizedBody)

	return &protorekor.TransparencyLogEntry{
		LogIndex:       0,
		LogId:          &protocommon.LogId{KeyId: []byte("zkattest-test-log")},
		KindVersion:    &protorekor.KindVersion{Kind: "dsse", Version: "0.0.1"},
		IntegratedTime: IntegratedTime,
		InclusionProof: &protorekor.InclusionProof{
			LogIndex: 0,
			TreeSize: 1,
			RootHash: leafHash,
			Hashes:   nil,
		},
		InclusionPromise: &protorekor.InclusionPromise{
			SignedEntryTimestamp: []byte("unverified-set"),
		},
		CanonicalizedBody: CanonicalizedBody,
	}
}

// Bundle assembles a complete, verifiable bundle proto attesting to the
// fixture artifact digest. Tests mutate the proto before marshaling to
// exercise failure paths.
func (p *PKI) Bundle(t *testing.T) *protobundle.Bundle {
	t.Helper()

	statement := Statement(t, ArtifactDigest())
	envelope := p.SignedEnvelope(t, statement)

	return &protobundle.Bundle{
		MediaType: MediaType,
		VerificationMaterial: &protobundle.VerificationMaterial{
			Content: &protobundle.VerificationMaterial_Certificate{
				Certificate: &protocommon.X509Certificate{RawBytes: p.LeafDER},
			},
			TlogEntries: []*protorekor.TransparencyLogEntry{TlogEntry(t)},
		},
		Content: &protobundle.Bundle_DsseEnvelope{DsseEnvelope: envelope},
	}
}

// BundleJSON marshals a bundle proto to its JSON wire form.
func BundleJSON(t *testing.T, pb *protobundle.Bundle) []byte {
	t.Helper()

	data, err := protojson.Marshal(pb)
	if err != nil {
		t.Fatal(err)
	}

	return data
}

// SignedBundleJSON assembles and marshals a complete verifiable bundle.
func (p *PKI) SignedBundleJSON(t *testing.T) []byte {
	t.Helper()
	return BundleJSON(t, p.Bundle(t))
}

func generateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	return key
}

func createCert(t *testing.T, template, parent *x509.Certificate, pub crypto.PublicKey, signer crypto.Signer) (*x509.Certificate, []byte) {
	t.Helper()

	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		t.Fatal(err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}

	return cert, der
}

func derString(t *testing.T, value string) []byte {
	t.Helper()

	der, err := asn1.MarshalWithParams(value, "utf8")
	if err != nil {
		t.Fatal(err)
	}

	return der
}
