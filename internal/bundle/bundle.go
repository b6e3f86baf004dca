// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle parses Sigstore attestation bundles. The wire format is the
// protojson encoding of the Sigstore bundle protobuf, so decoding goes
// through protobuf-specs types: field names are camelCase, bytes fields are
// standard padded base64, and 64-bit integers arrive as decimal strings.
// Unknown fields are discarded; structural invariants are checked here so
// downstream verifiers can assume a well-formed bundle.
package bundle

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	ita "github.com/in-toto/attestation/go/v1"
	protobundle "github.com/sigstore/protobuf-specs/gen/pb-go/bundle/v1"
	protocommon "github.com/sigstore/protobuf-specs/gen/pb-go/common/v1"
	protodsse "github.com/sigstore/protobuf-specs/gen/pb-go/dsse"
	protorekor "github.com/sigstore/protobuf-specs/gen/pb-go/rekor/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

var ErrInvalidBundleFormat = errors.New("invalid bundle format")

// MediaTypePrefix gates which bundles the verifier accepts. Versioned media
// types such as application/vnd.dev.sigstore.bundle.v0.3+json share it.
const MediaTypePrefix = "application/vnd.dev.sigstore.bundle"

const digestAlgorithmSHA256 = "sha256"

var unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// Bundle wraps a decoded Sigstore bundle that passed structural validation.
type Bundle struct {
	proto *protobundle.Bundle
}

// NewFromPath reads and parses a bundle from a JSON file.
func NewFromPath(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundleFormat, err)
	}
	return New(data)
}

// New parses a bundle from raw JSON bytes and validates its invariants: the
// media type must carry the Sigstore bundle prefix, a DSSE envelope with at
// least one signature must be present, and the verification material must
// hold the signing certificate.
func New(data []byte) (*Bundle, error) {
	pb := &protobundle.Bundle{}
	if err := unmarshalOptions.Unmarshal(data, pb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundleFormat, err)
	}

	b := &Bundle{proto: pb}
	if err := b.validate(); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Bundle) validate() error {
	if !strings.HasPrefix(b.proto.GetMediaType(), MediaTypePrefix) {
		return fmt.Errorf("%w: unsupported media type: %s", ErrInvalidBundleFormat, b.proto.GetMediaType())
	}

	envelope := b.proto.GetDsseEnvelope()
	if envelope == nil {
		return fmt.Errorf("%w: bundle does not carry a DSSE envelope", ErrInvalidBundleFormat)
	}
	if len(envelope.GetSignatures()) == 0 {
		return fmt.Errorf("%w: no signatures in DSSE envelope", ErrInvalidBundleFormat)
	}

	if len(b.LeafCertificateDER()) == 0 {
		return fmt.Errorf("%w: no signing certificate in verification material", ErrInvalidBundleFormat)
	}

	return nil
}

// MediaType returns the bundle's media type.
func (b *Bundle) MediaType() string {
	return b.proto.GetMediaType()
}

// Envelope returns the bundle's DSSE envelope.
func (b *Bundle) Envelope() *protodsse.Envelope {
	return b.proto.GetDsseEnvelope()
}

// LeafCertificateDER returns the DER bytes of the signing certificate.
// Current bundles carry a single certificate; v0.1 bundles carry a chain
// whose first element is the leaf.
func (b *Bundle) LeafCertificateDER() []byte {
	material := b.proto.GetVerificationMaterial()
	if material == nil {
		return nil
	}

	if cert := material.GetCertificate(); cert != nil {
		return cert.GetRawBytes()
	}

	if chain := material.GetX509CertificateChain(); chain != nil && len(chain.GetCertificates()) > 0 {
		return chain.GetCertificates()[0].GetRawBytes()
	}

	return nil
}

// TlogEntries returns the transparency log entries, if any.
func (b *Bundle) TlogEntries() []*protorekor.TransparencyLogEntry {
	return b.proto.GetVerificationMaterial().GetTlogEntries()
}

// RFC3161Timestamps returns the signed timestamps, if any.
func (b *Bundle) RFC3161Timestamps() []*protocommon.RFC3161SignedTimestamp {
	return b.proto.GetVerificationMaterial().GetTimestampVerificationData().GetRfc3161Timestamps()
}

// Statement decodes the DSSE payload as an in-toto statement. The statement
// must carry a subject with a sha256 digest; a payload without one is
// rejected here rather than surfacing later as a missing digest.
func (b *Bundle) Statement() (*ita.Statement, error) {
	statement := &ita.Statement{}
	if err := unmarshalOptions.Unmarshal(b.Envelope().GetPayload(), statement); err != nil {
		return nil, fmt.Errorf("%w: failed to parse DSSE payload: %v", ErrInvalidBundleFormat, err)
	}

	if _, err := SubjectDigest(statement); err != nil {
		return nil, err
	}

	return statement, nil
}

// SubjectDigest returns the decoded sha256 digest of the first subject that
// carries one. The digest must be 32 bytes of lowercase hex.
func SubjectDigest(statement *ita.Statement) ([]byte, error) {
	for _, subject := range statement.GetSubject() {
		hexDigest, ok := subject.GetDigest()[digestAlgorithmSHA256]
		if !ok {
			continue
		}

		if hexDigest != strings.ToLower(hexDigest) {
			return nil, fmt.Errorf("%w: subject digest is not lowercase hex", ErrInvalidBundleFormat)
		}

		digest, err := hex.DecodeString(hexDigest)
		if err != nil {
			return nil, fmt.Errorf("%w: subject digest is not valid hex: %v", ErrInvalidBundleFormat, err)
		}
		if len(digest) != 32 {
			return nil, fmt.Errorf("%w: subject digest is %d bytes, expected 32", ErrInvalidBundleFormat, len(digest))
		}

		return digest, nil
	}

	return nil, fmt.Errorf("%w: statement has no subject with a sha256 digest", ErrInvalidBundleFormat)
}
