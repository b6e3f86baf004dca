// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package signature verifies the raw signatures that hold a Sigstore bundle
// together: ECDSA-P256 signatures from Fulcio-issued leaves and RSA
// signatures found on some roots, over either certificate TBS bytes or the
// DSSE pre-authentication encoding.
package signature

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/secure-systems-lab/go-securesystemslib/dsse"
	protodsse "github.com/sigstore/protobuf-specs/gen/pb-go/dsse"
	sigsig "github.com/sigstore/sigstore/pkg/signature"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Verify checks a DER-encoded signature over message using the given public
// key. ECDSA keys must be on P-256 with SHA-256 digests; RSA signatures are
// tried as PKCS#1 v1.5 first and PSS second, both over SHA-256.
func Verify(pub crypto.PublicKey, message, sig []byte) error {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		verifier, err := sigsig.LoadECDSAVerifier(key, crypto.SHA256)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if err := verifier.VerifySignature(bytes.NewReader(sig), bytes.NewReader(message)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil
	case *rsa.PublicKey:
		digest := sha256.Sum256(message)
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err == nil {
			return nil
		}
		if err := rsa.VerifyPSS(key, crypto.SHA256, digest[:], sig, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported public key type %T", ErrInvalidSignature, pub)
	}
}

// VerifyEnvelope checks the first signature of a DSSE envelope against the
// given public key. The signed message is the pre-authentication encoding of
// the payload type and the raw payload bytes. Additional signatures are
// ignored; they were already required to decode when the bundle was parsed.
func VerifyEnvelope(pub crypto.PublicKey, envelope *protodsse.Envelope) error {
	sigs := envelope.GetSignatures()
	if len(sigs) == 0 {
		return fmt.Errorf("%w: DSSE envelope has no signatures", ErrInvalidSignature)
	}

	pae := dsse.PAE(envelope.GetPayloadType(), envelope.GetPayload())
	return Verify(pub, pae, sigs[0].GetSig())
}
