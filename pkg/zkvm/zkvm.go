// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package zkvm defines the contract between the verification guest program
// and the hosts that run it inside a zero-knowledge virtual machine.
// Concrete backends (SP1, RISC0) live outside this module; they differ only
// in proving configuration and in how the program is identified on-chain,
// so the interface captures exactly that surface.
package zkvm

import "context"

// VerificationOptions mirrors the verification options in a form that
// serializes cleanly into a guest program's input stream.
type VerificationOptions struct {
	ExpectedDigest   []byte `json:"expectedDigest,omitempty"`
	VerifyRekor      bool   `json:"verifyRekor"`
	AllowInsecureSCT bool   `json:"allowInsecureSct"`
	ExpectedIssuer   string `json:"expectedIssuer,omitempty"`
	ExpectedSubject  string `json:"expectedSubject,omitempty"`
}

// ProverInput is everything the guest program needs to verify a bundle:
// the bundle itself, the options, and the trust material resolved by the
// host ahead of time. Chains travel as PEM so the guest parses them with
// the same code path as the CLI.
type ProverInput struct {
	BundleJSON      []byte              `json:"bundleJson"`
	Options         VerificationOptions `json:"verificationOptions"`
	TrustBundlePEM  []byte              `json:"trustBundlePem"`
	TSACertChainPEM []byte              `json:"tsaCertChainPem,omitempty"`
}

// OIDCIdentity is the identity committed to the public output.
type OIDCIdentity struct {
	Issuer      string `json:"issuer,omitempty"`
	Subject     string `json:"subject,omitempty"`
	WorkflowRef string `json:"workflowRef,omitempty"`
	Repository  string `json:"repository,omitempty"`
	EventName   string `json:"eventName,omitempty"`
}

// CertificateChainHashes carries the SHA-256 digest of each chain element
// in chain order.
type CertificateChainHashes struct {
	Leaf          []byte   `json:"leaf"`
	Intermediates [][]byte `json:"intermediates,omitempty"`
	Root          []byte   `json:"root"`
}

// ProverOutput is the verification result the guest commits as public
// output alongside the proof.
type ProverOutput struct {
	CertificateHashes CertificateChainHashes `json:"certificateHashes"`
	SigningTime       int64                  `json:"signingTime"`
	SubjectDigest     []byte                 `json:"subjectDigest"`
	OIDCIdentity      *OIDCIdentity          `json:"oidcIdentity,omitempty"`
}

// Prover generates zero-knowledge proofs that a bundle verified. Proving
// configuration (local vs network proving, prover keys) belongs to the
// concrete implementation.
type Prover interface {
	// Prove runs the guest program over input and returns the serialized
	// public output and the proof bytes.
	Prove(ctx context.Context, input *ProverInput) (publicOutput []byte, proof []byte, err error)

	// ProgramIdentifier returns the identifier on-chain verifiers need to
	// check proofs from this program: the image ID for RISC0, the verifying
	// key hash for SP1.
	ProgramIdentifier() (string, error)

	// CircuitVersion returns the version of the proving circuit.
	CircuitVersion() string

	// ELF returns the compiled guest program.
	ELF() []byte
}
