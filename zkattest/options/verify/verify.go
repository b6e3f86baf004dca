// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

package verify

// Options control a single bundle verification.
type Options struct {
	// ExpectedDigest, when set, must match the statement's sha256 subject
	// digest exactly (32 bytes).
	ExpectedDigest []byte

	// VerifyRekor requires a valid transparency log entry. On by default.
	VerifyRekor bool

	// AllowInsecureSCT is reserved; the engine does not verify SCTs yet and
	// the flag has no effect.
	AllowInsecureSCT bool

	// ExpectedIssuer, when set, must match the OIDC issuer recorded in the
	// leaf certificate.
	ExpectedIssuer string

	// ExpectedSubject, when set, must match the OIDC subject recorded in
	// the leaf certificate.
	ExpectedSubject string
}

// Option configures Options.
type Option func(o *Options)

// DefaultOptions returns the defaults: Rekor verification on, no expected
// digest or identity.
func DefaultOptions() *Options {
	return &Options{VerifyRekor: true}
}

// WithExpectedDigest requires the statement's subject digest to equal
// digest.
func WithExpectedDigest(digest []byte) Option {
	return func(o *Options) {
		o.ExpectedDigest = digest
	}
}

// WithoutRekorVerification disables the transparency log check.
func WithoutRekorVerification() Option {
	return func(o *Options) {
		o.VerifyRekor = false
	}
}

// WithExpectedIssuer requires the leaf's OIDC issuer to equal issuer.
func WithExpectedIssuer(issuer string) Option {
	return func(o *Options) {
		o.ExpectedIssuer = issuer
	}
}

// WithExpectedSubject requires the leaf's OIDC subject to equal subject.
func WithExpectedSubject(subject string) Option {
	return func(o *Options) {
		o.ExpectedSubject = subject
	}
}

// WithInsecureSCTAllowed sets the reserved SCT flag.
func WithInsecureSCTAllowed() Option {
	return func(o *Options) {
		o.AllowInsecureSCT = true
	}
}
