// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zkattest/zkattest/internal/certificate"
	"github.com/zkattest/zkattest/internal/fetcher"
	"github.com/zkattest/zkattest/internal/trustroot"
	"github.com/zkattest/zkattest/zkattest"
	verifyopts "github.com/zkattest/zkattest/zkattest/options/verify"
)

type options struct {
	trustedRootPath string
	expectedDigest  string
	expectedIssuer  string
	expectedSubject string
	skipRekor       bool
}

func (o *options) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&o.trustedRootPath,
		"trusted-root",
		"",
		"path to trusted roots in JSONL format; when unset, the Fulcio trust bundle is fetched over HTTP",
	)

	cmd.Flags().StringVar(
		&o.expectedDigest,
		"digest",
		"",
		"expected sha256 subject digest in hex",
	)

	cmd.Flags().StringVar(
		&o.expectedIssuer,
		"certificate-oidc-issuer",
		"",
		"expected OIDC issuer recorded in the signing certificate",
	)

	cmd.Flags().StringVar(
		&o.expectedSubject,
		"certificate-identity",
		"",
		"expected OIDC subject recorded in the signing certificate",
	)

	cmd.Flags().BoolVar(
		&o.skipRekor,
		"skip-rekor",
		false,
		"skip transparency log verification",
	)
}

func (o *options) Run(cmd *cobra.Command, args []string) error {
	bundleJSON, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	instance, err := zkattest.InstanceForBundle(bundleJSON)
	if err != nil {
		return err
	}

	signingTime, err := zkattest.ResolveSigningTime(bundleJSON)
	if err != nil {
		return err
	}

	fulcioChain, tsaChain, err := o.resolveTrustChains(cmd, instance, signingTime)
	if err != nil {
		return err
	}

	opts := []verifyopts.Option{}
	if o.expectedDigest != "" {
		digest, err := hex.DecodeString(o.expectedDigest)
		if err != nil {
			return fmt.Errorf("invalid --digest value: %w", err)
		}
		opts = append(opts, verifyopts.WithExpectedDigest(digest))
	}
	if o.expectedIssuer != "" {
		opts = append(opts, verifyopts.WithExpectedIssuer(o.expectedIssuer))
	}
	if o.expectedSubject != "" {
		opts = append(opts, verifyopts.WithExpectedSubject(o.expectedSubject))
	}
	if o.skipRekor {
		opts = append(opts, verifyopts.WithoutRekorVerification())
	}

	verifier := zkattest.NewAttestationVerifier()
	result, err := verifier.VerifyBundleBytes(bundleJSON, fulcioChain, tsaChain, opts...)
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

// resolveTrustChains selects the Fulcio chain and, when the supplied trusted
// roots hold a matching timestamp authority, the TSA chain; it fetches only
// the Fulcio trust bundle over HTTP when no roots were supplied.
func (o *options) resolveTrustChains(cmd *cobra.Command, instance certificate.FulcioInstance, signingTime time.Time) (*certificate.Chain, *certificate.Chain, error) {
	if o.trustedRootPath == "" {
		fulcioChain, err := fetcher.FulcioTrustBundle(cmd.Context(), instance)
		if err != nil {
			return nil, nil, err
		}
		return fulcioChain, nil, nil
	}

	content, err := os.ReadFile(o.trustedRootPath)
	if err != nil {
		return nil, nil, err
	}

	roots, err := trustroot.ParseJSONL(content)
	if err != nil {
		return nil, nil, err
	}

	fulcioChain, err := trustroot.SelectCertificateAuthority(roots, instance, signingTime)
	if err != nil {
		return nil, nil, err
	}

	tsaChain, err := trustroot.SelectTimestampAuthority(roots, instance, signingTime)
	if err != nil {
		// The TSA chain only matters for bundles carrying an RFC 3161
		// timestamp; a trusted root without TSAs is still usable.
		tsaChain = nil
	}

	return fulcioChain, tsaChain, nil
}

func printResult(result *zkattest.VerificationResult) {
	fmt.Println("Verification successful!")
	fmt.Println()

	fmt.Println("Certificate chain hashes:")
	fmt.Printf("  leaf:   %x\n", result.CertificateHashes.Leaf)
	for i, hash := range result.CertificateHashes.Intermediates {
		fmt.Printf("  int[%d]: %x\n", i, hash)
	}
	fmt.Printf("  root:   %x\n", result.CertificateHashes.Root)
	fmt.Println()

	fmt.Printf("Signing time:   %s\n", result.SigningTime.UTC().Format(time.RFC3339))
	fmt.Printf("Subject digest: sha256:%x\n", result.SubjectDigest)

	identity := result.OIDCIdentity
	if identity == nil {
		return
	}

	fmt.Println()
	fmt.Println("OIDC identity:")
	if identity.Issuer != "" {
		fmt.Printf("  issuer:       %s\n", identity.Issuer)
	}
	if identity.Subject != "" {
		fmt.Printf("  subject:      %s\n", identity.Subject)
	}
	if identity.Repository != "" {
		fmt.Printf("  repository:   %s\n", identity.Repository)
	}
	if identity.WorkflowRef != "" {
		fmt.Printf("  workflow ref: %s\n", identity.WorkflowRef)
	}
	if identity.EventName != "" {
		fmt.Printf("  event:        %s\n", identity.EventName)
	}
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:               "verify <bundle-path>",
		Short:             "Verify a Sigstore attestation bundle",
		Args:              cobra.ExactArgs(1),
		RunE:              o.Run,
		DisableAutoGenTag: true,
	}
	o.AddFlags(cmd)

	return cmd
}
