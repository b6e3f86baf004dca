// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

package root

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/zkattest/zkattest/internal/cmd/verify"
	"github.com/zkattest/zkattest/internal/cmd/version"
)

type options struct {
	verbose bool
}

func (o *options) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(
		&o.verbose,
		"verbose",
		false,
		"enable verbose logging",
	)
}

func (o *options) PreRunE(_ *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	return nil
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:               "zkattest",
		Short:             "Verify Sigstore attestation bundles against a pinned root of trust",
		Long:              `zkattest verifies Sigstore attestation bundles: DSSE-signed in-toto statements produced by keyless signing with a short-lived Fulcio certificate. Verification checks the certificate chain, the signing time, the DSSE signature, and the transparency log inclusion proof, entirely offline when a trusted root is supplied. The same verification pipeline runs unchanged inside a zkVM guest.`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: o.PreRunE,
	}

	o.AddFlags(cmd)

	cmd.AddCommand(verify.New())
	cmd.AddCommand(version.New())

	return cmd
}
