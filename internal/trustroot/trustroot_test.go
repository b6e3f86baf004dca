// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

package trustroot_test

import (
	"fmt"
	"testing"
	"time"

	protocommon "github.com/sigstore/protobuf-specs/gen/pb-go/common/v1"
	prototrustroot "github.com/sigstore/protobuf-specs/gen/pb-go/trustroot/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/timestamppb"
	"pgregory.net/rapid"

	"github.com/zkattest/zkattest/internal/bundle"
	"github.com/zkattest/zkattest/internal/certificate"
	"github.com/zkattest/zkattest/internal/trustroot"
)

func authority(uri string, start, end *time.Time, certs ...[]byte) *prototrustroot.CertificateAuthority {
	chain := &protocommon.X509CertificateChain{}
	for _, der := range certs {
		chain.Certificates = append(chain.Certificates, &protocommon.X509Certificate{RawBytes: der})
	}

	validFor := &protocommon.TimeRange{}
	if start != nil {
		validFor.Start = timestamppb.New(*start)
	}
	if end != nil {
		validFor.End = timestamppb.New(*end)
	}

	return &prototrustroot.CertificateAuthority{
		Uri:       uri,
		CertChain: chain,
		ValidFor:  validFor,
	}
}

func trustedRootJSON(t *testing.T, root *prototrustroot.TrustedRoot) string {
	t.Helper()

	data, err := protojson.Marshal(root)
	if err != nil {
		t.Fatal(err)
	}

	return string(data)
}

func TestParseJSONL(t *testing.T) {
	start := time.Unix(1690000000, 0).UTC()
	root := &prototrustroot.TrustedRoot{
		MediaType: "application/vnd.dev.sigstore.trustedroot+json;version=0.1",
		CertificateAuthorities: []*prototrustroot.CertificateAuthority{
			authority("https://fulcio.sigstore.dev", &start, nil, []byte("intermediate"), []byte("root")),
		},
	}

	content := fmt.Sprintf("\n%s\n\n%s\n  \n", trustedRootJSON(t, root), trustedRootJSON(t, root))
	roots, err := trustroot.ParseJSONL([]byte(content))
	require.Nil(t, err)
	assert.Len(t, roots, 2)
	assert.Len(t, roots[0].GetCertificateAuthorities(), 1)
}

func TestParseJSONLRejectsEmptyInput(t *testing.T) {
	for _, content := range []string{"", "\n\n  \n"} {
		_, err := trustroot.ParseJSONL([]byte(content))
		assert.ErrorIs(t, err, bundle.ErrInvalidBundleFormat)
	}
}

func TestParseJSONLRejectsInvalidLine(t *testing.T) {
	_, err := trustroot.ParseJSONL([]byte("not a json document"))
	assert.ErrorIs(t, err, bundle.ErrInvalidBundleFormat)
}

func TestSelectCertificateAuthority(t *testing.T) {
	signingTime := time.Unix(1720000000, 0).UTC()

	early := time.Unix(1690000000, 0).UTC()
	late := time.Unix(1700000000, 0).UTC()

	roots := []*prototrustroot.TrustedRoot{
		{
			CertificateAuthorities: []*prototrustroot.CertificateAuthority{
				authority("https://fulcio.githubapp.com", &early, nil, []byte("old-intermediate"), []byte("old-root")),
				authority("https://fulcio.githubapp.com", &late, nil, []byte("new-intermediate"), []byte("new-root")),
				authority("https://fulcio.sigstore.dev", &late, nil, []byte("public-root")),
			},
		},
	}

	// The GitHub CA with the later start wins.
	chain, err := trustroot.SelectCertificateAuthority(roots, certificate.FulcioGitHub, signingTime)
	require.Nil(t, err)
	assert.Empty(t, chain.Leaf)
	assert.Equal(t, [][]byte{[]byte("new-intermediate")}, chain.Intermediates)
	assert.Equal(t, []byte("new-root"), chain.Root)

	// A single-certificate chain is a self-signed root.
	chain, err = trustroot.SelectCertificateAuthority(roots, certificate.FulcioPublicGood, signingTime)
	require.Nil(t, err)
	assert.Empty(t, chain.Leaf)
	assert.Empty(t, chain.Intermediates)
	assert.Equal(t, []byte("public-root"), chain.Root)
}

func TestSelectCertificateAuthorityTieBreak(t *testing.T) {
	signingTime := time.Unix(1720000000, 0).UTC()
	start := time.Unix(1700000000, 0).UTC()

	roots := []*prototrustroot.TrustedRoot{
		{
			CertificateAuthorities: []*prototrustroot.CertificateAuthority{
				authority("https://fulcio.githubapp.com", &start, nil, []byte("first")),
				authority("https://fulcio.githubapp.com", &start, nil, []byte("second")),
			},
		},
	}

	// Equal starts: the first authority in list order wins.
	chain, err := trustroot.SelectCertificateAuthority(roots, certificate.FulcioGitHub, signingTime)
	require.Nil(t, err)
	assert.Equal(t, []byte("first"), chain.Root)
}

func TestSelectCertificateAuthorityWindowing(t *testing.T) {
	start := time.Unix(1690000000, 0).UTC()
	end := time.Unix(1700000000, 0).UTC()

	roots := []*prototrustroot.TrustedRoot{
		{
			CertificateAuthorities: []*prototrustroot.CertificateAuthority{
				authority("https://fulcio.sigstore.dev", &start, &end, []byte("windowed")),
			},
		},
	}

	// Inside the window, including both bounds.
	for _, instant := range []time.Time{start, start.Add(time.Hour), end} {
		_, err := trustroot.SelectCertificateAuthority(roots, certificate.FulcioPublicGood, instant)
		assert.Nil(t, err, "expected authority at %s", instant)
	}

	// Outside the window.
	for _, instant := range []time.Time{start.Add(-time.Second), end.Add(time.Second)} {
		_, err := trustroot.SelectCertificateAuthority(roots, certificate.FulcioPublicGood, instant)
		assert.ErrorIs(t, err, bundle.ErrInvalidBundleFormat, "expected no authority at %s", instant)
	}
}

func TestSelectCertificateAuthorityRequiresStart(t *testing.T) {
	signingTime := time.Unix(1720000000, 0).UTC()

	roots := []*prototrustroot.TrustedRoot{
		{
			CertificateAuthorities: []*prototrustroot.CertificateAuthority{
				authority("https://fulcio.sigstore.dev", nil, nil, []byte("no-start")),
			},
		},
	}

	_, err := trustroot.SelectCertificateAuthority(roots, certificate.FulcioPublicGood, signingTime)
	assert.ErrorIs(t, err, bundle.ErrInvalidBundleFormat)
}

func TestSelectCertificateAuthorityMonotonicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		authorityCount := rapid.IntRange(1, 8).Draw(t, "authorities")
		signingTime := time.Unix(rapid.Int64Range(1000, 1_000_000).Draw(t, "signingTime"), 0).UTC()

		var authorities []*prototrustroot.CertificateAuthority
		var bestStart *time.Time
		var bestIndex int
		for i := 0; i < authorityCount; i++ {
			start := time.Unix(rapid.Int64Range(0, 2_000_000).Draw(t, fmt.Sprintf("start%d", i)), 0).UTC()
			var end *time.Time
			if rapid.Bool().Draw(t, fmt.Sprintf("hasEnd%d", i)) {
				endTime := start.Add(time.Duration(rapid.Int64Range(0, 2_000_000).Draw(t, fmt.Sprintf("end%d", i))) * time.Second)
				end = &endTime
			}

			authorities = append(authorities, authority("https://fulcio.sigstore.dev", &start, end, fmt.Appendf(nil, "ca-%d", i)))

			covered := !signingTime.Before(start) && (end == nil || !signingTime.After(*end))
			if covered && (bestStart == nil || start.After(*bestStart)) {
				bestStart = &start
				bestIndex = i
			}
		}

		roots := []*prototrustroot.TrustedRoot{{CertificateAuthorities: authorities}}
		chain, err := trustroot.SelectCertificateAuthority(roots, certificate.FulcioPublicGood, signingTime)

		if bestStart == nil {
			if err == nil {
				t.Fatal("selector returned an authority with no covering window")
			}
			return
		}

		if err != nil {
			t.Fatalf("selector failed with a covering window: %v", err)
		}
		if string(chain.Root) != fmt.Sprintf("ca-%d", bestIndex) {
			t.Fatalf("selector picked %s, expected ca-%d", chain.Root, bestIndex)
		}
	})
}

func TestSelectTimestampAuthorityChainShapes(t *testing.T) {
	signingTime := time.Unix(1720000000, 0).UTC()
	start := time.Unix(1700000000, 0).UTC()

	tests := map[string]struct {
		certs         [][]byte
		leaf          []byte
		intermediates [][]byte
		root          []byte
	}{
		"single self-signed": {
			certs: [][]byte{[]byte("only")},
			leaf:  []byte("only"),
			root:  []byte("only"),
		},
		"leaf and root": {
			certs: [][]byte{[]byte("leaf"), []byte("root")},
			leaf:  []byte("leaf"),
			root:  []byte("root"),
		},
		"full chain": {
			certs:         [][]byte{[]byte("leaf"), []byte("mid1"), []byte("mid2"), []byte("root")},
			leaf:          []byte("leaf"),
			intermediates: [][]byte{[]byte("mid1"), []byte("mid2")},
			root:          []byte("root"),
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			roots := []*prototrustroot.TrustedRoot{
				{
					TimestampAuthorities: []*prototrustroot.CertificateAuthority{
						authority("https://timestamp.sigstore.dev", &start, nil, test.certs...),
					},
				},
			}

			chain, err := trustroot.SelectTimestampAuthority(roots, certificate.FulcioPublicGood, signingTime)
			require.Nil(t, err)
			assert.Equal(t, test.leaf, chain.Leaf)
			assert.Equal(t, test.intermediates, chain.Intermediates)
			assert.Equal(t, test.root, chain.Root)
		})
	}
}

func TestSelectTimestampAuthorityWrongDomain(t *testing.T) {
	signingTime := time.Unix(1720000000, 0).UTC()
	start := time.Unix(1700000000, 0).UTC()

	roots := []*prototrustroot.TrustedRoot{
		{
			TimestampAuthorities: []*prototrustroot.CertificateAuthority{
				authority("https://timestamp.githubapp.com", &start, nil, []byte("tsa")),
			},
		},
	}

	_, err := trustroot.SelectTimestampAuthority(roots, certificate.FulcioPublicGood, signingTime)
	assert.ErrorIs(t, err, bundle.ErrInvalidBundleFormat)
}
