// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

package certificate

import (
	"crypto/x509"
	"encoding/asn1"
	"unicode/utf8"

	fulciocert "github.com/sigstore/fulcio/pkg/certificate"
)

// OIDCIdentity is the identity Fulcio bound into a leaf certificate at
// signing time. Every field is optional; absent values are empty strings.
type OIDCIdentity struct {
	Issuer      string `json:"issuer,omitempty"`
	Subject     string `json:"subject,omitempty"`
	WorkflowRef string `json:"workflowRef,omitempty"`
	Repository  string `json:"repository,omitempty"`
	EventName   string `json:"eventName,omitempty"`
}

// ExtractOIDCIdentity reads the OIDC identity out of a Fulcio leaf. The
// subject comes from the SAN: an rfc822Name (email) is preferred, with a SAN
// URI (workload identity) as the fallback. The remaining fields come from
// Fulcio's custom extensions, accepting both the current DER-wrapped OIDs
// and the deprecated raw-value GitHub workflow OIDs.
func ExtractOIDCIdentity(cert *x509.Certificate) *OIDCIdentity {
	identity := &OIDCIdentity{}

	if len(cert.EmailAddresses) > 0 {
		identity.Subject = cert.EmailAddresses[0]
	} else if len(cert.URIs) > 0 {
		identity.Subject = cert.URIs[0].String()
	}

	for _, ext := range cert.Extensions {
		switch {
		case ext.Id.Equal(fulciocert.OIDIssuerV2):
			identity.Issuer = extensionString(ext.Value)
		case ext.Id.Equal(fulciocert.OIDSourceRepositoryURI), ext.Id.Equal(fulciocert.OIDGitHubWorkflowRepository):
			identity.Repository = extensionString(ext.Value)
		case ext.Id.Equal(fulciocert.OIDSourceRepositoryRef), ext.Id.Equal(fulciocert.OIDGitHubWorkflowRef):
			identity.WorkflowRef = extensionString(ext.Value)
		case ext.Id.Equal(fulciocert.OIDGitHubWorkflowTrigger):
			identity.EventName = extensionString(ext.Value)
		}
	}

	return identity
}

// extensionString decodes a Fulcio extension value. Current Fulcio versions
// DER-encode the value as a UTF8String, IA5String, or PrintableString; the
// deprecated OIDs carry the raw bytes. One TLV is peeled when the tag
// matches, otherwise the bytes are taken as UTF-8.
func extensionString(value []byte) string {
	if len(value) > 2 {
		switch value[0] {
		case 0x0C, 0x13, 0x16: // UTF8String, PrintableString, IA5String
			var raw asn1.RawValue
			if rest, err := asn1.Unmarshal(value, &raw); err == nil && len(rest) == 0 {
				return string(raw.Bytes)
			}
		}
	}

	if utf8.Valid(value) {
		return string(value)
	}

	return ""
}
