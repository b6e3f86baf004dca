// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package transparency verifies a bundle's transparency log material: the
// RFC 6962 inclusion proof over the entry's canonicalized body and, when an
// inclusion promise is present instead of or alongside a proof, a structural
// check of the signed entry timestamp. The SET's signature itself is not
// verified; doing so would require binding the log's public key through the
// trusted root.
package transparency

import (
	"errors"
	"fmt"

	"github.com/zkattest/zkattest/internal/bundle"
	"github.com/zkattest/zkattest/internal/merkle"
)

var (
	ErrNoRekorEntry                = errors.New("no transparency log entry in bundle")
	ErrInvalidEntryHash            = errors.New("invalid transparency log entry hash material")
	ErrSignedEntryTimestampInvalid = errors.New("invalid signed entry timestamp")
)

// VerifyLog checks the bundle's first transparency log entry. With skip set
// the check is bypassed entirely; callers opt out via verification options.
func VerifyLog(b *bundle.Bundle, skip bool) error {
	if skip {
		return nil
	}

	entries := b.TlogEntries()
	if len(entries) == 0 {
		return ErrNoRekorEntry
	}

	entry := entries[0]
	leafHash := merkle.LeafHash(entry.GetCanonicalizedBody())

	if proof := entry.GetInclusionProof(); proof != nil {
		logIndex := proof.GetLogIndex()
		treeSize := proof.GetTreeSize()
		if logIndex < 0 || treeSize < 1 {
			return fmt.Errorf("%w: log index %d, tree size %d", merkle.ErrInclusionProofFailed, logIndex, treeSize)
		}

		rootHash := proof.GetRootHash()
		if len(rootHash) == 0 {
			return fmt.Errorf("%w: inclusion proof has no root hash", ErrInvalidEntryHash)
		}

		if err := merkle.VerifyInclusion(leafHash, uint64(logIndex), uint64(treeSize), proof.GetHashes(), rootHash); err != nil {
			return err
		}
	}

	if promise := entry.GetInclusionPromise(); promise != nil {
		if len(promise.GetSignedEntryTimestamp()) == 0 {
			return ErrSignedEntryTimestampInvalid
		}
	}

	return nil
}
