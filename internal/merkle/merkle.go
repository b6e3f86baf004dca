// Copyright The zkattest Authors
// SPDX-License-Identifier: Apache-2.0

// Package merkle implements the RFC 6962 hashing primitives needed to check
// a Rekor inclusion proof without talking to the log: the domain-separated
// leaf hash and the bottom-up recomputation of the tree head from a leaf and
// its audit path. Everything here is pure compute over byte slices.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

var ErrInclusionProofFailed = errors.New("inclusion proof verification failed")

// Domain separation prefixes from RFC 6962 §2.1.
const (
	leafHashPrefix = 0x00
	nodeHashPrefix = 0x01
)

// LeafHash returns SHA256(0x00 || data), the hash of a log leaf over its
// canonicalized body.
func LeafHash(data []byte) []byte {
	h := sha256.New()
	h.Write([]byte{leafHashPrefix})
	h.Write(data)
	return h.Sum(nil)
}

func nodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{nodeHashPrefix})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// VerifyInclusion recomputes the tree head for a leaf at logIndex in a tree
// of treeSize entries by folding the audit path, and compares it against
// rootHash. The fold tracks the current index and subtree size; at each step
// the computed node is the left child exactly when its index is even and a
// right sibling exists at this level. An index outside the tree fails before
// any hashing; a proof hash left over once the subtree size has reached one
// fails the fold. A proof that is too short fails the root comparison.
func VerifyInclusion(leafHash []byte, logIndex, treeSize uint64, proofHashes [][]byte, rootHash []byte) error {
	if logIndex >= treeSize {
		return fmt.Errorf("%w: log index %d is outside tree of size %d", ErrInclusionProofFailed, logIndex, treeSize)
	}

	computed := leafHash
	index := logIndex
	size := treeSize

	for _, proofHash := range proofHashes {
		if size <= 1 {
			return fmt.Errorf("%w: proof is longer than the path to the root", ErrInclusionProofFailed)
		}

		if index%2 == 0 && index+1 < size {
			computed = nodeHash(computed, proofHash)
		} else {
			computed = nodeHash(proofHash, computed)
		}

		index /= 2
		size = (size + 1) / 2
	}

	if !bytes.Equal(computed, rootHash) {
		return fmt.Errorf("%w: computed root hash does not match the log root", ErrInclusionProofFailed)
	}

	return nil
}
