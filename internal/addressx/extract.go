// Package addressx implements the address extractor of §4.4: classifying
// candidate strings pulled out of chat messages as EVM, Solana, or unknown,
// and de-duplicating them while preserving input order. Grounded on the
// teacher's use of github.com/ethereum/go-ethereum's common package for EVM
// address handling (internal/providers/defi/thegraph_provider.go references
// common.Address) generalized here into a standalone structural+checksum
// check, plus github.com/btcsuite/btcd/btcutil/base58 for Solana decoding
// (pulled in via the pack's leanlp-BTC-coinjoin dependency tree, the only
// base58 implementation available across the examples).
package addressx

import (
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

var evmPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var base58Pattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

// structurallyPlausible is the §4.4 step-1 length/alphabet gate: anything too
// short, too long, or containing characters outside the base58/hex alphabets
// is discarded before classification is attempted.
func structurallyPlausible(s string) bool {
	if evmPattern.MatchString(s) {
		return true
	}
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	return base58Pattern.MatchString(s)
}

// Extract classifies each candidate mention into an Address, in input order,
// de-duplicating case-insensitively within the call (§4.4 invariant).
func Extract(mentions []string) []domainmodel.Address {
	seen := map[string]bool{}
	out := make([]domainmodel.Address, 0, len(mentions))

	for _, raw := range mentions {
		candidate := strings.TrimSpace(raw)
		if candidate == "" {
			continue
		}
		key := strings.ToLower(candidate)
		if seen[key] {
			continue
		}

		if !structurallyPlausible(candidate) {
			continue
		}
		seen[key] = true

		out = append(out, classify(candidate))
	}
	return out
}

// classify applies §4.4 step 2-3: EVM iff the address matches the 0x+40-hex
// pattern (checksum mismatch is advisory only and does not reject it),
// Solana iff length is in [32,44] and the string base58-decodes to exactly
// 32 bytes, else unknown.
func classify(candidate string) domainmodel.Address {
	if evmPattern.MatchString(candidate) {
		addr := common.HexToAddress(candidate)
		checksummed := addr.Hex() == candidate
		_ = checksummed // advisory only; does not affect Valid
		return domainmodel.Address{Literal: candidate, Chain: domainmodel.ChainEVM, Valid: true}
	}

	if len(candidate) >= 32 && len(candidate) <= 44 {
		decoded := base58.Decode(candidate)
		if len(decoded) == 32 {
			return domainmodel.Address{Literal: candidate, Chain: domainmodel.ChainSolana, Valid: true}
		}
	}

	return domainmodel.Address{Literal: candidate, Chain: domainmodel.ChainUnknown, Valid: false}
}
