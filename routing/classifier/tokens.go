// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package classifier

import "unicode"

// Characters-per-token ratios. Diacritic-dense text tokenizes into more
// pieces, so it gets a smaller divisor. A cheap proxy for tokenizer
// behavior, not exact.
const (
	charsPerTokenPlain     = 4
	charsPerTokenDiacritic = 3

	// diacriticDenseRatio is the fraction of non-ASCII letters above
	// which text counts as diacritic-dense.
	diacriticDenseRatio = 0.05
)

// EstimateTokenCount approximates the token count of text from its
// character count: ~4 characters per token for low-diacritic text,
// ~3 characters per token for diacritic-dense text. Empty input returns 0.
//
// This never calls an external tokenizer; it must stay synchronous and
// free so it can run on every request.
func EstimateTokenCount(text string) int {
	if text == "" {
		return 0
	}

	total := 0
	nonASCII := 0
	for _, r := range text {
		total++
		if r > unicode.MaxASCII {
			nonASCII++
		}
	}

	charsPerToken := charsPerTokenPlain
	if float64(nonASCII)/float64(total) > diacriticDenseRatio {
		charsPerToken = charsPerTokenDiacritic
	}

	// Round up so short non-empty text still counts as at least one token.
	return (total + charsPerToken - 1) / charsPerToken
}
