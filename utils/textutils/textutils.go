// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

// Package textutils provides small text normalization helpers.
package textutils

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LowerASCIIFolding normalizes a string by removing accents, lowercasing, and trimming spaces.
func LowerASCIIFolding(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(s)),
	)

	return s
}

// ContainsFold reports whether needle is a substring of haystack once both are
// folded with LowerASCIIFolding. An empty needle never matches.
func ContainsFold(haystack, needle string) bool {
	needle = LowerASCIIFolding(needle)
	if needle == "" {
		return false
	}

	return strings.Contains(LowerASCIIFolding(haystack), needle)
}

// FormatInt formats an integer with commas for human readability.
func FormatInt(n int64) string {
	in := strconv.FormatInt(n, 10)

	numOfDigits := len(in)
	if n < 0 {
		numOfDigits-- // First character is the - sign (not a digit)
	}

	numOfCommas := (numOfDigits - 1) / 3

	out := make([]byte, len(in)+numOfCommas)
	if n < 0 {
		in, out[0] = in[1:], '-'
	}

	for i, j, k := len(in)-1, len(out)-1, 0; ; i, j = i-1, j-1 {
		out[j] = in[i]
		if i == 0 {
			return string(out)
		}

		if k++; k == 3 {
			j, k = j-1, 0
			out[j] = ','
		}
	}
}

// FormatMeters renders a distance for humans: meters below one kilometer,
// kilometers with one decimal above.
func FormatMeters(m float64) string {
	if m < 1000 {
		return strconv.FormatInt(int64(m+0.5), 10) + " m"
	}

	return strconv.FormatFloat(m/1000, 'f', 1, 64) + " km"
}
