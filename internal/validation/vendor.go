package validation

import (
	"strings"

	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

type vendorMatch int

const (
	vendorExact vendorMatch = iota
	vendorNear
	vendorMismatch
)

// Corporate suffixes that carry no identity information.
var vendorNoise = map[string]bool{
	"inc": true, "incorporated": true, "ltd": true, "limited": true,
	"llc": true, "corp": true, "corporation": true, "co": true,
	"company": true, "gmbh": true, "sa": true, "plc": true,
}

// matchVendor compares two vendor names after normalization. Names
// whose significant tokens fully agree are exact; a majority token
// overlap is a near match; anything less is a mismatch.
func matchVendor(expected, found string) vendorMatch {
	a := vendorTokens(expected)
	b := vendorTokens(found)

	if len(a) == 0 || len(b) == 0 {
		// An unreadable vendor name on either side is at most a near
		// match, never proof of a different vendor.
		return vendorNear
	}

	overlap := 0
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if set[t] {
			overlap++
		}
	}

	min := len(a)
	if len(b) < min {
		min = len(b)
	}

	switch {
	case overlap == len(a) && overlap == len(b):
		return vendorExact
	case overlap*2 >= min:
		return vendorNear
	default:
		return vendorMismatch
	}
}

// vendorTokens lowercases, strips punctuation and drops corporate
// suffixes, returning the identity-bearing tokens of a vendor name.
func vendorTokens(name string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, name)

	var tokens []string
	for _, t := range strings.Fields(cleaned) {
		if !vendorNoise[t] {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// containsItem reports whether any receipt line item plausibly covers
// the given PO item description.
func containsItem(items []entity.LineItem, description string) bool {
	want := vendorTokens(description)
	if len(want) == 0 {
		return true
	}
	for _, item := range items {
		have := make(map[string]bool)
		for _, t := range vendorTokens(item.Description) {
			have[t] = true
		}
		overlap := 0
		for _, t := range want {
			if have[t] {
				overlap++
			}
		}
		if overlap*2 >= len(want) {
			return true
		}
	}
	return false
}
