package ir

import (
	"cmp"
	"strings"
)

// Equal reports whether two values are equal.
// Integers and floats compare numerically; everything else compares by type
// and content.
func Equal(a, b IRValue) bool {
	if c, ok := Compare(a, b); ok {
		return c == 0
	}

	switch av := a.(type) {
	case IRRegex:
		bv, ok := b.(IRRegex)
		return ok && av == bv
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, exists := bv[k]
			if !exists || !Equal(v, other) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values of the same comparable kind.
// Returns ok=false when the values cannot be ordered against each other
// (different kinds, or arrays/objects/regexes).
func Compare(a, b IRValue) (int, bool) {
	if isNull(a) && isNull(b) {
		return 0, true
	}

	if ai, ok := a.(IRInt); ok {
		if bi, ok := b.(IRInt); ok {
			return cmp.Compare(ai, bi), true
		}
	}
	if an, ok := numeric(a); ok {
		if bn, ok := numeric(b); ok {
			return cmp.Compare(an, bn), true
		}
		return 0, false
	}

	switch av := a.(type) {
	case IRString:
		if bv, ok := b.(IRString); ok {
			return strings.Compare(string(av), string(bv)), true
		}
	case IRBool:
		if bv, ok := b.(IRBool); ok {
			return cmp.Compare(boolRank(bool(av)), boolRank(bool(bv))), true
		}
	case IRTime:
		if bv, ok := b.(IRTime); ok {
			return av.Time().Compare(bv.Time()), true
		}
	}
	return 0, false
}

// SortCompare is a total order used for sorting documents: values of
// different kinds are ordered by kind rank (null < numbers < strings <
// objects < arrays < bools < times), then by Compare within a kind.
func SortCompare(a, b IRValue) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if c, ok := Compare(a, b); ok {
		return c
	}
	return 0
}

func isNull(v IRValue) bool {
	switch v.(type) {
	case nil, IRNull:
		return true
	}
	return false
}

func numeric(v IRValue) (float64, bool) {
	switch n := v.(type) {
	case IRInt:
		return float64(n), true
	case IRFloat:
		return float64(n), true
	}
	return 0, false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// kindRank follows the MongoDB BSON comparison order for the kinds we model.
func kindRank(v IRValue) int {
	switch v.(type) {
	case nil, IRNull:
		return 0
	case IRInt, IRFloat:
		return 1
	case IRString:
		return 2
	case IRObject:
		return 3
	case IRArray:
		return 4
	case IRBool:
		return 5
	case IRTime:
		return 6
	case IRRegex:
		return 7
	default:
		return 8
	}
}
