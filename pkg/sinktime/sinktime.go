// Package sinktime holds the logical-time primitives shared by every sink
// component: the totally ordered timestamp, the signed multiplicity, and
// the single-dimensional frontier.
package sinktime

import (
	"errors"
	"fmt"
)

// Timestamp is a totally ordered, monotonic logical time. Only
// single-dimensional time is supported; there is no multi-dimensional
// Timestamp type in this package by design.
type Timestamp uint64

// TimestampMin is the least element of Timestamp.
const TimestampMin Timestamp = 0

// Diff is a signed multiplicity attached to an update. The sink rejects
// negative diffs as a fatal programming error and silently discards zero
// diffs; this package only defines the type, callers enforce the contract.
type Diff int64

// ErrMultiDimensionalFrontier is the sentinel wrapped by the panic raised
// when a Frontier holding more than one element is collapsed to a single
// Timestamp. Single-dimensional time is a hard invariant of this sink.
var ErrMultiDimensionalFrontier = errors.New("sinktime: frontier has more than one element")

// Frontier is a set of incomparable timestamps representing a lower bound
// on times not yet seen. For single-dimensional time a frontier is either
// empty (the stream has closed, "+infinity") or a singleton.
type Frontier struct {
	elems []Timestamp
}

// EmptyFrontier is the closed frontier (no further times will arrive).
func EmptyFrontier() Frontier { return Frontier{} }

// SingleFrontier builds a frontier holding exactly t.
func SingleFrontier(t Timestamp) Frontier { return Frontier{elems: []Timestamp{t}} }

// FrontierFromElements builds a frontier from an arbitrary slice of
// elements as received from a host. It does not validate cardinality;
// validation happens at Single(), which is the one place this invariant
// must be enforced per spec.
func FrontierFromElements(elems []Timestamp) Frontier {
	return Frontier{elems: append([]Timestamp(nil), elems...)}
}

// IsEmpty reports whether the frontier is closed.
func (f Frontier) IsEmpty() bool { return len(f.elems) == 0 }

// Len returns the number of elements currently held by the frontier.
func (f Frontier) Len() int { return len(f.elems) }

// Single collapses the frontier to its one element. It panics if the
// frontier holds more than one element: per spec, multi-dimensional time
// is a fatal, not a recoverable, condition.
func (f Frontier) Single() (Timestamp, bool) {
	switch len(f.elems) {
	case 0:
		return 0, false
	case 1:
		return f.elems[0], true
	default:
		panic(fmt.Errorf("%w: %v", ErrMultiDimensionalFrontier, f.elems))
	}
}

// LessThan reports whether every element of the frontier is less than t.
// An empty frontier (closed) is vacuously not less than anything, matching
// the antichain convention used by the original dataflow: "+infinity" is
// never less than a finite time.
func (f Frontier) LessThan(t Timestamp) bool {
	v, ok := f.Single()
	return ok && v < t
}

// LessEqual reports whether every element of the frontier is <= t. Like
// LessThan, it returns false for an empty (closed) frontier.
func (f Frontier) LessEqual(t Timestamp) bool {
	v, ok := f.Single()
	return ok && v <= t
}

// Meet computes the greatest lower bound of two frontiers. For
// single-dimensional time this is simply the minimum of present elements;
// the meet of two empty (closed) frontiers is itself empty ("+infinity").
func (f Frontier) Meet(other Frontier) Frontier {
	a, aok := f.Single()
	b, bok := other.Single()
	switch {
	case !aok && !bok:
		return EmptyFrontier()
	case !aok:
		return SingleFrontier(b)
	case !bok:
		return SingleFrontier(a)
	case a < b:
		return SingleFrontier(a)
	default:
		return SingleFrontier(b)
	}
}

// MeetAll folds Meet across a slice of frontiers, returning the empty
// frontier ("+infinity") for an empty slice -- the meet of an empty set of
// durability frontiers blocks nothing.
func MeetAll(frontiers []Frontier) Frontier {
	acc := EmptyFrontier()
	for _, fr := range frontiers {
		acc = acc.Meet(fr)
	}
	return acc
}

// SaturatingSub returns t-n, clamped at TimestampMin. With n=1 it is the
// "strict = min_frontier - 1 (saturating)" rule used to derive progress
// markers from a frontier that is an exclusive lower bound.
func (t Timestamp) SaturatingSub(n uint64) Timestamp {
	if uint64(t) < n {
		return TimestampMin
	}
	return Timestamp(uint64(t) - n)
}
