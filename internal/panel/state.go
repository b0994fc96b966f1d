// Package panel maps vertical drag gestures on a bottom panel to one of
// three resting positions and animates the settle with a damped spring.
package panel

import (
	"errors"
	"math"
)

// SnapState is a discrete resting position of the panel.
type SnapState string

const (
	StateHidden    SnapState = "hidden"
	StateCollapsed SnapState = "collapsed"
	StateExpanded  SnapState = "expanded"
)

func (s SnapState) String() string { return string(s) }

const DefaultHideThreshold = 50

// Layout positions the panel. Offsets grow downward: collapsed rests at 0,
// hidden at Height and expanded at ExpandedOffset, which is negative.
type Layout struct {
	Height         float64
	ExpandedOffset float64
	// HideThreshold is the downward drag distance that must be exceeded
	// for a release to hide the panel.
	HideThreshold float64
}

var (
	ErrInvalidHeight         = errors.New("panel height must be positive")
	ErrInvalidExpandedOffset = errors.New("panel expanded offset must be negative")
)

// Validate checks the geometry. A zero HideThreshold is filled in by
// Normalize rather than rejected.
func (l Layout) Validate() error {
	var errs []error
	if !(l.Height > 0) {
		errs = append(errs, ErrInvalidHeight)
	}
	if !(l.ExpandedOffset < 0) {
		errs = append(errs, ErrInvalidExpandedOffset)
	}
	return errors.Join(errs...)
}

// Normalize fills in the default threshold and forces the expanded offset
// upward.
func (l Layout) Normalize() Layout {
	if l.HideThreshold <= 0 {
		l.HideThreshold = DefaultHideThreshold
	}
	if l.ExpandedOffset > 0 {
		l.ExpandedOffset = -l.ExpandedOffset
	}
	return l
}

// Rest is the offset the panel settles at in state s.
func (l Layout) Rest(s SnapState) float64 {
	switch s {
	case StateHidden:
		return l.Height
	case StateExpanded:
		return l.ExpandedOffset
	default:
		return 0
	}
}

// Clamp bounds an offset to [ExpandedOffset, Height].
func (l Layout) Clamp(offset float64) float64 {
	return math.Max(l.ExpandedOffset, math.Min(l.Height, offset))
}

// ReleaseTarget decides where a drag released after dy units of downward
// travel settles. A release never expands.
func (l Layout) ReleaseTarget(dy float64) SnapState {
	if dy > l.HideThreshold {
		return StateHidden
	}
	return StateCollapsed
}
