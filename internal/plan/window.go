package plan

import (
	"fmt"
	"time"
)

// WindowType selects how records are bucketed in time.
type WindowType string

const (
	WindowNone     WindowType = "NONE"
	WindowTumbling WindowType = "TUMBLING"
	WindowHopping  WindowType = "HOPPING"
	WindowSession  WindowType = "SESSION"
)

// WindowPolicy is the windowing of an aggregate or a stream-stream join.
// The zero value is no window.
type WindowPolicy struct {
	Type    WindowType
	Size    time.Duration
	Advance time.Duration
	Gap     time.Duration

	// Grace is how long late records are still accepted after a window closes.
	Grace time.Duration
}

// NoWindow is the unwindowed policy.
var NoWindow = WindowPolicy{Type: WindowNone}

// Tumbling returns fixed, non-overlapping windows of the given size.
func Tumbling(size time.Duration) WindowPolicy {
	return WindowPolicy{Type: WindowTumbling, Size: size}
}

// Hopping returns fixed windows of the given size starting every advance.
func Hopping(size, advance time.Duration) WindowPolicy {
	return WindowPolicy{Type: WindowHopping, Size: size, Advance: advance}
}

// Session returns windows closed by a gap of inactivity.
func Session(gap time.Duration) WindowPolicy {
	return WindowPolicy{Type: WindowSession, Gap: gap}
}

// WithGrace returns a copy of w with the grace period set.
func (w WindowPolicy) WithGrace(grace time.Duration) WindowPolicy {
	w.Grace = grace
	return w
}

// Windowed reports whether w buckets records at all.
func (w WindowPolicy) Windowed() bool {
	return w.Type != "" && w.Type != WindowNone
}

func (w WindowPolicy) normalize() WindowPolicy {
	if w.Type == "" {
		w.Type = WindowNone
	}
	return w
}

// Validate checks durations are consistent with the window type. Durations
// are kept at millisecond precision, so finer ones are rejected.
func (w WindowPolicy) Validate() error {
	if w.Grace < 0 {
		return fmt.Errorf("window grace must not be negative, got %s", w.Grace)
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{{"size", w.Size}, {"advance", w.Advance}, {"gap", w.Gap}, {"grace", w.Grace}} {
		if d.v%time.Millisecond != 0 {
			return fmt.Errorf("window %s %s is not a whole number of milliseconds", d.name, d.v)
		}
	}
	switch w.normalize().Type {
	case WindowNone:
		if w.Size != 0 || w.Advance != 0 || w.Gap != 0 || w.Grace != 0 {
			return fmt.Errorf("unwindowed policy must not set durations")
		}
	case WindowTumbling:
		if w.Size <= 0 {
			return fmt.Errorf("tumbling window size must be positive, got %s", w.Size)
		}
		if w.Advance != 0 || w.Gap != 0 {
			return fmt.Errorf("tumbling window takes only a size")
		}
	case WindowHopping:
		if w.Size <= 0 {
			return fmt.Errorf("hopping window size must be positive, got %s", w.Size)
		}
		if w.Advance <= 0 || w.Advance > w.Size {
			return fmt.Errorf("hopping window advance must be in (0, %s], got %s", w.Size, w.Advance)
		}
		if w.Gap != 0 {
			return fmt.Errorf("hopping window takes no gap")
		}
	case WindowSession:
		if w.Gap <= 0 {
			return fmt.Errorf("session window gap must be positive, got %s", w.Gap)
		}
		if w.Size != 0 || w.Advance != 0 {
			return fmt.Errorf("session window takes only a gap")
		}
	default:
		return fmt.Errorf("unknown window type %q", w.Type)
	}
	return nil
}

func (w WindowPolicy) String() string {
	var s string
	switch w.normalize().Type {
	case WindowNone:
		return "NONE"
	case WindowTumbling:
		s = fmt.Sprintf("TUMBLING(%s)", w.Size)
	case WindowHopping:
		s = fmt.Sprintf("HOPPING(%s, %s)", w.Size, w.Advance)
	case WindowSession:
		s = fmt.Sprintf("SESSION(%s)", w.Gap)
	default:
		s = string(w.Type)
	}
	if w.Grace > 0 {
		s += fmt.Sprintf(" GRACE %s", w.Grace)
	}
	return s
}

// EmitMode selects when an aggregate publishes results.
type EmitMode string

const (
	// EmitChanges publishes every update as a changelog record.
	EmitChanges EmitMode = "CHANGES"

	// EmitFinal publishes once per window after it closes.
	EmitFinal EmitMode = "FINAL"
)

// JoinType is the join flavour.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinOuter JoinType = "OUTER"
)
