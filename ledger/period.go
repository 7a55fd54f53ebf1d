package ledger

import (
	"fmt"
	"strings"
)

// =============================================================================
// PERIOD - Half-open date interval used by every range query
// =============================================================================

// Period is the half-open interval [Start, End). A record dated exactly End
// is outside the period.
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if Start <= d < End.
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && d.Before(p.End)
}

// Days returns the number of days in the period (0 when empty or inverted).
func (p Period) Days() int {
	if !p.Start.Before(p.End) {
		return 0
	}
	return DaysBetween(p.Start, p.End)
}

// Valid reports whether Start < End.
func (p Period) Valid() bool { return p.Start.Before(p.End) }

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + ")"
}


// =============================================================================
// PRESETS - Named periods relative to "today"
// =============================================================================

type Preset string

const (
	PresetToday     Preset = "today"
	PresetThisWeek  Preset = "this-week"
	PresetThisMonth Preset = "this-month"
	PresetLastMonth Preset = "last-month"
	PresetCustom    Preset = "custom"
)

// Presets lists the accepted preset names in display order.
var Presets = []Preset{PresetToday, PresetThisWeek, PresetThisMonth, PresetLastMonth, PresetCustom}

func ParsePreset(s string) (Preset, error) {
	p := Preset(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Presets {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown preset %q", ErrInvalidPeriod, s)
}

// Resolution is a resolved preset. Warning is set when a custom range is
// inverted or empty; callers decide whether to query anyway.
type Resolution struct {
	Preset  Preset
	Period  Period
	Warning string
}

// ResolvePreset maps a preset to a concrete interval. custom is only read
// for PresetCustom. Weeks start on Monday.
func ResolvePreset(preset Preset, today Date, custom Period) (Resolution, error) {
	res := Resolution{Preset: preset}

	switch preset {
	case PresetToday:
		res.Period = Period{Start: today, End: today.AddDays(1)}

	case PresetThisWeek:
		start := today.AddDays(-daysSinceMonday(today))
		res.Period = Period{Start: start, End: start.AddDays(7)}

	case PresetThisMonth:
		res.Period = MonthRange(today.YearMonth())

	case PresetLastMonth:
		res.Period = MonthRange(today.YearMonth().Prev())

	case PresetCustom:
		if custom.Start.IsZero() || custom.End.IsZero() {
			return res, fmt.Errorf("%w: custom preset needs start and end", ErrInvalidPeriod)
		}
		res.Period = custom
		if !custom.Valid() {
			res.Warning = "end date must be after start date"
		}

	default:
		return res, fmt.Errorf("%w: unknown preset %q", ErrInvalidPeriod, preset)
	}

	return res, nil
}

// daysSinceMonday is 0 for Monday and 6 for Sunday.
func daysSinceMonday(d Date) int {
	return (int(d.Weekday()) + 6) % 7
}
