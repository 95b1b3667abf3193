// Package weekday bridges the two weekday numbering schemes used by the dashboard.
//
// The booking backend numbers days Monday=0..Sunday=6. The calendar UI numbers them
// Sunday=0..Saturday=6, which is also what time.Weekday uses. Each scheme has its own type so
// a value that crosses the boundary without conversion (or is converted twice) does not compile.
package weekday

import (
	"sort"
	"time"
)

// APIDay is a weekday in backend convention: Monday=0 .. Sunday=6.
type APIDay int

// UIDay is a weekday in UI convention: Sunday=0 .. Saturday=6.
type UIDay int

const (
	Sunday UIDay = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

func (d APIDay) Valid() bool { return d >= 0 && d <= 6 }

func (d UIDay) Valid() bool { return d >= 0 && d <= 6 }

// ToUI converts a backend weekday to UI convention.
func ToUI(d APIDay) UIDay {
	if d == 6 {
		return Sunday
	}
	return UIDay(d + 1)
}

// ToAPI converts a UI weekday to backend convention.
func ToAPI(d UIDay) APIDay {
	if d == Sunday {
		return 6
	}
	return APIDay(d - 1)
}

func (d UIDay) Weekday() time.Weekday { return time.Weekday(d) }

func (d UIDay) String() string { return d.Weekday().String() }

func FromWeekday(w time.Weekday) UIDay { return UIDay(w) }

// ToUISet converts a backend weekday set. Out-of-range values are dropped; the result is
// sorted and free of duplicates.
func ToUISet(days []APIDay) []UIDay {
	out := make([]UIDay, 0, len(days))
	for _, d := range days {
		if d.Valid() {
			out = append(out, ToUI(d))
		}
	}
	return normalize(out)
}

// ToAPISet is the inverse of ToUISet.
func ToAPISet(days []UIDay) []APIDay {
	out := make([]APIDay, 0, len(days))
	for _, d := range normalize(days) {
		out = append(out, ToAPI(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contains reports whether set holds d.
func Contains(set []UIDay, d UIDay) bool {
	for _, v := range set {
		if v == d {
			return true
		}
	}
	return false
}

func normalize(days []UIDay) []UIDay {
	seen := [7]bool{}
	out := make([]UIDay, 0, len(days))
	for _, d := range days {
		if !d.Valid() || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
