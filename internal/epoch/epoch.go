// Package epoch derives an entity's age in years and its in-universe epoch
// year from raw elapsed-time fields.
package epoch

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Offset anchors the in-universe calendar to the real one:
// epochYear = (realYear + 2 - 2000) - yearsOld.
const Offset = 2 - 2000

// Age holds the raw elapsed-time inputs. A nil pointer means absent.
type Age struct {
	Days  *float64
	Hours *float64
}

// Derived is the converted age. All values are truncated toward zero.
type Derived struct {
	Days      int64
	Hours     int64
	YearsOld  int64
	EpochYear int64
}

// Convert applies the precedence days > hours > nothing. The epoch year is
// computed from the untruncated age and truncated once at the end.
func Convert(a Age, now time.Time) Derived {
	var d Derived
	years := 0.0
	switch {
	case a.Days != nil:
		years = *a.Days / 365
		d.Days = int64(math.Trunc(*a.Days))
		if a.Hours != nil {
			d.Hours = int64(math.Trunc(*a.Hours))
		}
	case a.Hours != nil:
		years = *a.Hours / (365 * 24)
		d.Hours = int64(math.Trunc(*a.Hours))
	}
	d.YearsOld = int64(math.Trunc(years))
	d.EpochYear = int64(math.Trunc(float64(now.Year()+Offset) - years))
	return d
}

// Parse builds an Age from raw field strings. Unparseable values count as
// absent.
func Parse(days, hours string) Age {
	var a Age
	if v, ok := Number(days); ok {
		a.Days = &v
	}
	if v, ok := Number(hours); ok {
		a.Hours = &v
	}
	return a
}

var numberRe = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// Number reads the first number in s, tolerating thousands separators and
// surrounding words ("3,650 days").
func Number(s string) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Birthday returns the real-world date an entity of the given age was
// created, or the zero time when no age is known.
func Birthday(a Age, now time.Time) time.Time {
	switch {
	case a.Days != nil:
		return now.Add(-time.Duration(*a.Days * float64(24*time.Hour)))
	case a.Hours != nil:
		return now.Add(-time.Duration(*a.Hours * float64(time.Hour)))
	}
	return time.Time{}
}
