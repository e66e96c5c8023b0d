package assistant

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AssumePMMaxHour is the bare-hour disambiguation policy: an hour from 1 to
// AssumePMMaxHour with no am/pm marker is read as afternoon/evening ("a las
// 5" means 17:00), since businesses rarely book 1-7 in the morning. Hours 8
// and up without a marker are taken literally.
const AssumePMMaxHour = 7

// CalendarDate is a concrete resolved calendar date.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// String formats the date as "2006-01-02".
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// At combines the date with a time-of-day in the given location.
func (d CalendarDate) At(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

// TimeOfDay is a resolved wall-clock time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Resolution is the outcome of resolving DateKeywords against a reference
// instant. Nil fields mean the corresponding signal was absent or could not
// be interpreted; both nil means "no usable date information" and the caller
// must re-prompt rather than default to now.
type Resolution struct {
	Date *CalendarDate
	Time *TimeOfDay
}

// Resolve deterministically converts extracted keywords into a concrete
// date and time-of-day. now must already be in the business's local time
// zone; resolution never yields a date in the past. Malformed input never
// produces an error, only nil fields.
func Resolve(kw DateKeywords, now time.Time) Resolution {
	tod := ParseTimeOfDay(kw.TimeText)

	var date *CalendarDate
	switch {
	case kw.Weekday != "":
		if target, ok := weekdayIndex(kw.Weekday); ok {
			d := nextWeekday(now, target, tod)
			date = &d
		}
	case kw.RelativeDay != "":
		if offset, ok := relativeOffset(kw.RelativeDay); ok {
			t := now.AddDate(0, 0, offset)
			date = &CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
		}
	case kw.DayOfMonth > 0:
		date = resolveDayOfMonth(now, kw.DayOfMonth)
	}

	return Resolution{Date: date, Time: tod}
}

// nextWeekday finds the next occurrence of target at or after now's date.
// Today counts only while the resolved time is still ahead; a bare weekday
// never resolves backwards.
func nextWeekday(now time.Time, target time.Weekday, tod *TimeOfDay) CalendarDate {
	delta := (int(target) - int(now.Weekday()) + 7) % 7
	if delta == 0 && tod != nil {
		nowMin := now.Hour()*60 + now.Minute()
		if tod.Hour*60+tod.Minute <= nowMin {
			delta = 7
		}
	}
	t := now.AddDate(0, 0, delta)
	return CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// resolveDayOfMonth picks the day in the current month when it has not yet
// passed, else the same day next month. An impossible day for the target
// month (31 in February) is a resolution failure.
func resolveDayOfMonth(now time.Time, day int) *CalendarDate {
	if day < 1 || day > 31 {
		return nil
	}
	year, month := now.Year(), now.Month()
	if day < now.Day() {
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	if day > daysInMonth(year, month) {
		return nil
	}
	return &CalendarDate{Year: year, Month: month, Day: day}
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

var weekdayNames = map[string]time.Weekday{
	"domingo":   time.Sunday,
	"sunday":    time.Sunday,
	"lunes":     time.Monday,
	"monday":    time.Monday,
	"martes":    time.Tuesday,
	"tuesday":   time.Tuesday,
	"miercoles": time.Wednesday,
	"miércoles": time.Wednesday,
	"wednesday": time.Wednesday,
	"jueves":    time.Thursday,
	"thursday":  time.Thursday,
	"viernes":   time.Friday,
	"friday":    time.Friday,
	"sabado":    time.Saturday,
	"sábado":    time.Saturday,
	"saturday":  time.Saturday,
}

func weekdayIndex(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}

func relativeOffset(token string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "hoy", "today":
		return 0, true
	case "mañana", "manana", "tomorrow":
		return 1, true
	}
	return 0, false
}

var (
	clock24RE  = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	meridiemRE = regexp.MustCompile(`\b(\d{1,2})(?::([0-5]\d))?\s*(am|pm|a\.m\.|p\.m\.)`)
	bareHourRE = regexp.MustCompile(`(?:a las?|at)?\s*(\d{1,2})(?::([0-5]\d))?\b`)
)

// ParseTimeOfDay parses common spoken time forms: "17:00", "5pm",
// "5:30 p.m.", "a las 5", "mediodía", "medianoche". A bare hour without
// am/pm follows the AssumePMMaxHour policy. Returns nil when no time can be
// read.
func ParseTimeOfDay(text string) *TimeOfDay {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	switch {
	case strings.Contains(text, "mediodia"), strings.Contains(text, "mediodía"), strings.Contains(text, "noon"):
		return &TimeOfDay{Hour: 12}
	case strings.Contains(text, "medianoche"), strings.Contains(text, "midnight"):
		return &TimeOfDay{}
	}

	if m := meridiemRE.FindStringSubmatch(text); m != nil {
		hour := atoi(m[1])
		minute := atoi(m[2])
		if hour < 1 || hour > 12 || minute > 59 {
			return nil
		}
		pm := strings.HasPrefix(m[3], "p")
		if pm && hour != 12 {
			hour += 12
		} else if !pm && hour == 12 {
			hour = 0
		}
		return &TimeOfDay{Hour: hour, Minute: minute}
	}

	// "de la mañana/tarde/noche" qualifiers on a bare hour.
	am := strings.Contains(text, "de la mañana") || strings.Contains(text, "de la manana")
	pm := strings.Contains(text, "de la tarde") || strings.Contains(text, "de la noche")

	if m := clock24RE.FindStringSubmatch(text); m != nil {
		hour, minute := atoi(m[1]), atoi(m[2])
		switch {
		case pm && hour >= 1 && hour < 12:
			hour += 12
		case !am && len(m[1]) == 1 && hour >= 1 && hour <= AssumePMMaxHour:
			// "5:30" is as ambiguous as "a las 5"; "05:30" is literal.
			hour += 12
		}
		return &TimeOfDay{Hour: hour, Minute: minute}
	}

	if m := bareHourRE.FindStringSubmatch(text); m != nil {
		hour := atoi(m[1])
		minute := atoi(m[2])
		if hour > 23 || minute > 59 {
			return nil
		}
		switch {
		case pm && hour < 12:
			hour += 12
		case am:
			// keep as morning
		case hour >= 1 && hour <= AssumePMMaxHour:
			hour += 12
		}
		return &TimeOfDay{Hour: hour, Minute: minute}
	}

	return nil
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
