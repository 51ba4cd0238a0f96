package types

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// defaultZone is used for users without a stored time zone.
const defaultZone = "Etc/GMT"

// Period is the reporting window of a Report. Start is inclusive and End is
// the last nanosecond of the window.
type Period struct {
	Kind  ReportKind
	Start time.Time
	End   time.Time
}

// NewPeriod derives the UTC window for a report date: the calendar month for
// STANDARD reports and the calendar year for YEAR_IN_REVIEW.
func NewPeriod(reportDate time.Time, kind ReportKind) Period {
	d := reportDate.UTC()
	var start, next time.Time
	if kind == ReportKindYearInReview {
		start = time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		next = start.AddDate(1, 0, 0)
	} else {
		start = time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		next = start.AddDate(0, 1, 0)
	}
	return Period{Kind: kind, Start: start, End: next.Add(-time.Nanosecond)}
}

// Key is the blob prefix for the period: MM_YY for monthly recaps, the bare
// year for year-in-review.
func (p Period) Key() string {
	if p.Kind == ReportKindYearInReview {
		return fmt.Sprintf("%04d", p.Start.Year())
	}
	return fmt.Sprintf("%02d_%02d", int(p.Start.Month()), p.Start.Year()%100)
}

// Year is the calendar year the period falls in.
func (p Period) Year() int {
	return p.Start.Year()
}

// DateHeader is the human readable period label used in emails.
func (p Period) DateHeader() string {
	if p.Kind == ReportKindYearInReview {
		return fmt.Sprintf("%d", p.Start.Year())
	}
	return p.Start.Format("January 2006")
}

// BlobKey is the storage key of one user's recap document.
func (p Period) BlobKey(userUUID string) string {
	return p.Key() + "/" + userUUID + ".json"
}

// InZone shifts the window into the named zone keeping the wall clock, so a
// user in Tokyo gets their own local month. Unknown or empty zones fall back
// to Etc/GMT.
func (p Period) InZone(zone string) (start, end time.Time) {
	if zone == "" {
		zone = defaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc, _ = time.LoadLocation(defaultZone)
		if loc == nil {
			loc = time.UTC
		}
	}
	start = time.Date(p.Start.Year(), p.Start.Month(), p.Start.Day(), 0, 0, 0, 0, loc)
	end = time.Date(p.End.Year(), p.End.Month(), p.End.Day(),
		p.End.Hour(), p.End.Minute(), p.End.Second(), p.End.Nanosecond(), loc)
	return start, end
}

// NormalizeReportDate truncates a report date to the first day of its period.
func NormalizeReportDate(reportDate time.Time, kind ReportKind) time.Time {
	return NewPeriod(reportDate, kind).Start
}

// PageCount is ceil(total / pageSize). A non-positive page size yields zero.
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
