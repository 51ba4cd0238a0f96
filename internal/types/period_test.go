package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeriod_Standard(t *testing.T) {
	p := NewPeriod(time.Date(2026, time.September, 17, 13, 5, 0, 0, time.UTC), ReportKindStandard)

	assert.Equal(t, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2026, time.September, 30, 23, 59, 59, 999999999, time.UTC), p.End)
	assert.Equal(t, "09_26", p.Key())
	assert.Equal(t, "September 2026", p.DateHeader())
	assert.Equal(t, "09_26/abc.json", p.BlobKey("abc"))
}

func TestNewPeriod_YearInReview(t *testing.T) {
	p := NewPeriod(time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC), ReportKindYearInReview)

	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2025, time.December, 31, 23, 59, 59, 999999999, time.UTC), p.End)
	assert.Equal(t, "2025", p.Key())
	assert.Equal(t, "2025", p.DateHeader())
	assert.Equal(t, 2025, p.Year())
}

func TestNewPeriod_DecemberRollsYear(t *testing.T) {
	p := NewPeriod(time.Date(2025, time.December, 31, 23, 0, 0, 0, time.UTC), ReportKindStandard)
	assert.Equal(t, "12_25", p.Key())
	assert.Equal(t, time.December, p.End.Month())
	assert.Equal(t, 2025, p.End.Year())
}

func TestPeriod_InZoneKeepsWallClock(t *testing.T) {
	p := NewPeriod(time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), ReportKindStandard)

	start, end := p.InZone("Asia/Tokyo")
	require.Equal(t, "Asia/Tokyo", start.Location().String())
	assert.Equal(t, 1, start.Day())
	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, time.Date(2026, time.February, 28, 15, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, 31, end.Day())
	assert.Equal(t, 23, end.Hour())
}

func TestPeriod_InZoneFallsBack(t *testing.T) {
	p := NewPeriod(time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), ReportKindStandard)

	for _, zone := range []string{"", "Not/AZone"} {
		start, _ := p.InZone(zone)
		assert.Equal(t, p.Start, start.UTC(), "zone %q", zone)
	}
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 100, 0},
		{1, 100, 1},
		{100, 100, 1},
		{101, 100, 2},
		{250, 100, 3},
		{250, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PageCount(tt.total, tt.size), "total=%d size=%d", tt.total, tt.size)
	}
}

func TestParseReportKind(t *testing.T) {
	k, err := ParseReportKind("")
	require.NoError(t, err)
	assert.Equal(t, ReportKindStandard, k)

	k, err = ParseReportKind("YEAR_IN_REVIEW")
	require.NoError(t, err)
	assert.Equal(t, ReportKindYearInReview, k)

	_, err = ParseReportKind("WEEKLY")
	assert.True(t, HasCode(err, ErrCodeValidationInvalidKind))
}
