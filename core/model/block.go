package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DayHalf identifies the AM or PM half of a calendar day.
type DayHalf int

const (
	HalfAM DayHalf = iota
	HalfPM
)

// String returns a human-readable representation of the half-day.
func (h DayHalf) String() string {
	if h == HalfPM {
		return "PM"
	}
	return "AM"
}

// HoursPerBlock is the clinical hour credit of one half-day block.
const HoursPerBlock = 4.0

// Block is the atomic half-day scheduling unit. Blocks are created by
// calendar generation and immutable thereafter.
type Block struct {
	ID      uuid.UUID
	Date    time.Time // midnight UTC of the calendar day
	Half    DayHalf
	Weekend bool
	Holiday bool
}

// Start returns the wall-clock start of the block.
func (b Block) Start() time.Time {
	if b.Half == HalfPM {
		return b.Date.Add(13 * time.Hour)
	}
	return b.Date.Add(8 * time.Hour)
}

// Key returns a stable ordering key: date then AM before PM.
func (b Block) Key() string {
	return fmt.Sprintf("%s-%s", b.Date.Format("2006-01-02"), b.Half)
}

// Before reports whether b precedes other in calendar order.
func (b Block) Before(other Block) bool {
	if !b.Date.Equal(other.Date) {
		return b.Date.Before(other.Date)
	}
	return b.Half < other.Half
}

// GenerateBlocks produces the half-day blocks covering [start, end]
// inclusive. Weekend flags are derived from the weekday; holidays are
// looked up in the provided set keyed by "2006-01-02".
func GenerateBlocks(start, end time.Time, holidays map[string]bool) []Block {
	var blocks []Block
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(last) {
		wd := day.Weekday()
		weekend := wd == time.Saturday || wd == time.Sunday
		holiday := holidays[day.Format("2006-01-02")]
		for _, half := range []DayHalf{HalfAM, HalfPM} {
			blocks = append(blocks, Block{
				ID:      uuid.New(),
				Date:    day,
				Half:    half,
				Weekend: weekend,
				Holiday: holiday,
			})
		}
		day = day.AddDate(0, 0, 1)
	}
	return blocks
}
