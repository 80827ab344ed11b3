// Package ics renders canonical events as an iCalendar feed so calendar
// clients can subscribe to the merged list.
package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"eventcal/internal/model"
	"eventcal/internal/normalize"
)

// DefaultDuration is assumed for timed events; sources never report an end.
const DefaultDuration = 2 * time.Hour

// ProductID identifies the generator in PRODID.
const ProductID = "-//eventcal//Tampa events//EN"

// uidSpace namespaces event UIDs so they stay stable across passes.
var uidSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("eventcal/events"))

// UID derives a stable identifier from the dedup key. IDs are renumbered on
// every pass and cannot be used.
func UID(ev model.Event) string {
	return uuid.NewSHA1(uidSpace, []byte(normalize.DedupKey(ev))).String() + "@eventcal"
}

// Render serializes events as a VCALENDAR. Events with a parsable 12-hour
// time become timed entries in America/New_York; the rest are all-day.
// Events whose date cannot be parsed are skipped.
func Render(name string, events []model.Event, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	cal.SetXWRTimezone(normalize.Zone.String())

	for _, ev := range events {
		day, err := time.ParseInLocation(model.DateLayout, ev.Date, normalize.Zone)
		if err != nil {
			continue
		}

		ve := cal.AddEvent(UID(ev))
		ve.SetDtStampTime(stamp.UTC())
		ve.SetSummary(ev.Title)

		if start, ok := startAt(day, ev.Time); ok {
			ve.SetStartAt(start.UTC())
			ve.SetEndAt(start.Add(DefaultDuration).UTC())
		} else {
			ve.SetAllDayStartAt(day)
			ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
		}

		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if desc := description(ev); desc != "" {
			ve.SetDescription(desc)
		}
		if ev.URL != "" {
			ve.SetURL(ev.URL)
		}
	}
	return cal.Serialize()
}

// startAt combines a civil day with a "3:04 PM" clock time.
func startAt(day time.Time, clock string) (time.Time, bool) {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(model.TimeLayout, strings.ToUpper(clock))
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, normalize.Zone), true
}

func description(ev model.Event) string {
	parts := make([]string, 0, 2)
	if ev.Description != "" {
		parts = append(parts, ev.Description)
	}
	if ev.Category != "" {
		parts = append(parts, "Category: "+ev.Category)
	}
	return strings.Join(parts, "\n\n")
}
