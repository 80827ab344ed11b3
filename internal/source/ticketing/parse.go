package ticketing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"eventcal/internal/model"
	"eventcal/internal/normalize"
)

// Detail URLs end their slug with the event date: /jazz-night-tampa-09-10-2025/event/...
var slugDateRE = regexp.MustCompile(`-(\d{2})-(\d{2})-(\d{4})(?:[/?#]|$)`)

// DateFromSlug extracts the -MM-DD-YYYY date embedded in a detail URL.
func DateFromSlug(rawURL string) (string, bool) {
	m := slugDateRE.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	return civilDate(year, time.Month(month), day)
}

var (
	monthDayRE  = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})\b`)
	titleYearRE = regexp.MustCompile(`\b(20\d{2})\b`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// DateFromMonthDay parses a "Sep 10" / "September 10" string. The year comes
// from the title when it carries one; otherwise the current year is used and
// rolled forward when the date has already passed.
func DateFromMonthDay(s, title string, now time.Time) (string, bool) {
	m := monthDayRE.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	month := monthsByPrefix[strings.ToLower(m[1][:3])]
	day, _ := strconv.Atoi(m[2])

	if y := titleYearRE.FindStringSubmatch(title); y != nil {
		year, _ := strconv.Atoi(y[1])
		return civilDate(year, month, day)
	}

	today := now.In(normalize.Zone)
	year := today.Year()
	date, ok := civilDate(year, month, day)
	if !ok {
		return "", false
	}
	if date < today.Format(model.DateLayout) {
		return civilDate(year+1, month, day)
	}
	return date, true
}

// civilDate rejects dates time.Date would silently normalize (Feb 30).
func civilDate(year int, month time.Month, day int) (string, bool) {
	if month < time.January || month > time.December || day < 1 {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, normalize.Zone)
	if t.Month() != month || t.Day() != day {
		return "", false
	}
	return t.Format(model.DateLayout), true
}

var strictTimeRE = regexp.MustCompile(`^(\d{1,2})(?::([0-5]\d))? ([AaPp][Mm])$`)

// StrictTime accepts only "H:MM AM" or "H AM" shapes and renders them as
// "H:MM AM". Anything else ("TBA", "19:30", "Doors 7pm") yields "".
func StrictTime(s string) string {
	m := strictTimeRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ""
	}
	hour, _ := strconv.Atoi(m[1])
	if hour < 1 || hour > 12 {
		return ""
	}
	minute := m[2]
	if minute == "" {
		minute = "00"
	}
	return fmt.Sprintf("%d:%s %s", hour, minute, strings.ToUpper(m[3]))
}

// Description joins the non-blank parts with a bullet separator.
func Description(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " • ")
}

// rawEvent is one listing entry of the JSON API.
type rawEvent struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Date          string `json:"date"`
	DayOfWeek     string `json:"dayOfWeek"`
	FormattedDate string `json:"formattedDate"`
	Time          string `json:"time"`
	VenueName     string `json:"venueName"`
	VenueLocation string `json:"venueLocation"`
	Genre         string `json:"genre"`
}

// eventDate prefers the URL slug, then the month/day text fields.
func eventDate(ev rawEvent, now time.Time) (string, bool) {
	if d, ok := DateFromSlug(ev.URL); ok {
		return d, true
	}
	for _, s := range []string{ev.Date, ev.FormattedDate} {
		if d, ok := DateFromMonthDay(s, ev.Title, now); ok {
			return d, true
		}
	}
	return "", false
}

func mapEvent(ev rawEvent, now time.Time) (model.Event, bool) {
	date, ok := eventDate(ev, now)
	if !ok {
		return model.Event{}, false
	}
	return model.Event{
		Title:       normalize.Title(ev.Title),
		Date:        date,
		Time:        StrictTime(ev.Time),
		Location:    normalize.Location(ev.VenueName, ev.VenueLocation),
		Category:    normalize.Category(ev.Genre),
		Description: Description(ev.DayOfWeek, ev.FormattedDate, ev.VenueLocation),
		URL:         normalize.URL(ev.URL),
	}, true
}
