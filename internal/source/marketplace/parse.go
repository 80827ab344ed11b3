package marketplace

import (
	"strings"

	"github.com/goccy/go-json"

	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/normalize"
)

// rawEvent is the subset of a marketplace item we read. Free-text fields
// are kept raw because the API does not always send strings for them.
type rawEvent struct {
	Name             json.RawMessage `json:"name"`
	StartUTC         string          `json:"startUtc"`
	URL              string          `json:"url"`
	ShortDescription json.RawMessage `json:"shortDescription"`
	Venue            *struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"venue"`
}

// mapEvents converts raw items, dropping undecodable or undated ones.
func mapEvents(items []json.RawMessage, eventBase string) []model.Event {
	out := make([]model.Event, 0, len(items))
	for i, raw := range items {
		var ev rawEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			appLog.Debug("marketplace item skipped", "index", i, "reason", err.Error())
			continue
		}
		mapped, ok := mapEvent(ev, eventBase)
		if !ok {
			continue
		}
		mapped.ID = len(out) + 1
		out = append(out, mapped)
	}
	return out
}

func mapEvent(ev rawEvent, eventBase string) (model.Event, bool) {
	start, ok := normalize.ParseInstant(ev.StartUTC)
	if !ok {
		return model.Event{}, false
	}
	date, clock := normalize.NYDateParts(start)

	var venueName, venueAddr string
	if ev.Venue != nil {
		venueName, venueAddr = ev.Venue.Name, ev.Venue.Address
	}

	return model.Event{
		Title:       normalize.Title(scalarString(ev.Name)),
		Date:        date,
		Time:        clock,
		Location:    normalize.Location(venueName, venueAddr),
		Category:    string(model.CategoryMusic),
		Description: stringOnly(ev.ShortDescription),
		URL:         normalize.URL(eventURL(eventBase, ev.URL)),
	}, true
}

// eventURL joins a path segment onto the event base. Values that already
// look absolute are passed through for the sanitizer to judge.
func eventURL(base, segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return ""
	}
	if strings.Contains(segment, "://") {
		return segment
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(segment, "/")
}

// stringOnly returns raw when it is a JSON string and "" otherwise.
func stringOnly(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// scalarString renders strings and numbers; names like 2025 arrive unquoted.
func scalarString(raw json.RawMessage) string {
	if s := stringOnly(raw); s != "" {
		return s
	}
	var n json.Number
	if len(raw) > 0 && json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}
