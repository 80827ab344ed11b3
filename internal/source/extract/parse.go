package extract

import (
	"strings"

	"github.com/goccy/go-json"

	"eventcal/internal/model"
	"eventcal/internal/normalize"
)

// extracted is one item of the model's reply. Only string fields are
// trusted; anything else decodes to "".
type extracted struct {
	Title       json.RawMessage `json:"title"`
	Description json.RawMessage `json:"description"`
	Category    json.RawMessage `json:"category"`
	Location    json.RawMessage `json:"location"`
	StartDate   json.RawMessage `json:"startDate"`
	StartTime   json.RawMessage `json:"startTime"`
	URL         json.RawMessage `json:"url"`
}

// stripFences removes a surrounding ```json ... ``` block if the model
// wrapped its answer in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseReply turns the completion text into events. Text that is not a JSON
// array yields no events; items without a usable startDate are dropped.
func ParseReply(content string) []model.Event {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(content)), &items); err != nil {
		return nil
	}

	events := make([]model.Event, 0, len(items))
	for _, raw := range items {
		var it extracted
		if err := json.Unmarshal(raw, &it); err != nil {
			continue
		}
		date, ok := normalize.ParseDate(str(it.StartDate))
		if !ok {
			continue
		}
		events = append(events, model.Event{
			ID:          len(events) + 1,
			Title:       normalize.Title(str(it.Title)),
			Date:        date,
			Time:        strings.TrimSpace(str(it.StartTime)),
			Location:    normalize.Location(str(it.Location)),
			Category:    normalize.Category(str(it.Category)),
			Description: strings.TrimSpace(str(it.Description)),
			URL:         normalize.URL(str(it.URL)),
		})
	}
	return events
}

func str(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
