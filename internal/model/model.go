package model

import "time"

const (
	// UntitledEvent is used when a source omits the title.
	UntitledEvent = "Untitled Event"

	// DefaultLocation is the city string used when no venue is known.
	DefaultLocation = "Tampa, FL"

	// DateLayout is the civil date layout of Event.Date.
	DateLayout = "2006-01-02"

	// TimeLayout is the 12-hour layout of Event.Time.
	TimeLayout = "3:04 PM"
)

// Event is the canonical record every source is normalized into.
type Event struct {
	// ID is a sequence number, unique within one aggregation pass only.
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"` // YYYY-MM-DD, America/New_York civil calendar
	Time        string `json:"time"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	Description string `json:"description"`
	// URL is an absolute http(s) URL or empty.
	URL string `json:"url,omitempty"`
}

// Category is one tag of the closed category vocabulary.
type Category string

const (
	CategoryBusiness   Category = "business"
	CategoryTechnology Category = "technology"
	CategoryArts       Category = "arts"
	CategoryMusic      Category = "music"
	CategorySports     Category = "sports"
	CategoryNetworking Category = "networking"
	CategoryNightlife  Category = "nightlife"
	CategoryFestival   Category = "festival"
	CategoryConcert    Category = "concert"
	CategoryTheater    Category = "theater"
	CategoryComedy     Category = "comedy"
	CategoryFamily     Category = "family"

	// DefaultCategory is used for absent or unrecognized categories.
	DefaultCategory = CategoryMusic
)

// Categories lists the vocabulary in match order.
var Categories = []Category{
	CategoryBusiness,
	CategoryTechnology,
	CategoryArts,
	CategoryMusic,
	CategorySports,
	CategoryNetworking,
	CategoryNightlife,
	CategoryFestival,
	CategoryConcert,
	CategoryTheater,
	CategoryComedy,
	CategoryFamily,
}

// StaticPayload is the document written for static hosting.
type StaticPayload struct {
	Events      []Event   `json:"events"`
	LastUpdated time.Time `json:"lastUpdated"`
}
