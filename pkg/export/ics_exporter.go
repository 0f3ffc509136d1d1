package export

import (
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

var errNoEvents = errors.New("no events to export")

// Event is one calendar entry. Start and End are wall-clock times in the exporter's zone.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// ICSExporter renders events as an iCalendar (RFC 5545) feed.
type ICSExporter struct {
	productID string
	zone      *time.Location
	now       func() time.Time
}

// NewICSExporter builds an exporter for the named IANA zone. An empty or unknown name
// falls back to UTC.
func NewICSExporter(zone string) *ICSExporter {
	loc, err := time.LoadLocation(zone)
	if err != nil || zone == "" {
		loc = time.UTC
	}
	return &ICSExporter{productID: "-//exam-proctor-api//supervision//EN", zone: loc, now: time.Now}
}

// Location is the zone wall-clock slot times are interpreted in.
func (e *ICSExporter) Location() *time.Location {
	return e.zone
}

// Render writes one VEVENT per event under a published calendar called name.
func (e *ICSExporter) Render(name string, events []Event) ([]byte, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("ics: %w", errNoEvents)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.productID)
	cal.SetXWRCalName(name)
	cal.SetXWRTimezone(e.zone.String())

	stamp := e.now().UTC()
	for _, ev := range events {
		if ev.UID == "" {
			return nil, fmt.Errorf("ics: event %q has no uid", ev.Summary)
		}
		if !ev.End.After(ev.Start) {
			return nil, fmt.Errorf("ics: event %s ends before it starts", ev.UID)
		}
		vevent := cal.AddEvent(ev.UID)
		vevent.SetDtStampTime(stamp)
		vevent.SetStartAt(ev.Start.UTC())
		vevent.SetEndAt(ev.End.UTC())
		vevent.SetSummary(ev.Summary)
		if ev.Description != "" {
			vevent.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			vevent.SetLocation(ev.Location)
		}
	}
	return []byte(cal.Serialize()), nil
}
