package caldav

import (
	"time"

	"github.com/emersion/go-ical"
)

// Event is the published calendar entry for one routine.
type Event struct {
	UID         string
	Summary     string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	RRule       string
}

func eventToICS(e *Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//rotinabot//caldav//PT")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, e.UID)
	event.Props.SetText(ical.PropSummary, e.Summary)
	if e.Description != "" {
		event.Props.SetText(ical.PropDescription, e.Description)
	}
	event.Props.SetDateTime(ical.PropDateTimeStart, e.StartTime)
	event.Props.SetDateTime(ical.PropDateTimeEnd, e.EndTime)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	if e.RRule != "" {
		// Raw property: SetText would escape the commas inside BYDAY.
		event.Props.Set(&ical.Prop{Name: ical.PropRecurrenceRule, Value: e.RRule})
	}

	cal.Children = append(cal.Children, event.Component)
	return cal
}
