// Package googlecalendar exposes the Google Calendar API as worker tools.
package googlecalendar

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/tool"
	"github.com/hupe1980/agentdesk/toolkit"
	"google.golang.org/api/calendar/v3"
)

// WorkerName is the agents file entry bound to this toolkit.
const WorkerName = "google_calendar"

// PrimaryCalendar addresses the user's primary calendar.
const PrimaryCalendar = "primary"

// Calendar is the model-facing view of a calendar list entry.
type Calendar struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	TimeZone    string `json:"time_zone,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
	AccessRole  string `json:"access_role,omitempty"`
}

// Event is the model-facing view of an event. Start and End hold either an
// RFC 3339 timestamp or, for all-day events, a date.
type Event struct {
	ID          string   `json:"id"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Start       string   `json:"start,omitempty"`
	End         string   `json:"end,omitempty"`
	AllDay      bool     `json:"all_day,omitempty"`
	Status      string   `json:"status,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
	Link        string   `json:"link,omitempty"`
}

// Toolkit wraps a Calendar service.
type Toolkit struct {
	svc  *calendar.Service
	opts toolkit.Options
	now  func() time.Time
}

// New creates a toolkit using credentials from opts (or ADC).
func New(ctx context.Context, optFns ...func(o *toolkit.Options)) (*Toolkit, error) {
	opts := toolkit.DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	svc, err := calendar.NewService(ctx, opts.Client()...)
	if err != nil {
		return nil, fmt.Errorf("googlecalendar: create service: %w", err)
	}

	return &Toolkit{svc: svc, opts: opts, now: time.Now}, nil
}

type currentTimeArgs struct {
	TimeZone string `json:"time_zone,omitempty" jsonschema:"description=IANA time zone such as Europe/Berlin (default UTC)"`
}

type calendarArgs struct {
	CalendarID string `json:"calendar_id" jsonschema:"required,description=Calendar identifier or 'primary'"`
}

type insertCalendarArgs struct {
	Summary     string `json:"summary" jsonschema:"required,description=Calendar title"`
	Description string `json:"description,omitempty"`
	TimeZone    string `json:"time_zone,omitempty" jsonschema:"description=IANA time zone"`
}

type listEventsArgs struct {
	CalendarID string `json:"calendar_id,omitempty" jsonschema:"description=Calendar identifier (default primary)"`
	TimeMin    string `json:"time_min,omitempty" jsonschema:"description=Lower bound for event end (RFC 3339 or YYYY-MM-DD)"`
	TimeMax    string `json:"time_max,omitempty" jsonschema:"description=Upper bound for event start (RFC 3339 or YYYY-MM-DD)"`
	Query      string `json:"query,omitempty" jsonschema:"description=Free text search terms"`
}

type eventArgs struct {
	CalendarID string `json:"calendar_id,omitempty" jsonschema:"description=Calendar identifier (default primary)"`
	EventID    string `json:"event_id" jsonschema:"required,description=Event identifier"`
}

type insertEventArgs struct {
	CalendarID  string   `json:"calendar_id,omitempty" jsonschema:"description=Calendar identifier (default primary)"`
	Summary     string   `json:"summary" jsonschema:"required,description=Event title"`
	Start       string   `json:"start" jsonschema:"required,description=Start (RFC 3339 or YYYY-MM-DD for all-day)"`
	End         string   `json:"end" jsonschema:"required,description=End (RFC 3339 or YYYY-MM-DD for all-day)"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Attendees   []string `json:"attendees,omitempty" jsonschema:"description=Attendee email addresses"`
}

type updateEventArgs struct {
	CalendarID  string `json:"calendar_id,omitempty" jsonschema:"description=Calendar identifier (default primary)"`
	EventID     string `json:"event_id" jsonschema:"required,description=Event identifier"`
	Summary     string `json:"summary,omitempty"`
	Start       string `json:"start,omitempty" jsonschema:"description=New start (RFC 3339 or YYYY-MM-DD)"`
	End         string `json:"end,omitempty" jsonschema:"description=New end (RFC 3339 or YYYY-MM-DD)"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

type quickAddArgs struct {
	CalendarID string `json:"calendar_id,omitempty" jsonschema:"description=Calendar identifier (default primary)"`
	Text       string `json:"text" jsonschema:"required,description=Natural language description such as 'Lunch with Ana tomorrow at noon'"`
}

type moveEventArgs struct {
	CalendarID  string `json:"calendar_id,omitempty" jsonschema:"description=Source calendar identifier (default primary)"`
	EventID     string `json:"event_id" jsonschema:"required,description=Event identifier"`
	Destination string `json:"destination" jsonschema:"required,description=Target calendar identifier"`
}

// Tools returns the calendar and event operations.
func (tk *Toolkit) Tools() []tool.Tool {
	return []tool.Tool{
		tool.MustTypedTool("get_current_time", "Get the current date and time, optionally in a time zone.", tk.currentTime),
		tool.MustTypedTool("list_calendars", "List the calendars on the user's calendar list.", tk.listCalendars),
		tool.MustTypedTool("get_calendar", "Get a calendar by id.", tk.getCalendar),
		tool.MustTypedTool("insert_calendar", "Create a secondary calendar.", tk.insertCalendar),
		tool.MustTypedTool("delete_calendar", "Delete a secondary calendar.", tk.deleteCalendar),
		tool.MustTypedTool("list_events", "List events ordered by start time.", tk.listEvents),
		tool.MustTypedTool("get_event", "Get an event by id.", tk.getEvent),
		tool.MustTypedTool("insert_event", "Create an event.", tk.insertEvent),
		tool.MustTypedTool("update_event", "Update fields of an event. Omitted fields are left unchanged.", tk.updateEvent),
		tool.MustTypedTool("delete_event", "Delete an event.", tk.deleteEvent),
		tool.MustTypedTool("quick_add_event", "Create an event from a natural language description.", tk.quickAdd),
		tool.MustTypedTool("move_event", "Move an event to another calendar.", tk.moveEvent),
	}
}

func (tk *Toolkit) currentTime(_ *core.ToolContext, args currentTimeArgs) (any, error) {
	loc := time.UTC
	if args.TimeZone != "" {
		l, err := time.LoadLocation(args.TimeZone)
		if err != nil {
			return nil, tool.NewToolError("get_current_time", fmt.Sprintf("unknown time zone %q", args.TimeZone), tool.CodeValidation)
		}
		loc = l
	}

	now := tk.now().In(loc)

	return map[string]any{
		"now":       now.Format(time.RFC3339),
		"weekday":   now.Weekday().String(),
		"time_zone": loc.String(),
	}, nil
}

func (tk *Toolkit) listCalendars(tc *core.ToolContext, _ struct{}) (any, error) {
	out := []Calendar{}
	token := ""
	for page := 0; page < tk.opts.MaxPages; page++ {
		call := tk.svc.CalendarList.List().MaxResults(tk.opts.PageSize).Context(tc.Context())
		if token != "" {
			call = call.PageToken(token)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, toolkit.APIError("list_calendars", err)
		}
		for _, c := range resp.Items {
			out = append(out, toCalendar(c))
		}
		if token = resp.NextPageToken; token == "" {
			break
		}
	}
	return out, nil
}

func (tk *Toolkit) getCalendar(tc *core.ToolContext, args calendarArgs) (any, error) {
	c, err := tk.svc.CalendarList.Get(args.CalendarID).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("get_calendar", err)
	}
	return toCalendar(c), nil
}

func (tk *Toolkit) insertCalendar(tc *core.ToolContext, args insertCalendarArgs) (any, error) {
	c, err := tk.svc.Calendars.Insert(&calendar.Calendar{
		Summary:     args.Summary,
		Description: args.Description,
		TimeZone:    args.TimeZone,
	}).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("insert_calendar", err)
	}
	return Calendar{ID: c.Id, Summary: c.Summary, Description: c.Description, TimeZone: c.TimeZone}, nil
}

func (tk *Toolkit) deleteCalendar(tc *core.ToolContext, args calendarArgs) (any, error) {
	if args.CalendarID == PrimaryCalendar {
		return nil, tool.NewToolError("delete_calendar", "the primary calendar cannot be deleted", tool.CodeValidation)
	}
	if err := tk.svc.Calendars.Delete(args.CalendarID).Context(tc.Context()).Do(); err != nil {
		return nil, toolkit.APIError("delete_calendar", err)
	}
	return map[string]any{"deleted": args.CalendarID}, nil
}

func (tk *Toolkit) listEvents(tc *core.ToolContext, args listEventsArgs) (any, error) {
	timeMin, err := toolkit.NormalizeTime(args.TimeMin)
	if err != nil {
		return nil, err
	}
	timeMax, err := toolkit.NormalizeTime(args.TimeMax)
	if err != nil {
		return nil, err
	}

	out := []Event{}
	token := ""
	for page := 0; page < tk.opts.MaxPages; page++ {
		call := tk.svc.Events.List(calendarID(args.CalendarID)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(tk.opts.PageSize).
			Context(tc.Context())
		if timeMin != "" {
			call = call.TimeMin(timeMin)
		}
		if timeMax != "" {
			call = call.TimeMax(timeMax)
		}
		if args.Query != "" {
			call = call.Q(args.Query)
		}
		if token != "" {
			call = call.PageToken(token)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, toolkit.APIError("list_events", err)
		}
		for _, e := range resp.Items {
			out = append(out, toEvent(e))
		}
		if token = resp.NextPageToken; token == "" {
			break
		}
	}
	return out, nil
}

func (tk *Toolkit) getEvent(tc *core.ToolContext, args eventArgs) (any, error) {
	e, err := tk.svc.Events.Get(calendarID(args.CalendarID), args.EventID).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("get_event", err)
	}
	return toEvent(e), nil
}

func (tk *Toolkit) insertEvent(tc *core.ToolContext, args insertEventArgs) (any, error) {
	start, err := eventTime(args.Start)
	if err != nil {
		return nil, err
	}
	end, err := eventTime(args.End)
	if err != nil {
		return nil, err
	}
	if (start.Date == "") != (end.Date == "") {
		return nil, tool.NewToolError("insert_event", "start and end must both be dates or both be timestamps", tool.CodeValidation)
	}

	ev := &calendar.Event{
		Summary:     args.Summary,
		Description: args.Description,
		Location:    args.Location,
		Start:       start,
		End:         end,
	}
	for _, email := range args.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: email})
	}

	e, err := tk.svc.Events.Insert(calendarID(args.CalendarID), ev).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("insert_event", err)
	}
	return toEvent(e), nil
}

func (tk *Toolkit) updateEvent(tc *core.ToolContext, args updateEventArgs) (any, error) {
	patch := &calendar.Event{
		Summary:     args.Summary,
		Description: args.Description,
		Location:    args.Location,
	}
	if args.Start != "" {
		start, err := eventTime(args.Start)
		if err != nil {
			return nil, err
		}
		patch.Start = start
	}
	if args.End != "" {
		end, err := eventTime(args.End)
		if err != nil {
			return nil, err
		}
		patch.End = end
	}

	e, err := tk.svc.Events.Patch(calendarID(args.CalendarID), args.EventID, patch).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("update_event", err)
	}
	return toEvent(e), nil
}

func (tk *Toolkit) deleteEvent(tc *core.ToolContext, args eventArgs) (any, error) {
	if err := tk.svc.Events.Delete(calendarID(args.CalendarID), args.EventID).Context(tc.Context()).Do(); err != nil {
		return nil, toolkit.APIError("delete_event", err)
	}
	return map[string]any{"deleted": args.EventID}, nil
}

func (tk *Toolkit) quickAdd(tc *core.ToolContext, args quickAddArgs) (any, error) {
	e, err := tk.svc.Events.QuickAdd(calendarID(args.CalendarID), args.Text).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("quick_add_event", err)
	}
	return toEvent(e), nil
}

func (tk *Toolkit) moveEvent(tc *core.ToolContext, args moveEventArgs) (any, error) {
	e, err := tk.svc.Events.Move(calendarID(args.CalendarID), args.EventID, args.Destination).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("move_event", err)
	}
	return toEvent(e), nil
}

func calendarID(id string) string {
	if id == "" {
		return PrimaryCalendar
	}
	return id
}

// eventTime maps a date to an all-day EventDateTime and anything else to a
// timed one.
func eventTime(s string) (*calendar.EventDateTime, error) {
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return &calendar.EventDateTime{Date: d.Format(time.DateOnly)}, nil
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return nil, fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD", s)
	}
	return &calendar.EventDateTime{DateTime: s}, nil
}

func toCalendar(c *calendar.CalendarListEntry) Calendar {
	return Calendar{
		ID:          c.Id,
		Summary:     c.Summary,
		Description: c.Description,
		TimeZone:    c.TimeZone,
		Primary:     c.Primary,
		AccessRole:  c.AccessRole,
	}
}

func toEvent(e *calendar.Event) Event {
	out := Event{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Status:      e.Status,
		Link:        e.HtmlLink,
	}
	if e.Start != nil {
		out.Start, out.AllDay = when(e.Start)
	}
	if e.End != nil {
		out.End, _ = when(e.End)
	}
	for _, a := range e.Attendees {
		out.Attendees = append(out.Attendees, a.Email)
	}
	return out
}

func when(dt *calendar.EventDateTime) (string, bool) {
	if dt.DateTime != "" {
		return dt.DateTime, false
	}
	return dt.Date, true
}
