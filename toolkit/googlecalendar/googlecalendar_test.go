package googlecalendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/tool"
	"github.com/hupe1980/agentdesk/toolkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestToolkit(t *testing.T, handler http.HandlerFunc) *Toolkit {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tk, err := New(context.Background(), func(o *toolkit.Options) {
		o.ClientOptions = []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithHTTPClient(srv.Client()),
		}
	})
	require.NoError(t, err)

	return tk
}

func call(t *testing.T, tk *Toolkit, name string, args map[string]any) (any, error) {
	t.Helper()

	for _, tl := range tk.Tools() {
		if tl.Name() == name {
			return tl.Call(core.NewToolContext(context.Background(), "fc-1"), args)
		}
	}
	t.Fatalf("tool %q not found", name)
	return nil, nil
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestTools_Names(t *testing.T) {
	tk := &Toolkit{opts: toolkit.DefaultOptions(), now: time.Now}

	set, err := tool.NewSet(tk.Tools()...)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"get_current_time", "list_calendars", "get_calendar", "insert_calendar",
		"delete_calendar", "list_events", "get_event", "insert_event",
		"update_event", "delete_event", "quick_add_event", "move_event",
	}, set.Names())

	for _, def := range set.Definitions() {
		assert.Equal(t, "object", def.Function.Parameters["type"], def.Function.Name)
	}
}

func TestCurrentTime(t *testing.T) {
	tk := &Toolkit{opts: toolkit.DefaultOptions(), now: func() time.Time {
		return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	}}

	out, err := call(t, tk, "get_current_time", map[string]any{"time_zone": "Europe/Berlin"})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "2026-10-15T14:00:00+02:00", m["now"])
	assert.Equal(t, "Thursday", m["weekday"])

	_, err = call(t, tk, "get_current_time", map[string]any{"time_zone": "Mars/Olympus"})
	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeValidation, toolErr.Code)
}

func TestListCalendars(t *testing.T) {
	tk := newTestToolkit(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/users/me/calendarList"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"me@example.com","summary":"Me","primary":true,"accessRole":"owner"},
			{"id":"team@group","summary":"Team","accessRole":"reader"}
		]}`))
	})

	out, err := call(t, tk, "list_calendars", map[string]any{})
	require.NoError(t, err)

	cals := out.([]Calendar)
	require.Len(t, cals, 2)
	assert.True(t, cals[0].Primary)
	assert.Equal(t, "reader", cals[1].AccessRole)
}

func TestListEvents_DefaultsToPrimary(t *testing.T) {
	tk := newTestToolkit(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "2026-10-15T00:00:00Z", q.Get("timeMin"))
		assert.Equal(t, "dentist", q.Get("q"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"e1","summary":"Dentist","start":{"dateTime":"2026-10-16T09:00:00+02:00"},"end":{"dateTime":"2026-10-16T10:00:00+02:00"}},
			{"id":"e2","summary":"Holiday","start":{"date":"2026-10-20"},"end":{"date":"2026-10-21"}}
		]}`))
	})

	out, err := call(t, tk, "list_events", map[string]any{"time_min": "2026-10-15", "query": "dentist"})
	require.NoError(t, err)

	events := out.([]Event)
	require.Len(t, events, 2)
	assert.Equal(t, "2026-10-16T09:00:00+02:00", events[0].Start)
	assert.False(t, events[0].AllDay)
	assert.Equal(t, "2026-10-20", events[1].Start)
	assert.True(t, events[1].AllDay)
}

func TestInsertEvent(t *testing.T) {
	tk := newTestToolkit(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasSuffix(r.URL.Path, "/calendars/work/events"), r.URL.Path)

		got := decodeBody(t, r)
		assert.Equal(t, "Review", got["summary"])
		assert.Equal(t, map[string]any{"dateTime": "2026-10-16T09:00:00Z"}, got["start"])
		assert.Len(t, got["attendees"], 2)

		got["id"] = "e7"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(got)
	})

	out, err := call(t, tk, "insert_event", map[string]any{
		"calendar_id": "work",
		"summary":     "Review",
		"start":       "2026-10-16T09:00:00Z",
		"end":         "2026-10-16T10:00:00Z",
		"attendees":   []any{"a@example.com", "b@example.com"},
	})
	require.NoError(t, err)

	ev := out.(Event)
	assert.Equal(t, "e7", ev.ID)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, ev.Attendees)
}

func TestInsertEvent_MixedBounds(t *testing.T) {
	tk := newTestToolkit(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})

	_, err := call(t, tk, "insert_event", map[string]any{
		"summary": "Trip",
		"start":   "2026-10-16",
		"end":     "2026-10-18T10:00:00Z",
	})

	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeValidation, toolErr.Code)
}

func TestUpdateEvent_PatchesOnlyGivenFields(t *testing.T) {
	tk := newTestToolkit(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)

		got := decodeBody(t, r)
		assert.Equal(t, "Moved", got["summary"])
		assert.NotContains(t, got, "start")
		assert.NotContains(t, got, "end")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"e1","summary":"Moved"}`))
	})

	out, err := call(t, tk, "update_event", map[string]any{"event_id": "e1", "summary": "Moved"})
	require.NoError(t, err)
	assert.Equal(t, "Moved", out.(Event).Summary)
}

func TestQuickAddAndMove(t *testing.T) {
	tk := newTestToolkit(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/events/quickAdd"):
			assert.Equal(t, "Lunch tomorrow at noon", r.URL.Query().Get("text"))
			_, _ = w.Write([]byte(`{"id":"q1","summary":"Lunch"}`))
		case strings.HasSuffix(r.URL.Path, "/events/q1/move"):
			assert.Equal(t, "team@group", r.URL.Query().Get("destination"))
			_, _ = w.Write([]byte(`{"id":"q1","summary":"Lunch"}`))
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	})

	out, err := call(t, tk, "quick_add_event", map[string]any{"text": "Lunch tomorrow at noon"})
	require.NoError(t, err)
	assert.Equal(t, "q1", out.(Event).ID)

	_, err = call(t, tk, "move_event", map[string]any{"event_id": "q1", "destination": "team@group"})
	require.NoError(t, err)
}

func TestDeleteCalendar_RejectsPrimary(t *testing.T) {
	tk := &Toolkit{opts: toolkit.DefaultOptions(), now: time.Now}

	_, err := call(t, tk, "delete_calendar", map[string]any{"calendar_id": "primary"})

	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeValidation, toolErr.Code)
}

func TestGetEvent_APIError(t *testing.T) {
	tk := newTestToolkit(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Insufficient permissions"}}`))
	})

	_, err := call(t, tk, "get_event", map[string]any{"event_id": "e1"})

	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "HTTP_403", toolErr.Code)
	assert.Equal(t, "Insufficient permissions", toolErr.Message)
}
