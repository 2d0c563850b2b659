package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

const (
	// DefaultGraphBaseURL is the Microsoft Graph v1.0 root.
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	graphDateTimeLayout = "2006-01-02T15:04:05.9999999"
	graphPageSize       = 200
)

// OutlookAdapter talks to Outlook calendars through Microsoft Graph.
type OutlookAdapter struct {
	auth    *Authenticator
	baseURL string
	logger  *logging.Logger
}

func NewOutlookAdapter(auth *Authenticator, baseURL string, logger *logging.Logger) *OutlookAdapter {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	return &OutlookAdapter{auth: auth, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

func (o *OutlookAdapter) Provider() connections.Provider { return connections.ProviderOutlook }

func (o *OutlookAdapter) AuthURL(ctx context.Context, userID string) (string, error) {
	return o.auth.AuthURL(ctx, connections.ProviderOutlook, userID)
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphEvent struct {
	ID          string         `json:"id,omitempty"`
	Subject     string         `json:"subject,omitempty"`
	Body        *graphBody     `json:"body,omitempty"`
	BodyPreview string         `json:"bodyPreview,omitempty"`
	Location    *graphLocation `json:"location,omitempty"`
	Start       *graphDateTime `json:"start,omitempty"`
	End         *graphDateTime `json:"end,omitempty"`
	IsAllDay    bool           `json:"isAllDay,omitempty"`
	IsCancelled bool           `json:"isCancelled,omitempty"`
}

type graphEventPage struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

// graphStatusError carries a non-2xx Graph response.
type graphStatusError struct {
	Status int
	Body   string
}

func (e *graphStatusError) Error() string {
	return fmt.Sprintf("graph returned %d: %s", e.Status, e.Body)
}

// do sends a Graph request and decodes a JSON response into out (when non-nil).
func (o *OutlookAdapter) do(ctx context.Context, client *http.Client, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	if !strings.HasPrefix(target, "http") {
		target = o.baseURL + target
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &graphStatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// calendarPath addresses the default calendar unless a specific one was stored.
func calendarPath(conn *connections.Connection) string {
	id := conn.CalendarIDOrPrimary()
	if id == "primary" {
		return "/me/calendar"
	}
	return "/me/calendars/" + url.PathEscape(id)
}

// HandleOAuthCallback exchanges the code, reads the profile and default calendar and stores the connection.
func (o *OutlookAdapter) HandleOAuthCallback(ctx context.Context, code, userID string) (*connections.Connection, error) {
	tok, err := o.auth.Exchange(ctx, connections.ProviderOutlook, code)
	if err != nil {
		return nil, err
	}
	client := o.auth.ClientForToken(ctx, tok)
	log := o.logger.ForUser(userID)

	conn := &connections.Connection{
		UserID:     userID,
		Provider:   connections.ProviderOutlook,
		CalendarID: "primary",
	}

	var profile struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := o.do(ctx, client, http.MethodGet, "/me", nil, &profile); err != nil {
		log.Warn("outlook profile lookup failed", "error", err)
	} else {
		conn.AccountEmail = profile.Mail
		if conn.AccountEmail == "" {
			conn.AccountEmail = profile.UserPrincipalName
		}
	}

	var cal struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := o.do(ctx, client, http.MethodGet, "/me/calendar", nil, &cal); err != nil {
		log.Warn("outlook default calendar lookup failed", "error", err)
	} else {
		conn.CalendarName = cal.Name
	}

	return o.auth.Save(ctx, conn, tok)
}

func (o *OutlookAdapter) CheckAvailability(ctx context.Context, userID string, start, end time.Time) (*Availability, error) {
	events, err := o.ListEvents(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return availabilityFromEvents(events, start, end), nil
}

func (o *OutlookAdapter) ListEvents(ctx context.Context, userID string, start, end time.Time) ([]Event, error) {
	client, conn, err := o.auth.Client(ctx, connections.ProviderOutlook, userID)
	if err != nil {
		return nil, providerErr(connections.ProviderOutlook, "list events", err)
	}

	q := url.Values{}
	q.Set("startDateTime", start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", end.UTC().Format(time.RFC3339))
	q.Set("$top", fmt.Sprint(graphPageSize))
	q.Set("$orderby", "start/dateTime")
	next := calendarPath(conn) + "/calendarView?" + q.Encode()

	var out []Event
	for next != "" {
		var page graphEventPage
		if err := o.do(ctx, client, http.MethodGet, next, nil, &page); err != nil {
			return nil, providerErr(connections.ProviderOutlook, "list events", err)
		}
		for _, item := range page.Value {
			if item.IsCancelled {
				continue
			}
			out = append(out, fromGraphEvent(item))
		}
		next = page.NextLink
	}
	return out, nil
}

func (o *OutlookAdapter) CreateEvent(ctx context.Context, userID string, in EventInput) (*Event, error) {
	client, conn, err := o.auth.Client(ctx, connections.ProviderOutlook, userID)
	if err != nil {
		return nil, providerErr(connections.ProviderOutlook, "create event", err)
	}
	var created graphEvent
	if err := o.do(ctx, client, http.MethodPost, calendarPath(conn)+"/events", toGraphEvent(in), &created); err != nil {
		return nil, providerErr(connections.ProviderOutlook, "create event", err)
	}
	ev := fromGraphEvent(created)
	return &ev, nil
}

func (o *OutlookAdapter) UpdateEvent(ctx context.Context, userID, eventID string, in EventInput) (*Event, error) {
	client, _, err := o.auth.Client(ctx, connections.ProviderOutlook, userID)
	if err != nil {
		return nil, providerErr(connections.ProviderOutlook, "update event", err)
	}
	var updated graphEvent
	if err := o.do(ctx, client, http.MethodPatch, "/me/events/"+url.PathEscape(eventID), toGraphEvent(in), &updated); err != nil {
		return nil, providerErr(connections.ProviderOutlook, "update event", err)
	}
	ev := fromGraphEvent(updated)
	return &ev, nil
}

func (o *OutlookAdapter) DeleteEvent(ctx context.Context, userID, eventID string) error {
	client, _, err := o.auth.Client(ctx, connections.ProviderOutlook, userID)
	if err != nil {
		return providerErr(connections.ProviderOutlook, "delete event", err)
	}
	err = o.do(ctx, client, http.MethodDelete, "/me/events/"+url.PathEscape(eventID), nil, nil)
	if statusErr, ok := err.(*graphStatusError); ok && (statusErr.Status == http.StatusNotFound || statusErr.Status == http.StatusGone) {
		return nil
	}
	return providerErr(connections.ProviderOutlook, "delete event", err)
}

func toGraphEvent(in EventInput) graphEvent {
	ev := graphEvent{Subject: in.Summary}
	if in.Description != "" {
		ev.Body = &graphBody{ContentType: "text", Content: in.Description}
	}
	if in.Location != "" {
		ev.Location = &graphLocation{DisplayName: in.Location}
	}
	if !in.Start.IsZero() {
		ev.Start = &graphDateTime{DateTime: in.Start.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"}
	}
	if !in.End.IsZero() {
		ev.End = &graphDateTime{DateTime: in.End.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"}
	}
	return ev
}

func fromGraphEvent(item graphEvent) Event {
	ev := Event{ID: item.ID, Summary: item.Subject}
	switch {
	case item.Body != nil && item.Body.ContentType == "text":
		ev.Description = item.Body.Content
	default:
		ev.Description = item.BodyPreview
	}
	if item.Location != nil {
		ev.Location = item.Location.DisplayName
	}
	if item.IsAllDay {
		return ev
	}
	ev.Start = parseGraphTime(item.Start)
	ev.End = parseGraphTime(item.End)
	return ev
}

func parseGraphTime(dt *graphDateTime) time.Time {
	if dt == nil || dt.DateTime == "" {
		return time.Time{}
	}
	loc := time.UTC
	if dt.TimeZone != "" && !strings.EqualFold(dt.TimeZone, "UTC") {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(graphDateTimeLayout, dt.DateTime, loc)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
