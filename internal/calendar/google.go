package calendar

import (
	"context"
	"errors"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

const googleMaxResults = 2500

// GoogleAdapter talks to the Google Calendar v3 API.
type GoogleAdapter struct {
	auth     *Authenticator
	endpoint string
	logger   *logging.Logger
}

// NewGoogleAdapter creates the Google adapter. endpoint overrides the API base URL (tests); leave empty in production.
func NewGoogleAdapter(auth *Authenticator, endpoint string, logger *logging.Logger) *GoogleAdapter {
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleAdapter{auth: auth, endpoint: endpoint, logger: logger}
}

func (g *GoogleAdapter) Provider() connections.Provider { return connections.ProviderGoogle }

func (g *GoogleAdapter) AuthURL(ctx context.Context, userID string) (string, error) {
	return g.auth.AuthURL(ctx, connections.ProviderGoogle, userID)
}

func (g *GoogleAdapter) newService(ctx context.Context, client *http.Client) (*gcal.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	return gcal.NewService(ctx, opts...)
}

func (g *GoogleAdapter) service(ctx context.Context, userID string) (*gcal.Service, *connections.Connection, error) {
	client, conn, err := g.auth.Client(ctx, connections.ProviderGoogle, userID)
	if err != nil {
		return nil, nil, err
	}
	svc, err := g.newService(ctx, client)
	if err != nil {
		return nil, nil, err
	}
	return svc, conn, nil
}

// HandleOAuthCallback exchanges the code, reads the primary calendar and stores the connection.
func (g *GoogleAdapter) HandleOAuthCallback(ctx context.Context, code, userID string) (*connections.Connection, error) {
	tok, err := g.auth.Exchange(ctx, connections.ProviderGoogle, code)
	if err != nil {
		return nil, err
	}

	conn := &connections.Connection{
		UserID:     userID,
		Provider:   connections.ProviderGoogle,
		CalendarID: "primary",
	}
	svc, err := g.newService(ctx, g.auth.ClientForToken(ctx, tok))
	if err != nil {
		return nil, providerErr(connections.ProviderGoogle, "read calendar", err)
	}
	primary, err := svc.CalendarList.Get("primary").Context(ctx).Do()
	if err != nil {
		g.logger.ForUser(userID).Warn("google primary calendar lookup failed", "error", err)
	} else {
		conn.CalendarID = primary.Id
		conn.CalendarName = primary.Summary
		// The primary calendar id is the account email.
		conn.AccountEmail = primary.Id
	}

	return g.auth.Save(ctx, conn, tok)
}

func (g *GoogleAdapter) CheckAvailability(ctx context.Context, userID string, start, end time.Time) (*Availability, error) {
	events, err := g.ListEvents(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return availabilityFromEvents(events, start, end), nil
}

func (g *GoogleAdapter) ListEvents(ctx context.Context, userID string, start, end time.Time) ([]Event, error) {
	svc, conn, err := g.service(ctx, userID)
	if err != nil {
		return nil, providerErr(connections.ProviderGoogle, "list events", err)
	}

	var out []Event
	call := svc.Events.List(conn.CalendarIDOrPrimary()).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(googleMaxResults)
	err = call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			out = append(out, fromGoogleEvent(item))
		}
		return nil
	})
	if err != nil {
		return nil, providerErr(connections.ProviderGoogle, "list events", err)
	}
	return out, nil
}

func (g *GoogleAdapter) CreateEvent(ctx context.Context, userID string, in EventInput) (*Event, error) {
	svc, conn, err := g.service(ctx, userID)
	if err != nil {
		return nil, providerErr(connections.ProviderGoogle, "create event", err)
	}
	created, err := svc.Events.Insert(conn.CalendarIDOrPrimary(), toGoogleEvent(in)).Context(ctx).Do()
	if err != nil {
		return nil, providerErr(connections.ProviderGoogle, "create event", err)
	}
	ev := fromGoogleEvent(created)
	return &ev, nil
}

func (g *GoogleAdapter) UpdateEvent(ctx context.Context, userID, eventID string, in EventInput) (*Event, error) {
	svc, conn, err := g.service(ctx, userID)
	if err != nil {
		return nil, providerErr(connections.ProviderGoogle, "update event", err)
	}
	updated, err := svc.Events.Patch(conn.CalendarIDOrPrimary(), eventID, toGoogleEvent(in)).Context(ctx).Do()
	if err != nil {
		return nil, providerErr(connections.ProviderGoogle, "update event", err)
	}
	ev := fromGoogleEvent(updated)
	return &ev, nil
}

func (g *GoogleAdapter) DeleteEvent(ctx context.Context, userID, eventID string) error {
	svc, conn, err := g.service(ctx, userID)
	if err != nil {
		return providerErr(connections.ProviderGoogle, "delete event", err)
	}
	err = svc.Events.Delete(conn.CalendarIDOrPrimary(), eventID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
			return nil
		}
		return providerErr(connections.ProviderGoogle, "delete event", err)
	}
	return nil
}

func toGoogleEvent(in EventInput) *gcal.Event {
	ev := &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
	}
	if !in.Start.IsZero() {
		ev.Start = &gcal.EventDateTime{DateTime: in.Start.Format(time.RFC3339), TimeZone: in.Timezone}
	}
	if !in.End.IsZero() {
		ev.End = &gcal.EventDateTime{DateTime: in.End.Format(time.RFC3339), TimeZone: in.Timezone}
	}
	return ev
}

func fromGoogleEvent(item *gcal.Event) Event {
	ev := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
	}
	if item.Start != nil && item.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
			ev.Start = t
		}
	}
	if item.End != nil && item.End.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
			ev.End = t
		}
	}
	return ev
}
