package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"agent_server/core/domain"
	"agent_server/core/port/out"
	"agent_server/pkg/apperr"
)

// GoogleActionsConfig holds the Calendar and Tasks adapter configuration.
type GoogleActionsConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenDir     string
	Timezone     string
}

// GoogleActionsAdapter implements out.ActionExecutorPort against Google
// Calendar and Google Tasks. Reminders are calendar events at their due
// time; tasks land in the account's default task list.
type GoogleActionsAdapter struct {
	config   *oauth2.Config
	tokenDir string
	timezone string
	log      zerolog.Logger

	mu        sync.Mutex
	calendars map[string]*calendar.Service
	tasks     map[string]*tasks.Service
}

func NewGoogleActionsAdapter(cfg *GoogleActionsConfig, log zerolog.Logger) *GoogleActionsAdapter {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			calendar.CalendarEventsScope,
			tasks.TasksScope,
		},
		Endpoint: google.Endpoint,
	}

	timezone := cfg.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	return &GoogleActionsAdapter{
		config:    oauthConfig,
		tokenDir:  cfg.TokenDir,
		timezone:  timezone,
		log:       log.With().Str("component", "google-actions").Logger(),
		calendars: make(map[string]*calendar.Service),
		tasks:     make(map[string]*tasks.Service),
	}
}

// CreateEvent inserts a calendar event into the primary calendar. An absent
// end time collapses the event to its start instant.
func (a *GoogleActionsAdapter) CreateEvent(ctx context.Context, accountID string, intent *domain.CalendarIntent) (*out.ActionOutcome, error) {
	svc, err := a.calendarService(ctx, accountID)
	if err != nil {
		return nil, err
	}

	start, err := parseEventTime(intent.StartTime)
	if err != nil {
		return nil, apperr.StructuralValidation("unparseable event start time").WithDetail("start_time", intent.StartTime)
	}
	end := start
	if intent.EndTime != "" {
		if parsed, endErr := parseEventTime(intent.EndTime); endErr == nil {
			end = parsed
		}
	}

	event := &calendar.Event{
		Summary:     intent.Title,
		Description: intent.Description,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: a.timezone},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: a.timezone},
	}
	for _, addr := range intent.Attendees {
		if validEmail(addr) {
			event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: addr})
		}
	}

	created, err := svc.Events.Insert("primary", event).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return nil, apperr.TransientBackend(err, "calendar event insert failed")
	}

	a.log.Info().Str("account_id", accountID).Str("event_id", created.Id).Msg("calendar event created")
	return &out.ActionOutcome{Kind: domain.ToolCalendar, ID: created.Id, Link: created.HtmlLink}, nil
}

// CreateReminder creates a calendar event at the due time. Google Calendar
// has no standalone reminder resource, so a zero-length event with the
// default popup serves as one.
func (a *GoogleActionsAdapter) CreateReminder(ctx context.Context, accountID string, intent *domain.ReminderIntent) (*out.ActionOutcome, error) {
	event := &domain.CalendarIntent{
		Title:       intent.Title,
		StartTime:   intent.DueDate,
		Description: intent.Description,
	}
	outcome, err := a.CreateEvent(ctx, accountID, event)
	if err != nil {
		return nil, err
	}
	return &out.ActionOutcome{Kind: domain.ToolReminder, ID: outcome.ID, Link: outcome.Link}, nil
}

// CreateTask inserts a task into the account's default (first) task list.
func (a *GoogleActionsAdapter) CreateTask(ctx context.Context, accountID string, intent *domain.TaskIntent) (*out.ActionOutcome, error) {
	svc, err := a.tasksService(ctx, accountID)
	if err != nil {
		return nil, err
	}

	lists, err := svc.Tasklists.List().MaxResults(1).Context(ctx).Do()
	if err != nil {
		return nil, apperr.TransientBackend(err, "task list lookup failed")
	}
	if len(lists.Items) == 0 {
		return nil, apperr.New(apperr.CodeMailbox, "account has no task list")
	}

	task := &tasks.Task{
		Title: intent.Title,
		Notes: intent.Description,
	}
	if intent.DueDate != "" {
		if due, dueErr := parseEventTime(intent.DueDate); dueErr == nil {
			task.Due = due.Format(time.RFC3339)
		}
	}

	created, err := svc.Tasks.Insert(lists.Items[0].Id, task).Context(ctx).Do()
	if err != nil {
		return nil, apperr.TransientBackend(err, "task insert failed")
	}

	a.log.Info().Str("account_id", accountID).Str("task_id", created.Id).Msg("task created")
	return &out.ActionOutcome{Kind: domain.ToolTask, ID: created.Id, Link: created.SelfLink}, nil
}

func (a *GoogleActionsAdapter) calendarService(ctx context.Context, accountID string) (*calendar.Service, error) {
	a.mu.Lock()
	if svc, ok := a.calendars[accountID]; ok {
		a.mu.Unlock()
		return svc, nil
	}
	a.mu.Unlock()

	token, err := loadAccountToken(a.tokenDir, accountID)
	if err != nil {
		return nil, err
	}
	svc, err := calendar.NewService(ctx, option.WithTokenSource(a.config.TokenSource(ctx, token)))
	if err != nil {
		return nil, apperr.TransientBackend(err, "failed to create calendar service")
	}

	a.mu.Lock()
	a.calendars[accountID] = svc
	a.mu.Unlock()
	return svc, nil
}

func (a *GoogleActionsAdapter) tasksService(ctx context.Context, accountID string) (*tasks.Service, error) {
	a.mu.Lock()
	if svc, ok := a.tasks[accountID]; ok {
		a.mu.Unlock()
		return svc, nil
	}
	a.mu.Unlock()

	token, err := loadAccountToken(a.tokenDir, accountID)
	if err != nil {
		return nil, err
	}
	svc, err := tasks.NewService(ctx, option.WithTokenSource(a.config.TokenSource(ctx, token)))
	if err != nil {
		return nil, apperr.TransientBackend(err, "failed to create tasks service")
	}

	a.mu.Lock()
	a.tasks[accountID] = svc
	a.mu.Unlock()
	return svc, nil
}

// parseEventTime accepts RFC 3339 and the date-only form, matching what the
// action gate already validated.
func parseEventTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func validEmail(addr string) bool {
	at := strings.Index(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return false
	}
	return strings.Contains(addr[at+1:], ".")
}

var _ out.ActionExecutorPort = (*GoogleActionsAdapter)(nil)
