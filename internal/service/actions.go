package service

import (
	"context"
	"strings"

	"github.com/telagent/gateway/internal/domain"
	"github.com/telagent/gateway/internal/graph"
	"github.com/telagent/gateway/internal/intent"
)

// SendAsUser exchanges the caller's bearer token for a downstream Graph
// token and sends the mail on the caller's behalf.
func (s *Service) SendAsUser(ctx context.Context, bearerToken string, draft domain.EmailDraft) error {
	if strings.TrimSpace(draft.Subject) == "" {
		return &domain.ValidationError{Reason: "subject is required"}
	}
	if strings.TrimSpace(draft.BodyHTML) == "" {
		return &domain.ValidationError{Reason: "bodyHtml is required"}
	}
	if len(draft.Recipients) == 0 {
		return &domain.ValidationError{Reason: "at least one recipient is required"}
	}

	token, err := s.exchanger.ExchangeUserAssertion(ctx, bearerToken, s.config.GraphScope)
	if err != nil {
		return err
	}
	return s.graph.SendMailAsUser(ctx, token.AccessToken, draft.Subject, draft.BodyHTML, draft.Recipients)
}

// ScheduleAsUser exchanges the caller's bearer token and creates the
// calendar event on the caller's behalf. Missing timezone, calendar and
// location fall back to the same defaults the draft extractor applies;
// the draft is updated in place so callers can echo the effective values.
func (s *Service) ScheduleAsUser(ctx context.Context, bearerToken string, draft *domain.MeetingDraft) (*graph.EventResult, error) {
	if strings.TrimSpace(draft.Subject) == "" {
		return nil, &domain.ValidationError{Reason: "subject is required"}
	}
	if strings.TrimSpace(draft.Start) == "" || strings.TrimSpace(draft.End) == "" {
		return nil, &domain.ValidationError{Reason: "start and end are required"}
	}
	if len(draft.RequiredAttendees) == 0 {
		return nil, &domain.ValidationError{Reason: "at least one required attendee is required"}
	}
	if draft.TimeZone == "" {
		draft.TimeZone = intent.DefaultTimeZone
	}
	if draft.CalendarID == "" {
		draft.CalendarID = intent.DefaultCalendar
	}
	if draft.Location == "" {
		draft.Location = intent.DefaultLocation
	}

	token, err := s.exchanger.ExchangeUserAssertion(ctx, bearerToken, s.config.GraphScope)
	if err != nil {
		return nil, err
	}
	return s.graph.CreateEventAsUser(ctx, token.AccessToken, *draft)
}
