package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"conversions-relay-service/internal/facebook"
	"conversions-relay-service/internal/geoip"
	"conversions-relay-service/internal/model"
)

// GeoResolver is the slice of the geoip service the pipeline needs.
type GeoResolver interface {
	Lookup(ip string) model.GeoLocation
	Ready() bool
}

// EventSender delivers one formatted event upstream.
type EventSender interface {
	SendEvent(ctx context.Context, creds model.Credentials, event facebook.Event) (facebook.SendResult, error)
}

// EventService runs the enrichment and delivery pipeline.
type EventService interface {
	BuildEvent(req model.EventRequest) (model.NormalizedEvent, error)
	ProcessEvent(ctx context.Context, req model.EventRequest, meta model.RequestMeta, domainHint string) (model.DeliveryResult, error)
}

type eventService struct {
	resolver PixelResolver
	geo      GeoResolver
	sender   EventSender
	worker   RecordWorker
	now      func() time.Time

	defaultCountryCode string
	defaultCurrency    string
}

// NewEventService constructs the pipeline orchestrator.
func NewEventService(resolver PixelResolver, geo GeoResolver, sender EventSender, worker RecordWorker, defaultCountryCode, defaultCurrency string) EventService {
	return &eventService{
		resolver:           resolver,
		geo:                geo,
		sender:             sender,
		worker:             worker,
		now:                time.Now,
		defaultCountryCode: defaultCountryCode,
		defaultCurrency:    defaultCurrency,
	}
}

// BuildEvent validates a raw request and coerces it into the canonical
// shape. User-data fields that fail their own checks are dropped, never
// fatal; only the top-level rules produce a ValidationError.
func (s *eventService) BuildEvent(req model.EventRequest) (model.NormalizedEvent, error) {
	if err := ValidateRequest(req); err != nil {
		return model.NormalizedEvent{}, err
	}

	now := s.now().UTC()

	ud := req.UserData
	ud.Email = NormalizeEmail(ud.Email)
	ud.Phone = NormalizePhone(ud.Phone, s.defaultCountryCode)
	ud.FirstName = strings.TrimSpace(ud.FirstName)
	ud.LastName = strings.TrimSpace(ud.LastName)
	if ud.IP != "" && !geoip.IsValidIP(strings.TrimPrefix(ud.IP, "::ffff:")) {
		ud.IP = ""
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	return model.NormalizedEvent{
		EventName:      strings.TrimSpace(req.EventName),
		PixelID:        req.PixelID,
		EventTime:      NormalizeTimestamp(req.EventTime, now),
		EventID:        eventID,
		EventSourceURL: req.EventSourceURL,
		UserData:       ud,
		CustomData:     s.normalizeCustomData(req.CustomData),
	}, nil
}

func (s *eventService) normalizeCustomData(custom map[string]any) map[string]any {
	if custom == nil {
		return nil
	}

	out := make(map[string]any, len(custom))
	for k, v := range custom {
		out[k] = v
	}
	if raw, ok := out["value"]; ok {
		if val, err := parseEventValue(raw); err == nil {
			out["value"] = val
		}
		if _, ok := out["currency"]; !ok {
			out["currency"] = s.defaultCurrency
		}
	}
	return out
}

// ProcessEvent runs the full pipeline: validate, resolve credentials, enrich
// with geolocation, format, deliver with retries and record the outcome.
// Geolocation failures are absorbed; persistence is best-effort.
func (s *eventService) ProcessEvent(ctx context.Context, req model.EventRequest, meta model.RequestMeta, domainHint string) (model.DeliveryResult, error) {
	event, err := s.BuildEvent(req)
	if err != nil {
		return model.DeliveryResult{Status: model.StatusError}, err
	}

	creds, err := s.resolver.Resolve(ctx, event, domainHint)
	if err != nil {
		return model.DeliveryResult{Status: model.StatusError, EventID: event.EventID}, err
	}

	if event.UserData.IP == "" {
		meta.PayloadIP = req.UserData.IP
		if ip := geoip.ExtractClientIP(meta); ip != "" {
			event.UserData.IP = ip
		}
	}

	geo := model.GeoLocation{}
	if s.geo != nil && event.UserData.IP != "" {
		geo = s.geo.Lookup(event.UserData.IP)
	}

	payload := facebook.FormatEvent(event, geo)

	record := s.newRecord(event, creds)
	s.worker.Enqueue(record)

	res, sendErr := s.sender.SendEvent(ctx, creds, payload)
	if sendErr != nil {
		result := model.DeliveryResult{
			Status:       model.StatusError,
			EventID:      event.EventID,
			ErrorMessage: sendErr.Error(),
		}
		var de *facebook.DeliveryError
		if errors.As(sendErr, &de) {
			result.Status = model.StatusFailed
			result.AttemptCount = de.Attempts
		}

		record.Status = result.Status
		record.ErrorMessage = result.ErrorMessage
		record.AttemptCount = clampAttempts(result.AttemptCount)
		record.UpdatedAt = s.now().UTC()
		s.worker.Enqueue(record)
		return result, sendErr
	}

	result := model.DeliveryResult{
		Status:          model.StatusSent,
		EventID:         event.EventID,
		TraceID:         res.TraceID,
		EventsReceived:  res.EventsReceived,
		ResponsePayload: res.Body,
		AttemptCount:    res.Attempts,
	}

	record.Status = model.StatusSent
	record.ResponsePayload = res.Body
	record.TraceID = res.TraceID
	record.AttemptCount = clampAttempts(res.Attempts)
	record.UpdatedAt = s.now().UTC()
	s.worker.Enqueue(record)

	return result, nil
}

// clampAttempts saturates at the record column's UInt8 range; the full count
// stays intact on the DeliveryResult.
func clampAttempts(n int) uint8 {
	if n > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(n)
}

func (s *eventService) newRecord(event model.NormalizedEvent, creds model.Credentials) model.Event {
	return model.Event{
		ID:         event.EventID,
		PixelID:    creds.PixelID,
		EventName:  event.EventName,
		EventTime:  time.Unix(event.EventTime, 0).UTC(),
		Status:     model.StatusPending,
		UserData:   event.UserData,
		CustomData: event.CustomData,
		UpdatedAt:  s.now().UTC(),
	}
}
