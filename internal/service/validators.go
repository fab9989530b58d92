package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"conversions-relay-service/internal/model"
)

// maxEventAge bounds how far in the past an event_time may lie. Values
// outside [now-maxEventAge, now] are clamped, never rejected.
const maxEventAge = 7 * 24 * time.Hour

// millisecondThreshold: unix-second timestamps beyond this are assumed to be
// milliseconds sent by a client and are converted.
const millisecondThreshold = int64(1e12)

var pixelIDPattern = regexp.MustCompile(`^\d+$`)

var validate = validator.New()

// ValidateRequest runs struct-tag validation plus the rules tags cannot
// express, returning a field-naming ValidationError on the first violation.
func ValidateRequest(req model.EventRequest) error {
	if strings.TrimSpace(req.EventName) == "" {
		return &ValidationError{Field: "event_name", Message: "is required"}
	}

	if req.PixelID != "" && !pixelIDPattern.MatchString(req.PixelID) {
		return &ValidationError{Field: "pixel_id", Message: "must contain only digits"}
	}

	if req.EventTime < 0 {
		return &ValidationError{Field: "event_time", Message: "must be a non-negative integer"}
	}

	if err := validate.Struct(req); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return &ValidationError{
				Field:   fieldName(errs[0]),
				Message: "failed " + errs[0].Tag() + " validation",
			}
		}
		return &ValidationError{Message: err.Error()}
	}

	if raw, ok := req.CustomData["value"]; ok {
		if _, err := parseEventValue(raw); err != nil {
			return &ValidationError{Field: "custom_data.value", Message: "must be a non-negative number"}
		}
	}

	return nil
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "EventName":
		return "event_name"
	case "EventSourceURL":
		return "event_source_url"
	default:
		return strings.ToLower(fe.Field())
	}
}

// NormalizeTimestamp defaults an absent timestamp to now, converts
// millisecond values to seconds and clamps the result into the allowed
// window.
func NormalizeTimestamp(ts int64, now time.Time) int64 {
	if ts == 0 {
		return now.Unix()
	}
	if ts > millisecondThreshold {
		ts /= 1000
	}
	if min := now.Add(-maxEventAge).Unix(); ts < min {
		return min
	}
	if max := now.Unix(); ts > max {
		return max
	}
	return ts
}

// NormalizeEmail lowercases a trimmed email, dropping it when malformed.
// User-data field problems never fail the event, they only strip the field.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	if err := validate.Var(email, "email"); err != nil {
		return ""
	}
	return email
}

// NormalizePhone strips non-digits and prepends the default country code when
// the digit count suggests a local number. Too-short numbers are dropped.
func NormalizePhone(phone, defaultCountryCode string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	cleaned := digits.String()
	if len(cleaned) < 10 {
		return ""
	}
	if len(cleaned) == 10 {
		return defaultCountryCode + cleaned
	}
	return cleaned
}

// parseEventValue coerces a custom_data value into a non-negative float.
func parseEventValue(raw any) (float64, error) {
	var val float64
	switch v := raw.(type) {
	case float64:
		val = v
	case int:
		val = float64(v)
	case int64:
		val = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, err
		}
		val = parsed
	default:
		return 0, strconv.ErrSyntax
	}
	if val < 0 {
		return 0, strconv.ErrRange
	}
	return val, nil
}
