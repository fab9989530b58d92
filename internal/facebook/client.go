package facebook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"conversions-relay-service/internal/model"
)

// maxResponseBytes bounds how much of an upstream reply is read and stored.
const maxResponseBytes = 1 << 20

// DeliveryError is the terminal failure returned once the retry budget is
// exhausted or a non-retryable response arrives. StatusCode is the last known
// upstream status, or 503 when the transport never produced one.
type DeliveryError struct {
	StatusCode int
	Attempts   int
	Message    string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed after %d attempt(s) (status %d): %s", e.Attempts, e.StatusCode, e.Message)
}

// Code returns the stable machine-readable error code.
func (e *DeliveryError) Code() string { return "delivery_failed" }

// SendResult reports a successful delivery.
type SendResult struct {
	StatusCode     int
	EventsReceived int
	TraceID        string
	Body           string
	Attempts       int
}

type attemptResult struct {
	status int
	body   []byte
}

// Client delivers formatted events to the Conversions API with bounded
// retries. A circuit breaker guards the upstream; an open breaker counts as a
// transient failure.
type Client struct {
	apiURL      string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker[attemptResult]
	maxAttempts int
	baseDelay   time.Duration
}

// NewClient builds a delivery client. baseDelay is the first inter-retry
// delay; subsequent delays double.
func NewClient(apiURL string, timeout time.Duration, maxAttempts int, baseDelay time.Duration) *Client {
	breaker := gobreaker.NewCircuitBreaker[attemptResult](gobreaker.Settings{
		Name:    "facebook-conversions",
		Timeout: 30 * time.Second,
	})

	return &Client{
		apiURL:      apiURL,
		httpClient:  &http.Client{Timeout: timeout},
		breaker:     breaker,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// SendEvent posts one event. Missing credentials or event name fail fast
// before any network call. Transient failures (transport errors, 5xx, rate
// limits) are retried up to the configured budget with exponential backoff;
// other 4xx responses are terminal immediately.
func (c *Client) SendEvent(ctx context.Context, creds model.Credentials, event Event) (SendResult, error) {
	if creds.PixelID == "" || creds.AccessToken == "" {
		return SendResult{}, &DeliveryError{StatusCode: http.StatusBadRequest, Message: "missing pixel id or access token"}
	}
	if event.EventName == "" {
		return SendResult{}, &DeliveryError{StatusCode: http.StatusBadRequest, Message: "missing event name"}
	}

	body, err := json.Marshal(Request{
		Data:          []Event{event},
		AccessToken:   creds.AccessToken,
		TestEventCode: creds.TestCode,
	})
	if err != nil {
		return SendResult{}, &DeliveryError{StatusCode: http.StatusBadRequest, Message: "marshal payload: " + err.Error()}
	}

	url := fmt.Sprintf("%s/%s/events", c.apiURL, creds.PixelID)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.baseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	lastStatus := 0
	lastMessage := "upstream unavailable"

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		res, err := c.breaker.Execute(func() (attemptResult, error) {
			return c.doAttempt(ctx, url, body)
		})
		if err != nil {
			// A real upstream status from an earlier attempt stays on the
			// error; a transport failure carries no status of its own.
			if lastStatus == 0 {
				lastMessage = err.Error()
			}
			log.Warn().Int("attempt", attempt).Err(err).Str("pixel_id", creds.PixelID).Msg("delivery attempt failed in transport")
		} else {
			var parsed Response
			_ = json.Unmarshal(res.body, &parsed)

			if (res.status >= 200 && res.status < 300) || parsed.EventsReceived > 0 {
				return SendResult{
					StatusCode:     res.status,
					EventsReceived: parsed.EventsReceived,
					TraceID:        parsed.FBTraceID,
					Body:           string(res.body),
					Attempts:       attempt,
				}, nil
			}

			if res.status >= 500 || res.status == http.StatusTooManyRequests {
				lastStatus = res.status
				lastMessage = upstreamMessage(res.body, res.status)
				log.Warn().Int("attempt", attempt).Int("status", res.status).Str("pixel_id", creds.PixelID).Msg("retryable upstream failure")
			} else {
				return SendResult{}, &DeliveryError{
					StatusCode: res.status,
					Attempts:   attempt,
					Message:    upstreamMessage(res.body, res.status),
				}
			}
		}

		if attempt == c.maxAttempts {
			break
		}
		if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
			return SendResult{}, &DeliveryError{
				StatusCode: deliveryStatus(lastStatus),
				Attempts:   attempt,
				Message:    "delivery abandoned: " + err.Error(),
			}
		}
	}

	return SendResult{}, &DeliveryError{
		StatusCode: deliveryStatus(lastStatus),
		Attempts:   c.maxAttempts,
		Message:    lastMessage,
	}
}

func (c *Client) doAttempt(ctx context.Context, url string, body []byte) (attemptResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return attemptResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attemptResult{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return attemptResult{}, err
	}
	return attemptResult{status: resp.StatusCode, body: data}, nil
}

// upstreamMessage pulls the error message out of a Graph API error body,
// falling back to the status text.
func upstreamMessage(body []byte, status int) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return http.StatusText(status)
}

func deliveryStatus(lastStatus int) int {
	if lastStatus == 0 {
		return http.StatusServiceUnavailable
	}
	return lastStatus
}

// sleepCtx waits for the given delay unless the context is cancelled first.
// A cancelled wait abandons pending retries; already-sent calls are not
// rolled back.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
