package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"conversions-relay-service/internal/facebook"
	"conversions-relay-service/internal/model"
	"conversions-relay-service/internal/service"
)

type EventController interface {
	CreateEvent(c *fiber.Ctx) error
	Health(c *fiber.Ctx) error
}

// eventController exposes HTTP handlers for the relay endpoints.
type eventController struct {
	eventService service.EventService
	geo          service.GeoResolver
}

// NewEventController builds an EventController.
func NewEventController(svc service.EventService, geo service.GeoResolver) EventController {
	return &eventController{eventService: svc, geo: geo}
}

// forwardedHeaders are the proxy signals copied into RequestMeta for client
// IP extraction.
var forwardedHeaders = []string{"X-Forwarded-For", "CF-Connecting-IP", "True-Client-IP", "X-Real-IP"}

// CreateEvent accepts a single conversion event, runs the delivery pipeline
// and reports the result.
func (h *eventController) CreateEvent(c *fiber.Ctx) error {
	var req model.EventRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "validation_error", "invalid json payload", nil)
	}

	domain := c.Get("X-Domain")
	if domain == "" {
		domain = req.Domain
	}

	meta := model.RequestMeta{
		Headers:    map[string]string{},
		RemoteAddr: c.Context().RemoteAddr().String(),
		PayloadIP:  req.UserData.IP,
	}
	for _, name := range forwardedHeaders {
		if val := c.Get(name); val != "" {
			meta.Headers[name] = val
		}
	}

	result, err := h.eventService.ProcessEvent(c.Context(), req, meta, domain)
	if err != nil {
		return h.renderError(c, result, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

func (h *eventController) renderError(c *fiber.Ctx, result model.DeliveryResult, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return errorResponse(c, fiber.StatusBadRequest, ve.Code(), ve.Error(), fiber.Map{"field": ve.Field})
	}

	var ce *service.ConfigNotFoundError
	if errors.As(err, &ce) {
		return errorResponse(c, fiber.StatusBadRequest, ce.Code(), ce.Error(), nil)
	}

	var de *facebook.DeliveryError
	if errors.As(err, &de) {
		return errorResponse(c, fiber.StatusBadGateway, de.Code(), de.Message, fiber.Map{
			"status_code":   de.StatusCode,
			"attempt_count": de.Attempts,
			"event_id":      result.EventID,
		})
	}

	return errorResponse(c, fiber.StatusInternalServerError, "internal_error", "failed to process event", nil)
}

// Health reports liveness plus geoip readiness. A degraded geoip service
// still serves traffic, just without enrichment.
func (h *eventController) Health(c *fiber.Ctx) error {
	geoStatus := "ready"
	if h.geo == nil || !h.geo.Ready() {
		geoStatus = "degraded"
	}
	return c.JSON(fiber.Map{"status": "ok", "geoip": geoStatus})
}

func errorResponse(c *fiber.Ctx, status int, code, message string, details fiber.Map) error {
	body := fiber.Map{
		"success": false,
		"error":   message,
		"code":    code,
	}
	if details != nil {
		body["details"] = details
	}
	return c.Status(status).JSON(body)
}
