package mockservice

import (
	"context"

	"conversions-relay-service/internal/model"

	"github.com/stretchr/testify/mock"
)

type Service struct {
	mock.Mock
}

func (m *Service) BuildEvent(req model.EventRequest) (model.NormalizedEvent, error) {
	args := m.Called(req)
	return args.Get(0).(model.NormalizedEvent), args.Error(1)
}

func (m *Service) ProcessEvent(ctx context.Context, req model.EventRequest, meta model.RequestMeta, domainHint string) (model.DeliveryResult, error) {
	args := m.Called(ctx, req, meta, domainHint)
	return args.Get(0).(model.DeliveryResult), args.Error(1)
}
