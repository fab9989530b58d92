package mocksender

import (
	"context"

	"conversions-relay-service/internal/facebook"
	"conversions-relay-service/internal/model"

	"github.com/stretchr/testify/mock"
)

type Sender struct {
	mock.Mock
}

func (m *Sender) SendEvent(ctx context.Context, creds model.Credentials, event facebook.Event) (facebook.SendResult, error) {
	args := m.Called(ctx, creds, event)
	return args.Get(0).(facebook.SendResult), args.Error(1)
}
