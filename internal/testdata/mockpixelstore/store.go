package mockpixelstore

import (
	"context"

	"conversions-relay-service/internal/model"

	"github.com/stretchr/testify/mock"
)

type Store struct {
	mock.Mock
}

func (m *Store) FindActiveConfig(ctx context.Context, domainOrPixelID string) (*model.PixelConfig, error) {
	args := m.Called(ctx, domainOrPixelID)
	if v := args.Get(0); v != nil {
		return v.(*model.PixelConfig), args.Error(1)
	}
	return nil, args.Error(1)
}
