package mockgeo

import (
	"conversions-relay-service/internal/model"

	"github.com/stretchr/testify/mock"
)

type Resolver struct {
	mock.Mock
}

func (m *Resolver) Lookup(ip string) model.GeoLocation {
	args := m.Called(ip)
	return args.Get(0).(model.GeoLocation)
}

func (m *Resolver) Ready() bool {
	args := m.Called()
	return args.Bool(0)
}
