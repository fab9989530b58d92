package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"conversions-relay-service/internal/model"
)

// PixelConfigStore looks up stored delivery credentials.
type PixelConfigStore interface {
	// FindActiveConfig matches an active config by domain or by pixel id.
	FindActiveConfig(ctx context.Context, domainOrPixelID string) (*model.PixelConfig, error)
}

// PixelResolver picks exactly one credential set for an event, or fails with
// ConfigNotFoundError. Resolution is read-only.
type PixelResolver interface {
	Resolve(ctx context.Context, event model.NormalizedEvent, domainHint string) (model.Credentials, error)
}

type pixelResolver struct {
	store    PixelConfigStore
	defaults model.Credentials
}

// NewPixelResolver constructs a resolver backed by a config store and the
// globally configured default credentials.
func NewPixelResolver(store PixelConfigStore, defaults model.Credentials) PixelResolver {
	return &pixelResolver{store: store, defaults: defaults}
}

// Resolve walks the priority chain and returns the first match:
// caller-supplied pixel id paired with the global token, then a stored config
// matched by the domain hint, then the global defaults.
func (r *pixelResolver) Resolve(ctx context.Context, event model.NormalizedEvent, domainHint string) (model.Credentials, error) {
	strategies := []func(context.Context, model.NormalizedEvent, string) (model.Credentials, bool){
		r.fromCallerPixelID,
		r.fromStoredConfig,
		r.fromGlobalDefaults,
	}

	for _, strategy := range strategies {
		if creds, ok := strategy(ctx, event, domainHint); ok {
			return creds, nil
		}
	}

	hint := domainHint
	if hint == "" {
		hint = event.PixelID
	}
	return model.Credentials{}, &ConfigNotFoundError{Hint: hint}
}

// fromCallerPixelID pairs a caller-supplied pixel id with the global access
// token. The pairing is logged because the token may not belong to that
// pixel; without a global token the chain falls through instead of emitting a
// credential-less request.
func (r *pixelResolver) fromCallerPixelID(_ context.Context, event model.NormalizedEvent, _ string) (model.Credentials, bool) {
	if event.PixelID == "" || r.defaults.AccessToken == "" {
		return model.Credentials{}, false
	}
	if event.PixelID != r.defaults.PixelID {
		log.Warn().Str("pixel_id", event.PixelID).Msg("caller pixel id paired with global access token")
	}
	return model.Credentials{
		PixelID:     event.PixelID,
		AccessToken: r.defaults.AccessToken,
		TestCode:    r.defaults.TestCode,
	}, true
}

func (r *pixelResolver) fromStoredConfig(ctx context.Context, _ model.NormalizedEvent, domainHint string) (model.Credentials, bool) {
	if domainHint == "" || r.store == nil {
		return model.Credentials{}, false
	}

	cfg, err := r.store.FindActiveConfig(ctx, domainHint)
	if err != nil {
		log.Error().Str("hint", domainHint).Err(err).Msg("pixel config lookup failed, falling back")
		return model.Credentials{}, false
	}
	if cfg == nil {
		return model.Credentials{}, false
	}

	log.Info().Str("hint", domainHint).Str("pixel_id", cfg.PixelID).Msg("using stored pixel config")
	return model.Credentials{
		PixelID:     cfg.PixelID,
		AccessToken: cfg.AccessToken,
		TestCode:    cfg.TestCode,
	}, true
}

func (r *pixelResolver) fromGlobalDefaults(context.Context, model.NormalizedEvent, string) (model.Credentials, bool) {
	if r.defaults.PixelID == "" || r.defaults.AccessToken == "" {
		return model.Credentials{}, false
	}
	return r.defaults, true
}
