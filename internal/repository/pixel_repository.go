package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"conversions-relay-service/internal/model"
)

// PixelConfigRepository looks up per-domain delivery credentials.
type PixelConfigRepository interface {
	// FindActiveConfig matches an active config by domain or by pixel id.
	// Returns (nil, nil) when nothing matches.
	FindActiveConfig(ctx context.Context, domainOrPixelID string) (*model.PixelConfig, error)
}

type pixelConfigRepository struct {
	conn clickhouse.Conn
}

// NewPixelConfigRepository creates a PixelConfigRepository backed by ClickHouse.
func NewPixelConfigRepository(conn clickhouse.Conn) PixelConfigRepository {
	return &pixelConfigRepository{conn: conn}
}

const findActiveConfigQuery = `
	SELECT name, domain, pixel_id, access_token, test_code
	FROM pixel_configs FINAL
	WHERE (domain = $1 OR pixel_id = $2) AND is_active = 1
	LIMIT 1
`

func (r *pixelConfigRepository) FindActiveConfig(ctx context.Context, domainOrPixelID string) (*model.PixelConfig, error) {
	row := r.conn.QueryRow(ctx, findActiveConfigQuery, domainOrPixelID, domainOrPixelID)

	var cfg model.PixelConfig
	err := row.Scan(&cfg.Name, &cfg.Domain, &cfg.PixelID, &cfg.AccessToken, &cfg.TestCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan pixel config: %w", err)
	}

	cfg.IsActive = true
	return &cfg, nil
}
