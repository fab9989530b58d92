package db

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// RunMigrations ensures required tables exist. This keeps the service
// self-contained without an external migration step.
func RunMigrations(ctx context.Context, conn clickhouse.Conn) error {
	statements := []string{`
CREATE TABLE IF NOT EXISTS conversion_events
(
	id              String,
	pixel_id        String,
	event_name      String,
	event_time      DateTime64(3, 'UTC'),
	status          LowCardinality(String),
	user_data       String DEFAULT '{}',
	custom_data     String DEFAULT '{}',
	response        String DEFAULT '',
	trace_id        String DEFAULT '',
	error_message   String DEFAULT '',
	attempt_count   UInt8 DEFAULT 0,
	updated_at      DateTime64(3, 'UTC') DEFAULT now64(3)
)
ENGINE = ReplacingMergeTree(updated_at)
PARTITION BY toYYYYMMDD(event_time)
ORDER BY (id)
SETTINGS index_granularity = 8192;
`, `
CREATE TABLE IF NOT EXISTS pixel_configs
(
	name            String,
	domain          String,
	pixel_id        String,
	access_token    String,
	test_code       String DEFAULT '',
	is_active       UInt8 DEFAULT 1,
	updated_at      DateTime DEFAULT now()
)
ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (domain, pixel_id);
`}

	for _, stmt := range statements {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}
