package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS service_requests (
	id UUID PRIMARY KEY,
	client_id UUID NOT NULL,
	category_id UUID NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	preferred_date TIMESTAMPTZ NOT NULL,
	alternative_dates JSONB NOT NULL DEFAULT '[]',
	frequency TEXT NOT NULL,
	budget_min_cents BIGINT NOT NULL DEFAULT 0,
	budget_max_cents BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	closed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_requests_client ON service_requests(client_id);
CREATE INDEX IF NOT EXISTS idx_requests_status_expiry ON service_requests(status, expires_at);

CREATE TABLE IF NOT EXISTS quotes (
	id UUID PRIMARY KEY,
	request_id UUID NOT NULL REFERENCES service_requests(id),
	provider_id UUID NOT NULL,
	amount_cents BIGINT NOT NULL,
	proposed_at TIMESTAMPTZ NOT NULL,
	duration_minutes INT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	valid_until TIMESTAMPTZ NOT NULL,
	accepted_at TIMESTAMPTZ,
	rejected_at TIMESTAMPTZ,
	withdrawn_at TIMESTAMPTZ,
	reject_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_quotes_request ON quotes(request_id);
CREATE INDEX IF NOT EXISTS idx_quotes_provider_status ON quotes(provider_id, status);
CREATE INDEX IF NOT EXISTS idx_quotes_status_validity ON quotes(status, valid_until);
CREATE UNIQUE INDEX IF NOT EXISTS uq_quotes_one_accepted_per_request
	ON quotes(request_id) WHERE status = 'accepted';

CREATE TABLE IF NOT EXISTS availabilities (
	id UUID PRIMARY KEY,
	provider_id UUID NOT NULL,
	day_of_week INT NOT NULL DEFAULT 0,
	specific_date TIMESTAMPTZ,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	capacity INT NOT NULL DEFAULT 1,
	is_recurring BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_availabilities_provider ON availabilities(provider_id);

CREATE TABLE IF NOT EXISTS slots (
	id UUID PRIMARY KEY,
	provider_id UUID NOT NULL,
	date TIMESTAMPTZ NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	capacity INT NOT NULL CHECK (capacity >= 1),
	booked_count INT NOT NULL DEFAULT 0 CHECK (booked_count >= 0 AND booked_count <= capacity),
	is_booked BOOLEAN NOT NULL DEFAULT false,
	source_availability_id UUID REFERENCES availabilities(id) ON DELETE SET NULL,
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_slots_provider_date ON slots(provider_id, date);
CREATE INDEX IF NOT EXISTS idx_slots_source ON slots(source_availability_id);

CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	request_id UUID NOT NULL REFERENCES service_requests(id),
	quote_id UUID NOT NULL REFERENCES quotes(id),
	client_id UUID NOT NULL,
	provider_id UUID NOT NULL,
	slot_id UUID NOT NULL REFERENCES slots(id),
	scheduled_at TIMESTAMPTZ NOT NULL,
	duration_minutes INT NOT NULL,
	amount_cents BIGINT NOT NULL,
	status TEXT NOT NULL,
	actual_start_time TIMESTAMPTZ,
	actual_end_time TIMESTAMPTZ,
	cancel_reason TEXT,
	late_cancellation BOOLEAN NOT NULL DEFAULT false,
	slot_released BOOLEAN NOT NULL DEFAULT false,
	charge_ref TEXT,
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bookings_client ON bookings(client_id);
CREATE INDEX IF NOT EXISTS idx_bookings_provider ON bookings(provider_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_bookings_quote ON bookings(quote_id);

CREATE TABLE IF NOT EXISTS outbox_events (
	id UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	recipient_kind TEXT NOT NULL,
	recipient_id UUID NOT NULL,
	payload JSONB NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	retry_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_events(status, created_at);
`

// Migrate applies the schema at startup. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
