package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent and safe to apply on every start.
//
// reservations_no_overlap is the store-level guarantee that active reservations
// of one resource on one date never intersect; int4range defaults to [) bounds.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`CREATE TABLE IF NOT EXISTS public.users (
		id              uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		email           text NOT NULL UNIQUE,
		password_hash   text NOT NULL,
		display_name    text,
		is_active       boolean NOT NULL DEFAULT true,
		is_system_admin boolean NOT NULL DEFAULT false,
		created_at      timestamptz NOT NULL DEFAULT now(),
		last_login_at   timestamptz
	)`,
	`CREATE TABLE IF NOT EXISTS public.resources (
		id             uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		name           text NOT NULL,
		description    text NOT NULL DEFAULT '',
		price_per_hour bigint NOT NULL CHECK (price_per_hour > 0),
		max_occupancy  integer NOT NULL CHECK (max_occupancy > 0),
		schedule       jsonb NOT NULL DEFAULT '[]'::jsonb,
		is_active      boolean NOT NULL DEFAULT true,
		created_at     timestamptz NOT NULL DEFAULT now(),
		updated_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS public.reservations (
		id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		resource_id   uuid NOT NULL REFERENCES public.resources(id),
		user_id       uuid NOT NULL REFERENCES public.users(id),
		reserved_on   date NOT NULL,
		start_minute  integer NOT NULL CHECK (start_minute >= 0),
		end_minute    integer NOT NULL CHECK (end_minute <= 1440),
		occupancy     integer NOT NULL CHECK (occupancy > 0),
		total_price   bigint NOT NULL CHECK (total_price >= 0),
		status        text NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled', 'completed')),
		cancel_reason text,
		created_at    timestamptz NOT NULL DEFAULT now(),
		updated_at    timestamptz NOT NULL DEFAULT now(),
		CHECK (start_minute < end_minute),
		CONSTRAINT reservations_no_overlap EXCLUDE USING gist (
			resource_id WITH =,
			reserved_on WITH =,
			int4range(start_minute, end_minute) WITH &&
		) WHERE (status IN ('pending', 'confirmed'))
	)`,
	`CREATE INDEX IF NOT EXISTS reservations_pending_created_idx
		ON public.reservations (created_at) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS reservations_user_idx ON public.reservations (user_id, reserved_on)`,
	`CREATE TABLE IF NOT EXISTS public.payments (
		id              uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		reservation_id  uuid NOT NULL REFERENCES public.reservations(id),
		order_ref       text NOT NULL,
		transaction_ref text NOT NULL,
		amount          bigint NOT NULL,
		status          text NOT NULL CHECK (status IN ('completed', 'refunded')),
		created_at      timestamptz NOT NULL DEFAULT now(),
		refunded_at     timestamptz,
		refund_requested_at timestamptz
	)`,
	`ALTER TABLE public.payments ADD COLUMN IF NOT EXISTS refund_requested_at timestamptz`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_active_reservation_idx
		ON public.payments (reservation_id) WHERE status = 'completed'`,
}

// Migrate applies the schema inside a single transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration failed: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration failed: %w", err)
	}
	return nil
}
