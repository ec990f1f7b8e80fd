package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekogravitycat/space-reservation-backend/internal/payment"
	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/timeslot"
)

type Repository interface {
	// ListActive returns pending and confirmed reservations of a resource on a date.
	ListActive(ctx context.Context, resourceID string, date time.Time) ([]*Reservation, error)

	// CreateIfAvailable inserts r as pending unless its window overlaps an active
	// reservation, in which case it returns ErrTimeConflict. Check and insert are atomic.
	CreateIfAvailable(ctx context.Context, r *Reservation) error

	GetByID(ctx context.Context, id string) (*Reservation, error)
	List(ctx context.Context, filter Filter) ([]*Reservation, int, error)

	// UpdateStatus moves id from one status to another. It returns ErrStatusChanged
	// if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status, reason string) error

	// Confirm records p and moves the reservation pending -> confirmed in one transaction.
	Confirm(ctx context.Context, id string, p *payment.Payment) error

	// ClaimRefund marks a completed payment as being refunded. It returns ErrStatusChanged
	// if the payment is no longer completed or another claim younger than lease holds it.
	ClaimRefund(ctx context.Context, id, paymentID string, lease time.Duration) error

	// ReleaseRefundClaim drops the claim so a later cancel can retry the refund.
	ReleaseRefundClaim(ctx context.Context, paymentID string) error

	// CancelWithRefund marks the payment refunded and the reservation cancelled in one transaction.
	CancelWithRefund(ctx context.Context, id, paymentID, reason string) error

	// ExpirePending cancels pending reservations created before the cutoff and returns them.
	ExpirePending(ctx context.Context, before time.Time, reason string) ([]*Reservation, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var reservationColumns = []string{
	"id", "resource_id", "user_id", "reserved_on", "start_minute", "end_minute",
	"occupancy", "total_price", "status", "cancel_reason", "created_at", "updated_at",
}

var paymentColumns = []string{
	"id", "reservation_id", "order_ref", "transaction_ref", "amount", "status", "created_at", "refunded_at",
}

func scanReservation(row pgx.Row, extra ...any) (*Reservation, error) {
	var r Reservation
	var start, end int
	dest := []any{
		&r.ID, &r.ResourceID, &r.UserID, &r.Date, &start, &end,
		&r.Occupancy, &r.TotalPrice, &r.Status, &r.CancelReason, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.Date = dateOnly(r.Date)
	r.Window = timeslot.Window{Start: timeslot.Clock(start), End: timeslot.Clock(end)}
	return &r, nil
}

func lockKey(resourceID string, date time.Time) string {
	return resourceID + ":" + date.Format(timeslot.DateLayout)
}

func isConflict(err error) bool {
	var e *pgconn.PgError
	return errors.As(err, &e) && e.Code == pgerrcode.ExclusionViolation
}

func (r *pgxRepository) ListActive(ctx context.Context, resourceID string, date time.Time) ([]*Reservation, error) {
	query, args, err := psql.Select(reservationColumns...).
		From("public.reservations").
		Where(squirrel.Eq{
			"resource_id": resourceID,
			"reserved_on": date.Format(timeslot.DateLayout),
			"status":      activeStatuses,
		}).
		OrderBy("start_minute").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list active query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active reservations failed: %w", err)
	}
	defer rows.Close()

	var result []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation failed: %w", err)
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations failed: %w", err)
	}
	return result, nil
}

// CreateIfAvailable serializes writers per (resource, date) with a transaction-scoped
// advisory lock. The reservations_no_overlap exclusion constraint backs it up for any
// writer that bypasses this path.
func (r *pgxRepository) CreateIfAvailable(ctx context.Context, res *Reservation) error {
	date := res.Date.Format(timeslot.DateLayout)

	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// 1. Serialize with other writers for this resource and date
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(res.ResourceID, res.Date)); err != nil {
			return fmt.Errorf("acquire reservation lock failed: %w", err)
		}

		// 2. Check for overlaps: existing.start < new.end AND existing.end > new.start
		sub, args, err := psql.Select("1").
			From("public.reservations").
			Where(squirrel.Eq{
				"resource_id": res.ResourceID,
				"reserved_on": date,
				"status":      activeStatuses,
			}).
			Where(squirrel.Lt{"start_minute": int(res.Window.End)}).
			Where(squirrel.Gt{"end_minute": int(res.Window.Start)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build check overlap query failed: %w", err)
		}

		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS ("+sub+")", args...).Scan(&exists); err != nil {
			return fmt.Errorf("check overlap failed: %w", err)
		}
		if exists {
			return ErrTimeConflict
		}

		// 3. Insert the pending reservation
		query, args, err := psql.Insert("public.reservations").
			Columns("resource_id", "user_id", "reserved_on", "start_minute", "end_minute",
				"occupancy", "total_price", "status").
			Values(res.ResourceID, res.UserID, date, int(res.Window.Start), int(res.Window.End),
				res.Occupancy, res.TotalPrice, string(res.Status)).
			Suffix("RETURNING id, created_at, updated_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("build create reservation query failed: %w", err)
		}

		return tx.QueryRow(ctx, query, args...).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	})
	if err != nil {
		if errors.Is(err, ErrTimeConflict) || isConflict(err) {
			return ErrTimeConflict
		}
		return fmt.Errorf("create reservation failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Reservation, error) {
	query, args, err := psql.Select(reservationColumns...).
		From("public.reservations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get reservation query failed: %w", err)
	}

	res, err := scanReservation(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation failed: %w", err)
	}

	res.Payment, err = r.latestPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *pgxRepository) latestPayment(ctx context.Context, reservationID string) (*payment.Payment, error) {
	query, args, err := psql.Select(paymentColumns...).
		From("public.payments").
		Where(squirrel.Eq{"reservation_id": reservationID}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get payment query failed: %w", err)
	}

	var p payment.Payment
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.ReservationID, &p.OrderRef, &p.TransactionRef, &p.Amount, &p.Status, &p.CreatedAt, &p.RefundedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment failed: %w", err)
	}
	return &p, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Reservation, int, error) {
	query := psql.Select(append(reservationColumns, "count(*) OVER() AS total_count")...).
		From("public.reservations")

	if filter.UserID != "" {
		query = query.Where(squirrel.Eq{"user_id": filter.UserID})
	}
	if filter.ResourceID != "" {
		query = query.Where(squirrel.Eq{"resource_id": filter.ResourceID})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.DateFrom != nil {
		query = query.Where(squirrel.GtOrEq{"reserved_on": filter.DateFrom.Format(timeslot.DateLayout)})
	}
	if filter.DateTo != nil {
		query = query.Where(squirrel.LtOrEq{"reserved_on": filter.DateTo.Format(timeslot.DateLayout)})
	}

	// Pagination
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	sql, args, err := query.OrderBy("reserved_on DESC", "start_minute ASC").
		Limit(uint64(filter.PageSize)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list reservations query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reservations failed: %w", err)
	}
	defer rows.Close()

	var result []*Reservation
	var total int
	for rows.Next() {
		res, err := scanReservation(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan reservation failed: %w", err)
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate reservations failed: %w", err)
	}
	return result, total, nil
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func updateStatus(ctx context.Context, q execer, id string, from, to Status, reason string) error {
	update := psql.Update("public.reservations").
		Set("status", string(to)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id, "status": string(from)})
	if reason != "" {
		update = update.Set("cancel_reason", reason)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build update status query failed: %w", err)
	}

	ct, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update reservation status failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *pgxRepository) UpdateStatus(ctx context.Context, id string, from, to Status, reason string) error {
	return updateStatus(ctx, r.pool, id, from, to, reason)
}

func (r *pgxRepository) Confirm(ctx context.Context, id string, p *payment.Payment) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := updateStatus(ctx, tx, id, StatusPending, StatusConfirmed, ""); err != nil {
			return err
		}

		query, args, err := psql.Insert("public.payments").
			Columns("reservation_id", "order_ref", "transaction_ref", "amount", "status").
			Values(id, p.OrderRef, p.TransactionRef, p.Amount, string(payment.StatusCompleted)).
			Suffix("RETURNING id, created_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("build create payment query failed: %w", err)
		}

		if err := tx.QueryRow(ctx, query, args...).Scan(&p.ID, &p.CreatedAt); err != nil {
			return fmt.Errorf("create payment failed: %w", err)
		}
		p.ReservationID = id
		p.Status = payment.StatusCompleted
		return nil
	})
}

func (r *pgxRepository) ClaimRefund(ctx context.Context, id, paymentID string, lease time.Duration) error {
	query, args, err := psql.Update("public.payments").
		Set("refund_requested_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": paymentID, "reservation_id": id, "status": string(payment.StatusCompleted)}).
		Where(squirrel.Or{
			squirrel.Eq{"refund_requested_at": nil},
			squirrel.Expr("refund_requested_at < now() - make_interval(secs => ?)", lease.Seconds()),
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build claim refund query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("claim refund failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *pgxRepository) ReleaseRefundClaim(ctx context.Context, paymentID string) error {
	query, args, err := psql.Update("public.payments").
		Set("refund_requested_at", nil).
		Where(squirrel.Eq{"id": paymentID, "status": string(payment.StatusCompleted)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release refund claim query failed: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("release refund claim failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) CancelWithRefund(ctx context.Context, id, paymentID, reason string) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query, args, err := psql.Update("public.payments").
			Set("status", string(payment.StatusRefunded)).
			Set("refunded_at", squirrel.Expr("now()")).
			Where(squirrel.Eq{"id": paymentID, "reservation_id": id, "status": string(payment.StatusCompleted)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build refund payment query failed: %w", err)
		}

		ct, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("refund payment failed: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrStatusChanged
		}

		return updateStatus(ctx, tx, id, StatusConfirmed, StatusCancelled, reason)
	})
}

func (r *pgxRepository) ExpirePending(ctx context.Context, before time.Time, reason string) ([]*Reservation, error) {
	query, args, err := psql.Update("public.reservations").
		Set("status", string(StatusCancelled)).
		Set("cancel_reason", reason).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"status": string(StatusPending)}).
		Where(squirrel.Lt{"created_at": before}).
		Suffix("RETURNING " + strings.Join(reservationColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build expire pending query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("expire pending reservations failed: %w", err)
	}
	defer rows.Close()

	var expired []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired reservation failed: %w", err)
		}
		expired = append(expired, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expire pending reservations failed: %w", err)
	}
	return expired, nil
}
