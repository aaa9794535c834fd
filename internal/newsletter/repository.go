package newsletter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alshekh/portfolio/internal/platform/db"
)

const uniqueViolation = "23505"

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Conn is what PGRepository needs from a pool: queries plus transactions.
type Conn interface {
	dbtx
	db.TxBeginner
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	conn Conn
	db   dbtx
	now  func() time.Time
}

// NewRepository constructs a PostgreSQL repository. *pgxpool.Pool satisfies Conn.
func NewRepository(conn Conn) *PGRepository {
	return &PGRepository{
		conn: conn,
		db:   conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithTx runs fn against a repository bound to a single transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{conn: r.conn, db: tx, now: r.now})
	})
}

const selectSubscriber = `
	SELECT id, email, is_active, subscribed_at, created_at, updated_at
	FROM newsletter_subscribers
	WHERE email = $1`

// FindByEmail returns the subscriber with exactly this email or ErrNotFound.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Subscriber, error) {
	var sub Subscriber
	err := r.db.QueryRow(ctx, selectSubscriber, email).Scan(
		&sub.ID, &sub.Email, &sub.IsActive, &sub.SubscribedAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// Insert stores a new subscriber and fills its generated fields.
func (r *PGRepository) Insert(ctx context.Context, sub *Subscriber) error {
	now := r.now()
	err := r.db.QueryRow(ctx, `
		INSERT INTO newsletter_subscribers (email, is_active, subscribed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, created_at, updated_at`,
		sub.Email, sub.IsActive, sub.SubscribedAt, now,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// Update writes the mutable fields of an existing subscriber.
func (r *PGRepository) Update(ctx context.Context, sub *Subscriber) error {
	now := r.now()
	tag, err := r.db.Exec(ctx, `
		UPDATE newsletter_subscribers
		SET is_active = $2, subscribed_at = $3, updated_at = $4
		WHERE id = $1`,
		sub.ID, sub.IsActive, sub.SubscribedAt, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	sub.UpdatedAt = now
	return nil
}

// Deactivate marks the subscriber for email inactive. The record is kept.
func (r *PGRepository) Deactivate(ctx context.Context, email string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE newsletter_subscribers
		SET is_active = FALSE, updated_at = $2
		WHERE email = $1`,
		email, r.now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats counts active and inactive subscribers.
func (r *PGRepository) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active)
		FROM newsletter_subscribers`,
	).Scan(&stats.Active, &stats.Inactive)
	return stats, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ Repository = (*PGRepository)(nil)
