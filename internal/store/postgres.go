package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"cinescript/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on a shared database. Counter atomicity relies
// on single-statement guarded updates, so it is also safe across instances.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

const orderColumns = `order_id, session_id, channel, pay_count, amount,
	status, trade_no, signed_payload, created_at, paid_at, updated_at`

func (s *Postgres) CreateOrder(ctx context.Context, order *models.Order) error {
	payload, err := json.Marshal(order.SignedPayload)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, session_id, channel, pay_count, amount,
			status, trade_no, signed_payload, created_at, paid_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.OrderID,
		order.SessionID,
		order.Channel,
		order.Count,
		order.Amount,
		order.Status,
		order.TradeNo,
		payload,
		order.CreatedAt,
		order.PaidAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateOrder
	}
	return err
}

func (s *Postgres) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE order_id=$1
	`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

func (s *Postgres) ListPendingOrders(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE status='pending'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *Postgres) MarkOrderSuccess(ctx context.Context, orderID, tradeNo string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status='success', trade_no=COALESCE(NULLIF($2,''), trade_no),
			paid_at=now(), updated_at=now()
		WHERE order_id=$1 AND status='pending'
	`, orderID, tradeNo)
	if err != nil {
		return false, err
	}
	if res.RowsAffected() > 0 {
		return true, nil
	}
	// Distinguish a settled order from an unknown one.
	var exists bool
	if err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE order_id=$1)`, orderID,
	).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrOrderNotFound
	}
	return false, nil
}

func (s *Postgres) GetOrCreateUser(ctx context.Context, sessionID string) (*models.UserState, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO user_state (session_id)
		VALUES ($1)
		ON CONFLICT (session_id) DO UPDATE SET session_id=EXCLUDED.session_id
		RETURNING session_id, free_used, credits, created_at, updated_at
	`, sessionID)

	var state models.UserState
	err := row.Scan(&state.SessionID, &state.FreeUsed, &state.Credits, &state.CreatedAt, &state.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Postgres) IncrementFreeUsed(ctx context.Context, sessionID string, limit int) (bool, error) {
	if _, err := s.GetOrCreateUser(ctx, sessionID); err != nil {
		return false, err
	}
	res, err := s.Pool.Exec(ctx, `
		UPDATE user_state
		SET free_used=free_used+1, updated_at=now()
		WHERE session_id=$1 AND free_used < $2
	`, sessionID, limit)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Postgres) AddCredits(ctx context.Context, sessionID string, n int) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO user_state (session_id, credits)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE
		SET credits=user_state.credits+EXCLUDED.credits, updated_at=now()
	`, sessionID, n)
	return err
}

func (s *Postgres) ConsumeCredit(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE user_state
		SET credits=credits-1, updated_at=now()
		WHERE session_id=$1 AND credits > 0
	`, sessionID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Postgres) Reset(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `TRUNCATE orders, user_state`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var tradeNo sql.NullString
	var paidAt sql.NullTime
	var payload []byte

	err := row.Scan(
		&order.OrderID,
		&order.SessionID,
		&order.Channel,
		&order.Count,
		&order.Amount,
		&order.Status,
		&tradeNo,
		&payload,
		&order.CreatedAt,
		&paidAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tradeNo.Valid {
		order.TradeNo = &tradeNo.String
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &order.SignedPayload); err != nil {
			return nil, err
		}
	}
	return &order, nil
}
