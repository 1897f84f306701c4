// Package payment - учёт оплат и возвратов по сессиям.
// Платёжный шлюз вне системы: он сообщает об оплате, а мы храним факт
// оплаты и отмечаем возвраты.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/clock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status проверяет, оплачена ли сессия
type Status interface {
	IsPaid(ctx context.Context, sessionID int64) (bool, error)
}

// Refunder возвращает оплату по сессии
type Refunder interface {
	Refund(ctx context.Context, sessionID int64) error
}

// Recorder фиксирует подтверждение оплаты от шлюза
type Recorder interface {
	Record(ctx context.Context, sessionID int64, amount int64, method string) error
}

const (
	statusPaid     = "paid"
	statusRefunded = "refunded"
)

// Ledger хранит платежи в таблице payments.
// paid_at и refunded_at берутся из тех же часов, что и журнал переходов.
type Ledger struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

func NewLedger(pool *pgxpool.Pool, clk clock.Clock) *Ledger {
	return &Ledger{pool: pool, clock: clk}
}

func (l *Ledger) now() time.Time {
	return l.clock.Now().UTC()
}

// Record сохраняет оплату. Повторное подтверждение той же сессии не меняет запись.
func (l *Ledger) Record(ctx context.Context, sessionID int64, amount int64, method string) error {
	query := `
		INSERT INTO payments (session_id, amount, method, status, paid_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING
	`

	_, err := l.pool.Exec(ctx, query, sessionID, amount, method, statusPaid, l.now())
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	return nil
}

func (l *Ledger) IsPaid(ctx context.Context, sessionID int64) (bool, error) {
	query := `SELECT status FROM payments WHERE session_id = $1`

	var status string
	err := l.pool.QueryRow(ctx, query, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get payment status: %w", err)
	}
	return status == statusPaid, nil
}

// Refund помечает платёж возвращённым. Для неоплаченной сессии ничего не делает.
func (l *Ledger) Refund(ctx context.Context, sessionID int64) error {
	query := `
		UPDATE payments
		SET status = $2, refunded_at = $3
		WHERE session_id = $1 AND status = $4
	`

	_, err := l.pool.Exec(ctx, query, sessionID, statusRefunded, l.now(), statusPaid)
	if err != nil {
		return fmt.Errorf("refund payment: %w", err)
	}
	return nil
}
