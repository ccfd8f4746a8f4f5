package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emspay/ipn-service/internal/domain"
	"github.com/emspay/ipn-service/pkg/errs"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

type OrderRepositoryImpl struct {
	db *sqlx.DB
}

func CreateOrderRepository(db *sqlx.DB) OrderRepository {
	return &OrderRepositoryImpl{
		db: db,
	}
}

func (r *OrderRepositoryImpl) GetOrderByIncrementID(ctx context.Context, incrementID string) (data domain.Order, err error) {
	row := r.db.QueryRowxContext(ctx, "SELECT * FROM orders WHERE increment_id = $1 AND deleted_at IS NULL", incrementID)
	err = row.StructScan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return data, fmt.Errorf("%w: %s", errs.ErrOrderNotFound, incrementID)
		}
		log.Error().Err(err).Str("component", "GetOrderByIncrementID").Msg("")
		return data, errs.ErrInternalServer
	}

	paymentRow := r.db.QueryRowxContext(ctx, "SELECT * FROM order_payments WHERE order_id = $1", data.ID)
	err = paymentRow.StructScan(&data.Payment)
	if err != nil {
		log.Error().Err(err).Str("component", "GetOrderByIncrementID").Msg("")
		return data, errs.ErrInternalServer
	}

	data.Payment.AdditionalInformation, err = r.getAdditionalInformation(ctx, data.Payment.ID)
	if err != nil {
		return data, err
	}

	err = r.db.SelectContext(ctx, &data.Invoices, "SELECT * FROM invoices WHERE order_id = $1", data.ID)
	if err != nil {
		log.Error().Err(err).Str("component", "GetOrderByIncrementID").Msg("")
		return data, errs.ErrInternalServer
	}

	err = r.db.SelectContext(ctx, &data.StatusHistory, "SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY id", data.ID)
	if err != nil {
		log.Error().Err(err).Str("component", "GetOrderByIncrementID").Msg("")
		return data, errs.ErrInternalServer
	}

	return data, nil
}

func (r *OrderRepositoryImpl) getAdditionalInformation(ctx context.Context, paymentID int64) (map[string]string, error) {
	rows, err := r.db.QueryxContext(ctx, "SELECT info_key, info_value FROM payment_additional_information WHERE payment_id = $1", paymentID)
	if err != nil {
		log.Error().Err(err).Str("component", "getAdditionalInformation").Msg("")
		return nil, errs.ErrInternalServer
	}
	defer rows.Close()

	info := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			log.Error().Err(err).Str("component", "getAdditionalInformation").Msg("")
			return nil, errs.ErrInternalServer
		}
		info[key] = value
	}

	return info, rows.Err()
}

// SaveOrder persists the aggregate in one transaction. The optimistic
// updated_at bump plus the single-writer transaction is what makes
// concurrent duplicate notifications for one order safe to attempt.
func (r *OrderRepositoryImpl) SaveOrder(ctx context.Context, data *domain.Order) (err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	data.UpdatedAt = time.Now().Unix()

	_, err = tx.NamedExecContext(ctx, "UPDATE orders SET state = :state, email_sent = :email_sent, total_paid = :total_paid, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL", data)
	if err != nil {
		log.Error().Err(err).Str("component", "SaveOrder").Msg("")
		return err
	}

	_, err = tx.NamedExecContext(ctx, "UPDATE order_payments SET transaction_id = :transaction_id, currency_code = :currency_code, is_transaction_closed = :is_transaction_closed, updated_at = :updated_at WHERE id = :id", data.Payment)
	if err != nil {
		log.Error().Err(err).Str("component", "SaveOrder").Msg("")
		return err
	}

	for key, value := range data.Payment.AdditionalInformation {
		_, err = tx.ExecContext(ctx, `INSERT INTO payment_additional_information(payment_id, info_key, info_value)
			VALUES ($1, $2, $3)
			ON CONFLICT (payment_id, info_key) DO UPDATE SET info_value = EXCLUDED.info_value`, data.Payment.ID, key, value)
		if err != nil {
			log.Error().Err(err).Str("component", "SaveOrder").Msg("")
			return err
		}
	}

	for idx := range data.StatusHistory {
		comment := &data.StatusHistory[idx]
		if comment.ID != 0 {
			continue
		}
		comment.OrderID = data.ID
		err = tx.QueryRowxContext(ctx, "INSERT INTO order_status_history(order_id, comment, state, created_at) VALUES ($1, $2, $3, $4) RETURNING id",
			comment.OrderID, comment.Comment, comment.State, comment.CreatedAt).Scan(&comment.ID)
		if err != nil {
			log.Error().Err(err).Str("component", "SaveOrder").Msg("")
			return err
		}
	}

	return nil
}

func (r *OrderRepositoryImpl) GetExpiredPendingOrders(ctx context.Context) (data []domain.Order, err error) {
	err = r.db.SelectContext(ctx, &data, "SELECT * FROM orders WHERE state = $1 AND expired_at < $2 AND deleted_at IS NULL", domain.OrderStatePending, time.Now().Unix())
	if err != nil {
		log.Error().Err(err).Str("component", "GetExpiredPendingOrders").Msg("")
		return nil, err
	}

	return
}
