package repository

import (
	"context"

	"github.com/emspay/ipn-service/internal/domain"
)

type OrderRepository interface {
	GetOrderByIncrementID(ctx context.Context, incrementID string) (data domain.Order, err error)
	SaveOrder(ctx context.Context, data *domain.Order) (err error)
	GetExpiredPendingOrders(ctx context.Context) (data []domain.Order, err error)
}
