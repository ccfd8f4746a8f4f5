package service

import (
	"context"
)

type NotificationService interface {
	ProcessNotification(ctx context.Context, fields map[string]string) (err error)
	CancelExpiredPendingOrders()
}
