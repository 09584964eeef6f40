package notify

import (
	"context"

	"flipper/internal/model"
)

// Notifier 定义通知接口。
type Notifier interface {
	// SendOutbid 通知前最高出价者其出价已被超过。
	//
	// 参数:
	//   ctx: 上下文
	//   toEmail: 接收邮箱
	//   product: 被出价的商品（CurrentBid 为新的最高价）
	SendOutbid(ctx context.Context, toEmail string, product *model.Product) error
}
