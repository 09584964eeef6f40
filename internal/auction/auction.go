package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"flipper/internal/model"
	"flipper/internal/pkg/metrics"
	"flipper/internal/pkg/notify"
)

var (
	// ErrInvalidAmount 出价金额不是有限正数。
	ErrInvalidAmount = errors.New("invalid bid amount")
	// ErrNotAuctionable 商品不可出价（非拍卖商品，或已售出）。
	ErrNotAuctionable = errors.New("product is not open for bidding")
	// ErrBidTooLow 出价不高于当前底价。
	ErrBidTooLow = errors.New("bid must be higher than current bid")
	// ErrConflict 重试耗尽后仍与并发出价冲突。
	ErrConflict = errors.New("bid conflicts with a concurrent bid")
)

// BidTooLowError 携带拒绝时的底价，便于客户端向用户解释。
type BidTooLowError struct {
	Floor float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be higher than %.2f", e.Floor)
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// Store 出价状态机需要的目录能力。
type Store interface {
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	// ApplyBid 以读到的 bid_count 为版本号条件写入，返回是否生效。
	ApplyBid(ctx context.Context, productID string, amount float64, bidderID string, observedBidCount int) (bool, error)
}

// Machine 拍卖出价状态机。
//
// 同一商品上的并发出价通过 bid_count 版本号的条件更新串行化：
// 读底价与条件写必须基于同一版本，版本被推进则整轮重读重验。
type Machine struct {
	store      Store
	notifier   notify.Notifier
	logger     *slog.Logger
	maxRetries int
}

// NewMachine 创建出价状态机。notifier 可为 nil（不发送顶出通知）。
func NewMachine(store Store, notifier notify.Notifier, logger *slog.Logger) *Machine {
	return &Machine{
		store:      store,
		notifier:   notifier,
		logger:     logger,
		maxRetries: 3,
	}
}

// PlaceBid 校验并应用一次出价。
//
// 校验顺序：金额合法 → 商品存在 → 可拍卖 → 高于底价。
// 任何一步失败都不会改动商品状态。成功时返回更新后的商品。
func (m *Machine) PlaceBid(ctx context.Context, productID, bidderID string, amount float64) (*model.Product, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		metrics.BidsRejectedTotal.WithLabelValues("invalid_amount").Inc()
		return nil, ErrInvalidAmount
	}

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		product, err := m.store.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}

		if !product.IsAuction() || product.Status == model.StatusSold {
			metrics.BidsRejectedTotal.WithLabelValues("not_auctionable").Inc()
			return nil, ErrNotAuctionable
		}

		floor := product.Floor()
		if amount <= floor {
			metrics.BidsRejectedTotal.WithLabelValues("too_low").Inc()
			return nil, &BidTooLowError{Floor: floor}
		}

		applied, err := m.store.ApplyBid(ctx, productID, amount, bidderID, product.BidCount)
		if err != nil {
			return nil, err
		}
		if !applied {
			// 版本已被并发出价推进，重读后重验
			metrics.BidRetriesTotal.Inc()
			continue
		}

		metrics.BidsPlacedTotal.Inc()
		previousBidder := product.BidderID
		product.CurrentBid = &amount
		product.BidderID = bidderID
		product.BidCount++

		m.notifyOutbid(product, previousBidder, bidderID)
		return product, nil
	}

	metrics.BidsRejectedTotal.WithLabelValues("conflict").Inc()
	return nil, ErrConflict
}

// notifyOutbid 通知被顶出的前最高出价者。尽力而为，失败只记日志。
func (m *Machine) notifyOutbid(product *model.Product, previousBidder, newBidder string) {
	if m.notifier == nil || previousBidder == "" || previousBidder == newBidder {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		user, err := m.store.GetUser(ctx, previousBidder)
		if err != nil {
			m.logger.Warn("load outbid user failed",
				slog.String("user_id", previousBidder),
				slog.String("error", err.Error()))
			return
		}
		if err := m.notifier.SendOutbid(ctx, user.Email, product); err != nil {
			m.logger.Warn("outbid notification failed",
				slog.String("user_id", previousBidder),
				slog.String("product_id", product.ID),
				slog.String("error", err.Error()))
		}
	}()
}
