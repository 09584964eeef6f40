package catalog

import (
	"context"
	"errors"
	"fmt"

	"flipper/internal/model"

	"gorm.io/gorm"
)

// ErrNotFound 表示商品/用户不存在。
// 调用方用它区分“查无此记录”与“查询成功但结果为空”。
var ErrNotFound = errors.New("record not found")

// Store 基于 gorm 的目录存储，承载商品与用户的读写。
type Store struct {
	db *gorm.DB
}

// NewStore 创建目录存储并执行自动迁移。
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if err := db.AutoMigrate(&model.Product{}, &model.User{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// GetProduct 按 ID 查询商品。
func (s *Store) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// GetUser 按 ID 查询用户。
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ScanProducts 返回全部商品快照。
func (s *Store) ScanProducts(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	if err := s.db.WithContext(ctx).Order("created_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return out, nil
}

// ScanAvailable 返回 status != Sold 的商品快照。
func (s *Store) ScanAvailable(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	if err := s.db.WithContext(ctx).
		Where("status <> ?", model.StatusSold).
		Order("created_at").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("scan available products: %w", err)
	}
	return out, nil
}

// CreateProduct 写入新商品，并把商品 ID 追加到卖家的在售列表。
func (s *Store) CreateProduct(ctx context.Context, p *model.Product) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		var seller model.User
		if err := tx.First(&seller, "id = ?", p.SellerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		seller.ForSale = appendUnique(seller.ForSale, p.ID)
		return tx.Model(&seller).Update("for_sale", seller.ForSale).Error
	})
}

// SetEmbedding 写入商品的图片向量。
func (s *Store) SetEmbedding(ctx context.Context, productID string, embedding []float64) error {
	res := s.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", productID).
		Update("embedding", embedding)
	if res.Error != nil {
		return fmt.Errorf("set embedding: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MissingEmbeddings 返回至多 limit 条带图片但尚未计算向量的商品。
func (s *Store) MissingEmbeddings(ctx context.Context, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	var scanned []model.Product
	if err := s.db.WithContext(ctx).
		Where("embedding IS NULL OR embedding = ''").
		Order("created_at").
		Limit(limit).
		Find(&scanned).Error; err != nil {
		return nil, fmt.Errorf("scan missing embeddings: %w", err)
	}
	out := make([]model.Product, 0, len(scanned))
	for _, p := range scanned {
		if len(p.Images) > 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// ApplyBid 条件写入一次出价。
//
// 以 bid_count 作为乐观并发版本号：只有当数据库中的 bid_count 仍等于
// 调用方读到的值时更新才生效，两个并发出价不可能基于同一底价同时成功。
// 返回是否生效；不生效说明版本已被其他出价推进，调用方应重读后重试。
func (s *Store) ApplyBid(ctx context.Context, productID string, amount float64, bidderID string, observedBidCount int) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND kind = ? AND bid_count = ?", productID, model.ListingAuction, observedBidCount).
		Updates(map[string]interface{}{
			"current_bid": amount,
			"bidder_id":   bidderID,
			"bid_count":   observedBidCount + 1,
		})
	if res.Error != nil {
		return false, fmt.Errorf("apply bid: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkSold 把商品置为 Sold，并维护买卖双方的列表：
// 卖家 for_sale 移除该商品，买家 purchased 追加、wishlist 移除。
func (s *Store) MarkSold(ctx context.Context, productID, buyerID string) (*model.Product, error) {
	var updated model.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.Product
		if err := tx.First(&p, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Model(&p).Update("status", model.StatusSold).Error; err != nil {
			return err
		}

		var seller model.User
		if err := tx.First(&seller, "id = ?", p.SellerID).Error; err == nil {
			seller.ForSale = removeID(seller.ForSale, productID)
			if err := tx.Model(&seller).Update("for_sale", seller.ForSale).Error; err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if buyerID != "" {
			var buyer model.User
			if err := tx.First(&buyer, "id = ?", buyerID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			buyer.Purchased = appendUnique(buyer.Purchased, productID)
			buyer.Wishlist = removeID(buyer.Wishlist, productID)
			if err := tx.Model(&buyer).Updates(map[string]interface{}{
				"purchased": buyer.Purchased,
				"wishlist":  buyer.Wishlist,
			}).Error; err != nil {
				return err
			}
		}

		p.Status = model.StatusSold
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// AddToWishlist 把商品加入用户心愿单（幂等）。
func (s *Store) AddToWishlist(ctx context.Context, userID, productID string) (*model.User, error) {
	return s.mutateWishlist(ctx, userID, func(wishlist []string) []string {
		return appendUnique(wishlist, productID)
	})
}

// RemoveFromWishlist 把商品移出用户心愿单（幂等）。
func (s *Store) RemoveFromWishlist(ctx context.Context, userID, productID string) (*model.User, error) {
	return s.mutateWishlist(ctx, userID, func(wishlist []string) []string {
		return removeID(wishlist, productID)
	})
}

func (s *Store) mutateWishlist(ctx context.Context, userID string, mutate func([]string) []string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&u, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		u.Wishlist = mutate(u.Wishlist)
		return tx.Model(&u).Update("wishlist", u.Wishlist).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser 写入新用户（种子数据用）。
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
