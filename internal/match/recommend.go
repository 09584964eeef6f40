package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"flipper/internal/catalog"
	"flipper/internal/model"
	"flipper/internal/pkg/metrics"
)

// DefaultMaxRecommendations 推荐结果的默认截断数。
const DefaultMaxRecommendations = 100

// Catalog 推荐引擎需要的目录读取能力。
type Catalog interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	// ScanAvailable 返回 status != Sold 的全部商品快照。
	ScanAvailable(ctx context.Context) ([]model.Product, error)
}

// Engine 基于心愿单的推荐引擎。无进程内状态，每次调用独立可并发。
type Engine struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewEngine 创建推荐引擎。
func NewEngine(catalog Catalog, logger *slog.Logger) *Engine {
	return &Engine{catalog: catalog, logger: logger}
}

// Recommend 为用户生成按聚合相似度降序排列的商品推荐。
//
// 规则：
//  1. 用户不存在或心愿单为空时返回空结果（降级可用，不算错误）
//  2. 候选集为全部在售商品，剔除已在心愿单中的商品与用户自己的商品
//  3. 候选对每个心愿单商品的 Score 求和作为聚合分，偏向与多个心愿单商品相似的候选
//  4. 按聚合分降序稳定排序，截断到 maxResults（<=0 时取默认 100）
//
// 底层目录访问失败会原样上抛，不会伪装成空结果。
func (e *Engine) Recommend(ctx context.Context, userID string, maxResults int) ([]model.Product, error) {
	start := time.Now()
	defer func() {
		metrics.RecommendDuration.Observe(time.Since(start).Seconds())
	}()

	if maxResults <= 0 {
		maxResults = DefaultMaxRecommendations
	}

	user, err := e.catalog.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			e.logger.Debug("recommend for unknown user", slog.String("user_id", userID))
			return []model.Product{}, nil
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if len(user.Wishlist) == 0 {
		return []model.Product{}, nil
	}

	// 解析心愿单商品；已下架/删除的 ID 静默跳过
	wishlisted := make(map[string]struct{}, len(user.Wishlist))
	wishProducts := make([]*model.Product, 0, len(user.Wishlist))
	for _, id := range user.Wishlist {
		wishlisted[id] = struct{}{}
		p, err := e.catalog.GetProduct(ctx, id)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load wishlist product %s: %w", id, err)
		}
		wishProducts = append(wishProducts, p)
	}
	if len(wishProducts) == 0 {
		return []model.Product{}, nil
	}

	available, err := e.catalog.ScanAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan available products: %w", err)
	}

	type scored struct {
		product model.Product
		score   int
	}
	candidates := make([]scored, 0, len(available))
	for i := range available {
		p := &available[i]
		if _, ok := wishlisted[p.ID]; ok {
			continue
		}
		if p.SellerID == userID {
			continue
		}
		total := 0
		for _, w := range wishProducts {
			total += Score(w, p)
		}
		candidates = append(candidates, scored{product: available[i], score: total})
	}

	// 稳定排序：同分保持目录扫描顺序
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	out := make([]model.Product, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.product)
	}
	return out, nil
}
