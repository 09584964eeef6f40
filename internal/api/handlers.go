package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"flipper/internal/auction"
	"flipper/internal/catalog"
	"flipper/internal/match"
	"flipper/internal/model"
	"flipper/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// createProductRequest 创建商品的请求参数。
type createProductRequest struct {
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Condition   model.Condition   `json:"condition"`
	Location    model.Location    `json:"location"`
	Images      []string          `json:"images"`
	Categories  []model.Category  `json:"categories" binding:"required,min=1"`
	Tags        []string          `json:"tags"`
	Attributes  []model.Attribute `json:"attributes"`

	Kind          model.ListingKind `json:"kind"` // fixed_price（默认）/ auction
	Price         float64           `json:"price"`
	StartingBid   float64           `json:"starting_bid"`
	AuctionEndsAt *time.Time        `json:"auction_ends_at"`
}

// placeBidRequest 出价请求。
type placeBidRequest struct {
	UserID string  `json:"user_id" binding:"required"`
	Amount float64 `json:"amount"`
}

// imageSearchRequest 以图搜图请求：查询向量由上游对上传图片计算得到。
type imageSearchRequest struct {
	Embedding []float64 `json:"embedding" binding:"required"`
}

// markAsSoldRequest 标记售出请求。
type markAsSoldRequest struct {
	BuyerID string `json:"buyer_id" binding:"required"`
}

// handleListProducts 返回按筛选条件过滤后的商品列表。
//
// 查询参数: q / location / category（可多值）/ condition（可多值）/
// min_price / max_price。缺省维度不做约束。
func (s *Server) handleListProducts(c *gin.Context) {
	criteria := match.Criteria{
		Query:    c.Query("q"),
		Location: c.Query("location"),
	}
	for _, v := range c.QueryArray("category") {
		criteria.Categories = append(criteria.Categories, model.Category(v))
	}
	for _, v := range c.QueryArray("condition") {
		criteria.Conditions = append(criteria.Conditions, model.Condition(v))
	}
	if raw := c.Query("min_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_price"})
			return
		}
		criteria.MinPrice = v
	}
	if raw := c.Query("max_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_price"})
			return
		}
		criteria.MaxPrice = v
	}

	products, err := s.products.ScanProducts(c.Request.Context())
	if err != nil {
		s.logger.Error("list products failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list products"})
		return
	}

	c.JSON(http.StatusOK, match.Apply(products, criteria))
}

func (s *Server) handleGetProduct(c *gin.Context) {
	product, err := s.products.GetProduct(c.Request.Context(), c.Param("productId"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product with that ID does not exist"})
			return
		}
		s.logger.Error("get product failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// handleCreateProduct 创建商品。
//
// 创建时同步尝试为每张图片计算向量并取均值；向量服务不可用时
// 商品仍会创建成功，向量留待后台回填。
func (s *Server) handleCreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	sellerID := c.GetString("userID")

	var product *model.Product
	switch req.Kind {
	case model.ListingAuction:
		if req.StartingBid < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "starting_bid must be non-negative"})
			return
		}
		product = model.NewAuctionProduct(uuid.NewString(), sellerID, req.Name, req.StartingBid, req.AuctionEndsAt)
	case model.ListingFixedPrice, "":
		if req.Price < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price must be non-negative"})
			return
		}
		product = model.NewFixedPriceProduct(uuid.NewString(), sellerID, req.Name, req.Price)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown listing kind"})
		return
	}

	product.Description = req.Description
	product.Condition = req.Condition
	product.Location = req.Location
	product.Images = req.Images
	product.Categories = req.Categories
	product.Tags = req.Tags
	product.Attributes = req.Attributes

	if embeddingVec := s.embedImages(c, req.Images); len(embeddingVec) > 0 {
		product.Embedding = embeddingVec
	}

	if err := s.products.CreateProduct(c.Request.Context(), product); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "seller does not exist"})
			return
		}
		s.logger.Error("create product failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create product"})
		return
	}

	c.JSON(http.StatusOK, product)
}

// embedImages 为商品图片同步计算代表向量，失败时返回 nil（只记日志）。
func (s *Server) embedImages(c *gin.Context, images []string) []float64 {
	if s.provider == nil || len(images) == 0 {
		return nil
	}

	embeddings := make([][]float64, 0, len(images))
	for _, imageURL := range images {
		vec, err := s.provider.Embed(c.Request.Context(), imageURL)
		if err != nil {
			s.logger.Warn("embedding generation failed on create",
				slog.String("image", imageURL),
				slog.String("error", err.Error()))
			continue
		}
		embeddings = append(embeddings, vec)
	}
	if len(embeddings) == 0 {
		return nil
	}

	avg, err := match.AverageEmbeddings(embeddings)
	if err != nil {
		s.logger.Warn("embedding averaging failed on create", slog.String("error", err.Error()))
		return nil
	}
	return avg
}

func (s *Server) handleMarkAsSold(c *gin.Context) {
	var req markAsSoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "buyer_id is required"})
		return
	}

	updated, err := s.products.MarkSold(c.Request.Context(), c.Param("productId"), req.BuyerID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product or buyer does not exist"})
			return
		}
		s.logger.Error("mark as sold failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark product as sold"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// handleImageSearch 以图搜图：对全目录按余弦相似度排序，
// 只返回相似度达到阈值的商品。无命中返回 404。
func (s *Server) handleImageSearch(c *gin.Context) {
	start := time.Now()
	defer func() {
		metrics.ImageSearchDuration.Observe(time.Since(start).Seconds())
	}()

	var req imageSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Embedding) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid embedding"})
		return
	}

	products, err := s.products.ScanProducts(c.Request.Context())
	if err != nil {
		s.logger.Error("image search scan failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search by image"})
		return
	}

	results := match.RankBySimilarity(products, req.Embedding, s.cfg.App.SimilarityThreshold)
	if len(results) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no similar products found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleRecommendations(c *gin.Context) {
	products, err := s.recommender.Recommend(c.Request.Context(), c.Param("userId"), s.cfg.App.MaxRecommendations)
	if err != nil {
		s.logger.Error("recommendations failed",
			slog.String("user_id", c.Param("userId")),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get recommendations"})
		return
	}
	c.JSON(http.StatusOK, products)
}

func (s *Server) handlePlaceBid(c *gin.Context) {
	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid user_id"})
		return
	}

	updated, err := s.bids.PlaceBid(c.Request.Context(), c.Param("productId"), req.UserID, req.Amount)
	if err != nil {
		var tooLow *auction.BidTooLowError
		switch {
		case errors.Is(err, auction.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid amount"})
		case errors.Is(err, catalog.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		case errors.Is(err, auction.ErrNotAuctionable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "product is not listed for auction"})
		case errors.As(err, &tooLow):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "bid must be higher than current bid",
				"floor": tooLow.Floor,
			})
		case errors.Is(err, auction.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "bid conflicts with a concurrent bid, retry"})
		default:
			s.logger.Error("place bid failed",
				slog.String("product_id", c.Param("productId")),
				slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleGetWishlist(c *gin.Context) {
	ctx := c.Request.Context()

	user, err := s.users.GetUser(ctx, c.Param("userId"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user does not exist"})
			return
		}
		s.logger.Error("get wishlist failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get wishlist"})
		return
	}

	// 已删除的商品静默跳过
	products := make([]model.Product, 0, len(user.Wishlist))
	for _, id := range user.Wishlist {
		p, err := s.products.GetProduct(ctx, id)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			s.logger.Error("get wishlist product failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get wishlist"})
			return
		}
		products = append(products, *p)
	}

	c.JSON(http.StatusOK, products)
}

func (s *Server) handleAddToWishlist(c *gin.Context) {
	s.mutateWishlist(c, s.users.AddToWishlist)
}

func (s *Server) handleRemoveFromWishlist(c *gin.Context) {
	s.mutateWishlist(c, s.users.RemoveFromWishlist)
}

// mutateWishlist 心愿单增删的公共逻辑：只能修改自己的心愿单。
func (s *Server) mutateWishlist(c *gin.Context, op func(ctx context.Context, userID, productID string) (*model.User, error)) {
	userID := c.Param("userId")
	if c.GetString("userID") != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot modify another user's wishlist"})
		return
	}

	user, err := op(c.Request.Context(), userID, c.Param("productId"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user does not exist"})
			return
		}
		s.logger.Error("update wishlist failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update wishlist"})
		return
	}
	c.JSON(http.StatusOK, user)
}
