package model

import (
	"time"
)

// ListingKind 区分一口价商品与拍卖商品。
type ListingKind string

const (
	ListingFixedPrice ListingKind = "fixed_price"
	ListingAuction    ListingKind = "auction"
)

// Product 表示一条商品记录。
//
// 集合类字段（分类、标签、属性、图片、向量）以 JSON 列存储。
// 价格字段与拍卖字段互斥：Kind 为 fixed_price 时只有 Price 有效，
// Kind 为 auction 时只有 StartingBid/CurrentBid/BidCount/BidderID/AuctionEndsAt 有效。
// 请通过 NewFixedPriceProduct / NewAuctionProduct 构造以保证该不变量。
type Product struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"` // 商品唯一标识（创建时分配）
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string    `gorm:"not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Condition   Condition `gorm:"type:varchar(16)" json:"condition"`
	Status      Status    `gorm:"type:varchar(16);index" json:"status"`
	SellerID    string    `gorm:"type:varchar(64);index;not null" json:"seller_id"` // 卖家 ID（商品归卖家独占）

	Location   Location    `gorm:"serializer:json" json:"location"`
	Images     []string    `gorm:"serializer:json" json:"images"`
	Embedding  []float64   `gorm:"serializer:json" json:"embedding,omitempty"` // 图片向量（计算完成后写入）
	Categories []Category  `gorm:"serializer:json" json:"categories"`
	Tags       []string    `gorm:"serializer:json" json:"tags"`
	Attributes []Attribute `gorm:"serializer:json" json:"attributes"`

	Kind ListingKind `gorm:"type:varchar(16);not null;default:fixed_price" json:"kind"`

	// 一口价字段
	Price float64 `json:"price,omitempty"`

	// 拍卖字段
	StartingBid   float64    `json:"starting_bid,omitempty"`
	CurrentBid    *float64   `json:"current_bid,omitempty"`
	BidCount      int        `json:"bid_count"` // 同时作为出价 CAS 的版本号
	BidderID      string     `gorm:"type:varchar(64)" json:"bidder_id,omitempty"`
	AuctionEndsAt *time.Time `json:"auction_ends_at,omitempty"` // 仅作展示，不触发自动关闭
}

// NewFixedPriceProduct 构造一口价商品。
func NewFixedPriceProduct(id, sellerID, name string, price float64) *Product {
	return &Product{
		ID:       id,
		SellerID: sellerID,
		Name:     name,
		Status:   StatusForSale,
		Kind:     ListingFixedPrice,
		Price:    price,
	}
}

// NewAuctionProduct 构造拍卖商品。
func NewAuctionProduct(id, sellerID, name string, startingBid float64, endsAt *time.Time) *Product {
	return &Product{
		ID:            id,
		SellerID:      sellerID,
		Name:          name,
		Status:        StatusForSale,
		Kind:          ListingAuction,
		StartingBid:   startingBid,
		AuctionEndsAt: endsAt,
	}
}

// IsAuction 判断是否为拍卖商品。
func (p *Product) IsAuction() bool {
	return p != nil && p.Kind == ListingAuction
}

// Floor 返回下一次出价必须超过的底价：已有出价取当前最高价，否则取起拍价。
func (p *Product) Floor() float64 {
	if p == nil {
		return 0
	}
	if p.CurrentBid != nil {
		return *p.CurrentBid
	}
	return p.StartingBid
}

// EffectivePrice 返回用于价格筛选的金额：一口价商品取标价，拍卖商品取当前底价。
func (p *Product) EffectivePrice() float64 {
	if p.IsAuction() {
		return p.Floor()
	}
	return p.Price
}
