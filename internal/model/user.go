package model

import "time"

// Review 用户收到的一条评价（只追加，不修改）。
type Review struct {
	ReviewerID string    `json:"reviewer_id"`
	Score      int       `json:"score"` // 1-5
	Comment    string    `json:"comment"`
	Role       string    `json:"role"` // buyer / seller
	Timestamp  time.Time `json:"timestamp"`
}

// User 表示市场参与者。ID 与认证系统的用户标识一致。
type User struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	CreatedAt time.Time `json:"joined_at"`
	UpdatedAt time.Time `json:"-"`

	Name  string `json:"name"`
	Email string `gorm:"type:varchar(191);uniqueIndex" json:"email"`
	Image string `json:"image,omitempty"`
	Bio   string `gorm:"type:text" json:"bio,omitempty"`

	Location Location `gorm:"serializer:json" json:"location"`

	Wishlist  []string `gorm:"serializer:json" json:"wishlist"`  // 想要匹配的商品 ID 集合
	ForSale   []string `gorm:"serializer:json" json:"for_sale"`  // 在售商品 ID（归属唯一）
	Purchased []string `gorm:"serializer:json" json:"purchased"` // 已购商品 ID
	Reviews   []Review `gorm:"serializer:json" json:"reviews"`

	LastOnline *time.Time `json:"last_online,omitempty"`
}

// InWishlist 判断商品是否已在心愿单中。
func (u *User) InWishlist(productID string) bool {
	if u == nil {
		return false
	}
	for _, id := range u.Wishlist {
		if id == productID {
			return true
		}
	}
	return false
}
