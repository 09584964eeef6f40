package model

// Category 商品分类（固定枚举，与前端筛选面板一致）。
type Category string

const (
	CategoryHome        Category = "Home & Garden"
	CategoryElectronics Category = "Electronics & Appliances"
	CategoryFurniture   Category = "Furniture"
	CategoryBaby        Category = "Baby & Kids"
	CategoryWomen       Category = "Women's Fashion"
	CategoryMen         Category = "Men's Fashion"
	CategoryAccessories Category = "Accessories"
	CategoryHealth      Category = "Health & Beauty"
	CategorySports      Category = "Sports & Outdoors"
	CategoryGames       Category = "Games & Hobbies"
	CategoryBooks       Category = "Books & Music"
	CategoryVehicles    Category = "Vehicles"
	CategoryRentals     Category = "Property Rentals"
	CategoryOther       Category = "Other"
)

// Condition 商品成色。
type Condition string

const (
	ConditionNew        Condition = "New"
	ConditionLikeNew    Condition = "Like New"
	ConditionUsed       Condition = "Used"
	ConditionNotWorking Condition = "Not Working"
)

// Status 商品销售状态。
type Status string

const (
	StatusForSale     Status = "For Sale"
	StatusPendingSale Status = "Pending Sale"
	StatusSold        Status = "Sold"
)

// AttributeCategory 属性维度（颜色/尺码/性别）。
type AttributeCategory string

const (
	AttributeColor  AttributeCategory = "Color"
	AttributeSize   AttributeCategory = "Size"
	AttributeGender AttributeCategory = "Gender"
)

// Attribute 是 (维度, 取值) 二元组，例如 {Color, "Red"}。
// 两个属性相等要求维度与取值同时相等。
type Attribute struct {
	Category AttributeCategory `json:"category"`
	Value    string            `json:"value"`
}

// Location 商品/用户所在地。Label 用于展示与地点筛选的子串匹配。
type Location struct {
	Label      string  `json:"label"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	City       string  `json:"city,omitempty"`
	Province   string  `json:"province,omitempty"`
	Country    string  `json:"country,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
}
