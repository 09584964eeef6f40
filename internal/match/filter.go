package match

import (
	"math"
	"strings"

	"flipper/internal/model"
)

// Criteria 商品筛选条件。各维度之间取 AND，同一维度的多个取值之间取 OR。
// 某个维度为空表示该维度不做约束。
type Criteria struct {
	Query      string            // 对名称/描述/标签做大小写不敏感的子串匹配
	Location   string            // 对地点 Label 做大小写不敏感的子串匹配
	Categories []model.Category  // 分类集合有交集即命中
	Conditions []model.Condition // 成色精确命中
	MinPrice   float64
	MaxPrice   float64 // <= 0 视为不设上限
}

// Match 判断单个商品是否满足全部筛选条件。
func (c Criteria) Match(p *model.Product) bool {
	if p == nil {
		return false
	}

	if q := strings.ToLower(strings.TrimSpace(c.Query)); q != "" {
		inName := strings.Contains(strings.ToLower(p.Name), q)
		inDesc := strings.Contains(strings.ToLower(p.Description), q)
		inTags := false
		for _, tag := range p.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				inTags = true
				break
			}
		}
		if !inName && !inDesc && !inTags {
			return false
		}
	}

	if loc := strings.ToLower(strings.TrimSpace(c.Location)); loc != "" {
		if !strings.Contains(strings.ToLower(p.Location.Label), loc) {
			return false
		}
	}

	if len(c.Categories) > 0 {
		hit := false
		for _, want := range c.Categories {
			for _, have := range p.Categories {
				if want == have {
					hit = true
					break
				}
			}
			if hit {
				break
			}
		}
		if !hit {
			return false
		}
	}

	if len(c.Conditions) > 0 {
		hit := false
		for _, want := range c.Conditions {
			if want == p.Condition {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	maxPrice := c.MaxPrice
	if maxPrice <= 0 {
		maxPrice = math.Inf(1)
	}
	price := p.EffectivePrice()
	if price < c.MinPrice || price > maxPrice {
		return false
	}

	return true
}

// Apply 按筛选条件过滤商品集合，保持输入顺序（只过滤，不排序）。
func Apply(products []model.Product, c Criteria) []model.Product {
	out := make([]model.Product, 0, len(products))
	for i := range products {
		if c.Match(&products[i]) {
			out = append(out, products[i])
		}
	}
	return out
}
