package match

import "flipper/internal/model"

// 重合度权重：分类最具指向性，其次标签，最后属性。
const (
	categoryOverlapWeight  = 3
	tagOverlapWeight       = 2
	attributeOverlapWeight = 1
)

// Score 计算两个商品在分类/标签/属性三个维度上的加权重合度。
//
// score = 3*|分类交集| + 2*|标签交集| + 1*|属性交集|，属性相等要求维度与取值同时相等。
// 对称：Score(a,b) == Score(b,a)。空集合贡献 0，不做归一化。
func Score(a, b *model.Product) int {
	if a == nil || b == nil {
		return 0
	}

	score := 0

	seenCats := make(map[model.Category]struct{}, len(a.Categories))
	for _, c := range a.Categories {
		seenCats[c] = struct{}{}
	}
	for _, c := range b.Categories {
		if _, ok := seenCats[c]; ok {
			score += categoryOverlapWeight
		}
	}

	seenTags := make(map[string]struct{}, len(a.Tags))
	for _, t := range a.Tags {
		seenTags[t] = struct{}{}
	}
	for _, t := range b.Tags {
		if _, ok := seenTags[t]; ok {
			score += tagOverlapWeight
		}
	}

	seenAttrs := make(map[model.Attribute]struct{}, len(a.Attributes))
	for _, at := range a.Attributes {
		seenAttrs[at] = struct{}{}
	}
	for _, at := range b.Attributes {
		if _, ok := seenAttrs[at]; ok {
			score += attributeOverlapWeight
		}
	}

	return score
}
