package match

import (
	"testing"

	"flipper/internal/model"
)

func sampleProducts() []model.Product {
	lamp := model.NewFixedPriceProduct("lamp", "alice", "Desk Lamp", 25)
	lamp.Description = "Warm LED desk lamp"
	lamp.Condition = model.ConditionLikeNew
	lamp.Location = model.Location{Label: "Seattle, WA"}
	lamp.Categories = []model.Category{model.CategoryHome}
	lamp.Tags = []string{"lighting", "desk"}

	bike := model.NewFixedPriceProduct("bike", "bob", "Road Bike", 400)
	bike.Condition = model.ConditionUsed
	bike.Location = model.Location{Label: "Portland, OR"}
	bike.Categories = []model.Category{model.CategorySports}
	bike.Tags = []string{"bike", "outdoor"}

	camera := model.NewAuctionProduct("camera", "bob", "Film Camera", 50, nil)
	camera.Condition = model.ConditionUsed
	camera.Location = model.Location{Label: "Seattle, WA"}
	camera.Categories = []model.Category{model.CategoryElectronics}
	camera.Tags = []string{"camera", "vintage"}

	return []model.Product{*lamp, *bike, *camera}
}

func ids(products []model.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func TestApplyEmptyCriteriaKeepsEverything(t *testing.T) {
	products := sampleProducts()
	got := Apply(products, Criteria{})
	if len(got) != len(products) {
		t.Fatalf("got %d products, want %d", len(got), len(products))
	}
	for i := range got {
		if got[i].ID != products[i].ID {
			t.Fatalf("order changed at %d: got %s, want %s", i, got[i].ID, products[i].ID)
		}
	}
}

func TestApplyQueryMatchesNameDescriptionTags(t *testing.T) {
	products := sampleProducts()

	// 依次命中名称（大小写不敏感）、描述、标签
	tests := []struct {
		query string
		want  []string
	}{
		{"LAMP", []string{"lamp"}},
		{"led", []string{"lamp"}},
		{"vintage", []string{"camera"}},
		{"spaceship", nil},
	}
	for _, tt := range tests {
		got := ids(Apply(products, Criteria{Query: tt.query}))
		if len(got) != len(tt.want) {
			t.Fatalf("query %q: got %v, want %v", tt.query, got, tt.want)
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Fatalf("query %q: got %v, want %v", tt.query, got, tt.want)
			}
		}
	}
}

func TestApplyDimensionsAreANDed(t *testing.T) {
	products := sampleProducts()

	got := ids(Apply(products, Criteria{
		Location:   "seattle",
		Conditions: []model.Condition{model.ConditionUsed},
	}))
	if len(got) != 1 || got[0] != "camera" {
		t.Fatalf("got %v, want [camera]", got)
	}
}

func TestApplyCategoryORWithinDimension(t *testing.T) {
	products := sampleProducts()

	got := ids(Apply(products, Criteria{
		Categories: []model.Category{model.CategoryHome, model.CategorySports},
	}))
	if len(got) != 2 || got[0] != "lamp" || got[1] != "bike" {
		t.Fatalf("got %v, want [lamp bike]", got)
	}
}

func TestApplyPriceRange(t *testing.T) {
	products := sampleProducts()

	got := ids(Apply(products, Criteria{MinPrice: 30, MaxPrice: 100}))
	// 拍卖商品按底价参与价格筛选
	if len(got) != 1 || got[0] != "camera" {
		t.Fatalf("got %v, want [camera]", got)
	}

	got = ids(Apply(products, Criteria{MinPrice: 30}))
	if len(got) != 2 || got[0] != "bike" || got[1] != "camera" {
		t.Fatalf("unbounded max: got %v, want [bike camera]", got)
	}
}

func TestApplyIdempotent(t *testing.T) {
	products := sampleProducts()
	c := Criteria{Location: "seattle"}

	once := Apply(products, c)
	twice := Apply(once, c)
	if len(once) != len(twice) {
		t.Fatalf("second Apply changed result: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Fatalf("second Apply changed order at %d", i)
		}
	}
}
