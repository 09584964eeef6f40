package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"flipper/internal/catalog"
	"flipper/internal/model"
)

// SeedDemoData 写入演示用户与商品，便于本地联调。
// 幂等：已存在的记录跳过。
func (s *Server) SeedDemoData(ctx context.Context) error {
	if !s.cfg.App.SeedDemoData {
		return nil
	}

	users := []model.User{
		{
			ID:       "demo-alice",
			Email:    "alice@example.com",
			Name:     "Alice",
			Location: model.Location{Label: "Seattle, WA", Lat: 47.6062, Lng: -122.3321},
		},
		{
			ID:       "demo-bob",
			Email:    "bob@example.com",
			Name:     "Bob",
			Location: model.Location{Label: "Portland, OR", Lat: 45.5152, Lng: -122.6784},
		},
	}
	for i := range users {
		if _, err := s.store.GetUser(ctx, users[i].ID); err == nil {
			continue
		} else if !errors.Is(err, catalog.ErrNotFound) {
			return err
		}
		if err := s.store.CreateUser(ctx, &users[i]); err != nil {
			return err
		}
	}

	endsAt := time.Now().Add(72 * time.Hour)

	mixer := model.NewFixedPriceProduct("demo-mixer", "demo-alice", "KitchenAid Stand Mixer", 180)
	mixer.Description = "Lightly used stand mixer, works great"
	mixer.Condition = model.ConditionLikeNew
	mixer.Location = users[0].Location
	mixer.Categories = []model.Category{model.CategoryElectronics}
	mixer.Tags = []string{"kitchen", "appliance", "baking"}
	mixer.Attributes = []model.Attribute{{Category: model.AttributeColor, Value: "red"}}

	bike := model.NewFixedPriceProduct("demo-bike", "demo-bob", "Trek Mountain Bike", 420)
	bike.Description = "Hardtail mountain bike, recently tuned"
	bike.Condition = model.ConditionUsed
	bike.Location = users[1].Location
	bike.Categories = []model.Category{model.CategorySports}
	bike.Tags = []string{"bike", "outdoor", "trek"}
	bike.Attributes = []model.Attribute{{Category: model.AttributeSize, Value: "L"}}

	camera := model.NewAuctionProduct("demo-camera", "demo-bob", "Canon AE-1 Film Camera", 50, &endsAt)
	camera.Description = "Classic 35mm film camera with 50mm lens"
	camera.Condition = model.ConditionUsed
	camera.Location = users[1].Location
	camera.Categories = []model.Category{model.CategoryElectronics}
	camera.Tags = []string{"camera", "film", "vintage"}

	for _, p := range []*model.Product{mixer, bike, camera} {
		if _, err := s.store.GetProduct(ctx, p.ID); err == nil {
			continue
		} else if !errors.Is(err, catalog.ErrNotFound) {
			return err
		}
		if err := s.store.CreateProduct(ctx, p); err != nil {
			return err
		}
	}

	s.logger.Info("demo data seeded", slog.Int("users", len(users)), slog.Int("products", 3))
	return nil
}
