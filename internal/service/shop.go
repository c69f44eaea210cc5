package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/offspring2k5/neveralone/internal/domain"
	"github.com/offspring2k5/neveralone/internal/repository"
	"github.com/offspring2k5/neveralone/internal/tasks"
)

// ShopItem 是商店目录中的一项。Kind 区分房间主题和表情包。
type ShopItem struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"` // "theme" | "emoji_pack"
	Name  string `json:"name"`
	Price int    `json:"price"`
}

// 商店目录是静态的，随版本发布更新。
var shopCatalog = []ShopItem{
	{ID: "theme_cozy", Kind: "theme", Name: "Cozy Cabin", Price: 100},
	{ID: "theme_forest", Kind: "theme", Name: "Forest Retreat", Price: 150},
	{ID: "theme_space", Kind: "theme", Name: "Space Station", Price: 300},
	{ID: "theme_aquarium", Kind: "theme", Name: "Aquarium", Price: 600},
	{ID: "theme_cottage", Kind: "theme", Name: "Country Cottage", Price: 1000},
	{ID: "pack_animals", Kind: "emoji_pack", Name: "Animal Friends", Price: 50},
	{ID: "pack_fun", Kind: "emoji_pack", Name: "Party Pack", Price: 50},
	{ID: "pack_hearts", Kind: "emoji_pack", Name: "Hearts", Price: 75},
}

// 彩蛋兑换码，每个用户可重复使用（刻意不设防，这是个放松向应用）。
const cheatBonus = 1000

var cheatCodes = map[string]bool{
	"rosebud": true,
	"kaching": true,
}

// ShopService 负责积分商店：目录、购买、兑换码。
type ShopService struct {
	userRepo    repository.UserRepository
	asynqClient *asynq.Client // 可为 nil（测试）
}

// NewShopService 创建 ShopService 实例。
func NewShopService(userRepo repository.UserRepository, asynqClient *asynq.Client) *ShopService {
	if userRepo == nil {
		panic("UserRepository cannot be nil for ShopService")
	}
	return &ShopService{userRepo: userRepo, asynqClient: asynqClient}
}

// Catalog 返回商店目录（副本，调用方可随意改动）。
func (s *ShopService) Catalog() []ShopItem {
	items := make([]ShopItem, len(shopCatalog))
	copy(items, shopCatalog)
	return items
}

// Buy 购买一件商店物品：校验存在、未持有、余额足够，然后扣分并写入库存。
// 返回更新后的用户（余额、库存已变）。
func (s *ShopService) Buy(ctx context.Context, userID uint, itemID string) (*domain.User, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "item_id": itemID})

	item, ok := findItem(itemID)
	if !ok {
		logCtx.Warn("Buy: unknown shop item")
		return nil, ErrItemNotFound
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		logCtx.WithError(err).Error("Buy: failed to load user")
		return nil, ErrInternalServer
	}

	owned, err := user.InventoryItems()
	if err != nil {
		logCtx.WithError(err).Error("Buy: corrupt inventory field")
		return nil, ErrInternalServer
	}
	for _, id := range owned {
		if id == item.ID {
			return nil, ErrAlreadyOwned
		}
	}

	if user.Points < item.Price {
		logCtx.WithFields(logrus.Fields{"points": user.Points, "price": item.Price}).Info("Buy: insufficient points")
		return nil, ErrInsufficientPoints
	}

	newBalance, err := s.userRepo.AdjustPoints(ctx, userID, -item.Price)
	if err != nil {
		logCtx.WithError(err).Error("Buy: failed to deduct points")
		return nil, ErrInternalServer
	}

	if err := user.SetInventoryItems(append(owned, item.ID)); err != nil {
		logCtx.WithError(err).Error("Buy: failed to encode inventory")
		return nil, ErrInternalServer
	}
	user.Points = newBalance
	if err := s.userRepo.Save(ctx, user); err != nil {
		logCtx.WithError(err).Error("Buy: failed to save inventory")
		return nil, ErrInternalServer
	}

	s.recordLedger(userID, -item.Price, domain.PointReasonShopPurchase)
	logCtx.WithField("balance", newBalance).Info("Shop item purchased")
	return user, nil
}

// Redeem 兑换彩蛋码，命中则加分。码不区分大小写。
func (s *ShopService) Redeem(ctx context.Context, userID uint, code string) (int, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "code": code})

	if !cheatCodes[strings.ToLower(strings.TrimSpace(code))] {
		logCtx.Info("Redeem: invalid cheat code")
		return 0, ErrInvalidCheatCode
	}

	newBalance, err := s.userRepo.AdjustPoints(ctx, userID, cheatBonus)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		logCtx.WithError(err).Error("Redeem: failed to award points")
		return 0, ErrInternalServer
	}

	s.recordLedger(userID, cheatBonus, domain.PointReasonCheat)
	logCtx.WithField("balance", newBalance).Info("Cheat code redeemed")
	return newBalance, nil
}

// recordLedger 异步记一条商店流水，失败只记日志。
func (s *ShopService) recordLedger(userID uint, delta int, reason string) {
	if s.asynqClient == nil {
		return
	}
	payload, err := tasks.NewPointLedgerTask(domain.PointLedgerEntry{
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		AwardedAt: time.Now(),
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to build shop ledger payload")
		return
	}
	if _, err := s.asynqClient.Enqueue(asynq.NewTask(tasks.TypePointLedger, payload)); err != nil {
		logrus.WithError(err).Warn("Failed to enqueue shop ledger task")
	}
}

func findItem(itemID string) (ShopItem, bool) {
	for _, item := range shopCatalog {
		if item.ID == itemID {
			return item, true
		}
	}
	return ShopItem{}, false
}
