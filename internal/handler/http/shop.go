package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/offspring2k5/neveralone/internal/service"
)

// ShopHandler 封装积分商店相关的 HTTP 处理逻辑。
type ShopHandler struct {
	shopService *service.ShopService
}

// NewShopHandler 创建 ShopHandler 实例。
func NewShopHandler(shopService *service.ShopService) *ShopHandler {
	return &ShopHandler{shopService: shopService}
}

// Catalog 返回商店目录。
func (h *ShopHandler) Catalog(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{"items": h.shopService.Catalog()})
}

// BuyRequest 定义购买请求的结构体。
type BuyRequest struct {
	ItemID string `json:"itemId" binding:"required"`
}

// Buy 处理购买商店物品的请求。
func (h *ShopHandler) Buy(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: itemId is required")
		return
	}

	user, err := h.shopService.Buy(c.Request.Context(), userID, req.ItemID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "item_id": req.ItemID}).WithError(err).Warn("Handler.Buy: Purchase failed")
		HandleServiceError(c, err)
		return
	}

	inventory, invErr := user.InventoryItems()
	if invErr != nil {
		inventory = []string{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"points":    user.Points,
		"inventory": inventory,
	})
}

// RedeemRequest 定义兑换码请求的结构体。
type RedeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// Redeem 处理兑换彩蛋码的请求。
func (h *ShopHandler) Redeem(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: code is required")
		return
	}

	balance, err := h.shopService.Redeem(c.Request.Context(), userID, req.Code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"points": balance})
}
