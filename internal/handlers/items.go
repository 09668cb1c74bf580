package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/stockpilot/warehouse/internal/es"
	"github.com/stockpilot/warehouse/internal/models"
	"github.com/stockpilot/warehouse/internal/mykafka"
)

type ItemHandler struct {
	DB        *gorm.DB
	JWTSecret []byte
	Producer  *mykafka.Producer
	ES        *elasticsearch.Client
}

func (h *ItemHandler) index(c echo.Context, item *models.Item) {
	if err := es.IndexItem(c.Request().Context(), h.ES, item); err != nil {
		c.Logger().Errorf("ES index error: %v", err)
	}
}

func (h *ItemHandler) GetItems(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var items []models.Item
	if err := h.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&items).Error; err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, items)
}

func (h *ItemHandler) CreateItem(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		Name     string  `json:"name"`
		Quantity int     `json:"quantity"`
		Price    float64 `json:"price"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return errorJSON(c, http.StatusBadRequest, "name is required")
	}
	if req.Quantity < 0 || req.Price < 0 {
		return errorJSON(c, http.StatusBadRequest, "quantity and price must be non-negative")
	}

	item := models.Item{
		UserID:   userID,
		Name:     req.Name,
		Quantity: req.Quantity,
		Price:    req.Price,
	}
	if err := h.DB.Create(&item).Error; err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	h.index(c, &item)

	return c.JSON(http.StatusCreated, item)
}

func (h *ItemHandler) DeleteItem(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}

	var item models.Item
	if err := h.DB.Where("id = ? AND user_id = ?", id, userID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, http.StatusNotFound, "Item not found")
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	if err := h.DB.Delete(&item).Error; err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	if err := es.DeleteItem(c.Request().Context(), h.ES, item.ID); err != nil {
		c.Logger().Errorf("ES delete error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Item deleted successfully"})
}

// AdjustQuantity adds a non-negative restock delta to an item's quantity.
func (h *ItemHandler) AdjustQuantity(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Quantity *int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid quantity")
	}
	if req.Quantity == nil || *req.Quantity < 0 {
		return errorJSON(c, http.StatusBadRequest, "Invalid quantity")
	}

	var item models.Item
	if err := h.DB.Where("id = ? AND user_id = ?", id, userID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, http.StatusNotFound, "Item not found")
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	item.Quantity += *req.Quantity
	if err := h.DB.Save(&item).Error; err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	h.index(c, &item)

	if item.Quantity < LowStockThreshold {
		publishNotification(c, h.Producer, userID, map[string]interface{}{
			"type":      "low_stock_alert",
			"user_id":   userID,
			"item_id":   item.ID,
			"item_name": item.Name,
			"quantity":  item.Quantity,
		})
	}

	return c.JSON(http.StatusOK, item)
}
