package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/stockpilot/warehouse/internal/es"
	"github.com/stockpilot/warehouse/internal/models"
	"github.com/stockpilot/warehouse/internal/mykafka"
)

type SaleHandler struct {
	DB        *gorm.DB
	JWTSecret []byte
	Producer  *mykafka.Producer
	ES        *elasticsearch.Client
}

type SummaryRow struct {
	ItemID        uint    `json:"item_id"`
	ItemName      string  `json:"item_name"`
	TotalQuantity int     `json:"total_quantity"`
	TotalAmount   float64 `json:"total_amount"`
}

type TrendRow struct {
	Date       string  `json:"date"`
	TotalSales float64 `json:"total_sales"`
}

// CreateSale records a sale and decrements the item's stock in one
// transaction. The decrement re-checks the quantity in the UPDATE itself so
// concurrent sales against the same item cannot drive it negative.
func (h *SaleHandler) CreateSale(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		ItemID   uint `json:"itemId"`
		Quantity int  `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if req.Quantity < 1 {
		return errorJSON(c, http.StatusBadRequest, "invalid quantity")
	}

	var (
		item models.Item
		sale models.Sale
	)

	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", req.ItemID, userID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "Item not found")
			}
			return err
		}

		if item.Quantity < req.Quantity {
			return echo.NewHTTPError(http.StatusBadRequest, "Insufficient quantity")
		}

		res := tx.Model(&models.Item{}).
			Where("id = ? AND user_id = ? AND quantity >= ?", item.ID, userID, req.Quantity).
			Update("quantity", gorm.Expr("quantity - ?", req.Quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "Insufficient quantity")
		}
		item.Quantity -= req.Quantity

		sale = models.Sale{
			UserID:      userID,
			ItemID:      item.ID,
			Quantity:    req.Quantity,
			TotalAmount: float64(req.Quantity) * item.Price,
		}
		return tx.Create(&sale).Error
	})

	if txErr != nil {
		var he *echo.HTTPError
		if errors.As(txErr, &he) {
			return errorJSON(c, he.Code, fmt.Sprint(he.Message))
		}
		return errorJSON(c, http.StatusInternalServerError, txErr.Error())
	}

	// The sale changed the stock count, keep the search document in step.
	if err := es.IndexItem(c.Request().Context(), h.ES, &item); err != nil {
		c.Logger().Errorf("ES index error: %v", err)
	}

	publishNotification(c, h.Producer, userID, map[string]interface{}{
		"type":         "sale_notification",
		"user_id":      userID,
		"sale_id":      sale.ID,
		"item_id":      item.ID,
		"item_name":    item.Name,
		"quantity":     sale.Quantity,
		"total_amount": sale.TotalAmount,
	})

	if item.Quantity < LowStockThreshold {
		publishNotification(c, h.Producer, userID, map[string]interface{}{
			"type":      "low_stock_alert",
			"user_id":   userID,
			"item_id":   item.ID,
			"item_name": item.Name,
			"quantity":  item.Quantity,
		})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"sale":        sale,
		"updatedItem": item,
	})
}

func (h *SaleHandler) Summary(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var rows []SummaryRow
	err = h.DB.Model(&models.Sale{}).
		Select("sales.item_id AS item_id, items.name AS item_name, SUM(sales.quantity) AS total_quantity, SUM(sales.total_amount) AS total_amount").
		Joins("JOIN items ON items.id = sales.item_id").
		Where("sales.user_id = ?", userID).
		Group("sales.item_id, items.name").
		Order("sales.item_id ASC").
		Scan(&rows).Error
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	if rows == nil {
		rows = []SummaryRow{}
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *SaleHandler) Trend(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var sales []models.Sale
	if err := h.DB.Where("user_id = ?", userID).Find(&sales).Error; err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	// Grouping by calendar day happens here rather than in SQL so the same
	// query works on postgres and the sqlite test database.
	totals := make(map[string]float64, len(sales))
	for _, s := range sales {
		totals[s.CreatedAt.Format("2006-01-02")] += s.TotalAmount
	}

	dates := make([]string, 0, len(totals))
	for d := range totals {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	trend := make([]TrendRow, 0, len(dates))
	for _, d := range dates {
		trend = append(trend, TrendRow{Date: d, TotalSales: totals[d]})
	}

	return c.JSON(http.StatusOK, trend)
}
