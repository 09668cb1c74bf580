package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stockpilot/warehouse/internal/models"
)

func newSaleHandler(t *testing.T) *SaleHandler {
	return &SaleHandler{
		DB:        InitTestDB(t),
		JWTSecret: []byte(testSecret),
	}
}

func createSale(t *testing.T, h *SaleHandler, userID, itemID uint, quantity int, totalAmount float64, createdAt time.Time) {
	t.Helper()

	sale := models.Sale{
		UserID:      userID,
		ItemID:      itemID,
		Quantity:    quantity,
		TotalAmount: totalAmount,
		CreatedAt:   createdAt,
	}
	require.NoError(t, h.DB.Create(&sale).Error)
}

func TestCreateSale(t *testing.T) {
	h := newSaleHandler(t)
	e := echo.New()

	owner, token := createVerifiedUser(t, h.DB, "owner@example.com")
	item := createItem(t, h.DB, owner.ID, "Widget", 10, 2.0, time.Now())

	payload := map[string]interface{}{"itemId": item.ID, "quantity": 3}
	rec, c := doJSONRequest(t, e, http.MethodPost, "/api/sales", payload, token)
	require.NoError(t, h.CreateSale(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Sale        models.Sale `json:"sale"`
		UpdatedItem models.Item `json:"updatedItem"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Sale.Quantity)
	require.Equal(t, 6.0, resp.Sale.TotalAmount)
	require.Equal(t, 7, resp.UpdatedItem.Quantity)

	var stored models.Item
	require.NoError(t, h.DB.First(&stored, item.ID).Error)
	require.Equal(t, 7, stored.Quantity)

	var saleCount int64
	h.DB.Model(&models.Sale{}).Where("user_id = ?", owner.ID).Count(&saleCount)
	require.EqualValues(t, 1, saleCount)
}

func TestCreateSaleInsufficientStock(t *testing.T) {
	h := newSaleHandler(t)
	e := echo.New()

	owner, token := createVerifiedUser(t, h.DB, "owner@example.com")
	item := createItem(t, h.DB, owner.ID, "Widget", 4, 2.0, time.Now())

	payload := map[string]interface{}{"itemId": item.ID, "quantity": 5}
	rec, c := doJSONRequest(t, e, http.MethodPost, "/api/sales", payload, token)
	require.NoError(t, h.CreateSale(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// No partial effects: stock untouched, no sale row.
	var stored models.Item
	require.NoError(t, h.DB.First(&stored, item.ID).Error)
	require.Equal(t, 4, stored.Quantity)

	var saleCount int64
	h.DB.Model(&models.Sale{}).Count(&saleCount)
	require.EqualValues(t, 0, saleCount)
}

func TestCreateSaleExhaustsStockExactly(t *testing.T) {
	h := newSaleHandler(t)
	e := echo.New()

	owner, token := createVerifiedUser(t, h.DB, "owner@example.com")
	item := createItem(t, h.DB, owner.ID, "Widget", 3, 1.5, time.Now())

	payload := map[string]interface{}{"itemId": item.ID, "quantity": 3}
	rec, c := doJSONRequest(t, e, http.MethodPost, "/api/sales", payload, token)
	require.NoError(t, h.CreateSale(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var stored models.Item
	require.NoError(t, h.DB.First(&stored, item.ID).Error)
	require.Equal(t, 0, stored.Quantity)

	recAgain, cAgain := doJSONRequest(t, e, http.MethodPost, "/api/sales", map[string]interface{}{"itemId": item.ID, "quantity": 1}, token)
	require.NoError(t, h.CreateSale(cAgain))
	require.Equal(t, http.StatusBadRequest, recAgain.Code)
}

func TestCreateSaleRechecksStockOnDecrement(t *testing.T) {
	h := newSaleHandler(t)
	e := echo.New()

	owner, token := createVerifiedUser(t, h.DB, "owner@example.com")
	item := createItem(t, h.DB, owner.ID, "Widget", 3, 2.0, time.Now())

	// A competing sale commits between the stock read and the decrement:
	// drain the row right before the guarded UPDATE runs, so the pre-check
	// passes but the UPDATE's quantity >= ? predicate must fail.
	drained := false
	err := h.DB.Callback().Update().Before("gorm:update").Register("drain_stock", func(tx *gorm.DB) {
		if drained {
			return
		}
		drained = true
		_, execErr := tx.Statement.ConnPool.ExecContext(
			tx.Statement.Context,
			"UPDATE items SET quantity = quantity - 2 WHERE id = ?",
			item.ID,
		)
		if execErr != nil {
			t.Errorf("drain stock: %v", execErr)
		}
	})
	require.NoError(t, err)

	payload := map[string]interface{}{"itemId": item.ID, "quantity": 2}
	rec, c := doJSONRequest(t, e, http.MethodPost, "/api/sales", payload, token)
	require.NoError(t, h.CreateSale(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.True(t, drained)

	// The whole transaction rolled back: no sale row, competing decrement
	// undone with it.
	var stored models.Item
	require.NoError(t, h.DB.First(&stored, item.ID).Error)
	require.Equal(t, 3, stored.Quantity)

	var saleCount int64
	h.DB.Model(&models.Sale{}).Count(&saleCount)
	require.EqualValues(t, 0, saleCount)
}

func TestCreateSaleReindexesItem(t *testing.T) {
	h := newSaleHandler(t)
	e := echo.New()

	var indexed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/items/_doc/") {
			body, _ := io.ReadAll(r.Body)
			indexed = append(indexed, string(body))
		}
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	h.ES = client

	owner, token := createVerifiedUser(t, h.DB, "owner@example.com")
	item := createItem(t, h.DB, owner.ID, "Widget", 10, 2.0, time.Now())

	payload := map[string]interface{}{"itemId": item.ID, "quantity": 3}
	rec, c := doJSONRequest(t, e, http.MethodPost, "/api/sales", payload, token)
	require.NoError(t, h.CreateSale(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, indexed, 1)
	var doc models.Item
	require.NoError(t, json.Unmarshal([]byte(indexed[0]), &doc))
	require.Equal(t, item.ID, doc.ID)
	require.Equal(t, 7, doc.Quantity)
}

func TestCreateSaleNotOwnedItem(t *testing.T) {
	h := newSaleHandler(t)
	e := echo.New()

	_, token := createVerifiedUser(t, h.DB, "owner@example.com")
	other, _ := createVerifiedUser(t, h.DB, "other@example.com")
	item := createItem(t, h.DB, other.ID, "Foreign", 10, 1.0, time.Now())

	payload := map[string]interface{}{"itemId": item.ID, "quantity": 1}
	rec, c := doJSONRequest(t, e, http.MethodPost, "/api/sales", payload, token)
	require.NoError(t, h.CreateSale(c))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var stored models.Item
	require.NoError(t, h.DB.First(&stored, item.ID).Error)
	require.Equal(t, 10, stored.Quantity)
}

func TestCreateSaleInvalidQuantity(t *testing.T) {
	h := newSaleHandler(t)
	e := echo.New()

	owner, token := createVerifiedUser(t, h.DB, "owner@example.com")
	item := createItem(t, h.DB, owner.ID, "Widget", 10, 1.0, time.Now())

	for _, quantity := range []int{0, -1} {
		payload := map[string]interface{}{"itemId": item.ID, "quantity": quantity}
		rec, c := doJSONRequest(t, e, http.MethodPost, "/api/sales", payload, token)
		require.NoError(t, h.CreateSale(c))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	var stored models.Item
	require.NoError(t, h.DB.First(&stored, item.ID).Error)
	require.Equal(t, 10, stored.Quantity)
}

func TestSummary(t *testing.T) {
	h := newSaleHandler(t)
	e := echo.New()

	owner, token := createVerifiedUser(t, h.DB, "owner@example.com")
	other, _ := createVerifiedUser(t, h.DB, "other@example.com")

	widget := createItem(t, h.DB, owner.ID, "Widget", 100, 2.0, time.Now())
	gadget := createItem(t, h.DB, owner.ID, "Gadget", 100, 5.0, time.Now())
	foreign := createItem(t, h.DB, other.ID, "Foreign", 100, 1.0, time.Now())

	createSale(t, h, owner.ID, widget.ID, 3, 6.0, time.Now())
	createSale(t, h, owner.ID, widget.ID, 2, 4.0, time.Now())
	createSale(t, h, owner.ID, gadget.ID, 1, 5.0, time.Now())
	createSale(t, h, other.ID, foreign.ID, 10, 10.0, time.Now())

	rec, c := doJSONRequest(t, e, http.MethodGet, "/api/sales/summary", nil, token)
	require.NoError(t, h.Summary(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []SummaryRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)

	byID := map[uint]SummaryRow{}
	for _, row := range rows {
		byID[row.ItemID] = row
	}
	require.Equal(t, "Widget", byID[widget.ID].ItemName)
	require.Equal(t, 5, byID[widget.ID].TotalQuantity)
	require.Equal(t, 10.0, byID[widget.ID].TotalAmount)
	require.Equal(t, "Gadget", byID[gadget.ID].ItemName)
	require.Equal(t, 1, byID[gadget.ID].TotalQuantity)
	require.Equal(t, 5.0, byID[gadget.ID].TotalAmount)
}

func TestSummaryEmpty(t *testing.T) {
	h := newSaleHandler(t)
	e := echo.New()

	_, token := createVerifiedUser(t, h.DB, "owner@example.com")

	rec, c := doJSONRequest(t, e, http.MethodGet, "/api/sales/summary", nil, token)
	require.NoError(t, h.Summary(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestTrend(t *testing.T) {
	h := newSaleHandler(t)
	e := echo.New()

	owner, token := createVerifiedUser(t, h.DB, "owner@example.com")
	item := createItem(t, h.DB, owner.ID, "Widget", 100, 1.0, time.Now())

	createSale(t, h, owner.ID, item.ID, 4, 4.0, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	createSale(t, h, owner.ID, item.ID, 6, 6.0, time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC))
	createSale(t, h, owner.ID, item.ID, 5, 5.0, time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC))

	rec, c := doJSONRequest(t, e, http.MethodGet, "/api/sales/trend", nil, token)
	require.NoError(t, h.Trend(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var trend []TrendRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trend))
	require.Equal(t, []TrendRow{
		{Date: "2024-01-01", TotalSales: 10.0},
		{Date: "2024-01-02", TotalSales: 5.0},
	}, trend)
}
