package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/stockpilot/warehouse/internal/config"
	"github.com/stockpilot/warehouse/internal/models"
)

const ItemIndex = "items"

func NewClient(cfg *config.Config) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.ES_URL},
		Username:  cfg.ES_USER,
		Password:  cfg.ES_PASSWORD,
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("es: client creation failed: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("es: info request failed: %w", err)
	}

	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("es: %s: %s", res.Status(), body)
	}

	log.Println("connected to Elasticsearch")
	return client, nil
}

// IndexItem upserts an item document. A nil client is a no-op so handlers
// work without a search backend.
func IndexItem(ctx context.Context, client *elasticsearch.Client, item *models.Item) error {
	if client == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(item); err != nil {
		return fmt.Errorf("es: encode item failed: %w", err)
	}

	res, err := client.Index(
		ItemIndex,
		&buf,
		client.Index.WithDocumentID(fmt.Sprint(item.ID)),
		client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("es: index item failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("es: index item: %s", res.Status())
	}
	return nil
}

func DeleteItem(ctx context.Context, client *elasticsearch.Client, itemID uint) error {
	if client == nil {
		return nil
	}

	res, err := client.Delete(
		ItemIndex,
		fmt.Sprint(itemID),
		client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("es: delete item failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("es: delete item: %s", res.Status())
	}
	return nil
}
