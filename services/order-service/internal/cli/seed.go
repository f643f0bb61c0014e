package cli

import (
	"fmt"
	"os"

	"bookstore-system/services/order-service/internal/domain"
	"bookstore-system/services/order-service/internal/repository"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type seedBook struct {
	ID       int64  `yaml:"id"`
	Title    string `yaml:"title"`
	Author   string `yaml:"author"`
	ImageURL string `yaml:"image_url"`
	Price    string `yaml:"price"`
	Stock    int    `yaml:"stock"`
}

// loadSeed fills a memory store with the books listed in a YAML file.
func loadSeed(store *repository.MemoryStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var books []seedBook
	if err := yaml.Unmarshal(data, &books); err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, b := range books {
		price, err := decimal.NewFromString(b.Price)
		if err != nil {
			return 0, fmt.Errorf("book %d: price %q: %w", b.ID, b.Price, err)
		}
		if b.ID <= 0 || !price.IsPositive() || b.Stock < 0 {
			return 0, fmt.Errorf("book %d: id and price must be positive and stock non-negative", b.ID)
		}
		store.AddBook(domain.Book{
			ID:            b.ID,
			Title:         b.Title,
			Author:        b.Author,
			ImageURL:      b.ImageURL,
			Price:         price,
			StockQuantity: b.Stock,
		})
	}
	return len(books), nil
}
