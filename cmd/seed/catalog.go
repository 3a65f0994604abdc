package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/pkg/slug"
)

// productNamespace keeps generated IDs stable across runs.
var productNamespace = uuid.MustParse("6f0b7a52-3f51-4c1e-9a35-0f6a1d1f5c20")

type vendorDef struct {
	ID   string
	Name string
}

var vendors = []vendorDef{
	{"v-acme", "Acme"},
	{"v-globex", "Globex"},
	{"v-initech", "Initech"},
	{"v-umbrella", "Umbrella"},
	{"v-stark", "Stark Supply"},
	{"v-wayne", "Wayne Goods"},
}

type categoryDef struct {
	ID     string
	Name   string
	Weight float64 // share of total products (sums to 1.0)
	Types  []string
	Price  [2]int64 // min, max in cents
}

var categories = []categoryDef{
	{"c-laptops", "Laptops", 0.15, []string{"Laptop", "Ultrabook", "Gaming Laptop", "Chromebook"}, [2]int64{29900, 349900}},
	{"c-phones", "Phones", 0.15, []string{"Smartphone", "Phone Case", "Charger", "Screen Protector"}, [2]int64{990, 149900}},
	{"c-audio", "Audio", 0.10, []string{"Headphones", "Earbuds", "Bluetooth Speaker", "Soundbar"}, [2]int64{1990, 79900}},
	{"c-kitchen", "Kitchen", 0.20, []string{"Coffee Mug", "Chef Knife", "Frying Pan", "Espresso Machine", "Blender"}, [2]int64{590, 89900}},
	{"c-furniture", "Furniture", 0.15, []string{"Standing Desk", "Office Chair", "Bookshelf", "Side Table"}, [2]int64{4990, 129900}},
	{"c-outdoor", "Outdoor", 0.15, []string{"Tent", "Sleeping Bag", "Hiking Backpack", "Water Bottle"}, [2]int64{1290, 59900}},
	{"c-books", "Books", 0.10, []string{"Cookbook", "Travel Guide", "Novel", "Field Guide"}, [2]int64{790, 4990}},
}

var adjectives = []string{
	"Compact", "Premium", "Budget", "Wireless", "Stainless", "Ergonomic",
	"Lightweight", "Classic", "Pro", "Eco", "Foldable", "Smart",
}

var colors = []string{"Black", "White", "Silver", "Blue", "Red", "Green", "Graphite", "Sand"}

var tagPool = []string{"sale", "new", "bestseller", "eco", "gift", "limited"}

var descriptionTemplates = []string{
	"A %s built for everyday use, with a durable finish and a two year warranty.",
	"Our most popular %s, redesigned this season with better materials.",
	"This %s ships in recyclable packaging and pairs with the rest of the range.",
	"Reliable %s with a clean design that fits any setup.",
}

// generateProducts builds n products spread over the categories by weight.
// The same seed always yields the same catalog.
func generateProducts(n int, seed uint64, now time.Time) []domain.Product {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	products := make([]domain.Product, 0, n)

	remaining := n
	idx := 0
	for i, cat := range categories {
		count := int(float64(n) * cat.Weight)
		if i == len(categories)-1 {
			count = remaining
		}
		remaining -= count

		for j := 0; j < count; j++ {
			productType := cat.Types[rng.IntN(len(cat.Types))]
			name := fmt.Sprintf("%s %s - %s",
				adjectives[rng.IntN(len(adjectives))], productType, colors[rng.IntN(len(colors))])
			vendor := vendors[idx%len(vendors)]

			price := cat.Price[0] + rng.Int64N(cat.Price[1]-cat.Price[0]+1)
			price = price / 100 * 100

			var tags []string
			for _, t := range tagPool {
				if rng.IntN(5) == 0 {
					tags = append(tags, t)
				}
			}
			if tags == nil {
				tags = []string{}
			}

			age := time.Duration(rng.IntN(90*24*60)) * time.Minute
			products = append(products, domain.Product{
				ID:           uuid.NewSHA1(productNamespace, []byte(fmt.Sprintf("product:%d", idx))).String(),
				Name:         name,
				SKU:          fmt.Sprintf("SKU-%06d", idx),
				Slug:         fmt.Sprintf("%s-%d", slug.Generate(name), idx),
				Description:  fmt.Sprintf(descriptionTemplates[rng.IntN(len(descriptionTemplates))], productType),
				CategoryID:   cat.ID,
				CategoryName: cat.Name,
				VendorID:     vendor.ID,
				VendorName:   vendor.Name,
				Price:        price,
				Currency:     "USD",
				Status:       domain.StatusPublished,
				Stock:        rng.IntN(50),
				Tags:         tags,
				Popularity:   rng.Int64N(1000),
				CreatedAt:    now.Add(-age).UTC(),
			})
			idx++
		}
	}
	return products
}
