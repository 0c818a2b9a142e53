// Package contentsync builds the full storefront content snapshot and ships
// it to the message store's retriever endpoint so the bot can answer from the
// catalog. Every run resends the complete snapshot; nothing is diffed.
package contentsync

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tekflox/aiflowx-relay/botapi"
)

const categoryPathSep = " > "

// Product is a normalized catalog item as read from the storefront.
// CategoryPaths holds root-to-leaf paths, each already joined with
// categoryPathSep.
type Product struct {
	ID                int64
	Name              string
	URL               string
	SKU               string
	ShortDescription  string
	FullDescription   string
	RegularPrice      float64
	SalePrice         float64
	Status            string
	Visibility        string
	StockStatus       string
	PasswordProtected bool
	CategoryPaths     []string
	Tags              []string
	Attributes        map[string]string
	Images            []string
}

// Post is a normalized editorial item.
type Post struct {
	ID                int64
	Title             string
	URL               string
	Content           string
	Status            string
	Visibility        string
	PasswordProtected bool
	Categories        []string
	Tags              []string
	PublishedAt       time.Time
}

// Eligible reports whether a product should be synced: published, public,
// not password protected, and in stock.
func (p Product) Eligible() bool {
	return p.Status == "publish" && p.Visibility != "private" &&
		p.StockStatus != "outofstock" && !p.PasswordProtected
}

// Eligible reports whether a post should be synced: published, public, and
// not password protected.
func (p Post) Eligible() bool {
	return p.Status == "publish" && p.Visibility != "private" && !p.PasswordProtected
}

// CurrentPrice is the price a visitor pays right now.
func (p Product) CurrentPrice() float64 {
	if p.SalePrice > 0 && p.SalePrice < p.RegularPrice {
		return p.SalePrice
	}
	return p.RegularPrice
}

// BuildProductRecord serializes a product into a sync record. Empty and zero
// fields are omitted; original_price and discount_pct appear only when the
// item is actually discounted.
func BuildProductRecord(p Product) (botapi.SyncRecord, error) {
	fields := map[string]any{
		"type": "product",
		"name": p.Name,
	}
	putStr(fields, "url", p.URL)
	putStr(fields, "sku", p.SKU)
	putStr(fields, "short_description", p.ShortDescription)
	putStr(fields, "description", p.FullDescription)
	putStr(fields, "categories", strings.Join(p.CategoryPaths, ", "))
	putStr(fields, "tags", strings.Join(p.Tags, ", "))
	if len(p.Images) > 0 {
		fields["images"] = p.Images
	}
	for k, v := range p.Attributes {
		if k != "" && v != "" {
			putStr(fields, "attribute_"+sanitizeKey(k), v)
		}
	}

	current := p.CurrentPrice()
	if current > 0 {
		fields["price"] = current
	}
	if p.RegularPrice > current && p.RegularPrice > 0 {
		fields["original_price"] = p.RegularPrice
		fields["discount_pct"] = int(math.Round((p.RegularPrice - current) / p.RegularPrice * 100))
	}

	return encodeRecord(fields, "product")
}

// BuildPostRecord serializes a post into a sync record.
func BuildPostRecord(p Post) (botapi.SyncRecord, error) {
	fields := map[string]any{
		"type":  "post",
		"title": p.Title,
	}
	putStr(fields, "url", p.URL)
	putStr(fields, "content", p.Content)
	putStr(fields, "categories", strings.Join(p.Categories, ", "))
	putStr(fields, "tags", strings.Join(p.Tags, ", "))
	if !p.PublishedAt.IsZero() {
		putStr(fields, "published_at", p.PublishedAt.UTC().Format("2006-01-02"))
	}
	return encodeRecord(fields, "post")
}

func encodeRecord(fields map[string]any, contentType string) (botapi.SyncRecord, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return botapi.SyncRecord{}, fmt.Errorf("encode %s record: %w", contentType, err)
	}
	return botapi.SyncRecord{
		Content:  string(raw),
		Metadata: botapi.SyncMetadata{ContentType: contentType},
	}, nil
}

func putStr(fields map[string]any, key, val string) {
	if val != "" {
		fields[key] = val
	}
}

func sanitizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.ReplaceAll(k, " ", "_")
}
