package contentsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Extractor produces the normalized content snapshot. Implementations return
// every stored item; eligibility filtering happens in the sync run.
type Extractor interface {
	Products(ctx context.Context) ([]Product, error)
	Posts(ctx context.Context) ([]Post, error)
}

// SQLExtractor reads the storefront catalog from Postgres. List-valued
// columns (tags, attributes, images) are stored as JSON text.
type SQLExtractor struct {
	DB *sql.DB
}

func NewSQLExtractor(db *sql.DB) *SQLExtractor {
	return &SQLExtractor{DB: db}
}

func (e *SQLExtractor) Products(ctx context.Context) ([]Product, error) {
	cats, err := e.loadCategories(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.DB.QueryContext(ctx, `
		SELECT id, name, COALESCE(url,''), COALESCE(sku,''),
		       COALESCE(short_description,''), COALESCE(full_description,''),
		       COALESCE(regular_price,0), COALESCE(sale_price,0),
		       COALESCE(status,'publish'), COALESCE(visibility,'public'),
		       COALESCE(stock_status,'instock'), COALESCE(password_protected,FALSE),
		       COALESCE(tags,''), COALESCE(attributes,''), COALESCE(images,'')
		FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		var tags, attrs, images string
		if err := rows.Scan(&p.ID, &p.Name, &p.URL, &p.SKU,
			&p.ShortDescription, &p.FullDescription,
			&p.RegularPrice, &p.SalePrice,
			&p.Status, &p.Visibility,
			&p.StockStatus, &p.PasswordProtected,
			&tags, &attrs, &images); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Tags = decodeStrings(tags)
		p.Images = decodeStrings(images)
		p.Attributes = decodeStringMap(attrs)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	if err := e.attachCategoryPaths(ctx, out, cats); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *SQLExtractor) Posts(ctx context.Context) ([]Post, error) {
	rows, err := e.DB.QueryContext(ctx, `
		SELECT id, title, COALESCE(url,''), COALESCE(content,''),
		       COALESCE(status,'publish'), COALESCE(visibility,'public'),
		       COALESCE(password_protected,FALSE),
		       COALESCE(categories,''), COALESCE(tags,''), published_at
		FROM posts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var out []Post
	for rows.Next() {
		var p Post
		var cats, tags string
		var published sql.NullTime
		if err := rows.Scan(&p.ID, &p.Title, &p.URL, &p.Content,
			&p.Status, &p.Visibility, &p.PasswordProtected,
			&cats, &tags, &published); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.Categories = decodeStrings(cats)
		p.Tags = decodeStrings(tags)
		if published.Valid {
			p.PublishedAt = published.Time
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}

type category struct {
	name   string
	parent sql.NullInt64
}

func (e *SQLExtractor) loadCategories(ctx context.Context) (map[int64]category, error) {
	rows, err := e.DB.QueryContext(ctx, `SELECT id, name, parent_id FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	cats := make(map[int64]category)
	for rows.Next() {
		var id int64
		var c category
		if err := rows.Scan(&id, &c.name, &c.parent); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats[id] = c
	}
	return cats, rows.Err()
}

func (e *SQLExtractor) attachCategoryPaths(ctx context.Context, products []Product, cats map[int64]category) error {
	if len(products) == 0 {
		return nil
	}
	rows, err := e.DB.QueryContext(ctx, `SELECT product_id, category_id FROM product_categories`)
	if err != nil {
		return fmt.Errorf("query product categories: %w", err)
	}
	defer rows.Close()

	links := make(map[int64][]int64)
	for rows.Next() {
		var pid, cid int64
		if err := rows.Scan(&pid, &cid); err != nil {
			return fmt.Errorf("scan product category: %w", err)
		}
		links[pid] = append(links[pid], cid)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range products {
		for _, cid := range links[products[i].ID] {
			if path := CategoryPath(cats, cid); path != "" {
				products[i].CategoryPaths = append(products[i].CategoryPaths, path)
			}
		}
	}
	return nil
}

// CategoryPath walks the parent chain from the given category up to its root
// and returns the root-to-leaf path. Cycles are cut off at a fixed depth.
func CategoryPath(cats map[int64]category, id int64) string {
	var names []string
	for depth := 0; depth < 32; depth++ {
		c, ok := cats[id]
		if !ok {
			break
		}
		names = append(names, c.name)
		if !c.parent.Valid {
			break
		}
		id = c.parent.Int64
	}
	if len(names) == 0 {
		return ""
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, categoryPathSep)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		// Legacy rows may hold a plain comma-separated list.
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func decodeStringMap(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
