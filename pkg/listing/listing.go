package listing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Columns is the fixed output schema, in order.
var Columns = []string{
	"id",
	"title",
	"price",
	"currency",
	"city",
	"views",
	"is_vip",
	"is_premium",
	"url",
	"created_time",
	"updated_time",
	"category_id",
	"user_id",
	"images_count",
	"description",
}

// Listing is one marketplace item as persisted to the output.
type Listing struct {
	ID          string
	Title       string
	Price       string
	Currency    string
	City        string
	Views       string
	IsVIP       bool
	IsPremium   bool
	URL         string
	CreatedTime string
	UpdatedTime string
	CategoryID  string
	UserID      string
	ImagesCount int
	Description string
}

// Record renders the listing in Columns order.
func (l Listing) Record() []string {
	return []string{
		l.ID,
		l.Title,
		l.Price,
		l.Currency,
		l.City,
		l.Views,
		strconv.FormatBool(l.IsVIP),
		strconv.FormatBool(l.IsPremium),
		l.URL,
		l.CreatedTime,
		l.UpdatedTime,
		l.CategoryID,
		l.UserID,
		strconv.Itoa(l.ImagesCount),
		l.Description,
	}
}

// ItemsToRows transforms the items of a feed page into listings, preserving
// item order. Items without an id are dropped. The function has no side effects.
func ItemsToRows(doc Document) []Listing {
	items := doc.Items()
	rows := make([]Listing, 0, len(items))
	for _, item := range items {
		if !hasID(item["id"]) {
			continue
		}
		images, _ := item["images"].([]any)
		rows = append(rows, Listing{
			ID:          text(item["id"]),
			Title:       text(item["title"]),
			Price:       text(item["price"]),
			Currency:    text(item["currency"]),
			City:        city(item["city"]),
			Views:       text(item["views"]),
			IsVIP:       flag(item["is_vip"]),
			IsPremium:   flag(item["is_premium"]),
			URL:         text(item["url"]),
			CreatedTime: text(item["created_time"]),
			UpdatedTime: text(item["updated_time"]),
			CategoryID:  text(item["category_id"]),
			UserID:      text(item["user_id"]),
			ImagesCount: len(images),
			Description: strings.TrimSpace(strings.ReplaceAll(text(item["description"]), "\n", " ")),
		})
	}
	return rows
}

// hasID reports whether v is a usable identifier. Null, empty, zero and false are not.
func hasID(v any) bool {
	switch id := v.(type) {
	case nil:
		return false
	case string:
		return id != ""
	case json.Number:
		f, err := id.Float64()
		return err != nil || f != 0
	case float64:
		return id != 0
	case int:
		return id != 0
	case bool:
		return id
	case []any:
		return len(id) > 0
	case map[string]any:
		return len(id) > 0
	default:
		return true
	}
}

// city accepts either a plain name or an object carrying one.
func city(v any) string {
	if obj, ok := v.(map[string]any); ok {
		return text(obj["name"])
	}
	return text(v)
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case map[string]any, []any:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(s)
	}
}

func flag(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case json.Number:
		f, err := b.Float64()
		return err == nil && f != 0
	case float64:
		return b != 0
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	default:
		return false
	}
}
