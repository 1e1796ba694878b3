package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `{
  "_meta": {"pageCount": 12, "totalCount": "231", "currentPage": 3, "perPage": 20},
  "items": [
    {
      "id": 101,
      "title": "Sofa",
      "price": 350.5,
      "currency": "AZN",
      "city": {"id": 1, "name": "Baku"},
      "views": 42,
      "is_vip": true,
      "url": "/baku/ads/sofa-id-101",
      "created_time": 1700000000,
      "updated_time": 1700000100,
      "category_id": 1423,
      "user_id": 77,
      "images": [{"id": 1}, {"id": 2}],
      "description": "  Soft\nand big \n"
    },
    {"title": "no id at all"},
    {"id": 0, "title": "zero id"},
    {"id": "", "title": "empty id"},
    {"id": null, "title": "null id"},
    "not an object",
    {"id": "abc-7", "city": "Ganja", "is_premium": "true"}
  ]
}`

func TestDecode(t *testing.T) {
	doc, err := DecodeBytes([]byte(samplePage))
	require.NoError(t, err)

	meta := doc.Meta()
	assert.Equal(t, Meta{PageCount: 12, TotalCount: 231, CurrentPage: 3, PerPage: 20}, meta)
	assert.Len(t, doc.Items(), 6)
}

func TestDecode_Errors(t *testing.T) {
	_, err := DecodeBytes([]byte(`[1, 2, 3]`))
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = DecodeBytes([]byte(`<html>`))
	assert.Error(t, err)
}

func TestMeta_Missing(t *testing.T) {
	doc, err := DecodeBytes([]byte(`{"items": []}`))
	require.NoError(t, err)
	assert.Equal(t, Meta{}, doc.Meta())
}

func TestItemsToRows(t *testing.T) {
	doc, err := DecodeBytes([]byte(samplePage))
	require.NoError(t, err)

	rows := ItemsToRows(doc)
	require.Len(t, rows, 2)

	assert.Equal(t, Listing{
		ID:          "101",
		Title:       "Sofa",
		Price:       "350.5",
		Currency:    "AZN",
		City:        "Baku",
		Views:       "42",
		IsVIP:       true,
		URL:         "/baku/ads/sofa-id-101",
		CreatedTime: "1700000000",
		UpdatedTime: "1700000100",
		CategoryID:  "1423",
		UserID:      "77",
		ImagesCount: 2,
		Description: "Soft and big",
	}, rows[0])

	assert.Equal(t, "abc-7", rows[1].ID)
	assert.Equal(t, "Ganja", rows[1].City)
	assert.True(t, rows[1].IsPremium)
	assert.False(t, rows[1].IsVIP)
	assert.Equal(t, 0, rows[1].ImagesCount)
}

func TestItemsToRows_EmptyContainerIDs(t *testing.T) {
	doc, err := DecodeBytes([]byte(`{"items": [
		{"id": [], "title": "empty list"},
		{"id": {}, "title": "empty object"},
		{"id": false, "title": "false"},
		{"id": 5, "title": "kept"}
	]}`))
	require.NoError(t, err)

	rows := ItemsToRows(doc)
	require.Len(t, rows, 1)
	assert.Equal(t, "kept", rows[0].Title)
}

func TestItemsToRows_Idempotent(t *testing.T) {
	doc, err := DecodeBytes([]byte(samplePage))
	require.NoError(t, err)

	assert.Equal(t, ItemsToRows(doc), ItemsToRows(doc))
}

func TestItemsToRows_NoItems(t *testing.T) {
	assert.Empty(t, ItemsToRows(Document{}))
	assert.Empty(t, ItemsToRows(Document{"items": "garbage"}))
}

func TestRecord(t *testing.T) {
	l := Listing{ID: "5", Title: "Chair", IsVIP: true, ImagesCount: 3}
	rec := l.Record()

	require.Len(t, rec, len(Columns))
	assert.Equal(t, "5", rec[0])
	assert.Equal(t, "Chair", rec[1])
	assert.Equal(t, "true", rec[6])
	assert.Equal(t, "false", rec[7])
	assert.Equal(t, "3", rec[13])
}
