package book

import (
	"github.com/shopspring/decimal"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/search"
)

// Criteria is the catalogue search request. Empty fields do not constrain.
type Criteria struct {
	Title    string
	Author   string
	ISBN     string
	Genre    string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

// SearchFields maps each searchable field to its column and comparison mode.
func (c Criteria) SearchFields() []search.Field {
	return []search.Field{
		{Column: "title", Mode: search.Like, Value: c.Title},
		{Column: "author", Mode: search.Like, Value: c.Author},
		{Column: "isbn", Mode: search.Equal, Value: c.ISBN},
		{Column: "genre", Mode: search.Equal, Value: c.Genre},
		{Column: "price", Mode: search.GreaterThan, Value: c.MinPrice},
		{Column: "price", Mode: search.LessThan, Value: c.MaxPrice},
	}
}
