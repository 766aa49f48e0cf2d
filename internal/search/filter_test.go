package search_test

import (
	"testing"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/search"
)

type bookCriteria struct {
	Title    string
	Genre    *string
	MinPrice *decimal.Decimal
}

func (c bookCriteria) SearchFields() []search.Field {
	return []search.Field{
		{Column: "title", Mode: search.Like, Value: c.Title},
		{Column: "genre", Mode: search.Equal, Value: c.Genre},
		{Column: "price", Mode: search.GreaterThan, Value: c.MinPrice},
	}
}

func ptr[T any](v T) *T { return &v }

func Test_Build_SkipsAbsentValues(t *testing.T) {
	tests := []struct {
		name     string
		criteria bookCriteria
		columns  []string
	}{
		{name: "all_absent", criteria: bookCriteria{}, columns: nil},
		{name: "blank_string", criteria: bookCriteria{Title: "   "}, columns: nil},
		{name: "nil_pointer_skipped", criteria: bookCriteria{Title: "Code"}, columns: []string{"title"}},
		{name: "pointer_dereferenced", criteria: bookCriteria{Genre: ptr("FICTION")}, columns: []string{"genre"}},
		{
			name:     "all_present",
			criteria: bookCriteria{Title: "Go", Genre: ptr("SCIENCE"), MinPrice: ptr(decimal.NewFromInt(10))},
			columns:  []string{"title", "genre", "price"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := search.Build(tt.criteria)
			var cols []string
			for _, term := range p.Terms() {
				cols = append(cols, term.Column)
			}
			assert.Equal(t, tt.columns, cols)
			assert.Equal(t, len(tt.columns) == 0, p.Empty())
		})
	}
}

func Test_Build_DereferencesValues(t *testing.T) {
	p := search.Build(bookCriteria{Genre: ptr("FICTION"), MinPrice: ptr(decimal.RequireFromString("9.99"))})

	terms := p.Terms()
	require.Len(t, terms, 2)
	assert.Equal(t, "FICTION", terms[0].Value)
	assert.Equal(t, search.Equal, terms[0].Mode)
	assert.True(t, decimal.RequireFromString("9.99").Equal(terms[1].Value.(decimal.Decimal)))
}

func Test_Predicate_Expression(t *testing.T) {
	ds := goqu.Dialect("postgres").From("books")

	t.Run("like_lowercases_and_wraps", func(t *testing.T) {
		sql, _, err := ds.Where(search.Build(bookCriteria{Title: "Code"}).Expression()).ToSQL()
		require.NoError(t, err)
		assert.Contains(t, sql, `LOWER("title") LIKE '%code%'`)
		assert.NotContains(t, sql, `"genre"`)
	})

	t.Run("terms_are_anded", func(t *testing.T) {
		c := bookCriteria{Title: "Code", Genre: ptr("SCIENCE"), MinPrice: ptr(decimal.NewFromInt(5))}
		sql, _, err := ds.Where(search.Build(c).Expression()).ToSQL()
		require.NoError(t, err)
		assert.Contains(t, sql, `LOWER("title") LIKE '%code%'`)
		assert.Contains(t, sql, `"genre" = 'SCIENCE'`)
		assert.Contains(t, sql, `"price" > `)
		assert.Contains(t, sql, " AND ")
	})

	t.Run("prepared_values_are_arguments", func(t *testing.T) {
		sql, args, err := ds.Prepared(true).Where(search.Build(bookCriteria{Title: "Code", Genre: ptr("SCIENCE")}).Expression()).ToSQL()
		require.NoError(t, err)
		assert.NotContains(t, sql, "SCIENCE")
		assert.Contains(t, args, "%code%")
		assert.Contains(t, args, "SCIENCE")
	})

	t.Run("empty_predicate_has_no_where", func(t *testing.T) {
		sql, _, err := ds.Where(search.Build(bookCriteria{}).Expression()).ToSQL()
		require.NoError(t, err)
		assert.NotContains(t, sql, "WHERE")
	})
}

func Test_Predicate_Match(t *testing.T) {
	record := map[string]any{
		"title": "Clean Code",
		"genre": "SCIENCE",
		"price": decimal.RequireFromString("25.00"),
	}
	lookup := func(col string) any { return record[col] }

	tests := []struct {
		name     string
		criteria bookCriteria
		want     bool
	}{
		{name: "empty_matches_everything", criteria: bookCriteria{}, want: true},
		{name: "like_is_case_insensitive_substring", criteria: bookCriteria{Title: "code"}, want: true},
		{name: "like_miss", criteria: bookCriteria{Title: "Pragmatic"}, want: false},
		{name: "equal_hit", criteria: bookCriteria{Genre: ptr("SCIENCE")}, want: true},
		{name: "equal_miss", criteria: bookCriteria{Genre: ptr("FICTION")}, want: false},
		{name: "greater_than_hit", criteria: bookCriteria{MinPrice: ptr(decimal.NewFromInt(20))}, want: true},
		{name: "greater_than_is_strict", criteria: bookCriteria{MinPrice: ptr(decimal.NewFromInt(25))}, want: false},
		{name: "all_terms_must_hold", criteria: bookCriteria{Title: "Code", Genre: ptr("FICTION")}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, search.Build(tt.criteria).Match(lookup))
		})
	}
}

func Test_Window(t *testing.T) {
	page, size, offset := search.Window(-1, 0)
	assert.Equal(t, 0, page)
	assert.Equal(t, search.DefaultPageSize, size)
	assert.Equal(t, 0, offset)

	page, size, offset = search.Window(3, 500)
	assert.Equal(t, 3, page)
	assert.Equal(t, search.MaxPageSize, size)
	assert.Equal(t, 300, offset)
}

func Test_Mode_String(t *testing.T) {
	assert.Equal(t, "LIKE", search.Like.String())
	assert.Equal(t, "GREATER_THAN", search.GreaterThan.String())
	assert.Equal(t, "Mode(42)", search.Mode(42).String())
}
