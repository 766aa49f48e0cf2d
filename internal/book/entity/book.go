package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Genre is the closed set of catalogue genres.
type Genre string

const (
	GenreClassics       Genre = "CLASSICS"
	GenreFantasy        Genre = "FANTASY"
	GenreScienceFiction Genre = "SCIENCE_FICTION"
	GenreRomance        Genre = "ROMANCE"
	GenreThriller       Genre = "THRILLER"
	GenreMystery        Genre = "MYSTERY"
	GenreDrama          Genre = "DRAMA"
	GenreComedy         Genre = "COMEDY"
	GenreHorror         Genre = "HORROR"
	GenreAction         Genre = "ACTION"
	GenreAdventure      Genre = "ADVENTURE"
	GenreCrime          Genre = "CRIME"
	GenreBiography      Genre = "BIOGRAPHY"
	GenreHistory        Genre = "HISTORY"
	GenrePoetry         Genre = "POETRY"
	GenreFiction        Genre = "FICTION"
	GenrePolitics       Genre = "POLITICS"
	GenreEducation      Genre = "EDUCATION"
	GenreScience        Genre = "SCIENCE"
	GenreHealth         Genre = "HEALTH"
	GenreSelfHelp       Genre = "SELF_HELP"
	GenreReligion       Genre = "RELIGION"
)

var genres = map[Genre]struct{}{
	GenreClassics: {}, GenreFantasy: {}, GenreScienceFiction: {}, GenreRomance: {},
	GenreThriller: {}, GenreMystery: {}, GenreDrama: {}, GenreComedy: {},
	GenreHorror: {}, GenreAction: {}, GenreAdventure: {}, GenreCrime: {},
	GenreBiography: {}, GenreHistory: {}, GenrePoetry: {}, GenreFiction: {},
	GenrePolitics: {}, GenreEducation: {}, GenreScience: {}, GenreHealth: {},
	GenreSelfHelp: {}, GenreReligion: {},
}

// Valid reports whether g is a known genre.
func (g Genre) Valid() bool {
	_, ok := genres[g]
	return ok
}

// Book is a row of the `books` table.
type Book struct {
	ID            int64           `db:"id" json:"id"`
	Title         string          `db:"title" json:"title"`
	Author        string          `db:"author" json:"author"`
	ISBN          string          `db:"isbn" json:"isbn"`
	Genre         Genre           `db:"genre" json:"genre"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Description   string          `db:"description" json:"description,omitempty"`
	PublishedDate *time.Time      `db:"published_date" json:"published_date,omitempty"`
	Available     bool            `db:"available" json:"available"`
	Active        bool            `db:"active" json:"-"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Column returns the value of a searchable column, typed as search criteria carry it.
func (b Book) Column(name string) any {
	switch name {
	case "title":
		return b.Title
	case "author":
		return b.Author
	case "isbn":
		return b.ISBN
	case "genre":
		return string(b.Genre)
	case "price":
		return b.Price
	case "available":
		return b.Available
	case "active":
		return b.Active
	}
	return nil
}
