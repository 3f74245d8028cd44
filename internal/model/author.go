package model

// Author mirrors a row of the `authors` table.
type Author struct {
    ID   int64  `db:"id" json:"id"`     // authors.id
    Name string `db:"name" json:"name"` // authors.name
    Bio  string `db:"bio" json:"bio"`   // authors.bio (empty when not provided)
}
