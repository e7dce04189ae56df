package searchindex

import "time"

// DocType distinguishes the three row kinds the mirror carries, per the
// search index's (type, title, content, ...) row shape.
type DocType string

const (
	DocEntity      DocType = "entity"
	DocObservation DocType = "observation"
	DocRelation    DocType = "relation"
)

// Document is one write into the index: an entity row plus the
// observation and relation rows it owns, indexed together whenever the
// entity syncs.
type Document struct {
	EntityID     int64
	Permalink    string
	FilePath     string
	Title        string
	Content      string
	EntityType   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Observations []ObservationDoc
	Relations    []RelationDoc
}

type ObservationDoc struct {
	Content  string
	Category string
}

type RelationDoc struct {
	ToID         *int64
	RelationType string
	Content      string
}

// Query describes a search request against the index.
type Query struct {
	Text           string
	PermalinkGlob  string
	Type           DocType
	EntityType     string
	AfterDate      time.Time
	Limit          int
}

// Hit is one ranked search result.
type Hit struct {
	ID         int64
	Type       DocType
	Title      string
	Content    string
	Permalink  string
	FilePath   string
	EntityID   int64
	EntityType string
	Score      float64
	UpdatedAt  time.Time
}
