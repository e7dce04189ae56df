package graph

import "time"

// Entity is the indexed representation of one file.
type Entity struct {
	ID          int64
	ProjectID   int64
	FilePath    string
	Permalink   *string
	Title       string
	EntityType  string
	ContentType string
	// Checksum is nil while a sync is in progress or has failed partway
	// through; a non-nil value marks the entity complete.
	Checksum  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Observation is a single categorized bullet owned by an entity. Fully
// replaced, never individually updated, on each sync of its file.
type Observation struct {
	ID       int64
	EntityID int64
	Category *string
	Content  string
	Tags     []string
	Context  *string
}

// Relation is a directed, typed edge between entities. ToID is nil when
// the target hasn't resolved yet; the row persists as a forward reference
// until a later sync resolves it.
type Relation struct {
	ID           int64
	FromID       int64
	ToID         *int64
	ToName       string
	RelationType string
	Context      *string
}

// Project tracks the sync watermark for one project root.
type Project struct {
	ID                int64
	RootPath          string
	LastScanTimestamp *time.Time
	LastFileCount     *int
}
