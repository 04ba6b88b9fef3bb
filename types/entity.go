package types

import "time"

// Entity carries the creation and modification timestamps embedded in
// branches, invoices and export batches.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity with current timestamps.
func NewEntity() Entity {
	return NewEntityAt(time.Now())
}

// NewEntityAt creates an Entity stamped with t in UTC. The engine uses it
// with its injected clock so that invoice dates are reproducible in tests.
func NewEntityAt(t time.Time) Entity {
	t = t.UTC()
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// Touch updates the UpdatedAt timestamp to now.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// Age returns how long ago the entity was created.
func (e Entity) Age() time.Duration {
	return time.Since(e.CreatedAt)
}

// LastModified returns how long ago the entity was last updated.
func (e Entity) LastModified() time.Duration {
	return time.Since(e.UpdatedAt)
}

// CreatedOn returns the calendar date of creation in loc as YYYY-MM-DD.
func (e Entity) CreatedOn(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return e.CreatedAt.In(loc).Format("2006-01-02")
}
