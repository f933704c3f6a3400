package models

import (
	"time"
)

// BaseModel contains the fields every stored document carries. They are
// owned by the document store: ID is assigned on create and the timestamps
// are maintained on every write.
type BaseModel struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
