package models

import (
	"time"

	"github.com/google/uuid"
)

// Photo owner scopes. Complexes and stories share one polymorphic table
// because both carry the same ordering and main-flag rules.
const (
	OwnerComplex = "complex"
	OwnerStory   = "story"
)

// Photo mirroring status
const (
	PhotoStatusPending  = "pending"
	PhotoStatusUploaded = "uploaded"
	PhotoStatusFailed   = "failed"
)

// Photo belongs to exactly one parent scope. Order is nullable; the store
// assigns a dense 1..N sequence on save. At most one photo per parent has
// Main set.
type Photo struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OwnerType string    `json:"owner_type" db:"owner_type"`
	OwnerID   uuid.UUID `json:"owner_id" db:"owner_id"`
	ImageURL  string    `json:"image_url" db:"image_url"`
	Order     *int      `json:"order" db:"sort_order"`
	Main      bool      `json:"main" db:"main"`
	S3Key     *string   `json:"s3_key" db:"s3_key"`
	Status    string    `json:"status" db:"status"`
	Attempts  int       `json:"attempts" db:"attempts"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
