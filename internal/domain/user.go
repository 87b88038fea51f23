package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the owner of payments and payment methods. The orchestration core
// only needs an opaque id plus the name/email handed to providers when
// registering a customer record.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}
