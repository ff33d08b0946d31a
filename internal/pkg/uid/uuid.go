package uid

import "github.com/google/uuid"

// UUID yields version 7 ids, which sort by creation time.
type UUID struct{}

func NewUUID() *UUID { return &UUID{} }

func (*UUID) Generate() string { return uuid.Must(uuid.NewV7()).String() }
