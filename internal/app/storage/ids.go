package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/devkekops/skipay/internal/app/entity"
)

func fillID(id *string, createdAt *entity.Timestamp) {
	if *id == "" {
		*id = uuid.New().String()
	}
	if createdAt.IsZero() {
		*createdAt = entity.NewTimestamp(time.Now())
	}
}
