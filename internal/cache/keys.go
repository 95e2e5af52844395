package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func ProgressKey(jobID uuid.UUID) string {
	return fmt.Sprintf("reels:progress:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
