package ingest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateGUID returns a new NewsML-style internal identifier.
func GenerateGUID() string {
	return fmt.Sprintf("urn:newsml:localhost:%s:%s",
		time.Now().UTC().Format("2006-01-02T15:04:05"), uuid.NewString())
}
