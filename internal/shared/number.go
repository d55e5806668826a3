package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentNumber builds a human-facing document number such as "SO-20261016-093012-4F9A2C7B10D3".
// The trailing block is random, so two documents stamped in the same instant still differ.
func DocumentNumber(prefix string, at time.Time) string {
	at = at.UTC()
	id := uuid.New()
	suffix := strings.ToUpper(fmt.Sprintf("%x", id[:6]))
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102-150405"), suffix)
}
