package exchange

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
)

// NewClientOrderID builds a compact client order ID from a random
// UUID, base62-encoded to stay well inside the exchange's 36 character
// limit. The prefix identifies the grid that owns the order.
func NewClientOrderID(prefix string) string {
	u := uuid.New()
	return fmt.Sprintf("%s-%s", prefix, base62.EncodeToString(u[:]))
}
