package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/domain"
)

// keyBucket coarsens the attempt timestamp so quick client retries of the
// same cart land on the same derived key while a genuinely new purchase of
// the same cart later does not.
const keyBucket = 5 * time.Minute

// DeriveKey builds a deterministic idempotency key from the customer, the
// snapshot content, and the attempt time bucket.
func DeriveKey(userID string, snap domain.CartSnapshot, at time.Time) string {
	lines := make([]string, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		lines = append(lines, fmt.Sprintf("%s:%d:%d", l.ProductID, l.Quantity, l.PriceCents))
	}
	sort.Strings(lines)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d", userID, strings.Join(lines, ","), at.Unix()/int64(keyBucket.Seconds()))
	return hex.EncodeToString(h.Sum(nil))
}
