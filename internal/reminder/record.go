// Package reminder runs the daily expiry sweep: it validates product
// documents, matches them against the reminder policy, groups matches by
// owner and hands one message per owner to the mailer.
package reminder

import (
	"strings"
	"time"

	"github.com/lalithlochan/shelflife/internal/db"
	"github.com/lalithlochan/shelflife/internal/expiry"
)

// SkipReason explains why a product document was excluded from a sweep.
type SkipReason string

const (
	SkipMissingProduct      SkipReason = "missing_product"
	SkipMissingExpiry       SkipReason = "missing_expiry"
	SkipMissingOwner        SkipReason = "missing_owner"
	SkipMissingRemindBefore SkipReason = "missing_remind_before"
	SkipInvalidExpiry       SkipReason = "invalid_expiry"
	SkipInvalidRemindBefore SkipReason = "invalid_remind_before"
)

// Item is a product document that passed validation.
type Item struct {
	ID           string
	Product      string
	Expiry       string
	Owner        string
	RemindBefore string
	ExpiresAt    time.Time
	Threshold    int // parsed RemindBefore, zero when not required
}

// Match is an item whose days-left count hit the reminder policy.
type Match struct {
	Item
	DaysLeft int
}

// Validate turns a raw product document into an Item, or reports the first
// reason it cannot be used. requireThreshold makes remind_before mandatory.
func Validate(p db.Product, requireThreshold bool) (Item, SkipReason) {
	item := Item{
		ID:           p.ID,
		Product:      field(p.Product),
		Expiry:       field(p.Expiry),
		Owner:        field(p.Owner),
		RemindBefore: field(p.RemindBefore),
	}

	switch {
	case item.Product == "":
		return Item{}, SkipMissingProduct
	case item.Expiry == "":
		return Item{}, SkipMissingExpiry
	case item.Owner == "":
		return Item{}, SkipMissingOwner
	case requireThreshold && item.RemindBefore == "":
		return Item{}, SkipMissingRemindBefore
	}

	expiresAt, err := expiry.ParseDate(item.Expiry)
	if err != nil {
		return Item{}, SkipInvalidExpiry
	}
	item.ExpiresAt = expiresAt

	if requireThreshold {
		threshold, err := expiry.ParseRemindBefore(item.RemindBefore)
		if err != nil {
			return Item{}, SkipInvalidRemindBefore
		}
		item.Threshold = threshold
	}

	return item, ""
}

func field(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
