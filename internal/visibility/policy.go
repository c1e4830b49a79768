// Package visibility decides which listings a requester may see.
//
// IsVisible is the per-listing rule. For evaluates the same rules into a
// Criteria value that a store can apply at query time, either in memory
// (Criteria.Matches) or as a MongoDB filter (Criteria.BSON).
package visibility

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
)

// IsVisible reports whether l is visible to a requester with the given role and
// subrole at now.
func IsVisible(l *models.Listing, role models.Role, subrole models.Subrole, now time.Time) bool {
	if !l.Active || !now.Before(l.ExpiryTime) || l.Remaining <= 0 {
		return false
	}
	if role != models.RoleRecipient {
		return false
	}
	if l.InExclusivityWindow(now) {
		return subrole.Privileged()
	}
	return true
}

// Criteria is the conjunction of the visibility rules for one requester at one
// instant. The zero value matches nothing.
type Criteria struct {
	// MatchNone is set when the role can never see listings.
	MatchNone bool
	Now       time.Time
	// IncludeExclusive lets bulk listings inside their window through.
	IncludeExclusive bool
}

// For builds the Criteria for a requester at now.
func For(role models.Role, subrole models.Subrole, now time.Time) Criteria {
	if role != models.RoleRecipient {
		return Criteria{MatchNone: true, Now: now}
	}
	return Criteria{Now: now, IncludeExclusive: subrole.Privileged()}
}

// Matches evaluates the criteria against a single listing.
func (c Criteria) Matches(l *models.Listing) bool {
	if c.MatchNone || c.Now.IsZero() {
		return false
	}
	if !l.Active || !l.ExpiryTime.After(c.Now) || l.Remaining < 1 {
		return false
	}
	if c.IncludeExclusive || !l.BulkExclusive {
		return true
	}
	return l.ExclusivityDeadline == nil || !l.ExclusivityDeadline.After(c.Now)
}

// BSON renders the criteria as a MongoDB filter over the listings collection.
// ok is false when nothing can match and the query should be skipped.
func (c Criteria) BSON() (filter bson.M, ok bool) {
	if c.MatchNone || c.Now.IsZero() {
		return nil, false
	}
	filter = bson.M{
		"active":             true,
		"expiry_time":        bson.M{"$gt": c.Now},
		"remaining_quantity": bson.M{"$gte": 1},
	}
	if !c.IncludeExclusive {
		filter["$or"] = bson.A{
			bson.M{"bulk_exclusive": false},
			bson.M{"exclusivity_deadline": nil},
			bson.M{"exclusivity_deadline": bson.M{"$lte": c.Now}},
		}
	}
	return filter, true
}
