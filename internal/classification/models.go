package classification

import (
	"time"

	"sift/pkg/models"
)

// PatternRule binds a category to the regular expressions that vote for
// it. Rules live in MongoDB and are reloaded periodically.
type PatternRule struct {
	ID        string          `bson:"_id,omitempty" json:"id"`
	Category  models.Category `bson:"category" json:"category"`
	Patterns  []string        `bson:"patterns" json:"patterns"`
	Priority  int             `bson:"priority" json:"priority"`
	Enabled   bool            `bson:"enabled" json:"enabled"`
	CreatedAt time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at" json:"updated_at"`
}

// DefaultRules is the built-in rule set used until the rule store has
// been loaded, and as the seed for a fresh deployment.
func DefaultRules() []PatternRule {
	now := time.Now()
	mk := func(category models.Category, patterns ...string) PatternRule {
		return PatternRule{
			Category:  category,
			Patterns:  patterns,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	return []PatternRule{
		mk(models.CategoryTransactional,
			`\$\d+\.\d{2}`,
			`invoice|receipt|payment|transaction|purchase|order`,
			`your order|order confirmation|payment received`,
			`bank|paypal|stripe|credit card`,
		),
		mk(models.CategoryJobSearch,
			`job application|interview|position|career|hiring`,
			`linkedin|indeed|glassdoor`,
			`resume|cv|cover letter`,
			`job alert|new job|job opportunity`,
		),
		mk(models.CategorySubscription,
			`newsletter|subscription|subscribe|unsubscribe`,
			`weekly digest|daily update|monthly summary`,
			`marketing|promotional`,
		),
		mk(models.CategoryTravel,
			`flight|hotel|booking|reservation|travel`,
			`check-in|boarding pass|itinerary`,
			`airbnb|uber|lyft|expedia|booking\.com`,
		),
		mk(models.CategoryPersonal,
			`@gmail\.com|@yahoo\.com|@outlook\.com|@hotmail\.com`,
			`re:|fwd:`,
		),
	}
}
