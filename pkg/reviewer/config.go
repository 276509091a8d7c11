package reviewer

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"

	"github.com/go-playground/validator/v10"
)

// Default scoring weights.
const (
	DefaultOpenPRWeight       = 10.0
	DefaultLinesPer100Weight  = 1.0
	DefaultRecentReviewWeight = 3.0
)

// Weights are the coefficients of the workload score.
type Weights struct {
	OpenPR       float64 `validate:"finite,gte=0"`
	LinesPer100  float64 `validate:"finite,gte=0"`
	RecentReview float64 `validate:"finite,gte=0"`
}

// DefaultWeights returns the 10/1/3 weighting.
func DefaultWeights() Weights {
	return Weights{
		OpenPR:       DefaultOpenPRWeight,
		LinesPer100:  DefaultLinesPer100Weight,
		RecentReview: DefaultRecentReviewWeight,
	}
}

// Roster is an ordered, de-duplicated list of candidate logins.
// The zero value is an empty roster.
type Roster struct {
	logins []string
}

// NewRoster builds a roster from logins, trimming whitespace, dropping empty
// entries and keeping the first occurrence of duplicates.
func NewRoster(logins ...string) Roster {
	seen := make(map[string]bool, len(logins))
	out := make([]string, 0, len(logins))
	for _, login := range logins {
		login = strings.TrimSpace(login)
		if login == "" || seen[login] {
			continue
		}
		seen[login] = true
		out = append(out, login)
	}
	return Roster{logins: out}
}

// ParseRoster parses a comma-separated list of logins.
func ParseRoster(csv string) Roster {
	return NewRoster(strings.Split(csv, ",")...)
}

// Members returns a copy of the logins in roster order.
func (r Roster) Members() []string {
	out := make([]string, len(r.logins))
	copy(out, r.logins)
	return out
}

// Len returns the number of logins.
func (r Roster) Len() int {
	return len(r.logins)
}

// Without returns the members other than login, in roster order.
// Matching is exact and case-sensitive.
func (r Roster) Without(login string) []string {
	out := make([]string, 0, len(r.logins))
	for _, m := range r.logins {
		if m != login {
			out = append(out, m)
		}
	}
	return out
}

// Config is the immutable input of one selection run.
type Config struct {
	Owner   string `validate:"required,max=100,excludesall=/"`
	Repo    string `validate:"required,max=100,excludesall=/"`
	Team    Roster
	Weights Weights
	// CountSubmittedReviews also counts open PRs the candidate already reviewed.
	CountSubmittedReviews bool
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		if err := validate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			if fl.Field().Kind() != reflect.Float64 && fl.Field().Kind() != reflect.Float32 {
				return false
			}
			f := fl.Field().Float()
			return !math.IsNaN(f) && !math.IsInf(f, 0)
		}); err != nil {
			panic(fmt.Sprintf("register finite validation: %v", err))
		}
	})
	return validate
}

// Validate checks repository coordinates and weights.
// Failures wrap types.ErrConfiguration.
func (c Config) Validate() error {
	if err := configValidator().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", types.ErrConfiguration, err)
	}
	return nil
}
