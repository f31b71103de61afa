// Package policy maps help categories to routing priorities and qualifying
// expertise, and defines the fixed training curriculum for leader candidates.
//
// Everything here is a pure function, total over the category enumeration.
package policy

import "github.com/haventree/shepherd/internal/models"

// DefaultPriority is the priority assigned to non-crisis categories unless
// configured otherwise.
const DefaultPriority = models.PriorityMedium

// Policy resolves category routing decisions.
type Policy struct {
	defaultPriority models.Priority
}

// Opts holds configuration options for a Policy.
type Opts struct {
	DefaultPriority models.Priority
}

// Option defines a configuration option for a Policy.
type Option func(*Opts)

// WithDefaultPriority overrides the priority used for non-crisis categories.
func WithDefaultPriority(p models.Priority) Option {
	return func(o *Opts) { o.DefaultPriority = p }
}

// New creates a Policy with the given options.
func New(opts ...Option) *Policy {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DefaultPriority == "" || !models.IsValidPriority(cfg.DefaultPriority) {
		cfg.DefaultPriority = DefaultPriority
	}
	return &Policy{defaultPriority: cfg.DefaultPriority}
}

// PriorityFor returns the routing priority for a category. Crisis requests
// are always crisis priority regardless of configuration.
func (p *Policy) PriorityFor(category models.HelpCategory) models.Priority {
	if category == models.CategoryCrisis {
		return models.PriorityCrisis
	}
	return p.defaultPriority
}

// IsQualified reports whether the leader's expertise covers the category.
func (p *Policy) IsQualified(leader *models.LeaderProfile, category models.HelpCategory) bool {
	if leader == nil {
		return false
	}
	return leader.HasExpertise(category)
}

// requiredTrainingModules is the fixed curriculum every leader candidate must
// finish before approval.
var requiredTrainingModules = []string{
	"pastoral-foundations",
	"active-listening",
	"crisis-response",
	"confidentiality-and-boundaries",
	"referral-pathways",
}

// RequiredTrainingModules returns a copy of the fixed required-module set.
func RequiredTrainingModules() []string {
	out := make([]string, len(requiredTrainingModules))
	copy(out, requiredTrainingModules)
	return out
}

// IsRequiredModule reports whether the named module is part of the curriculum.
func IsRequiredModule(name string) bool {
	for _, m := range requiredTrainingModules {
		if m == name {
			return true
		}
	}
	return false
}

// TrainingComplete reports whether done covers every required module.
func TrainingComplete(done []string) bool {
	for _, required := range requiredTrainingModules {
		found := false
		for _, d := range done {
			if d == required {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
