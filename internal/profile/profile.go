// Package profile describes the user populations the generator synthesizes.
package profile

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jarrod-lowe/churn-datagen/internal/event"
)

//go:embed default.yaml
var defaultYAML []byte

// probabilityTolerance bounds the rounding error accepted in a distribution sum
const probabilityTolerance = 1e-6

// Weight is the probability of drawing a single event type
type Weight struct {
	EventType   event.Type `yaml:"event_type"`
	Probability float64    `yaml:"probability"`
}

// Group describes one user population
type Group struct {
	Name          string   `yaml:"name"`
	Churn         bool     `yaml:"churn"`
	Users         int      `yaml:"users"`
	EventsPerUser int      `yaml:"events_per_user"`
	Distribution  []Weight `yaml:"distribution"`
}

// Set is the full generation profile
type Set struct {
	EventsPerUser int     `yaml:"events_per_user"`
	Groups        []Group `yaml:"groups"`
}

// ValidationError lists every problem found in a profile set
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid profile: " + strings.Join(e.Problems, "; ")
}

// Default returns the built-in two-group profile
func Default() *Set {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default profile is invalid: %v", err))
	}
	return s
}

// Load reads and validates a profile set from a YAML file
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}
	return Parse(data)
}

// explicitCounts records which groups set events_per_user themselves, so an
// explicit 0 is kept rather than inherited.
type explicitCounts struct {
	Groups []struct {
		EventsPerUser *int `yaml:"events_per_user"`
	} `yaml:"groups"`
}

// Parse decodes and validates a profile set. Groups without their own
// events_per_user inherit the top-level value.
func Parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	var explicit explicitCounts
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	for i := range s.Groups {
		if i >= len(explicit.Groups) || explicit.Groups[i].EventsPerUser == nil {
			s.Groups[i].EventsPerUser = s.EventsPerUser
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks group names, counts and distributions
func (s *Set) Validate() error {
	var problems []string
	if len(s.Groups) == 0 {
		problems = append(problems, "at least one group is required")
	}

	seen := make(map[string]bool, len(s.Groups))
	for i, g := range s.Groups {
		name := g.Name
		if name == "" {
			name = fmt.Sprintf("groups[%d]", i)
			problems = append(problems, name+": name is required")
		} else if seen[name] {
			problems = append(problems, name+": duplicate group name")
		}
		seen[g.Name] = true

		if g.Users < 0 {
			problems = append(problems, fmt.Sprintf("%s: users must not be negative, got %d", name, g.Users))
		}
		if g.EventsPerUser < 0 {
			problems = append(problems, fmt.Sprintf("%s: events_per_user must not be negative, got %d", name, g.EventsPerUser))
		}
		if len(g.Distribution) == 0 {
			problems = append(problems, name+": distribution is empty")
			continue
		}

		var sum float64
		for _, w := range g.Distribution {
			switch w.EventType {
			case event.TypePurchase, event.TypeBet, event.TypeWin:
			default:
				problems = append(problems, fmt.Sprintf("%s: event type %q cannot be drawn", name, w.EventType))
			}
			if w.Probability < 0 {
				problems = append(problems, fmt.Sprintf("%s: probability for %s is negative", name, w.EventType))
			}
			sum += w.Probability
		}
		if math.Abs(sum-1) > probabilityTolerance {
			problems = append(problems, fmt.Sprintf("%s: probabilities sum to %g, want 1", name, sum))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// WithOverrides returns a copy of the set with the population sizes replaced.
// A non-nil users[i] overrides the i-th group; a non-nil eventsPerUser
// overrides every group. Zero is a valid override.
func (s *Set) WithOverrides(users []*int, eventsPerUser *int) *Set {
	out := &Set{EventsPerUser: s.EventsPerUser, Groups: make([]Group, len(s.Groups))}
	for i, g := range s.Groups {
		g.Distribution = append([]Weight(nil), g.Distribution...)
		if i < len(users) && users[i] != nil {
			g.Users = *users[i]
		}
		if eventsPerUser != nil {
			g.EventsPerUser = *eventsPerUser
		}
		out.Groups[i] = g
	}
	if eventsPerUser != nil {
		out.EventsPerUser = *eventsPerUser
	}
	return out
}
