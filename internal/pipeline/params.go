package pipeline

import (
	"fmt"
	"strings"
)

// Params is the pipeline step input. Omitted population sizes fall back to
// the loaded profile, which defaults to 1400 churned users, 600 retained
// users and 1000 events per user. An explicit 0 is honored.
type Params struct {
	Container           string `json:"container"`
	OutputStreamPath    string `json:"output_stream_path"`
	EnrichmentTablePath string `json:"enrichment_table_path"`
	NumUsersGroup1      *int   `json:"num_users_group1,omitempty"`
	NumUsersGroup2      *int   `json:"num_users_group2,omitempty"`
	EventsPerUser       *int   `json:"events_per_user,omitempty"`
	Seed                uint64 `json:"seed,omitempty"`
	SkipEnrichment      bool   `json:"skip_enrichment,omitempty"`
}

// Validate checks that every required path is present and sizes are sane
func (p Params) Validate() error {
	var missing []string
	if p.Container == "" {
		missing = append(missing, "container")
	}
	if p.OutputStreamPath == "" {
		missing = append(missing, "output_stream_path")
	}
	if p.EnrichmentTablePath == "" && !p.SkipEnrichment {
		missing = append(missing, "enrichment_table_path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}

	for _, n := range []*int{p.NumUsersGroup1, p.NumUsersGroup2, p.EventsPerUser} {
		if n != nil && *n < 0 {
			return fmt.Errorf("population sizes must not be negative")
		}
	}
	return nil
}

// ResourceName maps a container and path onto a flat AWS resource name:
// "bigdata" + "churn/events" -> "bigdata-churn-events".
func ResourceName(container, path string) string {
	path = strings.ReplaceAll(strings.Trim(path, "/"), "/", "-")
	if container == "" {
		return path
	}
	return container + "-" + path
}
