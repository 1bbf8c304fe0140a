// internal/models/scope.go
package models

import (
	"sort"
	"strings"
)

// AnalysisScope selects the locations and providers a run compares.
// Fields are unexported so a scope cannot change once handed to the engine.
type AnalysisScope struct {
	locations map[string]struct{}
	providers map[string]struct{}
	excluded  map[string]struct{}
}

// NewAnalysisScope copies its inputs. An empty list means "all".
func NewAnalysisScope(locations, providers, excludeProviders []string) AnalysisScope {
	return AnalysisScope{
		locations: toSet(locations),
		providers: toSet(providers),
		excluded:  toSet(excludeProviders),
	}
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out[v] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s AnalysisScope) IncludesLocation(location string) bool {
	if s.locations == nil {
		return true
	}
	_, ok := s.locations[location]
	return ok
}

func (s AnalysisScope) IncludesProvider(provider string) bool {
	if _, ok := s.excluded[provider]; ok {
		return false
	}
	if s.providers == nil {
		return true
	}
	_, ok := s.providers[provider]
	return ok
}

func (s AnalysisScope) Locations() []string         { return sortedKeys(s.locations) }
func (s AnalysisScope) Providers() []string         { return sortedKeys(s.providers) }
func (s AnalysisScope) ExcludedProviders() []string { return sortedKeys(s.excluded) }

// Fingerprint is a stable textual form used in cache keys.
func (s AnalysisScope) Fingerprint() string {
	return "loc=" + strings.Join(s.Locations(), ",") +
		";prov=" + strings.Join(s.Providers(), ",") +
		";excl=" + strings.Join(s.ExcludedProviders(), ",")
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
