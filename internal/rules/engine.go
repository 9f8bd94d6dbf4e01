package rules

import "ufwinspector/pkg/models"

// Engine tags firewall events with the names of the rules they match.
type Engine interface {
	Apply(ev models.Event) []string
}

// NoopEngine returns no tags. Pipelines use it when no rules are configured.
type NoopEngine struct{}

// Apply returns no tags.
func (n *NoopEngine) Apply(ev models.Event) []string {
	return nil
}
