package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"ufwinspector/pkg/models"
)

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles        int
	Loaded            int
	SkippedComplex    int
	SkippedDatasource int
	SkippedInvalid    int
}

type compiledSigmaRule struct {
	eval *sigmaevaluator.RuleEvaluator
	tag  string
}

// SigmaEngine evaluates Sigma rules against individual firewall events.
// It is read-only after construction and safe for concurrent use.
type SigmaEngine struct {
	rules []compiledSigmaRule
	ctx   context.Context
}

// NewSigmaEngine loads the firewall rules found at path, a single rule file
// or a directory searched recursively. Rules for other log sources, or that
// need more than one event to decide, are skipped and counted in stats.
func NewSigmaEngine(path string) (*SigmaEngine, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	files, err := ruleFiles(path)
	if err != nil {
		return nil, stats, err
	}

	stats.TotalFiles = len(files)
	engine := &SigmaEngine{ctx: context.Background()}
	for _, file := range files {
		rule, verdict := loadFirewallRule(file)
		stats.record(verdict)
		if verdict == ruleLoaded {
			engine.rules = append(engine.rules, rule)
		}
	}
	return engine, stats, nil
}

type ruleVerdict int

const (
	ruleLoaded ruleVerdict = iota
	ruleInvalid
	ruleOtherSource
	ruleUnsupported
)

func (s *SigmaLoadStats) record(v ruleVerdict) {
	switch v {
	case ruleLoaded:
		s.Loaded++
	case ruleInvalid:
		s.SkippedInvalid++
	case ruleOtherSource:
		s.SkippedDatasource++
	case ruleUnsupported:
		s.SkippedComplex++
	}
}

// ruleFiles lists the YAML files under path. An explicit file must be YAML.
func ruleFiles(path string) ([]string, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rule path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat rule path: %w", err)
	}
	if !info.IsDir() {
		if !isYAMLFile(root) {
			return nil, fmt.Errorf("rule file must end with .yml or .yaml: %s", root)
		}
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && isYAMLFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rule directory: %w", err)
	}
	return files, nil
}

// loadFirewallRule reads one rule file and compiles it when it targets UFW
// events and can be decided from a single log line.
func loadFirewallRule(file string) (compiledSigmaRule, ruleVerdict) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return compiledSigmaRule{}, ruleInvalid
	}
	rule, err := sigma.ParseRule(raw)
	if err != nil {
		return compiledSigmaRule{}, ruleInvalid
	}
	if !isFirewallCompatible(rule) {
		return compiledSigmaRule{}, ruleOtherSource
	}
	if !decidesOnOneLine(rule.Detection) {
		return compiledSigmaRule{}, ruleUnsupported
	}
	return compiledSigmaRule{
		eval: sigmaevaluator.ForRule(rule),
		tag:  tagFromRule(rule),
	}, ruleLoaded
}

// Len returns the number of loaded rules.
func (e *SigmaEngine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Apply evaluates all loaded rules and returns the tags of those that match.
func (e *SigmaEngine) Apply(ev models.Event) []string {
	if e == nil || len(e.rules) == 0 {
		return nil
	}

	eventMap := sigmaEventFrom(ev)
	var out []string
	for _, rule := range e.rules {
		res, err := rule.eval.Matches(e.ctx, eventMap)
		if err != nil {
			continue
		}
		if res.Match {
			out = append(out, rule.tag)
		}
	}
	return out
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

func isFirewallCompatible(rule sigma.Rule) bool {
	product := strings.ToLower(strings.TrimSpace(rule.Logsource.Product))
	service := strings.ToLower(strings.TrimSpace(rule.Logsource.Service))
	category := strings.ToLower(strings.TrimSpace(rule.Logsource.Category))

	if product != "" && product != "linux" && product != "ufw" {
		return false
	}
	if service != "" && service != "ufw" {
		return false
	}
	if category != "" && category != "firewall" {
		return false
	}
	return true
}

// decidesOnOneLine reports whether d matches field values of a single event:
// no timeframe, no aggregation, no keyword searches.
func decidesOnOneLine(d sigma.Detection) bool {
	if d.Timeframe > 0 {
		return false
	}
	for _, search := range d.Searches {
		if len(search.Keywords) > 0 || len(search.EventMatchers) == 0 {
			return false
		}
	}
	for _, cond := range d.Conditions {
		if cond.Aggregation != nil || !fieldExpression(cond.Search) {
			return false
		}
	}
	return true
}

// fieldExpression accepts boolean combinations of named searches.
func fieldExpression(expr sigma.SearchExpr) bool {
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.Not:
		return fieldExpression(e.Expr)
	case sigma.And:
		return allFieldExpressions(e)
	case sigma.Or:
		return allFieldExpressions(e)
	}
	return false
}

func allFieldExpressions(exprs []sigma.SearchExpr) bool {
	for _, e := range exprs {
		if !fieldExpression(e) {
			return false
		}
	}
	return true
}

// sigmaEventFrom exposes an event under both descriptive field names and
// the UFW log keys.
func sigmaEventFrom(ev models.Event) map[string]interface{} {
	buf := make(map[string]interface{}, 16)
	set := func(value string, names ...string) {
		if value == "" {
			return
		}
		for _, n := range names {
			buf[n] = value
		}
	}
	set(string(ev.Type), "action", "ACTION")
	set(ev.Source, "src_ip", "SRC")
	set(ev.Destination, "dst_ip", "DST")
	set(ev.Protocol, "protocol", "PROTO")
	set(ev.InInterface, "in_interface", "IN")
	set(ev.OutInterface, "out_interface", "OUT")
	if ev.SourcePort > 0 {
		set(strconv.Itoa(ev.SourcePort), "src_port", "SPT")
	}
	if ev.DestPort > 0 {
		set(strconv.Itoa(ev.DestPort), "dst_port", "DPT")
	}
	return buf
}

func tagFromRule(rule sigma.Rule) string {
	if title := strings.TrimSpace(rule.Title); title != "" {
		return title
	}
	return strings.TrimSpace(rule.ID)
}
