package ingest

import (
	"strings"
)

// RuleEngine applies ordered find/replace transformation rules to item body
// content. Absence of a rule set is a no-op.
type RuleEngine struct{}

func (RuleEngine) Apply(item *Item, ruleSet *RuleSet) {
	if ruleSet == nil || item.BodyHTML == "" {
		return
	}
	body := item.BodyHTML
	for _, rule := range ruleSet.Rules {
		body = strings.ReplaceAll(body, rule.Old, rule.New)
	}
	item.BodyHTML = body
}
