package form

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/formworks/priorauth/internal/schema"
)

const (
	defaultRuleConfidence = 0.7
	defaultResultField    = "inference_result"
	defaultExpectedResult = "yes"
)

// medicalContextFields are always offered as inference context when present
// in the extracted entities, independent of a rule's context_fields list.
var medicalContextFields = []string{
	"previous_medications_tried",
	"clinical_justification",
	"primary_diagnosis",
	"medical_history",
}

// applyConditionalRules evaluates the schema's rule sets against the
// populated form. Rule failures never fail the population run.
func (e *Engine) applyConditionalRules(ctx context.Context, pf *PopulatedForm, rules *schema.ConditionalRules, entities map[string]Value) {
	stats := &ConditionalStats{}

	for i, rule := range rules.SimpleRules {
		stats.RulesEvaluated++
		if evalSimpleRule(rule, pf.Fields) {
			e.logger.Debug("simple rule triggered",
				zap.Int("rule", i),
				zap.String("description", rule.Description))
			stats.RulesTriggered++
			e.applyActions(rule.Actions, pf, stats)
		}
	}

	for i, rule := range rules.ComplexRules {
		stats.RulesEvaluated++
		if e.evalComplexRule(ctx, rule, entities) {
			e.logger.Debug("complex rule triggered",
				zap.Int("rule", i),
				zap.String("description", rule.Description))
			stats.RulesTriggered++
			stats.LLMInferences++
			e.applyActions(rule.Actions, pf, stats)
		}
	}

	pf.Metadata.ConditionalLogic = stats
	e.logger.Info("conditional rules applied",
		zap.Int("evaluated", stats.RulesEvaluated),
		zap.Int("triggered", stats.RulesTriggered))
}

// evalSimpleRule checks a predicate over an already-populated field. An
// unknown field, operator, or unparseable comparison yields false, never an
// error.
func evalSimpleRule(rule schema.SimpleRule, fields map[string]*FieldEntry) bool {
	entry, ok := fields[rule.Condition.Field]
	if !ok {
		return false
	}
	actual := entry.Value
	expected := rule.Condition.Value

	switch rule.Condition.Type {
	case "equals":
		return strings.EqualFold(actual.Text(), expected)
	case "not_equals":
		return !strings.EqualFold(actual.Text(), expected)
	case "contains":
		return strings.Contains(strings.ToLower(actual.Text()), strings.ToLower(expected))
	case "not_empty":
		return !actual.IsEmpty()
	case "empty":
		return actual.IsEmpty()
	case "greater_than":
		a, okA := actual.Float()
		b, okB := parseComparand(expected)
		return okA && okB && a > b
	case "less_than":
		a, okA := actual.Float()
		b, okB := parseComparand(expected)
		return okA && okB && a < b
	case "regex":
		re, err := regexp.Compile(expected)
		if err != nil {
			return false
		}
		return re.MatchString(actual.Text())
	}
	return false
}

// parseComparand reads the numeric threshold of a comparison condition,
// tolerating a trailing percent sign.
func parseComparand(s string) (float64, bool) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// evalComplexRule asks the reasoning collaborator whether the rule's
// condition holds. Any failure, including an unavailable reasoner, evaluates
// to false so population can proceed without the collaborator.
func (e *Engine) evalComplexRule(ctx context.Context, rule schema.ComplexRule, entities map[string]Value) bool {
	if e.reasoner == nil || !e.reasoner.ProbeAvailable() {
		e.logger.Warn("reasoning service not available for complex rule",
			zap.String("description", rule.Description))
		return false
	}

	contextData := e.buildInferenceContext(rule.Inference.ContextFields, entities)
	prompt := formatPrompt(rule.Inference.Prompt, contextData)

	var result map[string]any
	err := e.caller.Do(ctx, "reasoner", func(ctx context.Context) error {
		var callErr error
		result, callErr = e.reasoner.Infer(ctx, prompt)
		return callErr
	})
	if err != nil {
		e.logger.Error("complex rule inference failed",
			zap.String("description", rule.Description),
			zap.Error(err))
		return false
	}

	resultField := rule.Inference.ResultField
	if resultField == "" {
		resultField = defaultResultField
	}
	expected := rule.Inference.ExpectedResult
	if expected == "" {
		expected = defaultExpectedResult
	}

	answer, ok := FromAny(result[resultField])
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer.Text()), expected)
}

// buildInferenceContext collects the rule's named context fields plus the
// standing medical history fields from the extracted entities.
func (e *Engine) buildInferenceContext(contextFields []string, entities map[string]Value) map[string]Value {
	contextData := map[string]Value{}
	for _, field := range contextFields {
		if v, ok := entities[field]; ok {
			contextData[field] = v
		}
	}
	for _, field := range medicalContextFields {
		if v, ok := entities[field]; ok {
			contextData[field] = v
		}
	}
	return contextData
}

// formatPrompt substitutes {context} and per-field {name} placeholders in the
// rule's prompt template.
func formatPrompt(template string, contextData map[string]Value) string {
	lines := make([]string, 0, len(contextData))
	replacements := make([]string, 0, 2*(len(contextData)+1))
	for key, value := range contextData {
		if value.IsEmpty() {
			continue
		}
		lines = append(lines, key+": "+value.Text())
		replacements = append(replacements, "{"+key+"}", value.Text())
	}
	sort.Strings(lines)
	replacements = append(replacements, "{context}", strings.Join(lines, "\n"))
	return strings.NewReplacer(replacements...).Replace(template)
}

// applyActions applies the effects of a triggered rule.
func (e *Engine) applyActions(actions []schema.Action, pf *PopulatedForm, stats *ConditionalStats) {
	for _, action := range actions {
		switch action.Type {
		case "make_required":
			entry, ok := pf.Fields[action.Field]
			if !ok {
				continue
			}
			entry.Required = true
			entry.RuleDerived = true
			stats.RequirementsAdded++
			if entry.Value.IsEmpty() && !contains(pf.Metadata.MissingFields, action.Field) {
				pf.Metadata.MissingFields = append(pf.Metadata.MissingFields, action.Field)
			}

		case "set_value":
			entry, ok := pf.Fields[action.Field]
			if !ok {
				continue
			}
			confidence := action.Confidence
			if confidence == 0 {
				confidence = defaultRuleConfidence
			}
			entry.Value = String(action.Value)
			entry.Confidence = confidence
			entry.RuleDerived = true
			stats.ValuesSet++

			if !entry.Value.IsEmpty() {
				// A field counts as newly populated only the first time a
				// confidence score is recorded for it.
				if _, seen := pf.Metadata.ConfidenceScores[action.Field]; !seen {
					pf.Metadata.PopulatedFields++
				}
				pf.Metadata.ConfidenceScores[action.Field] = confidence
				pf.Metadata.MissingFields = remove(pf.Metadata.MissingFields, action.Field)
			}

		case "add_note":
			pf.Metadata.ConditionalNotes = append(pf.Metadata.ConditionalNotes, action.Note)

		default:
			e.logger.Warn("unknown rule action type", zap.String("type", action.Type))
		}
	}
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func remove(items []string, target string) []string {
	out := items[:0]
	for _, item := range items {
		if item != target {
			out = append(out, item)
		}
	}
	return out
}
