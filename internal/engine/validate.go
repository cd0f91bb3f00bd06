package engine

import (
	"fmt"

	"github.com/expr-lang/expr"

	"admindata/internal/apperr"
	"admindata/internal/metadata"
)

// applyDefaults fills declared field defaults for absent keys.
func applyDefaults(m *metadata.Model, rec map[string]any) {
	for _, f := range m.Fields {
		if f.Default == nil || f.IsAuto() {
			continue
		}
		if _, ok := rec[f.Name]; !ok {
			rec[f.Name] = f.Default
		}
	}
}

// validateRecord checks required, nullability and enum constraints for
// a create. All violations are collected so the caller sees them in one
// ValidationError rather than one per round trip.
func validateRecord(m *metadata.Model, rec map[string]any) []apperr.ErrorDetail {
	var details []apperr.ErrorDetail
	pk := m.PrimaryKey
	for _, f := range m.Fields {
		if f.Name == pk.Field && pk.Generated {
			continue
		}
		if f.IsAuto() {
			continue
		}
		v, present := rec[f.Name]
		if f.Required && (!present || v == nil) {
			details = append(details, apperr.ErrorDetail{
				Field: f.Name, Rule: "required", Message: "field is required",
			})
			continue
		}
		if present && v == nil && !f.Nullable {
			details = append(details, apperr.ErrorDetail{
				Field: f.Name, Rule: "not_null", Message: "field must not be null",
			})
			continue
		}
		if present && v != nil && len(f.Enum) > 0 {
			s := fmt.Sprint(v)
			ok := false
			for _, allowed := range f.Enum {
				if s == allowed {
					ok = true
					break
				}
			}
			if !ok {
				details = append(details, apperr.ErrorDetail{
					Field: f.Name, Rule: "enum", Message: fmt.Sprintf("value %q is not allowed", s),
				})
			}
		}
	}
	return details
}

// runChecks evaluates the model's check rules against the record. Each
// expression sees the record as `record` and must evaluate to true for
// the write to proceed.
func runChecks(m *metadata.Model, rec map[string]any) error {
	var details []apperr.ErrorDetail
	env := map[string]any{"record": rec}
	for _, c := range m.Checks {
		prog, err := expr.Compile(c.Expression, expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			details = append(details, apperr.ErrorDetail{
				Field: c.Field, Rule: "check", Message: fmt.Sprintf("invalid check expression: %v", err),
			})
			continue
		}
		out, err := expr.Run(prog, env)
		if err != nil {
			details = append(details, apperr.ErrorDetail{
				Field: c.Field, Rule: "check", Message: fmt.Sprintf("check evaluation failed: %v", err),
			})
			continue
		}
		if ok, _ := out.(bool); !ok {
			msg := c.Message
			if msg == "" {
				msg = "check failed: " + c.Expression
			}
			details = append(details, apperr.ErrorDetail{Field: c.Field, Rule: "check", Message: msg})
		}
	}
	if len(details) > 0 {
		return apperr.Validation("validation failed for "+m.DottedName(), details...)
	}
	return nil
}
