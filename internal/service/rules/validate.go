package rules

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/acme/lead-contact-engine/internal/domain"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("factor", func(fl validator.FieldLevel) bool {
		return domain.FactorID(fl.Field().String()).Valid()
	})
	return v
}

// structIssues flattens validator errors into readable issues.
func structIssues(v *validator.Validate, rule any) []string {
	err := v.Struct(rule)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	issues := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			issues = append(issues, fmt.Sprintf("%s is required", field))
		case "factor":
			issues = append(issues, fmt.Sprintf("%s: unknown factor %q", field, fe.Value()))
		case "oneof":
			issues = append(issues, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			issues = append(issues, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return issues
}

func (s *Store) checkReengagement(r domain.ReengagementRule) error {
	issues := structIssues(s.validate, r)
	if r.Enabled && len(r.Channels) == 0 {
		issues = append(issues, "channels: at least one channel is required while enabled")
	}
	seen := map[domain.Channel]bool{}
	for _, c := range r.Channels {
		if seen[c] {
			issues = append(issues, fmt.Sprintf("channels: %s listed twice", c))
		}
		seen[c] = true
	}
	return apperrors.NewValidationError(subject("reengagement rule", r.ID, r.Label), issues)
}

func (s *Store) checkDialing(r domain.DialingRule) error {
	issues := structIssues(s.validate, r)
	if r.StartDate.IsZero() {
		issues = append(issues, "startDate is required")
	}
	if r.TimeZone != "" {
		if _, err := time.LoadLocation(r.TimeZone); err != nil {
			issues = append(issues, fmt.Sprintf("timeZone: unknown zone %q", r.TimeZone))
		}
	}
	if r.EndTime != nil && r.EndDate == nil {
		issues = append(issues, "endTime requires endDate")
	}
	if r.EndDate != nil && !r.StartDate.IsZero() {
		end, _ := r.WindowEnd()
		if dateOnly(*r.EndDate).Before(dateOnly(r.StartDate)) {
			issues = append(issues, "endDate must not be before startDate")
		} else if end.Before(r.WindowStart()) {
			issues = append(issues, "window end must not be before window start")
		}
	}
	seen := map[domain.FailureType]bool{}
	for _, ri := range r.RedialIntervals {
		if seen[ri.FailureType] {
			issues = append(issues, fmt.Sprintf("redialIntervals: duplicate failure type %s", ri.FailureType))
		}
		seen[ri.FailureType] = true
	}
	for i, w := range r.CallingHours {
		if w.Start == w.End {
			issues = append(issues, fmt.Sprintf("callingHours[%d]: window must have positive duration", i))
		}
	}
	return apperrors.NewValidationError(subject("dialing rule", r.ID, r.Label), issues)
}

func (s *Store) checkPriorization(r domain.PriorizationRule) error {
	issues := structIssues(s.validate, r)
	seen := map[domain.FactorID]bool{}
	for _, f := range r.Factors {
		if seen[f.FactorID] {
			issues = append(issues, fmt.Sprintf("factors: duplicate factor %s", f.FactorID))
		}
		seen[f.FactorID] = true
	}
	return apperrors.NewValidationError(subject("priorization rule", r.ID, r.Name), issues)
}

func subject(kind, id, label string) string {
	switch {
	case label != "":
		return fmt.Sprintf("%s %q", kind, label)
	case id != "":
		return fmt.Sprintf("%s %s", kind, id)
	default:
		return kind
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
