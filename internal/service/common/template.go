package common

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/acme/lead-contact-engine/internal/domain"
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// TemplateVars builds the substitution variables for lead. Lead attributes
// are exposed under their own keys and never shadow the built-in names.
func TemplateVars(lead domain.Lead, channel domain.Channel, now time.Time) map[string]string {
	vars := make(map[string]string, len(lead.Attributes)+5)
	for k, v := range lead.Attributes {
		vars[k] = v
	}
	vars["name"] = lead.Name
	vars["first_name"] = lead.FirstName()
	vars["stage"] = lead.StageID
	vars["days_inactive"] = strconv.Itoa(lead.InactivityDays(now))
	vars["channel"] = string(channel)
	return vars
}

// Render substitutes {{var}} placeholders. Unknown placeholders are left as is.
func Render(tmpl string, vars map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}
