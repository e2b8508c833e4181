package notification

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/k3a/html2text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hospitalops/livemon/internal/monitoring"
)

var (
	titleCase = cases.Title(language.English)
	markupRe  = regexp.MustCompile(`<(?:[a-zA-Z][a-zA-Z0-9]*|/[a-zA-Z][a-zA-Z0-9]*)[^<>]*>`)
)

// plainText converts rich-text descriptions to push-service plain text.
// Text without tags is returned unchanged so "<" and "&" in plain
// descriptions survive.
func plainText(s string) string {
	if !markupRe.MatchString(s) {
		return s
	}
	return strings.TrimSpace(html2text.HTML2TextWithOptions(s, html2text.WithUnixLineBreaks()))
}

// renderTemplate substitutes {{name}} placeholders in tmpl.
func renderTemplate(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func severityLabel(s monitoring.Severity) string {
	if s == "" {
		return "Unknown"
	}
	return titleCase.String(string(s))
}

func alertVars(a *monitoring.Alert) map[string]string {
	vars := map[string]string{
		"name":      a.Name,
		"severity":  severityLabel(a.Severity),
		"metric":    a.Condition.Metric,
		"operator":  a.Condition.Operator,
		"threshold": strconv.FormatFloat(a.Condition.Threshold, 'f', -1, 64),
		"unit":      a.Condition.Unit,
		"source":    a.Source,
		"level":     strconv.Itoa(a.EscalationLevel),
	}
	if a.CurrentValue != nil {
		vars["value"] = strconv.FormatFloat(*a.CurrentValue, 'f', -1, 64)
	}
	return vars
}

const (
	alertTitleTemplate      = "{{severity}} alert: {{name}}"
	escalationTitleTemplate = "Escalated (level {{level}}): {{name}}"
	conditionTemplate       = "{{metric}} {{operator}} {{threshold}}{{unit}}"
)

func alertBody(a *monitoring.Alert, vars map[string]string) string {
	if a.Description != "" {
		return plainText(a.Description)
	}
	body := renderTemplate(conditionTemplate, vars)
	if v, ok := vars["value"]; ok {
		body += fmt.Sprintf(" (current %s%s)", v, a.Condition.Unit)
	}
	if a.Source != "" {
		body += " on " + a.Source
	}
	return body
}

func renderAlert(a *monitoring.Alert) (title, body string) {
	vars := alertVars(a)
	return renderTemplate(alertTitleTemplate, vars), alertBody(a, vars)
}

func renderEscalation(a *monitoring.Alert) (title, body string) {
	vars := alertVars(a)
	return renderTemplate(escalationTitleTemplate, vars), alertBody(a, vars)
}

func renderIncident(inc *monitoring.Incident) (title, body string) {
	title = "Incident: " + inc.Title
	if inc.Description != "" {
		return title, plainText(inc.Description)
	}
	body = "Severity: " + severityLabel(inc.Severity)
	if n := len(inc.AlertIDs); n > 0 {
		body += fmt.Sprintf(", %d linked alert(s)", n)
	}
	return title, body
}
