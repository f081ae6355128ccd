package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/eksup/eksup/internal/models"
)

// ANSI color codes for remediation output (used when Colored=true).
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[0;31m"
	ansiYellow = "\033[0;33m"
)

// TableOptions controls how RenderResults renders the findings tables.
type TableOptions struct {
	// Colored wraps remediation labels with ANSI codes. Default false (CI-safe).
	Colored bool
}

// categoryOrder fixes the section order of the report.
var categoryOrder = []struct {
	title    string
	category models.Category
}{
	{"Upgrade Insights", models.CategoryCluster},
	{"Subnets", models.CategorySubnets},
	{"EKS Addons", models.CategoryAddOns},
	{"Data Plane", models.CategoryDataPlane},
	{"Kubernetes", models.CategoryKubernetes},
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// remediationCell returns the remediation padded to width characters.
// When colored, ANSI codes wrap only the text; trailing padding spaces are plain
// so subsequent columns stay visually aligned regardless of terminal ANSI support.
func remediationCell(rem models.Remediation, width int, colored bool) string {
	text := string(rem)
	if !colored {
		return fmt.Sprintf("%-*s", width, text)
	}
	var code string
	switch rem {
	case models.RemediationRequired:
		code = ansiRed
	case models.RemediationRecommended:
		code = ansiYellow
	default:
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max bytes for ID/label columns.
// A single-char ellipsis replaces the last byte when truncation occurs.
func truncateField(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// RenderResults writes the full analysis report to w: a version banner
// followed by one findings table per category. Empty categories collapse to a
// single success line.
func RenderResults(w io.Writer, results *models.Results, opts TableOptions) {
	fmt.Fprintf(w, "Cluster %q: %s -> %s\n", results.ClusterName, results.CurrentVersion, results.TargetVersion)

	for _, section := range categoryOrder {
		fmt.Fprintf(w, "\n%s\n", section.title)
		RenderTable(w, findingsFor(results, section.category), opts)
	}
}

func findingsFor(results *models.Results, category models.Category) []models.Finding {
	switch category {
	case models.CategoryCluster:
		return results.Cluster
	case models.CategorySubnets:
		return results.Subnets
	case models.CategoryAddOns:
		return results.AddOns
	case models.CategoryDataPlane:
		return results.DataPlane
	case models.CategoryKubernetes:
		return results.Kubernetes
	default:
		return nil
	}
}

// RenderTable writes one formatted findings table to w. The separator line
// width is derived from the header row so all rows align correctly.
//
// Column order:
//
//	CODE  REMEDIATION  RESOURCE  MESSAGE
func RenderTable(w io.Writer, findings []models.Finding, opts TableOptions) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "✔ no findings")
		return
	}

	// Fixed column display widths.
	const (
		wCode        = 8
		wRemediation = 13
		wResource    = 34
		wMessage     = 70
	)

	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("%-*s", wCode, "CODE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wRemediation, "REMEDIATION"))
	hb.WriteString(fmt.Sprintf("  %-*s", wResource, "RESOURCE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wMessage, "MESSAGE"))
	header := hb.String()

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range findings {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wCode, truncateField(f.Code, wCode)))
		rb.WriteString("  " + remediationCell(f.Remediation, wRemediation, opts.Colored))
		rb.WriteString(fmt.Sprintf("  %-*s", wResource, truncateField(f.Resource, wResource)))
		rb.WriteString(fmt.Sprintf("  %-*s", wMessage, ShortenMessage(f.Message, wMessage)))
		fmt.Fprintln(w, rb.String())
	}
}
