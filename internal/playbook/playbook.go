// Package playbook renders analysis results into a markdown upgrade
// playbook from an embedded template set. The embedded data files carry
// per-version documentation URLs and the API deprecation index.
package playbook

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/eksup/eksup/internal/engine"
	"github.com/eksup/eksup/internal/kubeversion"
	"github.com/eksup/eksup/internal/models"
)

//go:embed templates/*.md
var templateFS embed.FS

//go:embed data.yaml
var rawVersionData []byte

//go:embed deprecations.yaml
var rawDeprecations []byte

// Deprecation is one entry of the embedded API deprecation index.
type Deprecation struct {
	APIVersion            string `yaml:"api_version"`
	Kind                  string `yaml:"kind"`
	DeprecatedIn          string `yaml:"deprecated_in"`
	RemovedIn             string `yaml:"removed_in"`
	ReplacementAPIVersion string `yaml:"replacement_api_version"`
}

type versionData struct {
	Versions map[string]struct {
		ReleaseNotes     string `yaml:"release_notes"`
		DeprecationGuide string `yaml:"deprecation_guide"`
	} `yaml:"versions"`
}

type deprecationData struct {
	Deprecations []Deprecation `yaml:"deprecations"`
}

// bundle is the data handed to the template set.
type bundle struct {
	ClusterName    string
	CurrentVersion string
	TargetVersion  string

	ReleaseNotesURL string
	DeprecationsURL string

	ClusterTable    string
	SubnetsTable    string
	AddOnsTable     string
	DataPlaneTable  string
	KubernetesTable string

	Deprecations []Deprecation

	ManagedNodeGroups     []models.ManagedNodeGroup
	SelfManagedNodeGroups []models.SelfManagedNodeGroup
	FargateProfiles       []models.FargateProfile
}

// Options configures one playbook rendering.
type Options struct {
	Results *models.Results

	// Inventory may be nil; the data-plane sections are then omitted.
	Inventory *engine.Inventory

	// Filename is the output path for Write. Empty means
	// DefaultFilename(cluster name).
	Filename string
}

// DefaultFilename is the playbook path used when none is given.
func DefaultFilename(clusterName string) string {
	return clusterName + "_upgrade.md"
}

// Render produces the playbook markdown for the given results.
func Render(opts Options) ([]byte, error) {
	if opts.Results == nil {
		return nil, fmt.Errorf("results are required")
	}

	d, err := buildBundle(opts)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.md")
	if err != nil {
		return nil, fmt.Errorf("parse playbook templates: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "playbook.md", d); err != nil {
		return nil, fmt.Errorf("render playbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders the playbook and writes it to the resolved filename,
// returning the path written.
func Write(opts Options) (string, error) {
	content, err := Render(opts)
	if err != nil {
		return "", err
	}
	filename := opts.Filename
	if filename == "" {
		filename = DefaultFilename(opts.Results.ClusterName)
	}
	if err := os.WriteFile(filename, content, 0o644); err != nil {
		return "", fmt.Errorf("write playbook %q: %w", filename, err)
	}
	return filename, nil
}

func buildBundle(opts Options) (*bundle, error) {
	results := opts.Results

	currentMinor, err := kubeversion.ParseMinor(results.CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("parse current version: %w", err)
	}
	targetMinor, err := kubeversion.ParseMinor(results.TargetVersion)
	if err != nil {
		return nil, fmt.Errorf("parse target version: %w", err)
	}

	var versions versionData
	if err := yaml.Unmarshal(rawVersionData, &versions); err != nil {
		return nil, fmt.Errorf("parse embedded version data: %w", err)
	}
	target, ok := versions.Versions[results.TargetVersion]
	if !ok {
		return nil, fmt.Errorf("no embedded release data for kubernetes %s", results.TargetVersion)
	}

	deprecations, err := deprecationsBetween(currentMinor, targetMinor)
	if err != nil {
		return nil, err
	}

	d := &bundle{
		ClusterName:     results.ClusterName,
		CurrentVersion:  results.CurrentVersion,
		TargetVersion:   results.TargetVersion,
		ReleaseNotesURL: target.ReleaseNotes,
		DeprecationsURL: target.DeprecationGuide,
		ClusterTable:    markdownTable(results.Cluster),
		SubnetsTable:    markdownTable(results.Subnets),
		AddOnsTable:     markdownTable(results.AddOns),
		DataPlaneTable:  markdownTable(results.DataPlane),
		KubernetesTable: markdownTable(results.Kubernetes),
		Deprecations:    deprecations,
	}
	if opts.Inventory != nil {
		d.ManagedNodeGroups = opts.Inventory.ManagedNodeGroups
		d.SelfManagedNodeGroups = opts.Inventory.SelfManagedNodeGroups
		d.FargateProfiles = opts.Inventory.FargateProfiles
	}
	return d, nil
}

// deprecationsBetween returns the index entries removed by the upgrade:
// removed after the current minor and no later than the target minor.
func deprecationsBetween(currentMinor, targetMinor int) ([]Deprecation, error) {
	var index deprecationData
	if err := yaml.Unmarshal(rawDeprecations, &index); err != nil {
		return nil, fmt.Errorf("parse embedded deprecation index: %w", err)
	}

	var out []Deprecation
	for _, dep := range index.Deprecations {
		removed, err := kubeversion.ParseMinor(dep.RemovedIn)
		if err != nil {
			return nil, fmt.Errorf("deprecation index entry %s %s: %w", dep.APIVersion, dep.Kind, err)
		}
		if removed > currentMinor && removed <= targetMinor {
			out = append(out, dep)
		}
	}
	return out, nil
}

// markdownTable renders findings as a GitHub-flavored markdown table.
func markdownTable(findings []models.Finding) string {
	if len(findings) == 0 {
		return "_No findings._"
	}

	var b strings.Builder
	b.WriteString("| Code | Remediation | Resource | Message |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			f.Code, f.Remediation, escapeCell(f.Resource), escapeCell(f.Message))
	}
	return strings.TrimRight(b.String(), "\n")
}

// escapeCell keeps user-controlled values from breaking the table grammar.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
