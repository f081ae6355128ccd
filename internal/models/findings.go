package models

// Remediation classifies how urgently a finding must be addressed before the
// upgrade proceeds.
type Remediation string

const (
	// RemediationRequired findings must be fixed before upgrading; they either
	// block the upgrade API or cause downtime during the roll.
	RemediationRequired Remediation = "REQUIRED"

	// RemediationRecommended findings are best-practice hardening; the upgrade
	// will proceed without them.
	RemediationRecommended Remediation = "RECOMMENDED"
)

// Category groups findings by the subsystem they were observed in.
type Category string

const (
	CategoryCluster    Category = "cluster"
	CategorySubnets    Category = "subnets"
	CategoryAddOns     Category = "addons"
	CategoryDataPlane  Category = "dataplane"
	CategoryKubernetes Category = "kubernetes"
)

// Finding is a single actionable observation produced by a check.
// It is the atomic output unit of the analysis engine. Findings are not
// errors: a run that produces findings is a successful run.
type Finding struct {
	// Code is the check identifier (e.g. "EKS001", "K8S002").
	Code string `json:"code"`

	// Remediation is REQUIRED or RECOMMENDED.
	Remediation Remediation `json:"remediation"`

	// Resource identifies the object the finding refers to
	// (subnet id, "namespace/name", addon name, nodegroup name).
	Resource string `json:"resource"`

	// Message is the human-readable explanation rendered in tables and the
	// playbook.
	Message string `json:"message"`

	// Data carries the check-specific payload fields. The key set is bound
	// to Code and stable across runs.
	Data map[string]any `json:"data,omitempty"`
}

// Results is the aggregate output of one analysis run, grouped by category.
// It is a plain value: renderers must treat it as read-only.
type Results struct {
	ClusterName    string `json:"cluster_name"`
	CurrentVersion string `json:"current_version"`
	TargetVersion  string `json:"target_version"`

	Cluster    []Finding `json:"cluster"`
	Subnets    []Finding `json:"subnets"`
	AddOns     []Finding `json:"addons"`
	DataPlane  []Finding `json:"dataplane"`
	Kubernetes []Finding `json:"kubernetes"`
}

// Count returns the total number of findings across all categories.
func (r *Results) Count() int {
	return len(r.Cluster) + len(r.Subnets) + len(r.AddOns) + len(r.DataPlane) + len(r.Kubernetes)
}

// Append adds a finding to the slice for the given category.
func (r *Results) Append(category Category, findings ...Finding) {
	switch category {
	case CategoryCluster:
		r.Cluster = append(r.Cluster, findings...)
	case CategorySubnets:
		r.Subnets = append(r.Subnets, findings...)
	case CategoryAddOns:
		r.AddOns = append(r.AddOns, findings...)
	case CategoryDataPlane:
		r.DataPlane = append(r.DataPlane, findings...)
	case CategoryKubernetes:
		r.Kubernetes = append(r.Kubernetes, findings...)
	}
}

// FilterRecommended returns a copy of the results containing only findings
// with RemediationRequired. Grouping is preserved. The operation is
// idempotent: filtering an already-filtered Results is a no-op.
func (r *Results) FilterRecommended() *Results {
	filtered := &Results{
		ClusterName:    r.ClusterName,
		CurrentVersion: r.CurrentVersion,
		TargetVersion:  r.TargetVersion,
	}
	filtered.Cluster = keepRequired(r.Cluster)
	filtered.Subnets = keepRequired(r.Subnets)
	filtered.AddOns = keepRequired(r.AddOns)
	filtered.DataPlane = keepRequired(r.DataPlane)
	filtered.Kubernetes = keepRequired(r.Kubernetes)
	return filtered
}

func keepRequired(findings []Finding) []Finding {
	var kept []Finding
	for _, f := range findings {
		if f.Remediation == RemediationRequired {
			kept = append(kept, f)
		}
	}
	return kept
}
