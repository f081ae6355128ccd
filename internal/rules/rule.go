package rules

import (
	"github.com/eksup/eksup/internal/config"
	"github.com/eksup/eksup/internal/kubeversion"
	"github.com/eksup/eksup/internal/models"
)

// RuleContext carries the full data snapshot collected for one analysis run.
// It is the sole input to Rule.Evaluate and must contain everything a rule
// needs; rules must never make network calls or read external state.
type RuleContext struct {
	// Cluster is the control-plane description. Always non-nil when the
	// engine evaluates rules; nil-checked anyway so rules are safe to call
	// against partial fixtures.
	Cluster *models.Cluster

	// CurrentMinor and TargetMinor are the control-plane minor and the
	// upgrade target minor (current + 1).
	CurrentMinor int
	TargetMinor  int

	// ControlPlaneSubnets are the subnets attached to the control plane.
	ControlPlaneSubnets []models.Subnet

	// PodSubnets are the custom-networking pod subnets referenced by
	// ENIConfig resources. Empty when custom networking is not in use.
	PodSubnets []models.Subnet

	AddOns []models.AddOn

	ManagedNodeGroups     []models.ManagedNodeGroup
	SelfManagedNodeGroups []models.SelfManagedNodeGroup
	FargateProfiles       []models.FargateProfile

	// LaunchTemplates is keyed by template id; populated for every template
	// referenced by a managed nodegroup.
	LaunchTemplates map[string]models.LaunchTemplate

	Nodes                []models.Node
	Workloads            []models.Workload
	PodDisruptionBudgets []models.PodDisruptionBudget

	// KubeProxyMode is the proxy mode read from the kube-proxy ConfigMap
	// ("iptables", "ipvs"); empty when the ConfigMap is absent.
	KubeProxyMode string

	// PodSecurityPolicies lists PSP resource names still present on the
	// cluster. Only collected for targets where the PSP check is live.
	PodSecurityPolicies []string

	// Config holds the loaded .eksup.yaml. May be nil; rules must treat nil
	// as "use defaults".
	Config *config.Config
}

// Rule is a single deterministic upgrade-readiness check.
// Rules must be stateless and safe to call concurrently.
// They must never call the AWS SDK, the Kubernetes API, or any external
// service.
type Rule interface {
	// Code returns the unique, stable check code (e.g. "EKS001").
	Code() string

	// Name returns a short human-readable check name.
	Name() string

	// Category returns the Results category this check's findings belong to.
	Category() models.Category

	// Evaluate inspects the snapshot and returns zero or more findings.
	// An empty slice means the check passed.
	Evaluate(ctx RuleContext) []models.Finding
}

// Window bounds the target minor versions a check applies to. Either end
// may be open (nil).
type Window struct {
	// From is the minimum target minor, inclusive.
	From *int

	// Until is the maximum target minor, inclusive.
	Until *int
}

// Admits reports whether the check runs for the given target minor.
func (w Window) Admits(target int) bool {
	if w.From != nil && target < *w.From {
		return false
	}
	if w.Until != nil && target > *w.Until {
		return false
	}
	return true
}

// Retired reports whether the window closed before the minimum supported
// minor, meaning the check can never run again.
func (w Window) Retired() bool {
	return w.Until != nil && *w.Until < kubeversion.MinimumSupported
}

// From returns a half-open window starting at the given target minor.
func From(minor int) Window {
	return Window{From: &minor}
}

// Until returns a half-open window ending at the given target minor.
func Until(minor int) Window {
	return Window{Until: &minor}
}

// Always is the unbounded window.
func Always() Window {
	return Window{}
}
