// Package upgrade registers the full upgrade-readiness check catalog with
// its applicability windows. The windows bound the *target* minor version;
// a check whose window closed before the minimum supported minor is retired
// and never evaluated.
package upgrade

import "github.com/eksup/eksup/internal/rules"

// Registry returns the complete catalog in evaluation order.
func Registry() *rules.Registry {
	r := rules.NewRegistry()

	// Cluster and subnets.
	r.Register(rules.ClusterHealthRule{}, rules.Always())
	r.Register(rules.ControlPlaneIPsRule{}, rules.Always())
	r.Register(rules.PodIPsRule{}, rules.Always())

	// Addons.
	r.Register(rules.AddOnHealthRule{}, rules.Always())
	r.Register(rules.AddOnVersionRule{}, rules.Always())

	// Data plane.
	r.Register(rules.NodeGroupHealthRule{}, rules.Always())
	r.Register(rules.ManagedTemplateDriftRule{}, rules.Always())
	r.Register(rules.SelfManagedTemplateDriftRule{}, rules.Always())
	r.Register(rules.AL2DeprecationRule{}, rules.From(32))

	// Kubernetes.
	r.Register(rules.VersionSkewRule{}, rules.Always())
	r.Register(rules.MinReplicasRule{}, rules.Always())
	r.Register(rules.MinReadySecondsRule{}, rules.Always())
	r.Register(rules.PDBCoverageRule{}, rules.Always())
	r.Register(rules.SpreadRule{}, rules.Always())
	r.Register(rules.ReadinessProbeRule{}, rules.Always())
	r.Register(rules.TerminationGraceRule{}, rules.Always())
	r.Register(rules.DockerSocketRule{}, rules.Always())
	r.Register(rules.PodSecurityPolicyRule{}, rules.Until(24))
	r.Register(rules.KubeProxySkewRule{}, rules.Always())
	r.Register(rules.KubeProxyIPVSRule{}, rules.From(35))
	r.Register(rules.IngressNginxRule{}, rules.From(35))

	return r
}
