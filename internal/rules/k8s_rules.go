package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eksup/eksup/internal/kubeversion"
	"github.com/eksup/eksup/internal/models"
)

// managedNodeGroupLabel marks nodes backed by an EKS-managed nodegroup.
const managedNodeGroupLabel = "eks.amazonaws.com/nodegroup"

// fargateNodePrefix marks Fargate-backed nodes by name.
const fargateNodePrefix = "fargate-"

// replicatedKinds are the workload kinds covered by the replica, PDB, and
// spread checks. DaemonSets scale by node count and Jobs/CronJobs are
// run-to-completion, so none of those checks apply to them.
func isReplicatedKind(kind models.WorkloadKind) bool {
	switch kind {
	case models.KindDeployment, models.KindStatefulSet, models.KindReplicaSet:
		return true
	}
	return false
}

func isBatchOrDaemonKind(kind models.WorkloadKind) bool {
	switch kind {
	case models.KindDaemonSet, models.KindJob, models.KindCronJob:
		return true
	}
	return false
}

// ── K8S001 ──────────────────────────────────────────────────────────────────

// VersionSkewRule compares each node's kubelet minor against the control
// plane. A skew of one is tolerated as Recommended for self-managed nodes;
// managed and Fargate nodes are always Required because the upgrade API
// refuses to proceed while they lag.
type VersionSkewRule struct{}

func (r VersionSkewRule) Code() string              { return "K8S001" }
func (r VersionSkewRule) Name() string              { return "Node Version Skew" }
func (r VersionSkewRule) Category() models.Category { return models.CategoryKubernetes }

func (r VersionSkewRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, node := range ctx.Nodes {
		skew := ctx.CurrentMinor - node.MinorVersion
		if skew == 0 {
			continue
		}

		remediation := models.RemediationRequired
		if skew == 1 {
			remediation = models.RemediationRecommended
		}

		_, managed := node.Labels[managedNodeGroupLabel]
		fargate := strings.HasPrefix(node.Name, fargateNodePrefix)
		if managed || fargate {
			remediation = models.RemediationRequired
		}

		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: remediation,
			Resource:    node.Name,
			Message: fmt.Sprintf(
				"node %q runs kubelet %s, %d minor version(s) behind the control plane (%s)",
				node.Name, node.KubeletVersion, skew, kubeversion.Format(ctx.CurrentMinor),
			),
			Data: map[string]any{
				"kubelet_version": node.KubeletVersion,
				"node":            kubeversion.Format(node.MinorVersion),
				"control_plane":   kubeversion.Format(ctx.CurrentMinor),
				"skew":            skew,
				"managed":         managed || fargate,
			},
		})
	}
	return findings
}

// ── K8S002 ──────────────────────────────────────────────────────────────────

// MinReplicasRule fires for replicated workloads below the configured
// replica floor. CoreDNS is auto-exempt at two or more replicas; the
// config's ignore list and per-resource overrides are consulted first.
type MinReplicasRule struct{}

func (r MinReplicasRule) Code() string              { return "K8S002" }
func (r MinReplicasRule) Name() string              { return "Minimum Replica Count" }
func (r MinReplicasRule) Category() models.Category { return models.CategoryKubernetes }

func (r MinReplicasRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, w := range ctx.Workloads {
		if !isReplicatedKind(w.Kind) || w.Replicas == nil {
			continue
		}
		threshold, apply := ctx.Config.MinReplicas(w.Namespace, w.Name)
		if !apply {
			continue
		}
		// CoreDNS runs replicated by the platform; two replicas are enough.
		if w.Namespace == "kube-system" && w.Name == "coredns" && *w.Replicas >= 2 {
			continue
		}
		if int(*w.Replicas) >= threshold {
			continue
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRequired,
			Resource:    w.ID(),
			Message: fmt.Sprintf(
				"%s %s has %d replica(s); at least %d are needed to survive a node roll",
				w.Kind, w.ID(), *w.Replicas, threshold,
			),
			Data: map[string]any{
				"kind":         string(w.Kind),
				"replicas":     *w.Replicas,
				"min_replicas": threshold,
			},
		})
	}
	return findings
}

// ── K8S003 ──────────────────────────────────────────────────────────────────

// MinReadySecondsRule fires when minReadySeconds is zero or absent.
// StatefulSets get Required (ordered rollout amplifies the risk), everything
// else Recommended. DaemonSets, Jobs, and CronJobs are skipped.
type MinReadySecondsRule struct{}

func (r MinReadySecondsRule) Code() string              { return "K8S003" }
func (r MinReadySecondsRule) Name() string              { return "minReadySeconds Not Set" }
func (r MinReadySecondsRule) Category() models.Category { return models.CategoryKubernetes }

func (r MinReadySecondsRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, w := range ctx.Workloads {
		if isBatchOrDaemonKind(w.Kind) {
			continue
		}
		if w.MinReadySeconds != nil && *w.MinReadySeconds > 0 {
			continue
		}
		remediation := models.RemediationRecommended
		if w.Kind == models.KindStatefulSet {
			remediation = models.RemediationRequired
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: remediation,
			Resource:    w.ID(),
			Message: fmt.Sprintf(
				"%s %s has no minReadySeconds; rollouts will not wait for pods to settle",
				w.Kind, w.ID(),
			),
			Data: map[string]any{"kind": string(w.Kind)},
		})
	}
	return findings
}

// ── K8S004 ──────────────────────────────────────────────────────────────────

// PDBCoverageRule fires for replicated workloads not covered by any
// PodDisruptionBudget in their namespace. Without a PDB the node drain
// during the upgrade can evict every replica at once.
type PDBCoverageRule struct{}

func (r PDBCoverageRule) Code() string              { return "K8S004" }
func (r PDBCoverageRule) Name() string              { return "No PodDisruptionBudget Coverage" }
func (r PDBCoverageRule) Category() models.Category { return models.CategoryKubernetes }

func (r PDBCoverageRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, w := range ctx.Workloads {
		if !isReplicatedKind(w.Kind) {
			continue
		}
		if coveredByPDB(w, ctx.PodDisruptionBudgets) {
			continue
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRequired,
			Resource:    w.ID(),
			Message: fmt.Sprintf(
				"%s %s is not selected by any PodDisruptionBudget in namespace %q",
				w.Kind, w.ID(), w.Namespace,
			),
			Data: map[string]any{"kind": string(w.Kind)},
		})
	}
	return findings
}

func coveredByPDB(w models.Workload, pdbs []models.PodDisruptionBudget) bool {
	for _, pdb := range pdbs {
		if pdb.Namespace != w.Namespace {
			continue
		}
		if pdb.Matches(w.Template.Labels) {
			return true
		}
	}
	return false
}

// ── K8S005 ──────────────────────────────────────────────────────────────────

// SpreadRule fires for workloads with neither pod anti-affinity nor
// topology spread constraints; their replicas may land on a single node.
type SpreadRule struct{}

func (r SpreadRule) Code() string              { return "K8S005" }
func (r SpreadRule) Name() string              { return "No Pod Spread Constraints" }
func (r SpreadRule) Category() models.Category { return models.CategoryKubernetes }

func (r SpreadRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, w := range ctx.Workloads {
		if isBatchOrDaemonKind(w.Kind) {
			continue
		}
		if w.Template.HasPodAntiAffinity || w.Template.HasTopologySpreadConstraints {
			continue
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRequired,
			Resource:    w.ID(),
			Message: fmt.Sprintf(
				"%s %s declares neither pod anti-affinity nor topology spread constraints",
				w.Kind, w.ID(),
			),
			Data: map[string]any{"kind": string(w.Kind)},
		})
	}
	return findings
}

// ── K8S006 ──────────────────────────────────────────────────────────────────

// ReadinessProbeRule fires when any container in the pod template lacks a
// readiness probe, so rollouts cannot tell a live replica from a starting one.
type ReadinessProbeRule struct{}

func (r ReadinessProbeRule) Code() string              { return "K8S006" }
func (r ReadinessProbeRule) Name() string              { return "Missing Readiness Probe" }
func (r ReadinessProbeRule) Category() models.Category { return models.CategoryKubernetes }

func (r ReadinessProbeRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, w := range ctx.Workloads {
		if isBatchOrDaemonKind(w.Kind) {
			continue
		}
		var missing []string
		for _, c := range w.Template.Containers {
			if !c.HasReadinessProbe {
				missing = append(missing, c.Name)
			}
		}
		if len(missing) == 0 {
			continue
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRequired,
			Resource:    w.ID(),
			Message: fmt.Sprintf(
				"%s %s has container(s) without a readiness probe: %s",
				w.Kind, w.ID(), strings.Join(missing, ", "),
			),
			Data: map[string]any{"containers": missing},
		})
	}
	return findings
}

// ── K8S007 ──────────────────────────────────────────────────────────────────

// TerminationGraceRule fires for StatefulSets whose pod template sets
// terminationGracePeriodSeconds to zero or below, which breaks the ordered
// shutdown guarantees StatefulSets rely on during a drain.
type TerminationGraceRule struct{}

func (r TerminationGraceRule) Code() string              { return "K8S007" }
func (r TerminationGraceRule) Name() string              { return "StatefulSet Zero Termination Grace" }
func (r TerminationGraceRule) Category() models.Category { return models.CategoryKubernetes }

func (r TerminationGraceRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, w := range ctx.Workloads {
		if w.Kind != models.KindStatefulSet {
			continue
		}
		tgps := w.Template.TerminationGracePeriodSeconds
		if tgps == nil || *tgps > 0 {
			continue
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRequired,
			Resource:    w.ID(),
			Message: fmt.Sprintf(
				"StatefulSet %s sets terminationGracePeriodSeconds to %d; pods are killed without a graceful shutdown",
				w.ID(), *tgps,
			),
			Data: map[string]any{"termination_grace_period_seconds": *tgps},
		})
	}
	return findings
}

// ── K8S008 ──────────────────────────────────────────────────────────────────

// DockerSocketRule fires when any container mounts a path containing the
// Docker or dockershim socket, both gone since the dockershim removal.
type DockerSocketRule struct{}

func (r DockerSocketRule) Code() string              { return "K8S008" }
func (r DockerSocketRule) Name() string              { return "Docker Socket Mount" }
func (r DockerSocketRule) Category() models.Category { return models.CategoryKubernetes }

func (r DockerSocketRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, w := range ctx.Workloads {
		paths := dockerSocketPaths(w)
		if len(paths) == 0 {
			continue
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRequired,
			Resource:    w.ID(),
			Message: fmt.Sprintf(
				"%s %s mounts the Docker socket (%s); the runtime no longer exposes it",
				w.Kind, w.ID(), strings.Join(paths, ", "),
			),
			Data: map[string]any{"paths": paths},
		})
	}
	return findings
}

func dockerSocketPaths(w models.Workload) []string {
	seen := make(map[string]struct{})
	var paths []string
	add := func(p string) {
		if !strings.Contains(p, "docker.sock") && !strings.Contains(p, "dockershim.sock") {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	for _, p := range w.Template.HostPaths {
		add(p)
	}
	for _, c := range w.Template.Containers {
		for _, p := range c.MountPaths {
			add(p)
		}
	}
	return paths
}

// ── K8S009 ──────────────────────────────────────────────────────────────────

// PodSecurityPolicyRule fires while PodSecurityPolicy resources are still
// present. PSP was removed in Kubernetes 1.25, so the check's window closed
// at target 1.24 and it is retired for every supported target.
type PodSecurityPolicyRule struct{}

func (r PodSecurityPolicyRule) Code() string              { return "K8S009" }
func (r PodSecurityPolicyRule) Name() string              { return "PodSecurityPolicy Still Present" }
func (r PodSecurityPolicyRule) Category() models.Category { return models.CategoryKubernetes }

func (r PodSecurityPolicyRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, name := range ctx.PodSecurityPolicies {
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRequired,
			Resource:    name,
			Message:     fmt.Sprintf("PodSecurityPolicy %q must be migrated to Pod Security Standards", name),
		})
	}
	return findings
}

// ── K8S011 ──────────────────────────────────────────────────────────────────

// KubeProxySkewRule compares the kube-proxy DaemonSet image minor against
// every distinct node minor. kube-proxy must match the kubelet on the node
// it runs on; one finding per mismatched node minor.
type KubeProxySkewRule struct{}

func (r KubeProxySkewRule) Code() string              { return "K8S011" }
func (r KubeProxySkewRule) Name() string              { return "kube-proxy Version Skew" }
func (r KubeProxySkewRule) Category() models.Category { return models.CategoryKubernetes }

func (r KubeProxySkewRule) Evaluate(ctx RuleContext) []models.Finding {
	image, ok := kubeProxyImage(ctx.Workloads)
	if !ok {
		return nil
	}
	tag := image[strings.LastIndex(image, ":")+1:]
	proxyMinor, err := kubeversion.ParseMinor(tag)
	if err != nil {
		return nil
	}

	// Deduplicate across nodes: one finding per distinct mismatched minor.
	minors := make(map[int]struct{})
	for _, node := range ctx.Nodes {
		if node.MinorVersion != proxyMinor {
			minors[node.MinorVersion] = struct{}{}
		}
	}
	ordered := make([]int, 0, len(minors))
	for m := range minors {
		ordered = append(ordered, m)
	}
	sort.Ints(ordered)

	var findings []models.Finding
	for _, nodeMinor := range ordered {
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRequired,
			Resource:    "kube-system/kube-proxy",
			Message: fmt.Sprintf(
				"kube-proxy runs v%s but nodes run v%s; kube-proxy must match the kubelet minor",
				kubeversion.Format(proxyMinor), kubeversion.Format(nodeMinor),
			),
			Data: map[string]any{
				"node":       "v" + kubeversion.Format(nodeMinor),
				"kube_proxy": "v" + kubeversion.Format(proxyMinor),
				"skew":       proxyMinor - nodeMinor,
			},
		})
	}
	return findings
}

func kubeProxyImage(workloads []models.Workload) (string, bool) {
	for _, w := range workloads {
		if w.Kind != models.KindDaemonSet || w.Name != "kube-proxy" {
			continue
		}
		if len(w.Template.Containers) == 0 {
			return "", false
		}
		return w.Template.Containers[0].Image, true
	}
	return "", false
}

// ── K8S012 ──────────────────────────────────────────────────────────────────

// KubeProxyIPVSRule fires when kube-proxy runs in IPVS mode, which is on a
// removal path upstream.
type KubeProxyIPVSRule struct{}

func (r KubeProxyIPVSRule) Code() string              { return "K8S012" }
func (r KubeProxyIPVSRule) Name() string              { return "kube-proxy IPVS Mode" }
func (r KubeProxyIPVSRule) Category() models.Category { return models.CategoryKubernetes }

func (r KubeProxyIPVSRule) Evaluate(ctx RuleContext) []models.Finding {
	if !strings.EqualFold(ctx.KubeProxyMode, "ipvs") {
		return nil
	}
	return []models.Finding{{
		Code:        r.Code(),
		Remediation: models.RemediationRecommended,
		Resource:    "kube-system/kube-proxy",
		Message:     "kube-proxy runs in IPVS mode; plan a migration to iptables or nftables mode",
		Data:        map[string]any{"mode": ctx.KubeProxyMode},
	}}
}

// ── K8S013 ──────────────────────────────────────────────────────────────────

// IngressNginxRule flags workloads running the retired Ingress-NGINX
// controller.
type IngressNginxRule struct{}

func (r IngressNginxRule) Code() string              { return "K8S013" }
func (r IngressNginxRule) Name() string              { return "Ingress-NGINX Retirement" }
func (r IngressNginxRule) Category() models.Category { return models.CategoryKubernetes }

func (r IngressNginxRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, w := range ctx.Workloads {
		if !runsIngressNginx(w) {
			continue
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRecommended,
			Resource:    w.ID(),
			Message: fmt.Sprintf(
				"%s %s runs the retired Ingress-NGINX controller; migrate to a maintained ingress implementation",
				w.Kind, w.ID(),
			),
		})
	}
	return findings
}

func runsIngressNginx(w models.Workload) bool {
	for _, c := range w.Template.Containers {
		if strings.Contains(c.Image, "ingress-nginx/controller") {
			return true
		}
	}
	return false
}
