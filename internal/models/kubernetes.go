package models

import "k8s.io/apimachinery/pkg/labels"

// Node is a normalized cluster node. Nodes whose status or node-info is
// missing are dropped by the collector before they reach rule code.
type Node struct {
	Name string

	// Labels is a copy of the node's label map; rules use it to detect
	// managed-nodegroup membership ("eks.amazonaws.com/nodegroup").
	Labels map[string]string

	// KubeletVersion is the raw version string ("v1.28.3-eks-123456").
	KubeletVersion string

	// MinorVersion is the minor parsed from KubeletVersion.
	MinorVersion int
}

// WorkloadKind enumerates the six Kubernetes kinds that collapse into the
// Workload record.
type WorkloadKind string

const (
	KindDeployment  WorkloadKind = "Deployment"
	KindStatefulSet WorkloadKind = "StatefulSet"
	KindDaemonSet   WorkloadKind = "DaemonSet"
	KindReplicaSet  WorkloadKind = "ReplicaSet"
	KindCronJob     WorkloadKind = "CronJob"
	KindJob         WorkloadKind = "Job"
)

// Workload is the uniform record six workload kinds normalize to.
// Only top-level objects appear: ReplicaSets and Jobs owned by a controller
// are excluded at collection time.
type Workload struct {
	Namespace string
	Name      string
	Kind      WorkloadKind

	// Replicas is nil for DaemonSets (they scale by node count) and for
	// Jobs/CronJobs (replicas do not apply).
	Replicas *int32

	// MinReadySeconds is nil when the field does not apply to the kind.
	MinReadySeconds *int32

	Template PodTemplate
}

// ID returns the "namespace/name" identifier used in findings.
func (w Workload) ID() string {
	return w.Namespace + "/" + w.Name
}

// PodTemplate is the subset of a workload's pod template the checks consume.
type PodTemplate struct {
	// Labels are the pod-template labels, matched against PDB selectors.
	Labels map[string]string

	Containers []Container

	// HasPodAntiAffinity is true when the template declares any
	// pod-anti-affinity term, preferred or required.
	HasPodAntiAffinity bool

	// HasTopologySpreadConstraints is true when the template declares any
	// topology spread constraint.
	HasTopologySpreadConstraints bool

	// TerminationGracePeriodSeconds is nil when unset on the template.
	TerminationGracePeriodSeconds *int64

	// HostPaths are the hostPath volume paths declared by the template.
	HostPaths []string
}

// Container is the per-container subset the checks consume.
type Container struct {
	Name  string
	Image string

	// HasReadinessProbe is true when the container declares a readiness probe.
	HasReadinessProbe bool

	// MountPaths are the container's volumeMount paths.
	MountPaths []string
}

// PodDisruptionBudget is a normalized policy/v1 PDB.
type PodDisruptionBudget struct {
	Namespace string
	Name      string

	// Selector is the parsed pod selector, carrying both matchLabels and
	// matchExpressions. Nil matches every pod in the namespace.
	Selector labels.Selector

	// MinAvailable / MaxUnavailable carry the rendered intstr values; at
	// most one is non-nil.
	MinAvailable   *string
	MaxUnavailable *string
}

// Matches reports whether the PDB selector selects a pod template carrying
// the given labels.
func (p PodDisruptionBudget) Matches(lbls map[string]string) bool {
	if p.Selector == nil {
		return true
	}
	return p.Selector.Matches(labels.Set(lbls))
}

// ENIConfig is the VPC CNI custom-networking resource placing pods in
// subnets distinct from the nodes.
type ENIConfig struct {
	Name string

	// Subnet is the pod subnet id this config points at.
	Subnet string

	SecurityGroups []string
}
