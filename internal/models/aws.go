package models

// Cluster is the normalized EKS control-plane description.
// Fetched once per run; immutable afterwards.
type Cluster struct {
	// Name is the EKS cluster name.
	Name string

	// Version is the control-plane Kubernetes version ("1.29").
	Version string

	// PlatformVersion is the EKS platform version ("eks.7").
	PlatformVersion string

	// SubnetIDs are the VPC subnets attached to the control plane.
	SubnetIDs []string

	// HealthIssues are control-plane health issues reported by the EKS API.
	HealthIssues []HealthIssue
}

// HealthIssue is a health problem reported by the EKS API for a cluster,
// managed nodegroup, or addon.
type HealthIssue struct {
	Code        string
	Message     string
	ResourceIDs []string
}

// Subnet holds the IP availability data for one VPC subnet.
type Subnet struct {
	ID                 string
	AvailabilityZoneID string

	// AvailableIPs is the number of unassigned addresses in the subnet.
	AvailableIPs int32
}

// AddOn is an EKS-managed addon installed on the cluster, together with its
// version catalogs at the current and target Kubernetes versions.
type AddOn struct {
	Name string

	// Version is the installed addon version ("v1.12.0-eksbuild.1").
	Version string

	HealthIssues []HealthIssue

	// Current is the version catalog at the cluster's current Kubernetes
	// version; Target at the upgrade target. Either may be nil when the
	// addon has no entry in the compatibility matrix for that version.
	Current *AddOnCatalog
	Target  *AddOnCatalog
}

// AddOnCatalog is the set of addon versions compatible with one Kubernetes
// version, as published in the EKS addon compatibility matrix.
type AddOnCatalog struct {
	// KubernetesVersion is the "1.<minor>" version this catalog applies to.
	KubernetesVersion string

	// Latest is the newest compatible addon version.
	Latest string

	// Default is the version EKS installs when none is specified.
	Default string

	// Supported lists every compatible version, newest first. It always
	// contains Default and Latest.
	Supported []string
}

// Supports reports whether version appears in the catalog's supported set.
func (c *AddOnCatalog) Supports(version string) bool {
	for _, v := range c.Supported {
		if v == version {
			return true
		}
	}
	return false
}

// ManagedNodeGroup is an EKS-managed nodegroup. At most one user-provided
// launch template is attached; the service-owned template is never exposed.
type ManagedNodeGroup struct {
	Name string

	// AMIType is the EKS AMI family ("AL2_x86_64", "AL2023_x86_64_STANDARD", ...).
	AMIType string

	// LaunchTemplateID is the user-provided launch template id, empty when
	// the nodegroup uses only the service-owned template.
	LaunchTemplateID string

	// LaunchTemplateVersion is the template version the nodegroup currently
	// runs, meaningful only when LaunchTemplateID is set.
	LaunchTemplateVersion string

	// AutoScalingGroups are the names of the ASGs backing this nodegroup.
	AutoScalingGroups []string

	HealthIssues []HealthIssue
}

// SelfManagedNodeGroup is a customer-owned autoscaling group joined to the
// cluster, discovered by cluster ownership tags. ASGs carrying the
// eks:nodegroup-name tag are indirectly managed and excluded.
type SelfManagedNodeGroup struct {
	Name string

	LaunchTemplateID string

	// CurrentVersion is the launch template version the ASG runs.
	CurrentVersion string

	// LatestVersion is the newest version of the same launch template.
	LatestVersion string
}

// FargateProfile is an EKS Fargate profile attached to the cluster.
type FargateProfile struct {
	Name string

	// Selectors lists the "namespace" or "namespace/labels" selectors the
	// profile schedules, rendered for display.
	Selectors []string
}

// LaunchTemplate is a versioned EC2 launch template referenced by one or
// more node groups.
type LaunchTemplate struct {
	ID   string
	Name string

	// CurrentVersion is the version pinned by the referencing node group.
	CurrentVersion string

	// LatestVersion is the newest version of the template.
	LatestVersion string
}
