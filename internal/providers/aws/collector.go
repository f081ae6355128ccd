// Package aws implements the cloud-side data acquisition for the analyzer:
// cluster description, subnet IP counts, addon catalogs, node groups, and
// launch templates, all read-only against the EKS, EC2, and Auto Scaling APIs.
package aws

import (
	"context"
	"errors"

	"github.com/eksup/eksup/internal/models"
)

// ErrClusterNotFound is returned by GetCluster when the named cluster does
// not exist in the resolved region.
var ErrClusterNotFound = errors.New("cluster not found")

// ErrLaunchTemplateNotFound is returned by GetLaunchTemplate for unknown ids.
var ErrLaunchTemplateNotFound = errors.New("launch template not found")

// Collector exposes the read-only cloud operations the engine needs.
// Implementations must be stateless apart from caching, safe for concurrent
// use, and must never apply business rules or produce findings. Pagination
// is the collector's concern; callers receive complete lists.
type Collector interface {
	// GetCluster describes the named EKS cluster. Returns a wrapped
	// ErrClusterNotFound when it does not exist.
	GetCluster(ctx context.Context, name string) (*models.Cluster, error)

	// GetSubnetIPs returns IP availability for the given subnet ids.
	// An empty id list yields an empty result without an API call.
	GetSubnetIPs(ctx context.Context, ids []string) ([]models.Subnet, error)

	// GetAddons returns every installed addon, fully materialized with its
	// installed version and health issues. Version catalogs are fetched
	// separately via GetAddonVersions.
	GetAddons(ctx context.Context, cluster string) ([]models.AddOn, error)

	// GetAddonVersions returns the addon's compatibility catalog for one
	// Kubernetes version, preserving newest-to-oldest order. A nil catalog
	// with nil error means the addon has no entry for that version.
	GetAddonVersions(ctx context.Context, addon, kubernetesVersion string) (*models.AddOnCatalog, error)

	// GetManagedNodeGroups returns the cluster's EKS-managed node groups.
	GetManagedNodeGroups(ctx context.Context, cluster string) ([]models.ManagedNodeGroup, error)

	// GetSelfManagedNodeGroups returns autoscaling groups tagged as owned
	// by the cluster, excluding those backing managed node groups.
	GetSelfManagedNodeGroups(ctx context.Context, cluster string) ([]models.SelfManagedNodeGroup, error)

	// GetFargateProfiles returns the cluster's Fargate profiles.
	GetFargateProfiles(ctx context.Context, cluster string) ([]models.FargateProfile, error)

	// GetLaunchTemplate resolves a launch template by id, caching within
	// the run. Returns a wrapped ErrLaunchTemplateNotFound for unknown ids.
	GetLaunchTemplate(ctx context.Context, id string) (*models.LaunchTemplate, error)
}
