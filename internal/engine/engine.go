package engine

import (
	"context"

	"github.com/eksup/eksup/internal/config"
	"github.com/eksup/eksup/internal/models"
)

// ReportFormat controls the CLI output format.
type ReportFormat string

const (
	ReportFormatJSON ReportFormat = "json"
	ReportFormatText ReportFormat = "text"
)

// Options configures a single analysis run.
// It is the sole input to Analyzer.Analyze.
type Options struct {
	// ClusterName is the EKS cluster to analyze.
	ClusterName string

	// IgnoreRecommended drops Recommended findings from the results,
	// keeping only Required ones.
	IgnoreRecommended bool

	// Config holds the loaded .eksup.yaml. May be nil; defaults apply.
	Config *config.Config
}

// Inventory is the data-plane portion of the collected snapshot. The
// playbook renderer consumes it to emit per-nodegroup upgrade sections.
type Inventory struct {
	ManagedNodeGroups     []models.ManagedNodeGroup
	SelfManagedNodeGroups []models.SelfManagedNodeGroup
	FargateProfiles       []models.FargateProfile
}

// Analyzer is the central orchestration interface.
// It coordinates cloud and cluster collection, check evaluation, and result
// assembly, returning fully populated Results.
//
// Analyzer must not call the AWS SDK or the Kubernetes API directly; it
// delegates to the collector interfaces.
type Analyzer interface {
	Analyze(ctx context.Context, opts Options) (*models.Results, error)

	// AnalyzeWithInventory additionally returns the data-plane inventory
	// collected during the run.
	AnalyzeWithInventory(ctx context.Context, opts Options) (*models.Results, *Inventory, error)
}
