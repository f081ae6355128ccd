package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/eksup/eksup/internal/kubeversion"
	"github.com/eksup/eksup/internal/models"
	awsprovider "github.com/eksup/eksup/internal/providers/aws"
	k8sprovider "github.com/eksup/eksup/internal/providers/kubernetes"
	"github.com/eksup/eksup/internal/rules"
)

// kube-proxy configuration lives in kube-system under one of two names
// depending on how the addon was installed.
var kubeProxyConfigMaps = []string{"kube-proxy-config", "kube-proxy"}

// defaultProxyMode is what kube-proxy runs when the config omits the mode.
const defaultProxyMode = "iptables"

// DefaultAnalyzer is the production implementation of Analyzer.
// It coordinates data collection, check evaluation, and result assembly.
// It never calls the AWS SDK or the Kubernetes API directly.
type DefaultAnalyzer struct {
	cloud    awsprovider.Collector
	cluster  k8sprovider.Collector
	registry *rules.Registry
}

// NewDefaultAnalyzer constructs a DefaultAnalyzer wired to the supplied
// collectors and check registry.
func NewDefaultAnalyzer(cloud awsprovider.Collector, cluster k8sprovider.Collector, registry *rules.Registry) *DefaultAnalyzer {
	return &DefaultAnalyzer{
		cloud:    cloud,
		cluster:  cluster,
		registry: registry,
	}
}

// Analyze implements Analyzer. It describes the cluster, derives and
// validates the upgrade target, fans out data collection, evaluates the
// applicable checks, and returns the grouped results.
func (a *DefaultAnalyzer) Analyze(ctx context.Context, opts Options) (*models.Results, error) {
	results, _, err := a.AnalyzeWithInventory(ctx, opts)
	return results, err
}

// AnalyzeWithInventory implements Analyzer.
func (a *DefaultAnalyzer) AnalyzeWithInventory(ctx context.Context, opts Options) (*models.Results, *Inventory, error) {
	if opts.ClusterName == "" {
		return nil, nil, fmt.Errorf("cluster name is required")
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Config.RunTimeout())
	defer cancel()

	cluster, err := a.cloud.GetCluster(runCtx, opts.ClusterName)
	if err != nil {
		return nil, nil, fmt.Errorf("describe cluster: %w", err)
	}

	currentMinor, err := kubeversion.ParseMinor(cluster.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("parse cluster version: %w", err)
	}
	targetMinor, err := kubeversion.Target(cluster.Version)
	if err != nil {
		return nil, nil, err
	}

	snapshot, err := a.collect(runCtx, cluster, currentMinor, targetMinor)
	if err != nil {
		return nil, nil, err
	}
	snapshot.Config = opts.Config

	results := &models.Results{
		ClusterName:    cluster.Name,
		CurrentVersion: kubeversion.Format(currentMinor),
		TargetVersion:  kubeversion.Format(targetMinor),
	}
	a.registry.EvaluateAll(snapshot, results)

	if opts.IgnoreRecommended {
		results = results.FilterRecommended()
	}
	inventory := &Inventory{
		ManagedNodeGroups:     snapshot.ManagedNodeGroups,
		SelfManagedNodeGroups: snapshot.SelfManagedNodeGroups,
		FargateProfiles:       snapshot.FargateProfiles,
	}
	return results, inventory, nil
}

// collect fans out the four independent collection branches. Any failure
// cancels the group and aborts the run; results are never partial.
func (a *DefaultAnalyzer) collect(ctx context.Context, cluster *models.Cluster, currentMinor, targetMinor int) (rules.RuleContext, error) {
	snapshot := rules.RuleContext{
		Cluster:         cluster,
		CurrentMinor:    currentMinor,
		TargetMinor:     targetMinor,
		LaunchTemplates: make(map[string]models.LaunchTemplate),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		subnets, err := a.cloud.GetSubnetIPs(gctx, cluster.SubnetIDs)
		if err != nil {
			return fmt.Errorf("collect control-plane subnets: %w", err)
		}
		snapshot.ControlPlaneSubnets = subnets

		eniConfigs, err := a.cluster.GetENIConfigs(gctx)
		if err != nil {
			return fmt.Errorf("collect eniconfigs: %w", err)
		}
		podSubnetIDs := make([]string, 0, len(eniConfigs))
		seen := make(map[string]struct{}, len(eniConfigs))
		for _, cfg := range eniConfigs {
			if cfg.Subnet == "" {
				continue
			}
			if _, ok := seen[cfg.Subnet]; ok {
				continue
			}
			seen[cfg.Subnet] = struct{}{}
			podSubnetIDs = append(podSubnetIDs, cfg.Subnet)
		}
		podSubnets, err := a.cloud.GetSubnetIPs(gctx, podSubnetIDs)
		if err != nil {
			return fmt.Errorf("collect pod subnets: %w", err)
		}
		snapshot.PodSubnets = podSubnets
		return nil
	})

	g.Go(func() error {
		addons, err := a.cloud.GetAddons(gctx, cluster.Name)
		if err != nil {
			return fmt.Errorf("collect addons: %w", err)
		}
		for i := range addons {
			current, err := a.cloud.GetAddonVersions(gctx, addons[i].Name, kubeversion.Format(currentMinor))
			if err != nil {
				return fmt.Errorf("collect addon catalog for %q: %w", addons[i].Name, err)
			}
			target, err := a.cloud.GetAddonVersions(gctx, addons[i].Name, kubeversion.Format(targetMinor))
			if err != nil {
				return fmt.Errorf("collect addon catalog for %q: %w", addons[i].Name, err)
			}
			addons[i].Current = current
			addons[i].Target = target
		}
		snapshot.AddOns = addons
		return nil
	})

	g.Go(func() error {
		managed, err := a.cloud.GetManagedNodeGroups(gctx, cluster.Name)
		if err != nil {
			return fmt.Errorf("collect managed nodegroups: %w", err)
		}
		snapshot.ManagedNodeGroups = managed
		for _, ng := range managed {
			if ng.LaunchTemplateID == "" {
				continue
			}
			if _, ok := snapshot.LaunchTemplates[ng.LaunchTemplateID]; ok {
				continue
			}
			lt, err := a.cloud.GetLaunchTemplate(gctx, ng.LaunchTemplateID)
			if err != nil {
				return fmt.Errorf("collect launch template %q: %w", ng.LaunchTemplateID, err)
			}
			snapshot.LaunchTemplates[ng.LaunchTemplateID] = *lt
		}

		selfManaged, err := a.cloud.GetSelfManagedNodeGroups(gctx, cluster.Name)
		if err != nil {
			return fmt.Errorf("collect self-managed nodegroups: %w", err)
		}
		snapshot.SelfManagedNodeGroups = selfManaged

		fargate, err := a.cloud.GetFargateProfiles(gctx, cluster.Name)
		if err != nil {
			return fmt.Errorf("collect fargate profiles: %w", err)
		}
		snapshot.FargateProfiles = fargate
		return nil
	})

	g.Go(func() error {
		nodes, err := a.cluster.GetNodes(gctx)
		if err != nil {
			return fmt.Errorf("collect nodes: %w", err)
		}
		snapshot.Nodes = nodes

		workloads, err := a.cluster.GetWorkloads(gctx)
		if err != nil {
			return fmt.Errorf("collect workloads: %w", err)
		}
		snapshot.Workloads = workloads

		pdbs, err := a.cluster.GetPodDisruptionBudgets(gctx)
		if err != nil {
			return fmt.Errorf("collect poddisruptionbudgets: %w", err)
		}
		snapshot.PodDisruptionBudgets = pdbs

		mode, err := a.kubeProxyMode(gctx)
		if err != nil {
			return fmt.Errorf("collect kube-proxy mode: %w", err)
		}
		snapshot.KubeProxyMode = mode
		return nil
	})

	if err := g.Wait(); err != nil {
		return rules.RuleContext{}, err
	}
	return snapshot, nil
}

// kubeProxyMode reads the kube-proxy ConfigMap and extracts the proxy mode.
// An absent ConfigMap yields an empty mode; a present one without an explicit
// mode means kube-proxy runs its iptables default.
func (a *DefaultAnalyzer) kubeProxyMode(ctx context.Context) (string, error) {
	for _, name := range kubeProxyConfigMaps {
		data, err := a.cluster.GetConfigMap(ctx, "kube-system", name)
		if err != nil {
			return "", err
		}
		if data == nil {
			continue
		}
		if mode := proxyModeFromConfig(data); mode != "" {
			return mode, nil
		}
		return defaultProxyMode, nil
	}
	return "", nil
}

// proxyModeFromConfig scans the ConfigMap values for a kube-proxy
// configuration document carrying a mode field.
func proxyModeFromConfig(data map[string]string) string {
	for _, raw := range data {
		var cfg struct {
			Mode string `yaml:"mode"`
		}
		if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
			continue
		}
		if cfg.Mode != "" {
			return cfg.Mode
		}
	}
	return ""
}
