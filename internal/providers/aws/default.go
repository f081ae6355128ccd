package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/smithy-go"
	log "github.com/sirupsen/logrus"

	"github.com/eksup/eksup/internal/models"
)

// managedNodeGroupTag marks an ASG as backing an EKS-managed nodegroup.
// Such groups are indirectly managed and excluded from self-managed discovery.
const managedNodeGroupTag = "eks:nodegroup-name"

// DefaultCollector implements Collector with the AWS SDK v2. Credentials come
// from the default chain (env vars, shared config, instance profile). Launch
// templates are cached by id for the lifetime of the collector; node groups
// routinely share templates.
type DefaultCollector struct {
	eks eksAPIClient
	ec2 ec2APIClient
	asg asgAPIClient

	// callTimeout bounds each API call. Zero disables the per-call bound.
	callTimeout time.Duration

	mu      sync.Mutex
	ltCache map[string]models.LaunchTemplate
}

// NewDefaultCollector loads the AWS configuration for the given region (empty
// means the chain's default) and returns a ready collector.
func NewDefaultCollector(ctx context.Context, region string, callTimeout time.Duration) (*DefaultCollector, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newCollectorWithClients(
		awseks.NewFromConfig(cfg),
		ec2.NewFromConfig(cfg),
		autoscaling.NewFromConfig(cfg),
		callTimeout,
	), nil
}

// newCollectorWithClients is the testable core: it accepts injectable narrow
// clients.
func newCollectorWithClients(eksClient eksAPIClient, ec2Client ec2APIClient, asgClient asgAPIClient, callTimeout time.Duration) *DefaultCollector {
	return &DefaultCollector{
		eks:         eksClient,
		ec2:         ec2Client,
		asg:         asgClient,
		callTimeout: callTimeout,
		ltCache:     make(map[string]models.LaunchTemplate),
	}
}

func (c *DefaultCollector) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

// GetCluster implements Collector.
func (c *DefaultCollector) GetCluster(ctx context.Context, name string) (*models.Cluster, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	out, err := c.eks.DescribeCluster(cctx, &awseks.DescribeClusterInput{Name: aws.String(name)})
	if err != nil {
		var notFound *ekstypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %q", ErrClusterNotFound, name)
		}
		return nil, fmt.Errorf("describe cluster %q: %w", name, err)
	}
	if out.Cluster == nil {
		return nil, fmt.Errorf("describe cluster %q: empty response", name)
	}

	cluster := &models.Cluster{
		Name:            aws.ToString(out.Cluster.Name),
		Version:         aws.ToString(out.Cluster.Version),
		PlatformVersion: aws.ToString(out.Cluster.PlatformVersion),
	}
	if out.Cluster.ResourcesVpcConfig != nil {
		cluster.SubnetIDs = out.Cluster.ResourcesVpcConfig.SubnetIds
	}
	if out.Cluster.Health != nil {
		for _, issue := range out.Cluster.Health.Issues {
			cluster.HealthIssues = append(cluster.HealthIssues, models.HealthIssue{
				Code:        string(issue.Code),
				Message:     aws.ToString(issue.Message),
				ResourceIDs: issue.ResourceIds,
			})
		}
	}
	return cluster, nil
}

// GetSubnetIPs implements Collector.
func (c *DefaultCollector) GetSubnetIPs(ctx context.Context, ids []string) ([]models.Subnet, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var subnets []models.Subnet
	var nextToken *string
	for {
		cctx, cancel := c.callCtx(ctx)
		out, err := c.ec2.DescribeSubnets(cctx, &ec2.DescribeSubnetsInput{
			SubnetIds: ids,
			NextToken: nextToken,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("describe subnets: %w", err)
		}
		for _, s := range out.Subnets {
			subnets = append(subnets, models.Subnet{
				ID:                 aws.ToString(s.SubnetId),
				AvailabilityZoneID: aws.ToString(s.AvailabilityZoneId),
				AvailableIPs:       aws.ToInt32(s.AvailableIpAddressCount),
			})
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return subnets, nil
}

// GetAddons implements Collector.
func (c *DefaultCollector) GetAddons(ctx context.Context, cluster string) ([]models.AddOn, error) {
	var names []string
	var nextToken *string
	for {
		cctx, cancel := c.callCtx(ctx)
		out, err := c.eks.ListAddons(cctx, &awseks.ListAddonsInput{
			ClusterName: aws.String(cluster),
			NextToken:   nextToken,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list addons: %w", err)
		}
		names = append(names, out.Addons...)
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	addons := make([]models.AddOn, 0, len(names))
	for _, name := range names {
		cctx, cancel := c.callCtx(ctx)
		out, err := c.eks.DescribeAddon(cctx, &awseks.DescribeAddonInput{
			ClusterName: aws.String(cluster),
			AddonName:   aws.String(name),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("describe addon %q: %w", name, err)
		}
		if out.Addon == nil {
			continue
		}
		addon := models.AddOn{
			Name:    aws.ToString(out.Addon.AddonName),
			Version: aws.ToString(out.Addon.AddonVersion),
		}
		if out.Addon.Health != nil {
			for _, issue := range out.Addon.Health.Issues {
				addon.HealthIssues = append(addon.HealthIssues, models.HealthIssue{
					Code:        string(issue.Code),
					Message:     aws.ToString(issue.Message),
					ResourceIDs: issue.ResourceIds,
				})
			}
		}
		addons = append(addons, addon)
	}
	return addons, nil
}

// GetAddonVersions implements Collector. The API returns versions newest
// first; that order is preserved so the first supported entry is the latest.
func (c *DefaultCollector) GetAddonVersions(ctx context.Context, addon, kubernetesVersion string) (*models.AddOnCatalog, error) {
	catalog := &models.AddOnCatalog{KubernetesVersion: kubernetesVersion}

	var nextToken *string
	for {
		cctx, cancel := c.callCtx(ctx)
		out, err := c.eks.DescribeAddonVersions(cctx, &awseks.DescribeAddonVersionsInput{
			AddonName:         aws.String(addon),
			KubernetesVersion: aws.String(kubernetesVersion),
			NextToken:         nextToken,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("describe addon versions for %q at %s: %w", addon, kubernetesVersion, err)
		}
		for _, info := range out.Addons {
			for _, v := range info.AddonVersions {
				version := aws.ToString(v.AddonVersion)
				if version == "" {
					continue
				}
				catalog.Supported = append(catalog.Supported, version)
				for _, compat := range v.Compatibilities {
					if compat.DefaultVersion {
						catalog.Default = version
					}
				}
			}
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	if len(catalog.Supported) == 0 {
		return nil, nil
	}
	catalog.Latest = catalog.Supported[0]
	return catalog, nil
}

// GetManagedNodeGroups implements Collector.
func (c *DefaultCollector) GetManagedNodeGroups(ctx context.Context, cluster string) ([]models.ManagedNodeGroup, error) {
	var names []string
	var nextToken *string
	for {
		cctx, cancel := c.callCtx(ctx)
		out, err := c.eks.ListNodegroups(cctx, &awseks.ListNodegroupsInput{
			ClusterName: aws.String(cluster),
			NextToken:   nextToken,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list nodegroups: %w", err)
		}
		names = append(names, out.Nodegroups...)
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	groups := make([]models.ManagedNodeGroup, 0, len(names))
	for _, name := range names {
		cctx, cancel := c.callCtx(ctx)
		out, err := c.eks.DescribeNodegroup(cctx, &awseks.DescribeNodegroupInput{
			ClusterName:   aws.String(cluster),
			NodegroupName: aws.String(name),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("describe nodegroup %q: %w", name, err)
		}
		if out.Nodegroup == nil {
			continue
		}
		ng := models.ManagedNodeGroup{
			Name:    aws.ToString(out.Nodegroup.NodegroupName),
			AMIType: string(out.Nodegroup.AmiType),
		}
		if lt := out.Nodegroup.LaunchTemplate; lt != nil {
			ng.LaunchTemplateID = aws.ToString(lt.Id)
			ng.LaunchTemplateVersion = aws.ToString(lt.Version)
		}
		if res := out.Nodegroup.Resources; res != nil {
			for _, asg := range res.AutoScalingGroups {
				ng.AutoScalingGroups = append(ng.AutoScalingGroups, aws.ToString(asg.Name))
			}
		}
		if out.Nodegroup.Health != nil {
			for _, issue := range out.Nodegroup.Health.Issues {
				ng.HealthIssues = append(ng.HealthIssues, models.HealthIssue{
					Code:        string(issue.Code),
					Message:     aws.ToString(issue.Message),
					ResourceIDs: issue.ResourceIds,
				})
			}
		}
		groups = append(groups, ng)
	}
	return groups, nil
}

// GetSelfManagedNodeGroups implements Collector. Selection is by the cluster
// ownership tag keys; groups backing managed nodegroups carry the
// eks:nodegroup-name tag and are excluded.
func (c *DefaultCollector) GetSelfManagedNodeGroups(ctx context.Context, cluster string) ([]models.SelfManagedNodeGroup, error) {
	ownershipTags := map[string]struct{}{
		"k8s.io/cluster/" + cluster:        {},
		"kubernetes.io/cluster/" + cluster: {},
	}

	var groups []models.SelfManagedNodeGroup
	var nextToken *string
	for {
		cctx, cancel := c.callCtx(ctx)
		out, err := c.asg.DescribeAutoScalingGroups(cctx, &autoscaling.DescribeAutoScalingGroupsInput{
			NextToken: nextToken,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("describe autoscaling groups: %w", err)
		}
		for _, asg := range out.AutoScalingGroups {
			if !ownedByCluster(asg.Tags, ownershipTags) {
				continue
			}
			name := aws.ToString(asg.AutoScalingGroupName)
			ltID, ltVersion := launchTemplateRef(asg)
			if ltID == "" {
				log.Warnf("autoscaling group %q has no launch template; skipping", name)
				continue
			}
			lt, err := c.GetLaunchTemplate(ctx, ltID)
			if err != nil {
				return nil, fmt.Errorf("resolve launch template for %q: %w", name, err)
			}
			// Symbolic pins follow the template; resolve them to the
			// numeric versions they point at so drift comparisons hold.
			switch ltVersion {
			case "$Latest":
				ltVersion = lt.LatestVersion
			case "$Default":
				ltVersion = lt.CurrentVersion
			}
			groups = append(groups, models.SelfManagedNodeGroup{
				Name:             name,
				LaunchTemplateID: ltID,
				CurrentVersion:   ltVersion,
				LatestVersion:    lt.LatestVersion,
			})
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return groups, nil
}

func ownedByCluster(tags []asgtypes.TagDescription, ownershipTags map[string]struct{}) bool {
	owned := false
	for _, tag := range tags {
		key := aws.ToString(tag.Key)
		if key == managedNodeGroupTag {
			return false
		}
		if _, ok := ownershipTags[key]; ok {
			owned = true
		}
	}
	return owned
}

// launchTemplateRef resolves the template id and pinned version for an ASG,
// looking through a mixed instances policy when present. A nil version on
// the spec means the ASG tracks the template's default version.
func launchTemplateRef(asg asgtypes.AutoScalingGroup) (id, version string) {
	spec := asg.LaunchTemplate
	if spec == nil && asg.MixedInstancesPolicy != nil && asg.MixedInstancesPolicy.LaunchTemplate != nil {
		spec = asg.MixedInstancesPolicy.LaunchTemplate.LaunchTemplateSpecification
	}
	if spec == nil {
		return "", ""
	}
	version = aws.ToString(spec.Version)
	if version == "" {
		version = "$Default"
	}
	return aws.ToString(spec.LaunchTemplateId), version
}

// GetFargateProfiles implements Collector.
func (c *DefaultCollector) GetFargateProfiles(ctx context.Context, cluster string) ([]models.FargateProfile, error) {
	var names []string
	var nextToken *string
	for {
		cctx, cancel := c.callCtx(ctx)
		out, err := c.eks.ListFargateProfiles(cctx, &awseks.ListFargateProfilesInput{
			ClusterName: aws.String(cluster),
			NextToken:   nextToken,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list fargate profiles: %w", err)
		}
		names = append(names, out.FargateProfileNames...)
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	profiles := make([]models.FargateProfile, 0, len(names))
	for _, name := range names {
		cctx, cancel := c.callCtx(ctx)
		out, err := c.eks.DescribeFargateProfile(cctx, &awseks.DescribeFargateProfileInput{
			ClusterName:        aws.String(cluster),
			FargateProfileName: aws.String(name),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("describe fargate profile %q: %w", name, err)
		}
		if out.FargateProfile == nil {
			continue
		}
		profile := models.FargateProfile{Name: aws.ToString(out.FargateProfile.FargateProfileName)}
		for _, sel := range out.FargateProfile.Selectors {
			profile.Selectors = append(profile.Selectors, renderSelector(sel))
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// renderSelector formats a Fargate selector as "namespace" or
// "namespace{k=v,...}" with label keys sorted for stable output.
func renderSelector(sel ekstypes.FargateProfileSelector) string {
	ns := aws.ToString(sel.Namespace)
	if len(sel.Labels) == 0 {
		return ns
	}
	keys := make([]string, 0, len(sel.Labels))
	for k := range sel.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+sel.Labels[k])
	}
	return ns + "{" + strings.Join(pairs, ",") + "}"
}

// GetLaunchTemplate implements Collector. Results are cached by id.
func (c *DefaultCollector) GetLaunchTemplate(ctx context.Context, id string) (*models.LaunchTemplate, error) {
	c.mu.Lock()
	if cached, ok := c.ltCache[id]; ok {
		c.mu.Unlock()
		return &cached, nil
	}
	c.mu.Unlock()

	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	out, err := c.ec2.DescribeLaunchTemplates(cctx, &ec2.DescribeLaunchTemplatesInput{
		LaunchTemplateIds: []string{id},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && strings.HasPrefix(apiErr.ErrorCode(), "InvalidLaunchTemplateId") {
			return nil, fmt.Errorf("%w: %q", ErrLaunchTemplateNotFound, id)
		}
		return nil, fmt.Errorf("describe launch template %q: %w", id, err)
	}
	if len(out.LaunchTemplates) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrLaunchTemplateNotFound, id)
	}

	raw := out.LaunchTemplates[0]
	lt := models.LaunchTemplate{
		ID:             aws.ToString(raw.LaunchTemplateId),
		Name:           aws.ToString(raw.LaunchTemplateName),
		CurrentVersion: fmt.Sprintf("%d", aws.ToInt64(raw.DefaultVersionNumber)),
		LatestVersion:  fmt.Sprintf("%d", aws.ToInt64(raw.LatestVersionNumber)),
	}

	c.mu.Lock()
	c.ltCache[id] = lt
	c.mu.Unlock()
	return &lt, nil
}
