package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
)

// eksAPIClient is the subset of EKS API operations used by the collector.
// Using a narrow interface instead of the full SDK client makes unit testing
// trivial: create a struct that satisfies the interface and return canned data.
type eksAPIClient interface {
	DescribeCluster(
		ctx context.Context,
		params *awseks.DescribeClusterInput,
		optFns ...func(*awseks.Options),
	) (*awseks.DescribeClusterOutput, error)

	ListAddons(
		ctx context.Context,
		params *awseks.ListAddonsInput,
		optFns ...func(*awseks.Options),
	) (*awseks.ListAddonsOutput, error)

	DescribeAddon(
		ctx context.Context,
		params *awseks.DescribeAddonInput,
		optFns ...func(*awseks.Options),
	) (*awseks.DescribeAddonOutput, error)

	DescribeAddonVersions(
		ctx context.Context,
		params *awseks.DescribeAddonVersionsInput,
		optFns ...func(*awseks.Options),
	) (*awseks.DescribeAddonVersionsOutput, error)

	ListNodegroups(
		ctx context.Context,
		params *awseks.ListNodegroupsInput,
		optFns ...func(*awseks.Options),
	) (*awseks.ListNodegroupsOutput, error)

	DescribeNodegroup(
		ctx context.Context,
		params *awseks.DescribeNodegroupInput,
		optFns ...func(*awseks.Options),
	) (*awseks.DescribeNodegroupOutput, error)

	ListFargateProfiles(
		ctx context.Context,
		params *awseks.ListFargateProfilesInput,
		optFns ...func(*awseks.Options),
	) (*awseks.ListFargateProfilesOutput, error)

	DescribeFargateProfile(
		ctx context.Context,
		params *awseks.DescribeFargateProfileInput,
		optFns ...func(*awseks.Options),
	) (*awseks.DescribeFargateProfileOutput, error)
}

// ec2APIClient is the subset of EC2 operations used for subnet IP counts and
// launch template resolution.
type ec2APIClient interface {
	DescribeSubnets(
		ctx context.Context,
		params *ec2.DescribeSubnetsInput,
		optFns ...func(*ec2.Options),
	) (*ec2.DescribeSubnetsOutput, error)

	DescribeLaunchTemplates(
		ctx context.Context,
		params *ec2.DescribeLaunchTemplatesInput,
		optFns ...func(*ec2.Options),
	) (*ec2.DescribeLaunchTemplatesOutput, error)
}

// asgAPIClient is the subset of Auto Scaling operations used to discover
// self-managed node groups by cluster ownership tag.
type asgAPIClient interface {
	DescribeAutoScalingGroups(
		ctx context.Context,
		params *autoscaling.DescribeAutoScalingGroupsInput,
		optFns ...func(*autoscaling.Options),
	) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
}
