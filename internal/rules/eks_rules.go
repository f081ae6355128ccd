package rules

import (
	"fmt"
	"strings"

	"github.com/eksup/eksup/internal/kubeversion"
	"github.com/eksup/eksup/internal/models"
)

// clusterName is a nil-safe accessor used as the fallback finding resource.
func clusterName(ctx RuleContext) string {
	if ctx.Cluster == nil {
		return ""
	}
	return ctx.Cluster.Name
}

// ── EKS002 ──────────────────────────────────────────────────────────────────

// ClusterHealthRule surfaces every control-plane health issue reported by
// the EKS API. The upgrade API rejects clusters with open health issues.
type ClusterHealthRule struct{}

func (r ClusterHealthRule) Code() string              { return "EKS002" }
func (r ClusterHealthRule) Name() string              { return "Cluster Health Issues" }
func (r ClusterHealthRule) Category() models.Category { return models.CategoryCluster }

func (r ClusterHealthRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Cluster == nil {
		return nil
	}
	var findings []models.Finding
	for _, issue := range ctx.Cluster.HealthIssues {
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRequired,
			Resource:    ctx.Cluster.Name,
			Message:     fmt.Sprintf("control plane reports health issue %s: %s", issue.Code, issue.Message),
			Data: map[string]any{
				"issue_code":   issue.Code,
				"resource_ids": issue.ResourceIDs,
			},
		})
	}
	return findings
}

// ── EKS003 ──────────────────────────────────────────────────────────────────

// NodeGroupHealthRule surfaces health issues on managed nodegroups.
type NodeGroupHealthRule struct{}

func (r NodeGroupHealthRule) Code() string              { return "EKS003" }
func (r NodeGroupHealthRule) Name() string              { return "Managed Nodegroup Health Issues" }
func (r NodeGroupHealthRule) Category() models.Category { return models.CategoryDataPlane }

func (r NodeGroupHealthRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, ng := range ctx.ManagedNodeGroups {
		for _, issue := range ng.HealthIssues {
			findings = append(findings, models.Finding{
				Code:        r.Code(),
				Remediation: models.RemediationRequired,
				Resource:    ng.Name,
				Message:     fmt.Sprintf("nodegroup %q reports health issue %s: %s", ng.Name, issue.Code, issue.Message),
				Data: map[string]any{
					"issue_code":   issue.Code,
					"resource_ids": issue.ResourceIDs,
				},
			})
		}
	}
	return findings
}

// ── EKS004 ──────────────────────────────────────────────────────────────────

// AddOnHealthRule surfaces health issues on installed addons.
type AddOnHealthRule struct{}

func (r AddOnHealthRule) Code() string              { return "EKS004" }
func (r AddOnHealthRule) Name() string              { return "Addon Health Issues" }
func (r AddOnHealthRule) Category() models.Category { return models.CategoryAddOns }

func (r AddOnHealthRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, addon := range ctx.AddOns {
		for _, issue := range addon.HealthIssues {
			findings = append(findings, models.Finding{
				Code:        r.Code(),
				Remediation: models.RemediationRequired,
				Resource:    addon.Name,
				Message:     fmt.Sprintf("addon %q reports health issue %s: %s", addon.Name, issue.Code, issue.Message),
				Data: map[string]any{
					"issue_code":   issue.Code,
					"resource_ids": issue.ResourceIDs,
				},
			})
		}
	}
	return findings
}

// ── EKS005 ──────────────────────────────────────────────────────────────────

// AddOnVersionRule checks every installed addon against the compatibility
// catalogs at the current and target Kubernetes versions. In priority order:
// installed version unsupported at the target, unsupported at the current
// version, behind the current latest.
type AddOnVersionRule struct{}

func (r AddOnVersionRule) Code() string              { return "EKS005" }
func (r AddOnVersionRule) Name() string              { return "Addon Version Compatibility" }
func (r AddOnVersionRule) Category() models.Category { return models.CategoryAddOns }

func (r AddOnVersionRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	targetVersion := kubeversion.Format(ctx.TargetMinor)
	for _, addon := range ctx.AddOns {
		f := evaluateAddOn(addon, targetVersion)
		if f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

func evaluateAddOn(addon models.AddOn, targetVersion string) *models.Finding {
	payload := func() map[string]any {
		data := map[string]any{"version": addon.Version}
		if addon.Target != nil {
			data["target_latest"] = addon.Target.Latest
			data["target_default"] = addon.Target.Default
			data["target_supported"] = addon.Target.Supported
		}
		if addon.Current != nil {
			data["current_latest"] = addon.Current.Latest
		}
		return data
	}

	// A missing target catalog means the addon publishes no version at all
	// for the target release, which blocks the upgrade the same way an
	// unsupported installed version does.
	if addon.Target == nil {
		return &models.Finding{
			Code:        "EKS005",
			Remediation: models.RemediationRequired,
			Resource:    addon.Name,
			Message: fmt.Sprintf(
				"addon %q has no versions compatible with Kubernetes %s",
				addon.Name, targetVersion,
			),
			Data: payload(),
		}
	}
	if !addon.Target.Supports(addon.Version) {
		return &models.Finding{
			Code:        "EKS005",
			Remediation: models.RemediationRequired,
			Resource:    addon.Name,
			Message: fmt.Sprintf(
				"addon %q version %s is not supported on Kubernetes %s; upgrade it before the cluster",
				addon.Name, addon.Version, addon.Target.KubernetesVersion,
			),
			Data: payload(),
		}
	}
	if addon.Current != nil && !addon.Current.Supports(addon.Version) {
		return &models.Finding{
			Code:        "EKS005",
			Remediation: models.RemediationRequired,
			Resource:    addon.Name,
			Message: fmt.Sprintf(
				"addon %q version %s is not supported on the current Kubernetes %s",
				addon.Name, addon.Version, addon.Current.KubernetesVersion,
			),
			Data: payload(),
		}
	}
	if addon.Current != nil && addon.Version != addon.Current.Latest {
		return &models.Finding{
			Code:        "EKS005",
			Remediation: models.RemediationRecommended,
			Resource:    addon.Name,
			Message: fmt.Sprintf(
				"addon %q version %s is behind the latest available %s",
				addon.Name, addon.Version, addon.Current.Latest,
			),
			Data: payload(),
		}
	}
	return nil
}

// ── EKS006 ──────────────────────────────────────────────────────────────────

// ManagedTemplateDriftRule fires when a managed nodegroup pins a user
// launch-template version older than the template's latest. Only the
// user-provided template is examined; the service-owned one is invisible.
type ManagedTemplateDriftRule struct{}

func (r ManagedTemplateDriftRule) Code() string              { return "EKS006" }
func (r ManagedTemplateDriftRule) Name() string              { return "Managed Nodegroup Launch Template Drift" }
func (r ManagedTemplateDriftRule) Category() models.Category { return models.CategoryDataPlane }

func (r ManagedTemplateDriftRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, ng := range ctx.ManagedNodeGroups {
		if ng.LaunchTemplateID == "" {
			continue
		}
		lt, ok := ctx.LaunchTemplates[ng.LaunchTemplateID]
		if !ok {
			continue
		}
		if ng.LaunchTemplateVersion == lt.LatestVersion {
			continue
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRecommended,
			Resource:    ng.Name,
			Message: fmt.Sprintf(
				"nodegroup %q uses launch template %s version %s; latest is %s",
				ng.Name, ng.LaunchTemplateID, ng.LaunchTemplateVersion, lt.LatestVersion,
			),
			Data: map[string]any{
				"launch_template_id": ng.LaunchTemplateID,
				"current_version":    ng.LaunchTemplateVersion,
				"latest_version":     lt.LatestVersion,
			},
		})
	}
	return findings
}

// ── EKS007 ──────────────────────────────────────────────────────────────────

// SelfManagedTemplateDriftRule is the EKS006 analogue for customer-owned
// autoscaling groups.
type SelfManagedTemplateDriftRule struct{}

func (r SelfManagedTemplateDriftRule) Code() string { return "EKS007" }
func (r SelfManagedTemplateDriftRule) Name() string {
	return "Self-Managed Nodegroup Launch Template Drift"
}
func (r SelfManagedTemplateDriftRule) Category() models.Category { return models.CategoryDataPlane }

func (r SelfManagedTemplateDriftRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, ng := range ctx.SelfManagedNodeGroups {
		if ng.CurrentVersion == ng.LatestVersion {
			continue
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRecommended,
			Resource:    ng.Name,
			Message: fmt.Sprintf(
				"autoscaling group %q uses launch template %s version %s; latest is %s",
				ng.Name, ng.LaunchTemplateID, ng.CurrentVersion, ng.LatestVersion,
			),
			Data: map[string]any{
				"launch_template_id": ng.LaunchTemplateID,
				"current_version":    ng.CurrentVersion,
				"latest_version":     ng.LatestVersion,
			},
		})
	}
	return findings
}

// ── EKS008 ──────────────────────────────────────────────────────────────────

// AL2DeprecationRule fires for managed nodegroups still on Amazon Linux 2
// AMI types, which are unavailable past their deprecation version.
type AL2DeprecationRule struct{}

func (r AL2DeprecationRule) Code() string              { return "EKS008" }
func (r AL2DeprecationRule) Name() string              { return "AL2 AMI Deprecation" }
func (r AL2DeprecationRule) Category() models.Category { return models.CategoryDataPlane }

func (r AL2DeprecationRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, ng := range ctx.ManagedNodeGroups {
		if !strings.HasPrefix(ng.AMIType, "AL2_") {
			continue
		}
		findings = append(findings, models.Finding{
			Code:        r.Code(),
			Remediation: models.RemediationRequired,
			Resource:    ng.Name,
			Message: fmt.Sprintf(
				"nodegroup %q uses deprecated AMI type %s; migrate to AL2023 or Bottlerocket before upgrading",
				ng.Name, ng.AMIType,
			),
			Data: map[string]any{"ami_type": ng.AMIType},
		})
	}
	return findings
}
