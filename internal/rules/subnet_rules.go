package rules

import (
	"fmt"

	"github.com/eksup/eksup/internal/models"
)

// controlPlaneMinFreeIPs is the number of free IPs the EKS control plane
// needs across its subnets to create new ENIs during an upgrade.
const controlPlaneMinFreeIPs = 5

// ── EKS001 ──────────────────────────────────────────────────────────────────

// ControlPlaneIPsRule fires when fewer than five IPs remain free across the
// control-plane subnets. The upgrade API refuses to roll the control plane
// without room for replacement ENIs.
type ControlPlaneIPsRule struct{}

func (r ControlPlaneIPsRule) Code() string              { return "EKS001" }
func (r ControlPlaneIPsRule) Name() string              { return "Insufficient Control Plane Subnet IPs" }
func (r ControlPlaneIPsRule) Category() models.Category { return models.CategorySubnets }

func (r ControlPlaneIPsRule) Evaluate(ctx RuleContext) []models.Finding {
	if len(ctx.ControlPlaneSubnets) == 0 {
		return nil
	}

	var total int32
	ids := make([]string, 0, len(ctx.ControlPlaneSubnets))
	for _, s := range ctx.ControlPlaneSubnets {
		total += s.AvailableIPs
		ids = append(ids, s.ID)
	}
	if total >= controlPlaneMinFreeIPs {
		return nil
	}

	return []models.Finding{{
		Code:        r.Code(),
		Remediation: models.RemediationRequired,
		Resource:    clusterName(ctx),
		Message: fmt.Sprintf(
			"control-plane subnets have %d free IPs in total; at least %d are needed to upgrade",
			total, controlPlaneMinFreeIPs,
		),
		Data: map[string]any{
			"ids":           ids,
			"available_ips": total,
		},
	}}
}

// ── AWS002 ──────────────────────────────────────────────────────────────────

// PodIPsRule fires when the custom-networking pod subnets run low on free
// IPs. Thresholds come from configuration; with no thresholds configured the
// check never escalates.
type PodIPsRule struct{}

func (r PodIPsRule) Code() string              { return "AWS002" }
func (r PodIPsRule) Name() string              { return "Insufficient Pod Subnet IPs" }
func (r PodIPsRule) Category() models.Category { return models.CategorySubnets }

func (r PodIPsRule) Evaluate(ctx RuleContext) []models.Finding {
	if len(ctx.PodSubnets) == 0 {
		return nil
	}

	required, recommended := ctx.Config.PodSubnetThresholds()

	var total int32
	ids := make([]string, 0, len(ctx.PodSubnets))
	for _, s := range ctx.PodSubnets {
		total += s.AvailableIPs
		ids = append(ids, s.ID)
	}
	if total >= recommended {
		return nil
	}

	remediation := models.RemediationRecommended
	if total < required {
		remediation = models.RemediationRequired
	}

	return []models.Finding{{
		Code:        r.Code(),
		Remediation: remediation,
		Resource:    clusterName(ctx),
		Message: fmt.Sprintf(
			"pod subnets have %d free IPs in total; the surge during a node roll needs at least %d (%d recommended)",
			total, required, recommended,
		),
		Data: map[string]any{
			"ids":             ids,
			"available_ips":   total,
			"required_min":    required,
			"recommended_min": recommended,
		},
	}}
}
