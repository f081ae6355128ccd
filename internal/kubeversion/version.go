// Package kubeversion implements the Kubernetes version grammar the analyzer
// understands: kubelet versions ("v1.28.3-eks-123456"), control-plane versions
// ("1.29"), and image tags ("v1.28.2-eksbuild.1") all normalize to "1.<minor>".
package kubeversion

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MinimumSupported is the lowest Kubernetes minor the tool still
	// recognizes as an upgrade source or target.
	MinimumSupported = 26

	// LatestKnown is the highest Kubernetes minor with embedded release
	// metadata. Targets above it are rejected until the data is updated.
	LatestKnown = 35
)

// ParseMinor extracts the minor version from any accepted version form:
// "1.29", "v1.28.3", "v1.28.3-eks-123456", "v1.28.2-eksbuild.1".
func ParseMinor(version string) (int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(version), "v")
	parts := strings.Split(trimmed, ".")
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed kubernetes version %q", version)
	}
	if parts[0] != "1" {
		return 0, fmt.Errorf("unsupported kubernetes major version in %q", version)
	}
	minorField := parts[1]
	// Tolerate a qualifier fused to the minor field ("1.28-eks").
	if idx := strings.IndexAny(minorField, "-+"); idx >= 0 {
		minorField = minorField[:idx]
	}
	minor, err := strconv.ParseInt(minorField, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed minor version in %q: %w", version, err)
	}
	if minor < 0 {
		return 0, fmt.Errorf("negative minor version in %q", version)
	}
	return int(minor), nil
}

// Normalize reduces any accepted version form to "1.<minor>".
func Normalize(version string) (string, error) {
	minor, err := ParseMinor(version)
	if err != nil {
		return "", err
	}
	return Format(minor), nil
}

// Format renders a minor as the canonical "1.<minor>" control-plane form.
func Format(minor int) string {
	return fmt.Sprintf("1.%d", minor)
}

// Target derives the upgrade target minor for an in-place upgrade: the
// current minor plus one. It validates both ends of the supported window.
func Target(currentVersion string) (int, error) {
	current, err := ParseMinor(currentVersion)
	if err != nil {
		return 0, err
	}
	target := current + 1
	if target < MinimumSupported {
		return 0, fmt.Errorf(
			"target version 1.%d is below the minimum supported version 1.%d; upgrade the cluster out of band first",
			target, MinimumSupported,
		)
	}
	if target > LatestKnown {
		return 0, fmt.Errorf(
			"target version 1.%d is above the latest known version 1.%d; update eksup to analyze this upgrade",
			target, LatestKnown,
		)
	}
	return target, nil
}
