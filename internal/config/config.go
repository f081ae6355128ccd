// Package config loads and resolves the optional .eksup.yaml analysis
// configuration: replica thresholds for K8S002, pod-subnet IP thresholds for
// AWS002, and run/call timeouts. All keys are optional and every accessor is
// safe to call on a nil *Config.
package config

import "time"

// Default values applied when the configuration file is absent or silent.
const (
	// DefaultMinReplicas is the global replica floor for K8S002.
	DefaultMinReplicas = 2

	// DefaultCallTimeout bounds each adapter call.
	DefaultCallTimeout = 30 * time.Second

	// DefaultRunTimeout bounds the whole analysis run.
	DefaultRunTimeout = 5 * time.Minute
)

// Config is the top-level .eksup.yaml document.
type Config struct {
	Checks   ChecksConfig   `yaml:"checks"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// ChecksConfig holds per-check tuning.
type ChecksConfig struct {
	K8S002 K8S002Config `yaml:"K8S002"`
	AWS002 AWS002Config `yaml:"AWS002"`
}

// K8S002Config tunes the minimum-replica check.
type K8S002Config struct {
	// MinReplicas is the global replica floor. Zero means DefaultMinReplicas.
	MinReplicas int `yaml:"min_replicas"`

	// Ignore exempts resources entirely. Ignore wins over Overrides.
	Ignore []ResourceRef `yaml:"ignore"`

	// Overrides sets a per-resource floor.
	Overrides []ResourceOverride `yaml:"overrides"`
}

// AWS002Config tunes the pod-subnet free-IP thresholds. No defaults are
// baked in: with both thresholds at zero the check never escalates, because
// available IP counts are never negative.
type AWS002Config struct {
	RequiredMin    int32 `yaml:"required_min"`
	RecommendedMin int32 `yaml:"recommended_min"`
}

// TimeoutsConfig overrides the per-call and whole-run deadlines.
// Values use Go duration syntax ("30s", "5m"); they are validated at load
// time and parsed lazily by the accessors.
type TimeoutsConfig struct {
	PerCall string `yaml:"per_call"`
	Run     string `yaml:"run"`
}

// ResourceRef identifies a namespaced workload.
type ResourceRef struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
}

// ResourceOverride is a ResourceRef with its own replica floor.
type ResourceOverride struct {
	Name        string `yaml:"name"`
	Namespace   string `yaml:"namespace"`
	MinReplicas int    `yaml:"min_replicas"`
}

// MinReplicas resolves the effective K8S002 floor for a workload.
// Resolution order: ignore list (returns 0, false), per-resource override,
// global floor, built-in default.
func (c *Config) MinReplicas(namespace, name string) (threshold int, apply bool) {
	if c != nil {
		for _, ref := range c.Checks.K8S002.Ignore {
			if ref.Namespace == namespace && ref.Name == name {
				return 0, false
			}
		}
		for _, ov := range c.Checks.K8S002.Overrides {
			if ov.Namespace == namespace && ov.Name == name {
				return ov.MinReplicas, true
			}
		}
		if c.Checks.K8S002.MinReplicas > 0 {
			return c.Checks.K8S002.MinReplicas, true
		}
	}
	return DefaultMinReplicas, true
}

// PodSubnetThresholds returns the AWS002 required/recommended minimums.
func (c *Config) PodSubnetThresholds() (required, recommended int32) {
	if c == nil {
		return 0, 0
	}
	return c.Checks.AWS002.RequiredMin, c.Checks.AWS002.RecommendedMin
}

// CallTimeout returns the per-adapter-call timeout.
func (c *Config) CallTimeout() time.Duration {
	if c != nil {
		if d, err := time.ParseDuration(c.Timeouts.PerCall); err == nil && d > 0 {
			return d
		}
	}
	return DefaultCallTimeout
}

// RunTimeout returns the whole-run deadline.
func (c *Config) RunTimeout() time.Duration {
	if c != nil {
		if d, err := time.ParseDuration(c.Timeouts.Run); err == nil && d > 0 {
			return d
		}
	}
	return DefaultRunTimeout
}
