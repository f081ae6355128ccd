package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMinReplicas_NilConfig(t *testing.T) {
	var cfg *Config
	threshold, apply := cfg.MinReplicas("default", "web")
	if !apply || threshold != DefaultMinReplicas {
		t.Errorf("nil config: got (%d, %v); want (%d, true)", threshold, apply, DefaultMinReplicas)
	}
}

func TestMinReplicas_Resolution(t *testing.T) {
	cfg := &Config{
		Checks: ChecksConfig{
			K8S002: K8S002Config{
				MinReplicas: 3,
				Ignore:      []ResourceRef{{Name: "batch", Namespace: "jobs"}},
				Overrides: []ResourceOverride{
					{Name: "coredns", Namespace: "kube-system", MinReplicas: 2},
					// Ignore must win even when an override also matches.
					{Name: "batch", Namespace: "jobs", MinReplicas: 5},
				},
			},
		},
	}

	if threshold, apply := cfg.MinReplicas("default", "web"); !apply || threshold != 3 {
		t.Errorf("global floor: got (%d, %v); want (3, true)", threshold, apply)
	}
	if threshold, apply := cfg.MinReplicas("kube-system", "coredns"); !apply || threshold != 2 {
		t.Errorf("override: got (%d, %v); want (2, true)", threshold, apply)
	}
	if _, apply := cfg.MinReplicas("jobs", "batch"); apply {
		t.Error("ignored resource: apply = true; want false")
	}
}

func TestTimeouts_Defaults(t *testing.T) {
	var cfg *Config
	if got := cfg.CallTimeout(); got != DefaultCallTimeout {
		t.Errorf("CallTimeout = %v; want %v", got, DefaultCallTimeout)
	}
	if got := cfg.RunTimeout(); got != DefaultRunTimeout {
		t.Errorf("RunTimeout = %v; want %v", got, DefaultRunTimeout)
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".eksup.yaml")
	content := `
checks:
  K8S002:
    min_replicas: 3
    ignore:
      - name: scratch
        namespace: dev
    overrides:
      - name: coredns
        namespace: kube-system
        min_replicas: 2
  AWS002:
    required_min: 5
    recommended_min: 16
timeouts:
  per_call: 10s
  run: 2m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Checks.K8S002.MinReplicas != 3 {
		t.Errorf("min_replicas = %d; want 3", cfg.Checks.K8S002.MinReplicas)
	}
	required, recommended := cfg.PodSubnetThresholds()
	if required != 5 || recommended != 16 {
		t.Errorf("AWS002 thresholds = (%d, %d); want (5, 16)", required, recommended)
	}
	if cfg.CallTimeout() != 10*time.Second {
		t.Errorf("CallTimeout = %v; want 10s", cfg.CallTimeout())
	}
	if cfg.RunTimeout() != 2*time.Minute {
		t.Errorf("RunTimeout = %v; want 2m", cfg.RunTimeout())
	}
}

func TestLoad_MissingExplicitPathFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of missing explicit path succeeded; want error")
	}
}

func TestLoad_MissingDefaultPathIsNil(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != nil {
		t.Errorf("cfg = %+v; want nil for absent default file", cfg)
	}
}

func TestLoad_RejectsNegativeOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := `
checks:
  K8S002:
    overrides:
      - name: web
        namespace: default
        min_replicas: -1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted negative min_replicas; want error")
	}
}
