package rules_test

import (
	"testing"

	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/utils/ptr"

	"github.com/eksup/eksup/internal/config"
	"github.com/eksup/eksup/internal/models"
	"github.com/eksup/eksup/internal/rules"
)

func mustParseSelector(t *testing.T, s string) labels.Selector {
	t.Helper()
	sel, err := labels.Parse(s)
	if err != nil {
		t.Fatalf("parse selector %q: %v", s, err)
	}
	return sel
}

func deployment(ns, name string, replicas int32) models.Workload {
	return models.Workload{
		Namespace: ns,
		Name:      name,
		Kind:      models.KindDeployment,
		Replicas:  ptr.To(replicas),
		Template:  models.PodTemplate{Labels: map[string]string{"app": name}},
	}
}

// ── K8S001 ──────────────────────────────────────────────────────────────────

// S2: a managed node one minor behind is forced Required; a node at the
// control-plane minor is skipped.
func TestVersionSkew_ManagedNodeForcedRequired(t *testing.T) {
	ctx := rules.RuleContext{
		CurrentMinor: 29,
		Nodes: []models.Node{
			{
				Name:           "ip-10-0-1-10",
				KubeletVersion: "v1.28.3",
				MinorVersion:   28,
				Labels:         map[string]string{"eks.amazonaws.com/nodegroup": "ng-a"},
			},
			{Name: "ip-10-0-1-11", KubeletVersion: "v1.29.1", MinorVersion: 29},
		},
	}
	got := rules.VersionSkewRule{}.Evaluate(ctx)
	if len(got) != 1 {
		t.Fatalf("expected 1 finding; got %d", len(got))
	}
	f := got[0]
	if f.Remediation != models.RemediationRequired {
		t.Errorf("managed node with skew 1: remediation = %q; want REQUIRED", f.Remediation)
	}
	if f.Data["skew"] != 1 {
		t.Errorf("skew = %v; want 1", f.Data["skew"])
	}
}

func TestVersionSkew_Classification(t *testing.T) {
	cases := []struct {
		name string
		node models.Node
		want models.Remediation
	}{
		{
			name: "self-managed skew 1 is recommended",
			node: models.Node{Name: "n1", MinorVersion: 28},
			want: models.RemediationRecommended,
		},
		{
			name: "self-managed skew 2 is required",
			node: models.Node{Name: "n2", MinorVersion: 27},
			want: models.RemediationRequired,
		},
		{
			name: "fargate name prefix forces required at skew 1",
			node: models.Node{Name: "fargate-ip-10-0-2-3", MinorVersion: 28},
			want: models.RemediationRequired,
		},
	}
	for _, tc := range cases {
		ctx := rules.RuleContext{CurrentMinor: 29, Nodes: []models.Node{tc.node}}
		got := rules.VersionSkewRule{}.Evaluate(ctx)
		if len(got) != 1 {
			t.Fatalf("%s: expected 1 finding; got %d", tc.name, len(got))
		}
		if got[0].Remediation != tc.want {
			t.Errorf("%s: remediation = %q; want %q", tc.name, got[0].Remediation, tc.want)
		}
	}
}

// ── K8S002 ──────────────────────────────────────────────────────────────────

// S3: global floor 3 with a coredns override of 2 flags only default/web.
func TestMinReplicas_OverridesAndExemption(t *testing.T) {
	cfg := &config.Config{Checks: config.ChecksConfig{K8S002: config.K8S002Config{
		MinReplicas: 3,
		Overrides: []config.ResourceOverride{
			{Name: "coredns", Namespace: "kube-system", MinReplicas: 2},
		},
	}}}
	ctx := rules.RuleContext{
		Config: cfg,
		Workloads: []models.Workload{
			deployment("default", "web", 2),
			deployment("kube-system", "coredns", 2),
		},
	}
	got := rules.MinReplicasRule{}.Evaluate(ctx)
	if len(got) != 1 {
		t.Fatalf("expected 1 finding; got %d", len(got))
	}
	f := got[0]
	if f.Resource != "default/web" || f.Remediation != models.RemediationRequired {
		t.Errorf("finding = %+v; want default/web REQUIRED", f)
	}
	if f.Data["min_replicas"] != 3 {
		t.Errorf("min_replicas = %v; want 3", f.Data["min_replicas"])
	}
}

func TestMinReplicas_DefaultThresholdBoundaries(t *testing.T) {
	cases := []struct {
		replicas int32
		want     int
	}{
		{replicas: 1, want: 1},
		{replicas: 2, want: 0},
		{replicas: 3, want: 0},
	}
	for _, tc := range cases {
		ctx := rules.RuleContext{Workloads: []models.Workload{deployment("default", "api", tc.replicas)}}
		if got := (rules.MinReplicasRule{}).Evaluate(ctx); len(got) != tc.want {
			t.Errorf("replicas=%d: %d findings; want %d", tc.replicas, len(got), tc.want)
		}
	}
}

func TestMinReplicas_CoreDNSAutoExempt(t *testing.T) {
	// Floor of 3 would flag coredns at 2 replicas, but the built-in
	// exemption wins.
	cfg := &config.Config{Checks: config.ChecksConfig{K8S002: config.K8S002Config{MinReplicas: 3}}}
	ctx := rules.RuleContext{
		Config:    cfg,
		Workloads: []models.Workload{deployment("kube-system", "coredns", 2)},
	}
	if got := (rules.MinReplicasRule{}).Evaluate(ctx); len(got) != 0 {
		t.Errorf("coredns at 2 replicas flagged despite exemption: %+v", got)
	}
}

func TestMinReplicas_IgnoreList(t *testing.T) {
	cfg := &config.Config{Checks: config.ChecksConfig{K8S002: config.K8S002Config{
		Ignore: []config.ResourceRef{{Name: "scratch", Namespace: "dev"}},
	}}}
	ctx := rules.RuleContext{
		Config:    cfg,
		Workloads: []models.Workload{deployment("dev", "scratch", 1)},
	}
	if got := (rules.MinReplicasRule{}).Evaluate(ctx); len(got) != 0 {
		t.Errorf("ignored workload flagged: %+v", got)
	}
}

func TestMinReplicas_SkipsDaemonSetsAndJobs(t *testing.T) {
	ctx := rules.RuleContext{Workloads: []models.Workload{
		{Namespace: "kube-system", Name: "kube-proxy", Kind: models.KindDaemonSet},
		{Namespace: "default", Name: "backup", Kind: models.KindCronJob},
	}}
	if got := (rules.MinReplicasRule{}).Evaluate(ctx); len(got) != 0 {
		t.Errorf("non-replicated kinds flagged: %+v", got)
	}
}

// ── K8S003 ──────────────────────────────────────────────────────────────────

func TestMinReadySeconds(t *testing.T) {
	cases := []struct {
		name            string
		workload        models.Workload
		wantFindings    int
		wantRemediation models.Remediation
	}{
		{
			name:            "deployment without minReadySeconds is recommended",
			workload:        deployment("default", "web", 2),
			wantFindings:    1,
			wantRemediation: models.RemediationRecommended,
		},
		{
			name: "statefulset without minReadySeconds is required",
			workload: models.Workload{
				Namespace: "default", Name: "db", Kind: models.KindStatefulSet, Replicas: ptr.To(int32(3)),
			},
			wantFindings:    1,
			wantRemediation: models.RemediationRequired,
		},
		{
			name: "zero counts as unset",
			workload: func() models.Workload {
				w := deployment("default", "web", 2)
				w.MinReadySeconds = ptr.To(int32(0))
				return w
			}(),
			wantFindings:    1,
			wantRemediation: models.RemediationRecommended,
		},
		{
			name: "set and positive passes",
			workload: func() models.Workload {
				w := deployment("default", "web", 2)
				w.MinReadySeconds = ptr.To(int32(10))
				return w
			}(),
			wantFindings: 0,
		},
		{
			name:         "daemonset skipped",
			workload:     models.Workload{Namespace: "kube-system", Name: "kube-proxy", Kind: models.KindDaemonSet},
			wantFindings: 0,
		},
	}
	for _, tc := range cases {
		ctx := rules.RuleContext{Workloads: []models.Workload{tc.workload}}
		got := rules.MinReadySecondsRule{}.Evaluate(ctx)
		if len(got) != tc.wantFindings {
			t.Errorf("%s: %d findings; want %d", tc.name, len(got), tc.wantFindings)
			continue
		}
		if tc.wantFindings > 0 && got[0].Remediation != tc.wantRemediation {
			t.Errorf("%s: remediation = %q; want %q", tc.name, got[0].Remediation, tc.wantRemediation)
		}
	}
}

// ── K8S004 ──────────────────────────────────────────────────────────────────

func TestPDBCoverage(t *testing.T) {
	webPDB := models.PodDisruptionBudget{
		Namespace: "default", Name: "web-pdb",
		Selector: labels.SelectorFromSet(labels.Set{"app": "web"}),
	}
	frontendPDB := models.PodDisruptionBudget{
		Namespace: "default", Name: "frontend-pdb",
		Selector: mustParseSelector(t, "tier in (frontend)"),
	}
	catchAll := models.PodDisruptionBudget{Namespace: "ops", Name: "all"}

	cases := []struct {
		name string
		w    models.Workload
		pdbs []models.PodDisruptionBudget
		want int
	}{
		{name: "covered by matching selector", w: deployment("default", "web", 2), pdbs: []models.PodDisruptionBudget{webPDB}, want: 0},
		{name: "uncovered", w: deployment("default", "api", 2), pdbs: []models.PodDisruptionBudget{webPDB}, want: 1},
		{name: "pdb in other namespace does not count", w: deployment("staging", "web", 2), pdbs: []models.PodDisruptionBudget{webPDB}, want: 1},
		{name: "empty selector matches everything in its namespace", w: deployment("ops", "runner", 2), pdbs: []models.PodDisruptionBudget{catchAll}, want: 0},
		{name: "expression selector does not cover unrelated workloads", w: deployment("default", "web", 2), pdbs: []models.PodDisruptionBudget{frontendPDB}, want: 1},
		{name: "daemonset skipped", w: models.Workload{Namespace: "d", Name: "ds", Kind: models.KindDaemonSet}, want: 0},
	}
	for _, tc := range cases {
		ctx := rules.RuleContext{Workloads: []models.Workload{tc.w}, PodDisruptionBudgets: tc.pdbs}
		if got := (rules.PDBCoverageRule{}).Evaluate(ctx); len(got) != tc.want {
			t.Errorf("%s: %d findings; want %d", tc.name, len(got), tc.want)
		}
	}
}

// ── K8S005 / K8S006 / K8S007 / K8S008 ───────────────────────────────────────

func TestSpread(t *testing.T) {
	flat := deployment("default", "web", 2)
	spread := deployment("default", "api", 2)
	spread.Template.HasTopologySpreadConstraints = true
	affinity := deployment("default", "cache", 2)
	affinity.Template.HasPodAntiAffinity = true

	ctx := rules.RuleContext{Workloads: []models.Workload{flat, spread, affinity}}
	got := rules.SpreadRule{}.Evaluate(ctx)
	if len(got) != 1 || got[0].Resource != "default/web" {
		t.Fatalf("findings = %+v; want only default/web", got)
	}
}

func TestReadinessProbe(t *testing.T) {
	w := deployment("default", "web", 2)
	w.Template.Containers = []models.Container{
		{Name: "app", HasReadinessProbe: true},
		{Name: "sidecar"},
	}
	ctx := rules.RuleContext{Workloads: []models.Workload{w}}
	got := rules.ReadinessProbeRule{}.Evaluate(ctx)
	if len(got) != 1 {
		t.Fatalf("expected 1 finding; got %d", len(got))
	}
	containers, _ := got[0].Data["containers"].([]string)
	if len(containers) != 1 || containers[0] != "sidecar" {
		t.Errorf("containers = %v; want [sidecar]", got[0].Data["containers"])
	}
}

func TestTerminationGrace(t *testing.T) {
	cases := []struct {
		name string
		tgps *int64
		kind models.WorkloadKind
		want int
	}{
		{name: "zero grace on statefulset", tgps: ptr.To(int64(0)), kind: models.KindStatefulSet, want: 1},
		{name: "positive grace passes", tgps: ptr.To(int64(30)), kind: models.KindStatefulSet, want: 0},
		{name: "unset passes", tgps: nil, kind: models.KindStatefulSet, want: 0},
		{name: "deployments out of scope", tgps: ptr.To(int64(0)), kind: models.KindDeployment, want: 0},
	}
	for _, tc := range cases {
		w := models.Workload{
			Namespace: "default", Name: "db", Kind: tc.kind,
			Template: models.PodTemplate{TerminationGracePeriodSeconds: tc.tgps},
		}
		ctx := rules.RuleContext{Workloads: []models.Workload{w}}
		if got := (rules.TerminationGraceRule{}).Evaluate(ctx); len(got) != tc.want {
			t.Errorf("%s: %d findings; want %d", tc.name, len(got), tc.want)
		}
	}
}

func TestDockerSocket(t *testing.T) {
	w := deployment("monitoring", "agent", 2)
	w.Template.HostPaths = []string{"/var/run/docker.sock"}
	w.Template.Containers = []models.Container{
		{Name: "agent", MountPaths: []string{"/var/run/docker.sock", "/data"}},
	}
	ctx := rules.RuleContext{Workloads: []models.Workload{w, deployment("default", "clean", 2)}}
	got := rules.DockerSocketRule{}.Evaluate(ctx)
	if len(got) != 1 {
		t.Fatalf("expected 1 finding; got %d", len(got))
	}
	paths, _ := got[0].Data["paths"].([]string)
	if len(paths) != 1 || paths[0] != "/var/run/docker.sock" {
		t.Errorf("paths = %v; want deduplicated [/var/run/docker.sock]", got[0].Data["paths"])
	}
}

// ── K8S011 ──────────────────────────────────────────────────────────────────

// S5: kube-proxy at v1.28 with nodes at {28, 28, 29} yields exactly one
// finding for the mismatched minor.
func TestKubeProxySkew_DeduplicatesNodes(t *testing.T) {
	kubeProxy := models.Workload{
		Namespace: "kube-system", Name: "kube-proxy", Kind: models.KindDaemonSet,
		Template: models.PodTemplate{Containers: []models.Container{
			{Name: "kube-proxy", Image: "602401143452.dkr.ecr.us-east-1.amazonaws.com/eks/kube-proxy:v1.28.2-eksbuild.1"},
		}},
	}
	ctx := rules.RuleContext{
		Workloads: []models.Workload{kubeProxy},
		Nodes: []models.Node{
			{Name: "a", MinorVersion: 28},
			{Name: "b", MinorVersion: 28},
			{Name: "c", MinorVersion: 29},
		},
	}
	got := rules.KubeProxySkewRule{}.Evaluate(ctx)
	if len(got) != 1 {
		t.Fatalf("expected 1 finding; got %d", len(got))
	}
	f := got[0]
	if f.Data["node"] != "v1.29" || f.Data["kube_proxy"] != "v1.28" || f.Data["skew"] != -1 {
		t.Errorf("payload = %v; want node=v1.29 kube_proxy=v1.28 skew=-1", f.Data)
	}
}

func TestKubeProxySkew_NoDaemonSetNoFinding(t *testing.T) {
	ctx := rules.RuleContext{Nodes: []models.Node{{Name: "a", MinorVersion: 29}}}
	if got := (rules.KubeProxySkewRule{}).Evaluate(ctx); len(got) != 0 {
		t.Errorf("expected 0 findings without kube-proxy; got %d", len(got))
	}
}

// ── K8S012 / K8S013 ─────────────────────────────────────────────────────────

func TestKubeProxyIPVS(t *testing.T) {
	if got := (rules.KubeProxyIPVSRule{}).Evaluate(rules.RuleContext{KubeProxyMode: "ipvs"}); len(got) != 1 {
		t.Errorf("ipvs mode: %d findings; want 1", len(got))
	}
	if got := (rules.KubeProxyIPVSRule{}).Evaluate(rules.RuleContext{KubeProxyMode: "iptables"}); len(got) != 0 {
		t.Errorf("iptables mode: %d findings; want 0", len(got))
	}
	if got := (rules.KubeProxyIPVSRule{}).Evaluate(rules.RuleContext{}); len(got) != 0 {
		t.Errorf("unknown mode: %d findings; want 0", len(got))
	}
}

func TestIngressNginx(t *testing.T) {
	controller := deployment("ingress-nginx", "controller", 2)
	controller.Template.Containers = []models.Container{
		{Name: "controller", Image: "registry.k8s.io/ingress-nginx/controller:v1.11.2"},
	}
	ctx := rules.RuleContext{Workloads: []models.Workload{controller, deployment("default", "web", 2)}}
	got := rules.IngressNginxRule{}.Evaluate(ctx)
	if len(got) != 1 || got[0].Remediation != models.RemediationRecommended {
		t.Fatalf("findings = %+v; want one RECOMMENDED", got)
	}
}
