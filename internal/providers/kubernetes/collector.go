package kubernetes

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	k8sclient "k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"github.com/eksup/eksup/internal/kubeversion"
	"github.com/eksup/eksup/internal/models"
)

// eniConfigGVR addresses the VPC CNI custom-networking resource.
var eniConfigGVR = schema.GroupVersionResource{
	Group:    "crd.k8s.amazonaws.com",
	Version:  "v1alpha1",
	Resource: "eniconfigs",
}

// Collector exposes the read-only cluster operations the engine needs.
// Implementations normalize API objects into the internal models and never
// apply business rules.
type Collector interface {
	// GetNodes returns every node, dropping nodes whose kubelet version is
	// missing or unparseable.
	GetNodes(ctx context.Context) ([]models.Node, error)

	// GetConfigMap returns the data of the named ConfigMap, or nil with a
	// nil error when it does not exist.
	GetConfigMap(ctx context.Context, namespace, name string) (map[string]string, error)

	// GetENIConfigs lists the VPC CNI ENIConfig custom resources. A cluster
	// without the CRD yields an empty result, not an error.
	GetENIConfigs(ctx context.Context) ([]models.ENIConfig, error)

	// GetWorkloads returns the normalized top-level workloads across all
	// namespaces. ReplicaSets and Jobs owned by a controller are excluded.
	GetWorkloads(ctx context.Context) ([]models.Workload, error)

	// GetPodDisruptionBudgets returns every policy/v1 PDB in the cluster.
	GetPodDisruptionBudgets(ctx context.Context) ([]models.PodDisruptionBudget, error)
}

// DefaultCollector implements Collector over a typed clientset and a dynamic
// client for custom resources.
type DefaultCollector struct {
	client  k8sclient.Interface
	dynamic dynamic.Interface

	// callTimeout bounds each API call. Zero disables the per-call bound.
	callTimeout time.Duration
}

// NewCollector wraps the given clients in a collector.
func NewCollector(client k8sclient.Interface, dynamicClient dynamic.Interface, callTimeout time.Duration) *DefaultCollector {
	return &DefaultCollector{client: client, dynamic: dynamicClient, callTimeout: callTimeout}
}

func (c *DefaultCollector) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

// GetNodes implements Collector.
func (c *DefaultCollector) GetNodes(ctx context.Context) ([]models.Node, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	nodeList, err := c.client.CoreV1().Nodes().List(cctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	nodes := make([]models.Node, 0, len(nodeList.Items))
	for _, n := range nodeList.Items {
		kubeletVersion := n.Status.NodeInfo.KubeletVersion
		if kubeletVersion == "" {
			log.Warnf("node %q reports no kubelet version; skipping", n.Name)
			continue
		}
		minor, err := kubeversion.ParseMinor(kubeletVersion)
		if err != nil {
			log.Warnf("node %q kubelet version %q: %v; skipping", n.Name, kubeletVersion, err)
			continue
		}
		labels := make(map[string]string, len(n.Labels))
		for k, v := range n.Labels {
			labels[k] = v
		}
		nodes = append(nodes, models.Node{
			Name:           n.Name,
			Labels:         labels,
			KubeletVersion: kubeletVersion,
			MinorVersion:   minor,
		})
	}
	return nodes, nil
}

// GetConfigMap implements Collector.
func (c *DefaultCollector) GetConfigMap(ctx context.Context, namespace, name string) (map[string]string, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	cm, err := c.client.CoreV1().ConfigMaps(namespace).Get(cctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		log.Warnf("configmap %s/%s not found", namespace, name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get configmap %s/%s: %w", namespace, name, err)
	}
	return cm.Data, nil
}

// GetENIConfigs implements Collector.
func (c *DefaultCollector) GetENIConfigs(ctx context.Context) ([]models.ENIConfig, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	list, err := c.dynamic.Resource(eniConfigGVR).List(cctx, metav1.ListOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			log.Warn("ENIConfig CRD not installed; custom networking checks see no pod subnets")
			return nil, nil
		}
		return nil, fmt.Errorf("list eniconfigs: %w", err)
	}

	configs := make([]models.ENIConfig, 0, len(list.Items))
	for _, item := range list.Items {
		configs = append(configs, convertENIConfig(item))
	}
	return configs, nil
}

func convertENIConfig(obj unstructured.Unstructured) models.ENIConfig {
	subnet, _, _ := unstructured.NestedString(obj.Object, "spec", "subnet")
	groups, _, _ := unstructured.NestedStringSlice(obj.Object, "spec", "securityGroups")
	return models.ENIConfig{
		Name:           obj.GetName(),
		Subnet:         subnet,
		SecurityGroups: groups,
	}
}

// GetWorkloads implements Collector. Six kinds collapse into the uniform
// workload record; only top-level objects appear, so ReplicaSets and Jobs
// carrying a controller owner reference are skipped.
func (c *DefaultCollector) GetWorkloads(ctx context.Context) ([]models.Workload, error) {
	var workloads []models.Workload

	cctx, cancel := c.callCtx(ctx)
	deployments, err := c.client.AppsV1().Deployments(metav1.NamespaceAll).List(cctx, metav1.ListOptions{})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	for _, d := range deployments.Items {
		workloads = append(workloads, models.Workload{
			Namespace:       d.Namespace,
			Name:            d.Name,
			Kind:            models.KindDeployment,
			Replicas:        replicasOrDefault(d.Spec.Replicas),
			MinReadySeconds: ptr.To(d.Spec.MinReadySeconds),
			Template:        convertTemplate(d.Spec.Template),
		})
	}

	cctx, cancel = c.callCtx(ctx)
	statefulSets, err := c.client.AppsV1().StatefulSets(metav1.NamespaceAll).List(cctx, metav1.ListOptions{})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list statefulsets: %w", err)
	}
	for _, s := range statefulSets.Items {
		workloads = append(workloads, models.Workload{
			Namespace:       s.Namespace,
			Name:            s.Name,
			Kind:            models.KindStatefulSet,
			Replicas:        replicasOrDefault(s.Spec.Replicas),
			MinReadySeconds: ptr.To(s.Spec.MinReadySeconds),
			Template:        convertTemplate(s.Spec.Template),
		})
	}

	cctx, cancel = c.callCtx(ctx)
	daemonSets, err := c.client.AppsV1().DaemonSets(metav1.NamespaceAll).List(cctx, metav1.ListOptions{})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list daemonsets: %w", err)
	}
	for _, d := range daemonSets.Items {
		workloads = append(workloads, models.Workload{
			Namespace:       d.Namespace,
			Name:            d.Name,
			Kind:            models.KindDaemonSet,
			MinReadySeconds: ptr.To(d.Spec.MinReadySeconds),
			Template:        convertTemplate(d.Spec.Template),
		})
	}

	cctx, cancel = c.callCtx(ctx)
	replicaSets, err := c.client.AppsV1().ReplicaSets(metav1.NamespaceAll).List(cctx, metav1.ListOptions{})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list replicasets: %w", err)
	}
	for _, rs := range replicaSets.Items {
		if metav1.GetControllerOf(&rs) != nil {
			continue
		}
		workloads = append(workloads, models.Workload{
			Namespace:       rs.Namespace,
			Name:            rs.Name,
			Kind:            models.KindReplicaSet,
			Replicas:        replicasOrDefault(rs.Spec.Replicas),
			MinReadySeconds: ptr.To(rs.Spec.MinReadySeconds),
			Template:        convertTemplate(rs.Spec.Template),
		})
	}

	cctx, cancel = c.callCtx(ctx)
	cronJobs, err := c.client.BatchV1().CronJobs(metav1.NamespaceAll).List(cctx, metav1.ListOptions{})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list cronjobs: %w", err)
	}
	for _, cj := range cronJobs.Items {
		workloads = append(workloads, models.Workload{
			Namespace: cj.Namespace,
			Name:      cj.Name,
			Kind:      models.KindCronJob,
			Template:  convertTemplate(cj.Spec.JobTemplate.Spec.Template),
		})
	}

	cctx, cancel = c.callCtx(ctx)
	jobs, err := c.client.BatchV1().Jobs(metav1.NamespaceAll).List(cctx, metav1.ListOptions{})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for _, j := range jobs.Items {
		if metav1.GetControllerOf(&j) != nil {
			continue
		}
		workloads = append(workloads, models.Workload{
			Namespace: j.Namespace,
			Name:      j.Name,
			Kind:      models.KindJob,
			Template:  convertTemplate(j.Spec.Template),
		})
	}

	return workloads, nil
}

// replicasOrDefault resolves the API default of one replica for kinds where
// an unset replica count means one.
func replicasOrDefault(replicas *int32) *int32 {
	if replicas == nil {
		return ptr.To(int32(1))
	}
	return ptr.To(*replicas)
}

func convertTemplate(tpl corev1.PodTemplateSpec) models.PodTemplate {
	labels := make(map[string]string, len(tpl.Labels))
	for k, v := range tpl.Labels {
		labels[k] = v
	}

	out := models.PodTemplate{Labels: labels}
	for _, c := range tpl.Spec.Containers {
		container := models.Container{
			Name:              c.Name,
			Image:             c.Image,
			HasReadinessProbe: c.ReadinessProbe != nil,
		}
		for _, m := range c.VolumeMounts {
			container.MountPaths = append(container.MountPaths, m.MountPath)
		}
		out.Containers = append(out.Containers, container)
	}
	for _, v := range tpl.Spec.Volumes {
		if v.HostPath != nil {
			out.HostPaths = append(out.HostPaths, v.HostPath.Path)
		}
	}
	if aff := tpl.Spec.Affinity; aff != nil && aff.PodAntiAffinity != nil {
		out.HasPodAntiAffinity = len(aff.PodAntiAffinity.RequiredDuringSchedulingIgnoredDuringExecution) > 0 ||
			len(aff.PodAntiAffinity.PreferredDuringSchedulingIgnoredDuringExecution) > 0
	}
	out.HasTopologySpreadConstraints = len(tpl.Spec.TopologySpreadConstraints) > 0
	if tgps := tpl.Spec.TerminationGracePeriodSeconds; tgps != nil {
		out.TerminationGracePeriodSeconds = ptr.To(*tgps)
	}
	return out
}

// GetPodDisruptionBudgets implements Collector.
func (c *DefaultCollector) GetPodDisruptionBudgets(ctx context.Context) ([]models.PodDisruptionBudget, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()

	list, err := c.client.PolicyV1().PodDisruptionBudgets(metav1.NamespaceAll).List(cctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list poddisruptionbudgets: %w", err)
	}

	pdbs := make([]models.PodDisruptionBudget, 0, len(list.Items))
	for _, p := range list.Items {
		pdb := models.PodDisruptionBudget{
			Namespace: p.Namespace,
			Name:      p.Name,
		}
		if p.Spec.Selector != nil {
			sel, err := metav1.LabelSelectorAsSelector(p.Spec.Selector)
			if err != nil {
				log.Warnf("poddisruptionbudget %s/%s selector: %v; skipping", p.Namespace, p.Name, err)
				continue
			}
			pdb.Selector = sel
		}
		if p.Spec.MinAvailable != nil {
			pdb.MinAvailable = ptr.To(p.Spec.MinAvailable.String())
		}
		if p.Spec.MaxUnavailable != nil {
			pdb.MaxUnavailable = ptr.To(p.Spec.MaxUnavailable.String())
		}
		pdbs = append(pdbs, pdb)
	}
	return pdbs, nil
}
