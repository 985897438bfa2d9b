package discovery

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

// KubernetesProducer watches Pods matching a label selector in one
// namespace and reports each as a ServiceInfo once it reaches Running,
// using the pod's IP and name as the session's address and tag. Grounded
// on `discovery/k8s_producer.rs`, which watches the same Pod lifecycle
// through the Kubernetes watch API; here built on `k8s.io/client-go`'s
// shared-informer machinery rather than hand-rolled long-polling.
type KubernetesProducer struct {
	Client        kubernetes.Interface
	Namespace     string
	LabelSelector string
	HashLabel     string // pod label carrying the binary content-hash group identity
	AliasLabel    string
}

func (p *KubernetesProducer) Run(ctx context.Context, onDiscover func(ServiceInfo)) error {
	factory := informers.NewSharedInformerFactoryWithOptions(
		p.Client,
		0,
		informers.WithNamespace(p.Namespace),
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.LabelSelector = p.LabelSelector
		}),
	)
	podInformer := factory.Core().V1().Pods().Informer()

	handler := func(obj interface{}) {
		pod, ok := obj.(*corev1.Pod)
		if !ok || pod.Status.Phase != corev1.PodRunning || pod.Status.PodIP == "" {
			return
		}
		onDiscover(p.toServiceInfo(pod))
	}

	reg, err := podInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: handler,
		UpdateFunc: func(_, newObj interface{}) {
			handler(newObj)
		},
	})
	if err != nil {
		return fmt.Errorf("discovery: register pod handler: %w", err)
	}
	defer podInformer.RemoveEventHandler(reg) //nolint:errcheck

	factory.Start(ctx.Done())
	if !cache.WaitForCacheSync(ctx.Done(), podInformer.HasSynced) {
		return fmt.Errorf("discovery: pod informer cache sync failed")
	}

	<-ctx.Done()
	return ctx.Err()
}

func (p *KubernetesProducer) toServiceInfo(pod *corev1.Pod) ServiceInfo {
	info := ServiceInfo{
		IP:    pod.Status.PodIP,
		Tag:   pod.Name,
		Alias: pod.Labels[p.AliasLabel],
		Hash:  pod.Labels[p.HashLabel],
	}
	if len(pod.Status.ContainerStatuses) > 0 {
		// Pod-scoped sessions have no OS pid of their own on the
		// coordinator's side; the first container's restart count is
		// repurposed as a cheap liveness-generation discriminator.
		info.PID = uint64(pod.Status.ContainerStatuses[0].RestartCount)
	}
	return info
}
