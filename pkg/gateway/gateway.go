// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	certificatesv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
)

// CustomResource addresses a namespaced custom resource.
type CustomResource struct {
	Group     string
	Version   string
	Namespace string
	Plural    string
	Name      string
}

func (r CustomResource) GVR() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: r.Group, Version: r.Version, Resource: r.Plural}
}

func (r CustomResource) String() string {
	return fmt.Sprintf("%s/%s, Resource=%s %s/%s", r.Group, r.Version, r.Plural, r.Namespace, r.Name)
}

// Gateway is the generic Kubernetes API access used by every component.
// Errors it returns are *Error values classifiable with Kind.
type Gateway struct {
	coreClient kubernetes.Interface
	dynClient  dynamic.Interface
	mapper     meta.RESTMapper
}

// New builds a Gateway over existing clients. Manifests are mapped with
// a static mapper that knows the kinds agents are shipped as.
func New(coreClient kubernetes.Interface, dynClient dynamic.Interface) *Gateway {
	return &Gateway{coreClient, dynClient, defaultRESTMapper()}
}

// NewForConfig builds clients for restConfig and a discovery backed mapper.
func NewForConfig(restConfig *rest.Config) (*Gateway, error) {
	coreClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("Building core client: %w", err)
	}

	dynClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("Building dynamic client: %w", err)
	}

	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(coreClient.Discovery()))

	return &Gateway{coreClient, dynClient, mapper}, nil
}

func (g *Gateway) CoreClient() kubernetes.Interface { return g.coreClient }

func (g *Gateway) DynamicClient() dynamic.Interface { return g.dynClient }

func (g *Gateway) ServerVersion() (*version.Info, error) {
	info, err := g.coreClient.Discovery().ServerVersion()
	return info, wrap("Fetching", "server version", "", "", err)
}

func (g *Gateway) GetSecret(ctx context.Context, namespace, name string) (*corev1.Secret, error) {
	secret, err := g.coreClient.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	return secret, wrap("Fetching", "secret", namespace, name, err)
}

func (g *Gateway) CreateSecret(ctx context.Context, secret *corev1.Secret) (*corev1.Secret, error) {
	created, err := g.coreClient.CoreV1().Secrets(secret.Namespace).Create(ctx, secret, metav1.CreateOptions{})
	return created, wrap("Creating", "secret", secret.Namespace, secret.Name, err)
}

func (g *Gateway) DeleteSecret(ctx context.Context, namespace, name string) error {
	err := g.coreClient.CoreV1().Secrets(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	return wrap("Deleting", "secret", namespace, name, err)
}

func (g *Gateway) GetDeployment(ctx context.Context, namespace, name string) (*appsv1.Deployment, error) {
	deployment, err := g.coreClient.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	return deployment, wrap("Fetching", "deployment", namespace, name, err)
}

func (g *Gateway) GetCustomResource(ctx context.Context, res CustomResource) (*unstructured.Unstructured, error) {
	obj, err := g.dynClient.Resource(res.GVR()).Namespace(res.Namespace).Get(ctx, res.Name, metav1.GetOptions{})
	return obj, wrap("Fetching", res.GVR().GroupResource().String(), res.Namespace, res.Name, err)
}

// GetCustomResourceStatus reads the status sub-resource of res.
func (g *Gateway) GetCustomResourceStatus(ctx context.Context, res CustomResource) (*unstructured.Unstructured, error) {
	obj, err := g.dynClient.Resource(res.GVR()).Namespace(res.Namespace).Get(ctx, res.Name, metav1.GetOptions{}, "status")
	return obj, wrap("Fetching status of", res.GVR().GroupResource().String(), res.Namespace, res.Name, err)
}

func (g *Gateway) CreateCertificateSigningRequest(ctx context.Context,
	csr *certificatesv1.CertificateSigningRequest) (*certificatesv1.CertificateSigningRequest, error) {

	created, err := g.coreClient.CertificatesV1().CertificateSigningRequests().Create(ctx, csr, metav1.CreateOptions{})
	return created, wrap("Creating", "certificatesigningrequest", "", csr.Name, err)
}

func (g *Gateway) GetCertificateSigningRequest(ctx context.Context, name string) (*certificatesv1.CertificateSigningRequest, error) {
	csr, err := g.coreClient.CertificatesV1().CertificateSigningRequests().Get(ctx, name, metav1.GetOptions{})
	return csr, wrap("Fetching", "certificatesigningrequest", "", name, err)
}

func (g *Gateway) DeleteCertificateSigningRequest(ctx context.Context, name string) error {
	err := g.coreClient.CertificatesV1().CertificateSigningRequests().Delete(ctx, name, metav1.DeleteOptions{})
	return wrap("Deleting", "certificatesigningrequest", "", name, err)
}

// ApproveCertificateSigningRequest appends an Approved condition to csr.
func (g *Gateway) ApproveCertificateSigningRequest(ctx context.Context,
	csr *certificatesv1.CertificateSigningRequest, reason, message string) (*certificatesv1.CertificateSigningRequest, error) {

	csr = csr.DeepCopy()
	csr.Status.Conditions = append(csr.Status.Conditions, certificatesv1.CertificateSigningRequestCondition{
		Type:           certificatesv1.CertificateApproved,
		Status:         corev1.ConditionTrue,
		Reason:         reason,
		Message:        message,
		LastUpdateTime: metav1.Now(),
	})

	approved, err := g.coreClient.CertificatesV1().CertificateSigningRequests().UpdateApproval(ctx, csr.Name, csr, metav1.UpdateOptions{})
	return approved, wrap("Approving", "certificatesigningrequest", "", csr.Name, err)
}
