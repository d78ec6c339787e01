// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package worker_test

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/primaza/clustertrust/pkg/gateway"
	"github.com/primaza/clustertrust/pkg/identity"
	"github.com/primaza/clustertrust/pkg/poller"
	"github.com/primaza/clustertrust/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	certificatesv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

var csrGVR = schema.GroupVersionResource{Group: "certificates.k8s.io", Version: "v1", Resource: "certificatesigningrequests"}

type fixture struct {
	client    *k8sfake.Clientset
	registrar *worker.Registrar
	request   worker.Request
}

func newFixture(t *testing.T, objects ...runtime.Object) fixture {
	keyPair, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	csrPEM, err := identity.BuildSigningRequest(keyPair)
	require.NoError(t, err)

	keyPEM, err := keyPair.PrivateKeyPEM()
	require.NoError(t, err)

	client := k8sfake.NewSimpleClientset(objects...)
	gw := gateway.New(client, dynamicfake.NewSimpleDynamicClient(runtime.NewScheme()))
	log := zap.New(zap.UseDevMode(true))

	return fixture{
		client:    client,
		registrar: worker.NewRegistrar(gw, poller.New(log, nil), log),
		request: worker.Request{
			CSRName:           "primaza",
			SigningRequestPEM: csrPEM,
			PrivateKeyPEM:     keyPEM,
			Server:            "https://worker.example:6443",
			CAData:            []byte("worker-ca"),
		},
	}
}

// issueAfter makes the fake signer populate the certificate from the given Get onwards.
func issueAfter(client *k8sfake.Clientset, gets int, cert []byte) {
	calls := 0
	client.PrependReactor("get", "certificatesigningrequests", func(action k8stesting.Action) (bool, runtime.Object, error) {
		calls++
		if calls < gets {
			return false, nil, nil
		}
		obj, err := client.Tracker().Get(csrGVR, "", action.(k8stesting.GetAction).GetName())
		if err != nil {
			return true, nil, err
		}
		csr := obj.(*certificatesv1.CertificateSigningRequest).DeepCopy()
		csr.Status.Certificate = cert
		return true, csr, nil
	})
}

func Test_Register(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t)
		issueAfter(f.client, 3, []byte("issued-cert"))
		start := time.Now()

		kubeconfig, err := f.registrar.Register(context.Background(), f.request)
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, time.Since(start))

		cfg, err := clientcmd.Load([]byte(kubeconfig))
		require.NoError(t, err)
		assert.Equal(t, "primaza@worker", cfg.CurrentContext)
		assert.Equal(t, "https://worker.example:6443", cfg.Clusters["worker"].Server)
		assert.Equal(t, []byte("worker-ca"), cfg.Clusters["worker"].CertificateAuthorityData)
		assert.Equal(t, []byte("issued-cert"), cfg.AuthInfos["primaza"].ClientCertificateData)
		assert.Equal(t, []byte(f.request.PrivateKeyPEM), cfg.AuthInfos["primaza"].ClientKeyData)

		csr, err := f.client.CertificatesV1().CertificateSigningRequests().Get(context.Background(), "primaza", metav1.GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, certificatesv1.KubeAPIServerClientSignerName, csr.Spec.SignerName)
		assert.Equal(t, []certificatesv1.KeyUsage{certificatesv1.UsageClientAuth}, csr.Spec.Usages)
		assert.Equal(t, f.request.SigningRequestPEM, csr.Spec.Request)
		assert.Equal(t, "primazactl", csr.Labels["app.kubernetes.io/managed-by"])
	})
}

func Test_Register_ReplacesPreviousRequest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		previous := &certificatesv1.CertificateSigningRequest{
			ObjectMeta: metav1.ObjectMeta{Name: "primaza"},
			Spec:       certificatesv1.CertificateSigningRequestSpec{Request: []byte("stale")},
		}
		f := newFixture(t, previous)
		issueAfter(f.client, 1, []byte("issued-cert"))

		_, err := f.registrar.Register(context.Background(), f.request)
		require.NoError(t, err)

		stored, err := f.client.Tracker().Get(csrGVR, "", "primaza")
		require.NoError(t, err)
		csr := stored.(*certificatesv1.CertificateSigningRequest)
		assert.Equal(t, f.request.SigningRequestPEM, csr.Spec.Request)

		require.NotEmpty(t, csr.Status.Conditions)
		assert.Equal(t, certificatesv1.CertificateApproved, csr.Status.Conditions[0].Type)
		assert.Equal(t, corev1.ConditionTrue, csr.Status.Conditions[0].Status)

		var verbs []string
		for _, action := range f.client.Actions() {
			verbs = append(verbs, action.GetVerb())
		}
		assert.Equal(t, []string{"delete", "create", "update", "get"}, verbs)
	})
}

func Test_Register_Denied(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t)
		f.client.PrependReactor("get", "certificatesigningrequests", func(k8stesting.Action) (bool, runtime.Object, error) {
			return true, &certificatesv1.CertificateSigningRequest{
				ObjectMeta: metav1.ObjectMeta{Name: "primaza"},
				Status: certificatesv1.CertificateSigningRequestStatus{
					Conditions: []certificatesv1.CertificateSigningRequestCondition{{
						Type:    certificatesv1.CertificateDenied,
						Status:  corev1.ConditionTrue,
						Message: "not allowed",
					}},
				},
			}, nil
		})

		_, err := f.registrar.Register(context.Background(), f.request)
		require.Error(t, err)
		assert.True(t, errors.Is(err, worker.ErrSigningRequestDenied))
		assert.Contains(t, err.Error(), "not allowed")
	})
}

func Test_Register_TimesOutWithoutCertificate(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t)
		start := time.Now()

		_, err := f.registrar.Register(context.Background(), f.request)
		require.Error(t, err)
		assert.True(t, errors.Is(err, poller.ErrTimedOut))
		assert.Equal(t, poller.DefaultTimeout, time.Since(start))
	})
}

func Test_Register_Errors(t *testing.T) {
	f := newFixture(t)

	req := f.request
	req.Server = ""
	_, err := f.registrar.Register(context.Background(), req)
	require.Error(t, err)

	f.client.PrependReactor("delete", "certificatesigningrequests", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(csrGVR.GroupResource(), "primaza", errors.New("rbac"))
	})

	_, err = f.registrar.Register(context.Background(), f.request)
	require.Error(t, err)
	assert.True(t, apierrors.IsForbidden(err))
	for _, action := range f.client.Actions() {
		assert.NotEqual(t, "create", action.GetVerb(), "nothing is submitted after a failed removal")
	}
}

func Test_BuildKubeconfig(t *testing.T) {
	out, err := worker.BuildKubeconfig("https://1.2.3.4:6443", "alice", []byte("ca"), []byte("cert"), []byte("key"))
	require.NoError(t, err)

	cfg, err := clientcmd.Load(out)
	require.NoError(t, err)
	assert.Equal(t, "alice@worker", cfg.CurrentContext)
	assert.Equal(t, "alice", cfg.Contexts["alice@worker"].AuthInfo)
	assert.Equal(t, []byte("key"), cfg.AuthInfos["alice"].ClientKeyData)

	restConfig, err := clientcmd.RESTConfigFromKubeConfig(out)
	require.NoError(t, err)
	assert.Equal(t, "https://1.2.3.4:6443", restConfig.Host)

	_, err = worker.BuildKubeconfig("", "alice", nil, nil, nil)
	require.Error(t, err)
	_, err = worker.BuildKubeconfig("https://1.2.3.4:6443", "", nil, nil, nil)
	require.Error(t, err)
}
