// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"time"

	"github.com/primaza/clustertrust/pkg/cluster"
	"github.com/primaza/clustertrust/pkg/controlplane"
	"github.com/primaza/clustertrust/pkg/poller"
	"github.com/spf13/pflag"
)

// ClusterOptions selects a running cluster and how to poll it.
type ClusterOptions struct {
	Flavor     string
	Name       string
	Kubeconfig string
	Context    string
	Namespace  string
	Interval   time.Duration
	Timeout    time.Duration
	Debug      bool
}

func DefaultClusterOptions() *ClusterOptions {
	return &ClusterOptions{
		Flavor:    string(cluster.FlavorKind),
		Name:      "primaza",
		Namespace: controlplane.DefaultNamespace,
		Interval:  poller.DefaultInterval,
		Timeout:   poller.DefaultTimeout,
	}
}

func (o *ClusterOptions) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Flavor, "flavor", o.Flavor, "Cluster flavor: kind, minikube or kubeconfig")
	fs.StringVar(&o.Name, "cluster", o.Name, "Control plane cluster name")
	fs.StringVar(&o.Kubeconfig, "kubeconfig", o.Kubeconfig, "Path to kubeconfig (defaults to standard loading rules)")
	fs.StringVar(&o.Context, "context", o.Context, "Kubeconfig context overriding the one derived from flavor")
	fs.StringVarP(&o.Namespace, "namespace", "n", o.Namespace, "Control plane namespace")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Polling interval of wait operations")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Polling timeout of wait operations")
	fs.BoolVar(&o.Debug, "debug", o.Debug, "Enable development logging")
}

func (o *ClusterOptions) provisionerOpts(role cluster.Role) cluster.ProvisionerOpts {
	return cluster.ProvisionerOpts{
		KubeconfigPath: o.Kubeconfig,
		Context:        o.Context,
		Role:           role,
		Log:            log,
	}
}

func (o *ClusterOptions) facadeOpts(metrics *poller.Metrics) controlplane.Options {
	return controlplane.Options{
		Namespace: o.Namespace,
		Interval:  o.Interval,
		Timeout:   o.Timeout,
		Logger:    log,
		Metrics:   metrics,
	}
}

// WorkerOptions selects the worker cluster a control plane registers on.
type WorkerOptions struct {
	Flavor     string
	Name       string
	Kubeconfig string
	Context    string
}

func (o *WorkerOptions) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Flavor, "worker-flavor", string(cluster.FlavorKind), "Worker cluster flavor: kind, minikube or kubeconfig")
	fs.StringVar(&o.Name, "worker", "", "Worker cluster name")
	fs.StringVar(&o.Kubeconfig, "worker-kubeconfig", "", "Path to worker kubeconfig (defaults to --kubeconfig)")
	fs.StringVar(&o.Context, "worker-context", "", "Worker kubeconfig context")
}
