// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/primaza/clustertrust/pkg/cluster"
	"github.com/primaza/clustertrust/pkg/controlplane"
	"github.com/primaza/clustertrust/pkg/poller"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

var log = logf.Log.WithName("primazactl")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().ExecuteContext(ctx)
	exitIfErr(log.WithName("entrypoint"), "command failed", err)
}

// session is the state shared by commands acting on the control plane.
type session struct {
	opts     *ClusterOptions
	registry *cluster.Registry
	metrics  *poller.Metrics
	facade   *controlplane.Cluster
}

func NewRootCommand() *cobra.Command {
	s := &session{opts: DefaultClusterOptions(), registry: cluster.NewRegistry(), metrics: poller.NewMetrics()}

	cmd := &cobra.Command{
		Use:           "primazactl",
		Short:         "Establish trust between primaza clusters and verify reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logf.SetLogger(zap.New(zap.UseDevMode(s.opts.Debug)))

			err := s.metrics.RegisterWithControllerRuntime()
			if errors.As(err, &prometheus.AlreadyRegisteredError{}) {
				return nil
			}
			return err
		},
	}
	s.opts.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		NewSigningRequestCommand(s),
		NewPublishContextCommand(s),
		NewWaitCommand(s),
		NewDeployAgentCommand(s),
		NewJoinCommand(s),
	)
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}

// controlPlane attaches to the control plane cluster once per process.
func (s *session) controlPlane(ctx context.Context) (*controlplane.Cluster, error) {
	if s.facade != nil {
		return s.facade, nil
	}

	handle, err := s.start(ctx, cluster.Flavor(s.opts.Flavor), s.opts.Name, s.opts.provisionerOpts(cluster.RoleControlPlane))
	if err != nil {
		return nil, err
	}

	facade, err := controlplane.New(handle, s.opts.facadeOpts(s.metrics))
	if err != nil {
		return nil, err
	}

	s.facade = facade
	return facade, nil
}

func (s *session) start(ctx context.Context, flavor cluster.Flavor, name string, opts cluster.ProvisionerOpts) (*cluster.Handle, error) {
	handle, err := s.registry.Get(name)
	if err == nil {
		return handle, nil
	}

	prov, err := cluster.NewProvisioner(flavor, name, opts)
	if err != nil {
		return nil, err
	}

	handle, err = prov.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("Starting cluster '%s': %w", prov.Name(), err)
	}

	return handle, s.registry.Add(handle)
}

func exitIfErr(entryLog logr.Logger, desc string, err error) {
	if err != nil {
		entryLog.Error(err, desc)
		os.Exit(1)
	}
}
