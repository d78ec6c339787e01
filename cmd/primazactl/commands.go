// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/primaza/clustertrust/pkg/cluster"
	"github.com/primaza/clustertrust/pkg/controlplane"
	"github.com/primaza/clustertrust/pkg/status"
	"github.com/spf13/cobra"
)

func NewSigningRequestCommand(s *session) *cobra.Command {
	var csrOut, keyOut string

	cmd := &cobra.Command{
		Use:   "csr",
		Short: "Generate the control plane identity and print its signing request",
		RunE: func(cmd *cobra.Command, args []string) error {
			facade, err := s.controlPlane(cmd.Context())
			if err != nil {
				return err
			}

			csrPEM, err := facade.CreateSigningRequest()
			if err != nil {
				return err
			}

			keyPEM, err := facade.PrivateKeyPEM()
			if err != nil {
				return err
			}

			if keyOut != "" {
				err = os.WriteFile(keyOut, []byte(keyPEM), 0600)
				if err != nil {
					return fmt.Errorf("Writing private key: %w", err)
				}
			}

			return writeOutput(cmd.OutOrStdout(), csrOut, csrPEM)
		},
	}
	cmd.Flags().StringVar(&csrOut, "out", "", "File to write the signing request to (defaults to stdout)")
	cmd.Flags().StringVar(&keyOut, "key-out", "", "File to write the private key to")

	return cmd
}

func NewPublishContextCommand(s *session) *cobra.Command {
	var secretName, payloadFile string

	cmd := &cobra.Command{
		Use:   "publish-context",
		Short: "Install an access context as a secret in the control plane namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd.InOrStdin(), payloadFile)
			if err != nil {
				return err
			}

			facade, err := s.controlPlane(cmd.Context())
			if err != nil {
				return err
			}

			return facade.InstallAccessContext(cmd.Context(), secretName, string(payload))
		},
	}
	cmd.Flags().StringVar(&secretName, "secret", "", "Secret name")
	cmd.Flags().StringVarP(&payloadFile, "file", "f", "-", "Kubeconfig file to publish ('-' for stdin)")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}

func NewWaitCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for remote reconciliation to converge",
	}
	cmd.AddCommand(newWaitAgentCommand(s), newWaitStatusCommand(s), newWaitSecretCommand(s))
	return cmd
}

func newWaitAgentCommand(s *session) *cobra.Command {
	var namespace, kind string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Wait for an agent deployment to exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			facade, err := s.controlPlane(cmd.Context())
			if err != nil {
				return err
			}
			return facade.WaitForAgentPresence(cmd.Context(), namespace, controlplane.AgentKind(kind))
		},
	}
	cmd.Flags().StringVar(&namespace, "agent-namespace", "", "Namespace the agent is deployed in")
	cmd.Flags().StringVar(&kind, "kind", string(controlplane.AgentApplication), "Agent kind: application or service")
	_ = cmd.MarkFlagRequired("agent-namespace")

	return cmd
}

func newWaitStatusCommand(s *session) *cobra.Command {
	var group, version, plural, name, state, field string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Wait for a custom resource to reach a status",
		RunE: func(cmd *cobra.Command, args []string) error {
			facade, err := s.controlPlane(cmd.Context())
			if err != nil {
				return err
			}
			if field != "" {
				return facade.WaitForCustomResourceField(cmd.Context(), group, version, plural, name, status.FieldPath(field), state)
			}
			return facade.WaitForCustomResourceStatus(cmd.Context(), group, version, plural, name, state)
		},
	}
	cmd.Flags().StringVar(&group, "group", controlplane.ServiceClaimGroup, "Resource group")
	cmd.Flags().StringVar(&version, "version", controlplane.ServiceClaimVersion, "Resource version")
	cmd.Flags().StringVar(&plural, "plural", controlplane.ServiceClaimPlural, "Resource plural")
	cmd.Flags().StringVar(&name, "name", "", "Resource name")
	cmd.Flags().StringVar(&state, "state", "", "Expected value of status.state (or of --field)")
	cmd.Flags().StringVar(&field, "field", "", "Status field to compare instead of status.state, e.g. $(.status.phase)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("state")

	return cmd
}

func newWaitSecretCommand(s *session) *cobra.Command {
	var namespace, secretName, key, value string

	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Wait for a secret key to hold a value",
		RunE: func(cmd *cobra.Command, args []string) error {
			facade, err := s.controlPlane(cmd.Context())
			if err != nil {
				return err
			}
			if namespace == "" {
				namespace = facade.Namespace()
			}
			return facade.WaitForSecretValue(cmd.Context(), namespace, secretName, key, value)
		},
	}
	cmd.Flags().StringVar(&namespace, "secret-namespace", "", "Secret namespace (defaults to --namespace)")
	cmd.Flags().StringVar(&secretName, "secret", "", "Secret name")
	cmd.Flags().StringVar(&key, "key", "", "Secret key")
	cmd.Flags().StringVar(&value, "value", "", "Expected value")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func NewDeployAgentCommand(s *session) *cobra.Command {
	var namespace, manifestFile string

	cmd := &cobra.Command{
		Use:   "deploy-agent",
		Short: "Apply an agent manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := readInput(cmd.InOrStdin(), manifestFile)
			if err != nil {
				return err
			}

			facade, err := s.controlPlane(cmd.Context())
			if err != nil {
				return err
			}

			return facade.DeployAgent(cmd.Context(), namespace, manifest)
		},
	}
	cmd.Flags().StringVar(&namespace, "agent-namespace", "", "Namespace to deploy the agent in")
	cmd.Flags().StringVarP(&manifestFile, "file", "f", "-", "Manifest file ('-' for stdin)")
	_ = cmd.MarkFlagRequired("agent-namespace")

	return cmd
}

func NewJoinCommand(s *session) *cobra.Command {
	workerOpts := &WorkerOptions{}
	var csrName, secretName string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Register the control plane on a worker cluster and install the access context",
		RunE: func(cmd *cobra.Command, args []string) error {
			facade, err := s.controlPlane(cmd.Context())
			if err != nil {
				return err
			}

			provOpts := s.opts.provisionerOpts(cluster.RoleWorker)
			provOpts.Context = workerOpts.Context
			if workerOpts.Kubeconfig != "" {
				provOpts.KubeconfigPath = workerOpts.Kubeconfig
			}

			workerHandle, err := s.start(cmd.Context(), cluster.Flavor(workerOpts.Flavor), workerOpts.Name, provOpts)
			if err != nil {
				return err
			}

			if secretName == "" {
				secretName = workerHandle.Name
			}

			err = facade.JoinWorker(cmd.Context(), workerHandle, csrName, secretName)
			if err != nil {
				return err
			}

			log.Info("Worker joined", "worker", workerHandle.Name, "secret", secretName, "clusters", s.registry.Names())
			return nil
		},
	}
	workerOpts.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&csrName, "csr-name", "primaza", "Name of the signing request created on the worker")
	cmd.Flags().StringVar(&secretName, "secret", "", "Access context secret name (defaults to the worker name)")
	_ = cmd.MarkFlagRequired("worker")

	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Reading '%s': %w", path, err)
	}
	return data, nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}
