// Package kubernetes provides a CodeSandbox that provisions sandbox pods
// through agent-sandbox SandboxClaim resources.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/codechat/pkg/sandbox"
	"github.com/rhuss/codechat/pkg/sandbox/remote"
)

var _ sandbox.CodeSandbox = (*ClaimSandbox)(nil)

// ClaimSandbox creates one SandboxClaim per environment. The claimed pod runs
// the codechat sandbox server on port 8080; deleting the claim releases it.
type ClaimSandbox struct {
	client      client.Client
	template    string
	namespace   string
	timeout     time.Duration
	execTimeout time.Duration
}

// NewClaimSandbox creates a ClaimSandbox from configuration.
func NewClaimSandbox(c client.Client, template, namespace string, timeout, execTimeout time.Duration) *ClaimSandbox {
	return &ClaimSandbox{
		client:      c,
		template:    template,
		namespace:   namespace,
		timeout:     timeout,
		execTimeout: execTimeout,
	}
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Create claims a sandbox pod and waits until it is ready. The returned
// environment deletes the claim on Destroy.
func (s *ClaimSandbox) Create(ctx context.Context) (sandbox.Environment, error) {
	claimName := generateClaimNameFn()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      claimName,
			Namespace: s.namespace,
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{
				Name: s.template,
			},
		},
	}

	if err := s.client.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("create SandboxClaim %q: %w", claimName, err)
	}

	slog.Debug("created SandboxClaim", "name", claimName, "namespace", s.namespace, "template", s.template)

	serviceFQDN, err := s.waitForReady(ctx, claimName)
	if err != nil {
		// The claim exists but never became an environment.
		if delErr := s.deleteClaim(context.WithoutCancel(ctx), claimName); delErr != nil {
			slog.Warn("failed to delete SandboxClaim", "name", claimName, "namespace", s.namespace, "error", delErr.Error())
		}
		return nil, err
	}

	sandboxURL := fmt.Sprintf("http://%s:8080", serviceFQDN)
	slog.Debug("sandbox claimed", "name", claimName, "url", sandboxURL)

	c := remote.NewClient(sandboxURL, remote.WithExecTimeout(s.execTimeout))
	return &claimEnvironment{
		Environment: c.Dedicated(claimName, func(ctx context.Context) error {
			return s.deleteClaim(ctx, claimName)
		}),
		url: sandboxURL,
	}, nil
}

// claimEnvironment exposes the resolved sandbox URL alongside the environment.
type claimEnvironment struct {
	sandbox.Environment
	url string
}

// URL returns the in-cluster address of the claimed sandbox.
func (e *claimEnvironment) URL() string { return e.url }

// waitForReady polls the Sandbox resource until its Ready condition is True
// or the timeout expires.
func (s *ClaimSandbox) waitForReady(ctx context.Context, sandboxName string) (string, error) {
	deadline := time.After(s.timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context cancelled waiting for Sandbox %q: %w", sandboxName, ctx.Err())
		case <-deadline:
			return "", fmt.Errorf("timeout waiting for Sandbox %q to become ready (waited %s)", sandboxName, s.timeout)
		case <-ticker.C:
			sb := &sandboxv1alpha1.Sandbox{}
			key := types.NamespacedName{Name: sandboxName, Namespace: s.namespace}
			if err := s.client.Get(ctx, key, sb); err != nil {
				// The controller has not created the Sandbox yet.
				slog.Debug("waiting for Sandbox", "name", sandboxName, "error", err.Error())
				continue
			}

			if isReady(sb) && sb.Status.ServiceFQDN != "" {
				return sb.Status.ServiceFQDN, nil
			}
		}
	}
}

// isReady checks if the Sandbox has a Ready condition set to True.
func isReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim deletes a SandboxClaim. A claim that is already gone counts as
// deleted.
func (s *ClaimSandbox) deleteClaim(ctx context.Context, name string) error {
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: s.namespace,
		},
	}
	if err := s.client.Delete(ctx, claim); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete SandboxClaim %q: %w", name, err)
	}
	slog.Debug("deleted SandboxClaim", "name", name, "namespace", s.namespace)
	return nil
}

// generateClaimNameFn creates a unique name for a SandboxClaim.
// Replaceable in tests for deterministic naming.
var generateClaimNameFn = func() string {
	return "codechat-" + uuid.NewString()[:18]
}
