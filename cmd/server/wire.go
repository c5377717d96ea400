package main

import (
	"context"
	"fmt"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/client"
	k8sconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/rhuss/codechat/pkg/audit"
	"github.com/rhuss/codechat/pkg/audit/memory"
	"github.com/rhuss/codechat/pkg/audit/postgres"
	"github.com/rhuss/codechat/pkg/auth"
	"github.com/rhuss/codechat/pkg/auth/apikey"
	"github.com/rhuss/codechat/pkg/auth/jwt"
	"github.com/rhuss/codechat/pkg/auth/noop"
	"github.com/rhuss/codechat/pkg/config"
	"github.com/rhuss/codechat/pkg/provider"
	"github.com/rhuss/codechat/pkg/provider/anthropic"
	"github.com/rhuss/codechat/pkg/provider/mistral"
	"github.com/rhuss/codechat/pkg/provider/openaicompat"
	"github.com/rhuss/codechat/pkg/sandbox"
	"github.com/rhuss/codechat/pkg/sandbox/docker"
	"github.com/rhuss/codechat/pkg/sandbox/kubernetes"
	"github.com/rhuss/codechat/pkg/sandbox/remote"
)

func newProvider(cfg config.ProviderConfig) (provider.Provider, error) {
	switch cfg.Type {
	case config.ProviderMistral:
		return mistral.New(mistral.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case config.ProviderOpenAICompat:
		return openaicompat.New(openaicompat.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
	case config.ProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	}
	return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
}

// newSandbox returns the configured backend and a function releasing its
// resources.
func newSandbox(cfg config.SandboxConfig) (sandbox.CodeSandbox, func(), error) {
	nop := func() {}

	switch cfg.Backend {
	case config.SandboxRemote:
		return remote.NewClient(cfg.URL,
			remote.WithAPIKey(cfg.APIKey),
			remote.WithExecTimeout(cfg.Timeout),
		), nop, nil

	case config.SandboxDocker:
		sb, err := docker.New(docker.Config{
			Image:         cfg.Docker.Image,
			HealthTimeout: cfg.Docker.HealthTimeout,
			ExecTimeout:   cfg.Timeout,
			MemoryBytes:   cfg.Docker.MemoryBytes,
		})
		if err != nil {
			return nil, nop, err
		}
		return sb, func() { _ = sb.Close() }, nil

	case config.SandboxKubernetes:
		restCfg, err := k8sconfig.GetConfig()
		if err != nil {
			return nil, nop, fmt.Errorf("loading kubeconfig: %w", err)
		}
		scheme, err := kubernetes.NewScheme()
		if err != nil {
			return nil, nop, err
		}
		c, err := client.New(restCfg, client.Options{Scheme: scheme})
		if err != nil {
			return nil, nop, fmt.Errorf("creating kubernetes client: %w", err)
		}
		return kubernetes.NewClaimSandbox(c,
			cfg.Kubernetes.Template,
			cfg.Kubernetes.Namespace,
			cfg.Kubernetes.ClaimTimeout,
			cfg.Timeout,
		), nop, nil
	}
	return nil, nop, fmt.Errorf("unknown sandbox backend %q", cfg.Backend)
}

// newRecorder returns nil when auditing is disabled.
func newRecorder(ctx context.Context, cfg config.AuditConfig) (audit.Recorder, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "memory":
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
	}
	return nil, fmt.Errorf("unknown audit type %q", cfg.Type)
}

// newAuthMiddleware builds the authentication chain and rate limiter for
// the configured auth type.
func newAuthMiddleware(cfg config.AuthConfig, rl config.RateLimitConfig) ([]func(http.Handler) http.Handler, error) {
	chain := &auth.AuthChain{}

	switch cfg.Type {
	case "none":
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{}}
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			id := auth.Identity{Subject: k.Subject, Tenant: k.TenantID}
			if id.Subject == "" {
				id.Subject = "apikey"
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}
	case "jwt":
		authn, err := jwt.New(jwt.Config{
			Secret:      cfg.JWT.Secret,
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			TenantClaim: cfg.JWT.TenantClaim,
		})
		if err != nil {
			return nil, err
		}
		chain.Authenticators = []auth.Authenticator{authn}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	var limiter auth.RateLimiter
	if l := auth.NewSubjectLimiter(rl.RequestsPerSecond, rl.Burst); l != nil {
		limiter = l
	}
	return []func(http.Handler) http.Handler{
		auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints),
	}, nil
}
