package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"stockpile/internal/api"
	"stockpile/internal/catalog"
	"stockpile/internal/config"
	"stockpile/internal/detect"
	"stockpile/internal/enrichment"
	"stockpile/internal/installs"
	"stockpile/internal/logging"
	"stockpile/internal/providerset"
	"stockpile/internal/refresh"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// client returns an API client for the configured daemon address.
func (c *commandContext) client() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Paths.APIBind == "" {
		return nil, errors.New("paths.api_bind is empty; the daemon api is disabled")
	}
	return api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken), nil
}

// daemonClient returns a client when a daemon answers at the configured
// address. local forces in-process execution.
func (c *commandContext) daemonClient(ctx context.Context, local bool) (*api.Client, bool) {
	if local {
		return nil, false
	}
	client, err := c.client()
	if err != nil {
		return nil, false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Status(probeCtx); err != nil {
		return nil, false
	}
	return client, true
}

// runtime holds the in-process pipeline used by local commands and the daemon.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	catalog   *catalog.Store
	installs  *installs.Store
	providers *providerset.Set
	enricher  *enrichment.Orchestrator
	refresher *refresh.Refresher
}

func (c *commandContext) openRuntime() (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return buildRuntime(cfg, logger)
}

func buildRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	for _, warning := range cfg.Warnings() {
		logger.Warn("configuration warning", logging.String("detail", warning))
	}

	cat, err := catalog.Open(cfg.CatalogDBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	inst, err := installs.Open(cfg.InstallsDBPath(), cfg.CatalogDBPath(), logger)
	if err != nil {
		_ = cat.Close()
		return nil, fmt.Errorf("open installations: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger, catalog: cat, installs: inst}

	set, err := providerset.Build(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.providers = set
	rt.enricher = enrichment.New(cat, set.Providers, enrichment.OptionsFromConfig(cfg), logger)

	detectors, err := refresh.BuildDetectors(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.refresher = refresh.New(detect.NewSet(logger, detectors...), cat, inst, rt.enricher, cfg.RefreshLockPath(), logger)
	return rt, nil
}

func (r *runtime) Close() {
	if r.installs != nil {
		_ = r.installs.Close()
	}
	if r.catalog != nil {
		_ = r.catalog.Close()
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
