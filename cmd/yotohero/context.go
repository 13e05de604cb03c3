package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/danwrong/yotohero/internal/app"
	"github.com/danwrong/yotohero/internal/auth"
	"github.com/danwrong/yotohero/internal/config"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/platform"
)

const defaultTokenFile = "~/.config/yotohero/tokens.json"

type commandContext struct {
	configFlag    *string
	tokenFileFlag *string
	logLevelFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag, tokenFileFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		tokenFileFlag: tokenFileFlag,
		logLevelFlag:  logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// loggerFor returns a logger on stderr: console for terminals, json otherwise.
func (c *commandContext) loggerFor() *slog.Logger {
	c.loggerOnce.Do(func() {
		level := "warn"
		if c.config != nil && c.config.Logging.Level != "" {
			level = c.config.Logging.Level
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			level = *c.logLevelFlag
		}
		format := "json"
		if fd := os.Stderr.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			format = "console"
		}
		logger, err := logging.New(logging.Options{Level: level, Format: format, Writer: os.Stderr})
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) tokenStore() (*tokenStore, error) {
	path := defaultTokenFile
	if c.tokenFileFlag != nil && strings.TrimSpace(*c.tokenFileFlag) != "" {
		path = strings.TrimSpace(*c.tokenFileFlag)
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve token file: %w", err)
	}
	return newTokenStore(expanded), nil
}

func (c *commandContext) authManager() (*auth.Manager, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.ClientID == "" {
		return nil, fmt.Errorf("auth.client_id is not set; set YOTO_CLIENT_ID or edit the config file")
	}
	return app.NewAuthManager(cfg, cfg.Auth.ClientSecret, c.loggerFor())
}

// platformClient always talks HTTP. The in-process platform only lives inside
// a server; point platform.base_url at its /platform mount to share it.
func (c *commandContext) platformClient() (*platform.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return platform.NewClient(cfg.Platform.BaseURL, cfg.PlatformTimeout(), platform.WithLogger(c.loggerFor())), nil
}

func (c *commandContext) services(ctx context.Context) (*app.Services, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := c.platformClient()
	if err != nil {
		return nil, err
	}
	return app.NewServices(ctx, cfg, c.loggerFor(), app.WithPlatform(client))
}

// validTokens loads the stored pair, refreshes it if needed and saves the
// refreshed pair back.
func (c *commandContext) validTokens(ctx context.Context, manager *auth.Manager) (model.TokenPair, error) {
	store, err := c.tokenStore()
	if err != nil {
		return model.TokenPair{}, err
	}
	pair, err := store.Load()
	if err != nil {
		return model.TokenPair{}, err
	}
	pair, refreshed, err := manager.EnsureValid(ctx, pair)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("%w (run `yotohero auth login`)", err)
	}
	if refreshed {
		if err := store.Save(pair); err != nil {
			return model.TokenPair{}, err
		}
	}
	return pair, nil
}

// keepRefreshed persists a pair refreshed mid-command. The command has already
// done its work, so a failed save is reported on w instead of failing it.
func (c *commandContext) keepRefreshed(w io.Writer, pair model.TokenPair) {
	store, err := c.tokenStore()
	if err == nil {
		err = store.Save(pair)
	}
	if err != nil {
		fmt.Fprintf(w, "warning: refreshed tokens were not saved, the next command may need `yotohero auth login`: %v\n", err)
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
