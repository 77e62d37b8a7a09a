package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Anik1199/DualBootPatcher/internal/client"
	"github.com/Anik1199/DualBootPatcher/internal/config"
	"github.com/Anik1199/DualBootPatcher/internal/logging"
	"github.com/Anik1199/DualBootPatcher/internal/protocol"
)

type commandContext struct {
	socketFlag  *string
	configFlag  *string
	jsonFlag    *bool
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string, jsonFlag, verboseFlag *bool) *commandContext {
	return &commandContext{
		socketFlag:  socketFlag,
		configFlag:  configFlag,
		jsonFlag:    jsonFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			return path
		}
	}
	return config.DefaultConfigPath
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.LoadOrDefault(c.configPath())
	})
	return c.config, c.configErr
}

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil && strings.TrimSpace(*c.socketFlag) != "" {
		return *c.socketFlag
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.SocketPath
	}
	return client.DefaultSocketPath
}

func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// logger writes text logs to the command's stderr; warnings only unless
// --verbose is set.
func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	level := "warn"
	if c.verboseFlag != nil && *c.verboseFlag {
		level = "debug"
	}
	return logging.New(logging.Options{Level: level, Format: logging.FormatText, Output: cmd.ErrOrStderr()})
}

// clientTimeoutMargin is added to the daemon's request timeout so the
// daemon reports its own timeout before the client gives up.
var clientTimeoutMargin = 5 * time.Second

// defaultClientTimeout bounds a command when the daemon has no request
// timeout configured.
const defaultClientTimeout = 10 * time.Minute

// clientTimeout is how long one command may wait on the daemon.
func (c *commandContext) clientTimeout() time.Duration {
	cfg, err := c.ensureConfig()
	if err != nil || cfg.RequestTimeout() <= 0 {
		return defaultClientTimeout
	}
	return cfg.RequestTimeout() + clientTimeoutMargin
}

func (c *commandContext) withClient(cmd *cobra.Command, fn func(context.Context, *client.Conn) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.clientTimeout())
	defer cancel()
	socket := c.socketPath()
	conn, err := client.Dial(ctx, socket, client.Options{Logger: c.logger(cmd)})
	if err != nil {
		return wrapDialError(err, socket)
	}
	defer conn.Close()
	return fn(ctx, conn)
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT) || errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("connect to daemon: socket %s not found; is mbtoold running?", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	case errors.Is(err, protocol.ErrAccessDenied):
		return fmt.Errorf("connect to daemon: access denied; add uid %d to allowed_uids", os.Getuid())
	default:
		return fmt.Errorf("connect to daemon: %w", err)
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
