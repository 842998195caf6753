package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ivlev/vframe/internal/app"
	"github.com/ivlev/vframe/internal/batch"
	"github.com/ivlev/vframe/internal/config"
	"github.com/ivlev/vframe/internal/engine"
	"github.com/ivlev/vframe/internal/logging"
	"github.com/ivlev/vframe/internal/mediapool"
	"github.com/ivlev/vframe/internal/notifications"
	"github.com/ivlev/vframe/internal/source"
	"github.com/ivlev/vframe/internal/subtitle"
	"github.com/ivlev/vframe/internal/system"
)

type globalFlags struct {
	settingsPath string
	queueDir     string
	logLevel     string
}

// commandContext loads settings, the logger and the queue manager once per
// invocation; the render service is only built by commands that render.
type commandContext struct {
	flags *globalFlags

	once     sync.Once
	err      error
	store    *config.JSONStore
	settings config.Settings
	logger   *zap.Logger
	queues   *batch.Manager

	svc *app.Service
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensure() error {
	c.once.Do(func() {
		path := strings.TrimSpace(c.flags.settingsPath)
		if path == "" {
			path = config.DefaultSettingsPath()
		}
		c.store = config.NewJSONStore(path)
		settings, loadErr := c.store.Load()

		level := settings.LogLevel
		if c.flags.logLevel != "" {
			level = c.flags.logLevel
		}
		logger, err := logging.New(logging.Options{Level: level, Format: settings.LogFormat})
		if err != nil {
			c.err = err
			return
		}
		if loadErr != nil {
			logger.Warn("settings unreadable, using defaults", zap.String("path", path), zap.Error(loadErr))
		}
		c.logger = logger
		c.settings = settings.Normalize(logger)
		if c.flags.queueDir != "" {
			c.settings.QueueDir = c.flags.queueDir
		}
		c.queues = batch.NewManager(c.settings.QueueDir, batch.NewStore(logger), batch.Hooks{}, logger)
		if name := c.loadCurrentQueue(); name != "" {
			if err := c.queues.Switch(name); err != nil {
				logger.Warn("saved queue selection ignored", zap.String("queue", name), zap.Error(err))
			}
		}
	})
	return c.err
}

const currentQueueFile = "current_queue"

func (c *commandContext) loadCurrentQueue() string {
	data, err := os.ReadFile(filepath.Join(c.settings.QueueDir, currentQueueFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (c *commandContext) saveCurrentQueue() error {
	if err := os.MkdirAll(c.settings.QueueDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.settings.QueueDir, currentQueueFile), []byte(c.queues.Current()+"\n"), 0o644)
}

// service builds the render service. confirm answers whether queued batches
// run after an immediate render.
func (c *commandContext) service(ctx context.Context, confirm func(int) bool) (*app.Service, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	system.InitResourceLimits(c.logger)

	settings := c.settings
	if settings.VideoEncoder == "" {
		settings.VideoEncoder = system.BestH264Encoder(ctx)
		c.logger.Debug("video encoder selected", zap.String("encoder", settings.VideoEncoder))
	}

	var emoji subtitle.EmojiSource
	if settings.EmojiDir != "" {
		emoji = subtitle.NewDirEmojiSource(settings.EmojiDir)
	}
	cache := subtitle.NewCache(subtitle.NewFontLibrary(settings.FontDir), emoji)
	renderer := engine.New(cache, c.logger,
		engine.WithImageLoader(source.ImageLoader{}),
		engine.WithWorkers(max(1, settings.Threads/max(1, settings.MaxParallelJobs))),
	)

	c.svc = app.New(app.Deps{
		Settings: settings,
		Renderer: renderer,
		Queues:   c.queues,
		Pools:    mediapool.NewRegistry(mediapool.Pool{}),
		Notifier: notifications.NewService(notifications.Options{
			Enabled: settings.Notifications,
			Sound:   settings.NotificationSound,
		}, c.logger),
		Confirm: confirm,
		Logger:  c.logger,
	})
	return c.svc, nil
}

func (c *commandContext) close() {
	if c.svc != nil {
		c.svc.Close()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}
