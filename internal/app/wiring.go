package app

import (
	"context"

	"github.com/MrSnakeDoc/mlvd/internal/config"
	"github.com/MrSnakeDoc/mlvd/internal/directory"
	"github.com/MrSnakeDoc/mlvd/internal/logger"
	"github.com/MrSnakeDoc/mlvd/internal/redis"
	"github.com/MrSnakeDoc/mlvd/internal/sources/mullvad"
	"github.com/MrSnakeDoc/mlvd/internal/store"
	filestore "github.com/MrSnakeDoc/mlvd/internal/store/file"
	redisstore "github.com/MrSnakeDoc/mlvd/internal/store/redis"
	"github.com/MrSnakeDoc/mlvd/internal/tunnel"
)

func (a *App) tunnelConfig() (tunnel.Config, error) {
	mark, err := a.cfg.FwmarkValue()
	if err != nil {
		return tunnel.Config{}, err
	}
	return tunnel.Config{
		Interface:    a.cfg.Interface,
		WireGuardDir: a.cfg.WireGuardDir,
		TemplateFile: a.cfg.TemplateFile,
		Fwmark:       mark,
		WgBin:        a.cfg.WgBin,
		WgQuickBin:   a.cfg.WgQuickBin,
		SysfsNetDir:  a.cfg.SysfsNetDir,
	}, nil
}

func (a *App) newController(tcfg tunnel.Config) *tunnel.Controller {
	return tunnel.New(tcfg, a.runner, a.logger)
}

func (a *App) newCache(ctx context.Context) *directory.Cache {
	client := mullvad.NewClient(a.cfg.RelaysURL, a.cfg.FetchTimeout)
	return directory.New(a.newStore(ctx), client, a.logger, directory.Options{
		FreshnessWindow: a.cfg.FreshnessWindow,
	})
}

// newStore opens the configured cache backend. An unreachable Redis falls
// back to the file store so a cache outage never blocks connecting.
func (a *App) newStore(ctx context.Context) store.Store {
	if a.cfg.CacheBackend != config.BackendRedis {
		return filestore.New(a.cfg.BaseDir)
	}

	opts := redis.DefaultConnectOptions(a.cfg.RedisAddr)
	opts.Password = a.cfg.RedisPassword
	opts.DB = a.cfg.RedisDB
	opts.ConnectTimeout = a.cfg.RedisConnectTimeout

	client, err := redis.New(ctx, opts, a.logger)
	if err != nil {
		a.logger.Warn("redis cache unavailable, using file cache",
			logger.String("base_dir", a.cfg.BaseDir),
			logger.Error(err))
		return filestore.New(a.cfg.BaseDir)
	}
	a.redisClient = client
	a.logger.Debug("using redis relay cache",
		logger.String("addr", a.cfg.RedisAddr),
		logger.String("prefix", a.cfg.RedisKeyPrefix))
	return redisstore.NewStore(client, a.cfg.RedisKeyPrefix)
}
