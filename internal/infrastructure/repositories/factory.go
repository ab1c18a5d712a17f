package repositories

import (
	"context"

	"skycast/internal/core/ports"
	"skycast/internal/infrastructure/distributed"
	"skycast/internal/infrastructure/repositories/memory"
	redisrepo "skycast/internal/infrastructure/repositories/redis"
	"skycast/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory picks Redis-backed adapters when Redis is enabled and
// reachable, and in-memory ones otherwise.
type RepositoryFactory struct {
	cfg         *config.Config
	useRedis    bool
	redisClient *redis.Client
	instanceID  string
	logger      *zap.SugaredLogger
	closers     []func()
}

func NewRepositoryFactory(cfg *config.Config, instanceID string, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		cfg:        cfg,
		useRedis:   cfg.Redis.Enabled,
		instanceID: instanceID,
		logger:     logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// UsingRedis reports whether Redis adapters are in use.
func (f *RepositoryFactory) UsingRedis() bool {
	return f.useRedis && f.redisClient != nil
}

// RedisClient is nil when running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// CreateFriendDirectory seeds the backing store from config and wraps it in
// the lookup cache when friends.cache_ttl is set.
func (f *RepositoryFactory) CreateFriendDirectory(ctx context.Context) (ports.FriendDirectory, error) {
	var dir ports.FriendDirectory
	if f.UsingRedis() {
		rd := redisrepo.NewRedisFriendDirectory(f.redisClient)
		if err := rd.Seed(ctx, f.cfg.Friends.Seed); err != nil {
			return nil, err
		}
		dir = rd
	} else {
		dir = memory.NewMemoryFriendDirectory(f.cfg.Friends.Seed)
	}

	if f.cfg.Friends.CacheTTL > 0 {
		cached := NewCachedFriendDirectory(dir, f.cfg.Friends.CacheTTL)
		f.closers = append(f.closers, cached.Close)
		return cached, nil
	}
	return dir, nil
}

func (f *RepositoryFactory) CreateOwnerLease() ports.OwnerLease {
	if f.UsingRedis() {
		return distributed.NewOwnerLease(f.redisClient, f.cfg.Redis.LeaseTTL, f.instanceID, f.logger)
	}
	return memory.NewMemoryOwnerLease()
}

// CreateNotifier mirrors lifecycle events through Redis when it is in use.
// The returned run func must be started for mirroring to happen; it is nil
// for memory mode.
func (f *RepositoryFactory) CreateNotifier(local ports.Notifier) (ports.Notifier, func(context.Context) error) {
	if !f.UsingRedis() {
		return local, nil
	}
	bus := distributed.NewEventBus(local, f.redisClient, f.instanceID, f.logger)
	return bus, bus.Run
}

func (f *RepositoryFactory) Close() error {
	for _, c := range f.closers {
		c()
	}
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.UsingRedis() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
