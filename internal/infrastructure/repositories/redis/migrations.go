package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = "skycast:schema:version"
	currentSchemaVersion = 2

	ownerLeasePattern = "skycast:owner:*"
)

type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs every migration newer than the stored schema version.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("schema is up to date", "version", currentVersion)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", migration.Version)
		}
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("all migrations completed", "final_version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// Owner leases always carry a TTL; one without is left over from a
			// crashed writer and would block its owner forever.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				return deleteWithoutTTL(ctx, client, ownerLeasePattern)
			},
		},
		{
			// Index of owners with a friend set, so the set can be enumerated
			// without KEYS.
			Version: 2,
			Up: func(ctx context.Context, client *redis.Client) error {
				iter := client.Scan(ctx, 0, friendsPrefix+"*", 100).Iterator()
				for iter.Next(ctx) {
					owner := iter.Val()[len(friendsPrefix):]
					if err := client.SAdd(ctx, friendOwnersKey, owner).Err(); err != nil {
						return err
					}
				}
				return iter.Err()
			},
		},
	}
}

func deleteWithoutTTL(ctx context.Context, client *redis.Client, pattern string) error {
	iter := client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		ttl, err := client.TTL(ctx, iter.Val()).Result()
		if err != nil {
			return err
		}
		if ttl != -1 {
			continue
		}
		if err := client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
