package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/target/engagement-ledger/config"
)

// ConnectRedis builds a direct, sentinel or cluster client from config and pings it.
//
//nolint:ireturn // the concrete client type depends on the deployment topology.
func ConnectRedis(ctx context.Context, cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, desc, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch {
	case cfg.RedisConfig.UseCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case cfg.RedisConfig.UseSentinel:
		client = redis.NewFailoverClient(opts.Failover())
	default:
		client = redis.NewClient(opts.Simple())
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", errors.Join(err, client.Close()))
	}

	cfg.logger().InfoContext(ctx, "redis connected", "addr", desc)
	return client, nil
}

// redisOptions maps config onto UniversalOptions. desc names the target for logs and
// never carries credentials.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	opts := &redis.UniversalOptions{Password: cfg.Password}

	if cfg.UseSentinel && !cfg.UseCluster {
		sentinels := trimAll(cfg.SentinelNodes)
		if len(sentinels) == 0 {
			return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		opts.Addrs = sentinels
		opts.MasterName = cfg.SentinelMasterName
		opts.SentinelPassword = cfg.SentinelPassword
		return opts, "sentinel:" + cfg.SentinelMasterName, nil
	}

	addrs := trimAll(cfg.ClusterNodes)
	if !cfg.UseCluster || len(addrs) == 0 {
		// A single URI serves direct mode and seeds a cluster without explicit nodes.
		uri := strings.TrimSpace(cfg.URI)
		if uri == "" {
			return nil, "", errors.New("redis configuration requires a URI or cluster nodes")
		}
		addr, err := applyRedisURI(opts, uri)
		if err != nil {
			return nil, "", err
		}
		addrs = []string{addr}
	}
	opts.Addrs = addrs

	if cfg.UseCluster {
		return opts, "cluster:" + strings.Join(addrs, ","), nil
	}
	return opts, addrs[0], nil
}

// applyRedisURI accepts either host:port or a redis:// / rediss:// URL. URL
// credentials and TLS settings override the separately configured password.
func applyRedisURI(opts *redis.UniversalOptions, uri string) (string, error) {
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		return uri, nil
	}
	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return "", fmt.Errorf("parse redis url: %w", err)
	}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	return parsed.Addr, nil
}

func trimAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
