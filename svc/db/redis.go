package db

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"os"
	"time"

	"pbnj/cfg"
	"pbnj/pkg/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedis(url string, c *cfg.Cfg) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond
	if c.RedisTLS {
		tlsConfig, err := buildRedisTLSConfig(c)
		if err != nil {
			return nil, errors.Wrap(err, "build redis TLS config")
		}
		opt.TLSConfig = tlsConfig
	}
	if c.RedisUsername != "" {
		opt.Username = c.RedisUsername
	}
	if c.RedisPassword.Value() != "" {
		opt.Password = c.RedisPassword.Value()
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return &Redis{
		client:  client,
		timeout: c.RedisTimeout,
	}, nil
}

// buildRedisTLSConfig pins TLS 1.3 and the configured server name. Roots come
// from REDIS_TLS_CA_CERT, else the system pool; outside production a dev CA
// may be added on top.
func buildRedisTLSConfig(c *cfg.Cfg) (*tls.Config, error) {
	if c.RedisHostname == "" {
		return nil, errors.New("REDIS_HOSTNAME must be set when REDIS_TLS=true")
	}
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
		ServerName: c.RedisHostname,
	}
	if c.RedisCACert != "" {
		pool := x509.NewCertPool()
		if err := appendPEM(pool, c.RedisCACert); err != nil {
			return nil, errors.Wrap(err, "redis CA cert")
		}
		tlsConfig.RootCAs = pool
	} else {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, errors.Wrap(err, "load system cert pool")
		}
		tlsConfig.RootCAs = pool
	}
	if c.RedisDevCA != "" && c.Environment != "production" {
		if err := appendPEM(tlsConfig.RootCAs, c.RedisDevCA); err != nil {
			return nil, errors.Wrap(err, "redis dev CA cert")
		}
	}
	return tlsConfig, nil
}
func appendPEM(pool *x509.CertPool, path string) error {
	pem, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return errors.Errorf("no certificates in %s", path)
	}
	return nil
}

const pasteKeyPrefix = "pbnj:paste:"

// cachedPaste mirrors domain.Paste but keeps the secret key, which the
// public JSON form drops.
type cachedPaste struct {
	ID                 string `json:"id"`
	Code               string `json:"code"`
	Language           string `json:"language"`
	Filename           string `json:"filename,omitempty"`
	CreatedAt          int64  `json:"createdAt"`
	UpdatedAt          int64  `json:"updatedAt"`
	IsPrivate          bool   `json:"isPrivate"`
	SecretKey          string `json:"secretKey,omitempty"`
	HighlightedCode    string `json:"highlightedCode,omitempty"`
	HighlightedPreview string `json:"highlightedPreview,omitempty"`
}

func (r *Redis) CachePaste(ctx context.Context, p *domain.Paste, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	data, err := json.Marshal(cachedPaste(*p))
	if err != nil {
		return errors.Wrap(err, "marshal paste")
	}
	return errors.Wrap(r.client.Set(ctx, pasteKeyPrefix+p.ID, data, ttl).Err(), "set paste")
}

// GetPaste returns nil, nil on a cache miss.
func (r *Redis) GetPaste(ctx context.Context, id string) (*domain.Paste, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	data, err := r.client.Get(ctx, pasteKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get paste")
	}
	var cp cachedPaste
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrap(err, "unmarshal paste")
	}
	p := domain.Paste(cp)
	return &p, nil
}
func (r *Redis) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Del(ctx, pasteKeyPrefix+id).Err(); err != nil {
		return errors.Wrap(err, "delete paste")
	}
	return nil
}

var rateScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[1])
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end
	if current >= tonumber(ARGV[2]) then
		return current + 1
	end
	local new_val = redis.call("INCR", KEYS[1])
	if new_val == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return new_val
`)

// RateLimit counts a hit against key in a fixed window shared by every
// instance and returns the usage so far. Once limit is reached the counter
// stops moving and every further call reports limit+1.
func (r *Redis) RateLimit(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	usage, err := rateScript.Run(ctx, r.client, []string{"pbnj:rl:" + key}, int(window.Milliseconds()), limit).Int()
	if err != nil {
		return 0, errors.Wrap(err, "rate limit lua")
	}
	return usage, nil
}
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
