package db

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pbnj/cfg"
)

func writeTestCA(t *testing.T, dir, name string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name+".pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildRedisTLSConfig(t *testing.T) {
	dir := t.TempDir()
	ca := writeTestCA(t, dir, "prod-ca")
	devCA := writeTestCA(t, dir, "dev-ca")
	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		c       cfg.Cfg
		wantErr string
	}{
		{
			name:    "missing hostname",
			c:       cfg.Cfg{RedisTLS: true},
			wantErr: "REDIS_HOSTNAME must be set",
		},
		{
			name: "system roots",
			c:    cfg.Cfg{RedisTLS: true, RedisHostname: "redis.internal"},
		},
		{
			name: "custom ca",
			c:    cfg.Cfg{RedisTLS: true, RedisHostname: "redis.internal", RedisCACert: ca},
		},
		{
			name: "custom ca plus dev ca",
			c: cfg.Cfg{
				RedisTLS:      true,
				RedisHostname: "redis.internal",
				RedisCACert:   ca,
				RedisDevCA:    devCA,
				Environment:   "development",
			},
		},
		{
			name:    "unreadable ca",
			c:       cfg.Cfg{RedisTLS: true, RedisHostname: "redis.internal", RedisCACert: filepath.Join(dir, "missing.pem")},
			wantErr: "redis CA cert",
		},
		{
			name:    "ca without certificates",
			c:       cfg.Cfg{RedisTLS: true, RedisHostname: "redis.internal", RedisCACert: garbage},
			wantErr: "no certificates",
		},
		{
			name: "bad dev ca",
			c: cfg.Cfg{
				RedisTLS:      true,
				RedisHostname: "redis.internal",
				RedisCACert:   ca,
				RedisDevCA:    garbage,
				Environment:   "development",
			},
			wantErr: "redis dev CA cert",
		},
		{
			name: "dev ca skipped in production",
			c: cfg.Cfg{
				RedisTLS:      true,
				RedisHostname: "redis.internal",
				RedisCACert:   ca,
				RedisDevCA:    garbage,
				Environment:   "production",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildRedisTLSConfig(&tt.c)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ServerName != tt.c.RedisHostname {
				t.Errorf("ServerName = %q, want %q", got.ServerName, tt.c.RedisHostname)
			}
			if got.MinVersion != tls.VersionTLS13 {
				t.Errorf("MinVersion = %x, want TLS 1.3", got.MinVersion)
			}
			if got.RootCAs == nil {
				t.Error("RootCAs not set")
			}
		})
	}
}

func TestNewRedisRejectsTLSWithoutHostname(t *testing.T) {
	_, err := NewRedis("rediss://127.0.0.1:1", &cfg.Cfg{RedisTLS: true})
	if err == nil || !strings.Contains(err.Error(), "REDIS_HOSTNAME") {
		t.Fatalf("err = %v, want missing hostname error", err)
	}
}
