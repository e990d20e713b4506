// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-resty/resty/v2"

	"github.com/MKhiriev/go-settings/internal/logger"
)

// RemoteAuth selects how requests to the remote configuration service are
// authenticated.
type RemoteAuth string

const (
	// RemoteAuthNone sends unauthenticated requests.
	RemoteAuthNone RemoteAuth = "none"
	// RemoteAuthSignature signs every request with HMAC-SHA1 over
	// "<timestamp>\n<path-with-query>" and sends it as
	// "Authorization: Apollo <appID>:<signature>" plus a Timestamp header.
	RemoteAuthSignature RemoteAuth = "signature"
	// RemoteAuthBearer mints a short-lived HS256 token from the app
	// credentials and sends it as a bearer token.
	RemoteAuthBearer RemoteAuth = "bearer"
)

// RemoteConfig holds the connection parameters of a remote configuration /
// secret service source. The zero values of Cluster, Namespace, Auth and the
// timing fields are replaced with defaults by NewRemote.
//
// The env tags allow bootstrapping the parameters from the process
// environment with [RemoteConfigFromEnv], e.g. REMOTE_SERVER_URL,
// REMOTE_APP_ID, REMOTE_SECRET.
type RemoteConfig struct {
	ServerURL string `env:"SERVER_URL"`
	AppID     string `env:"APP_ID"`
	Secret    string `env:"SECRET"`

	Cluster   string     `env:"CLUSTER" envDefault:"default"`
	Namespace string     `env:"NAMESPACE" envDefault:"application"`
	Auth      RemoteAuth `env:"AUTH" envDefault:"signature"`

	// Timeout bounds each HTTP attempt; RetryCount attempts are made with
	// exponential backoff between RetryWait and RetryMaxWait. Remote
	// sources depend on a network service and are the only retried kind.
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RetryCount   int           `env:"RETRY_COUNT" envDefault:"3"`
	RetryWait    time.Duration `env:"RETRY_WAIT" envDefault:"500ms"`
	RetryMaxWait time.Duration `env:"RETRY_MAX_WAIT" envDefault:"5s"`

	// CacheDir enables a local fallback file per namespace, refreshed on
	// every successful fetch and read when the service is unreachable and
	// the source is not required.
	CacheDir string `env:"CACHE_DIR"`

	// Mapping renames individual remote keys to canonical field paths,
	// for secrets whose stored names follow no convention. Keys not in
	// the mapping use the naming convention: "__" or "." separate nested
	// segments.
	Mapping map[string]string `env:"-"`

	Rank     int  `env:"-"`
	Required bool `env:"REQUIRED"`
}

// RemoteConfigFromEnv reads RemoteConfig from REMOTE_* environment
// variables, the same way the service's own clients bootstrap themselves.
func RemoteConfigFromEnv() (RemoteConfig, error) {
	var cfg RemoteConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "REMOTE_"}); err != nil {
		return RemoteConfig{}, fmt.Errorf("parsing remote source env configs: %w", err)
	}
	return cfg, nil
}

type remoteSource struct {
	desc    Descriptor
	cfg     RemoteConfig
	client  *resty.Client
	log     *logger.Logger
	now     func() time.Time
	tokenFn func(cfg RemoteConfig, now time.Time) (string, error)

	mu             sync.Mutex
	lastReleaseKey string
	lastConfig     map[string]any
}

// NewRemote returns a source that fetches one namespace of configuration
// from a remote service over HTTP:
//
//	GET {server}/configs/{appID}/{cluster}/{namespace}?releaseKey={last}
//
// The response carries a flat "configurations" mapping and a "releaseKey";
// an unchanged release answers 304 and the previously fetched payload is
// reused. Unreachability is fatal for a required source and degrades to the
// local cache file (then to nothing) otherwise.
func NewRemote(cfg RemoteConfig, log *logger.Logger) Source {
	if cfg.Cluster == "" {
		cfg.Cluster = "default"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "application"
	}
	if cfg.Auth == "" {
		if cfg.Secret == "" {
			cfg.Auth = RemoteAuthNone
		} else {
			cfg.Auth = RemoteAuthSignature
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.RetryMaxWait < cfg.RetryWait {
		cfg.RetryMaxWait = 10 * cfg.RetryWait
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &remoteSource{
		desc: Descriptor{
			Kind:      KindRemote,
			Name:      fmt.Sprintf("remote:%s/%s", cfg.AppID, cfg.Namespace),
			Rank:      cfg.Rank,
			Required:  cfg.Required,
			Delimiter: "__",
			FoldCase:  true,
		},
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		tokenFn: mintBearerToken,
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServerURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	cli.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return s.authorize(req)
	})
	s.client = cli

	return s
}

func (s *remoteSource) Descriptor() Descriptor { return s.desc }

func (s *remoteSource) Fetch(ctx context.Context) ([]RawValue, error) {
	configurations, err := s.fetchNamespace(ctx)
	if err != nil {
		if s.desc.Required {
			return nil, err
		}

		if cached, cacheErr := s.readCacheFile(); cacheErr == nil {
			s.log.Warn().Err(err).Str("source", s.desc.Name).
				Msg("remote config service unreachable, serving local cache")
			configurations = cached
		} else {
			s.log.Warn().Err(err).Str("source", s.desc.Name).
				Msg("remote config service unreachable, source skipped")
			return nil, nil
		}
	}

	out := make([]RawValue, 0, len(configurations))
	for key, value := range configurations {
		if mapped, ok := s.cfg.Mapping[key]; ok {
			key = mapped
		}
		out = append(out, RawValue{Key: key, Value: value})
	}
	return out, nil
}

type remotePayload struct {
	Configurations map[string]any `json:"configurations"`
	ReleaseKey     string         `json:"releaseKey"`
}

func (s *remoteSource) fetchNamespace(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	releaseKey := s.lastReleaseKey
	s.mu.Unlock()

	req := s.client.R().SetContext(ctx)
	if releaseKey != "" {
		req.SetQueryParam("releaseKey", releaseKey)
	}
	resp, err := req.Get(fmt.Sprintf("/configs/%s/%s/%s", s.cfg.AppID, s.cfg.Cluster, s.cfg.Namespace))
	if err != nil {
		return nil, fmt.Errorf("fetching namespace %s: %w", s.cfg.Namespace, err)
	}

	if resp.StatusCode() == http.StatusNotModified {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.log.Debug().Str("source", s.desc.Name).Str("release_key", releaseKey).
			Msg("remote namespace unchanged")
		return s.lastConfig, nil
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetching namespace %s: http %d: %s",
			s.cfg.Namespace, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}

	var payload remotePayload
	if err = json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("decoding namespace %s: %w", s.cfg.Namespace, err)
	}

	s.mu.Lock()
	changed := payload.ReleaseKey != s.lastReleaseKey
	s.lastReleaseKey = payload.ReleaseKey
	s.lastConfig = payload.Configurations
	s.mu.Unlock()

	if changed {
		s.writeCacheFile(payload.Configurations)
	}

	s.log.Debug().Str("source", s.desc.Name).
		Str("release_key", payload.ReleaseKey).
		Int("keys", len(payload.Configurations)).
		Msg("fetched remote namespace")

	return payload.Configurations, nil
}

func (s *remoteSource) cacheFilePath() string {
	return filepath.Join(s.cfg.CacheDir,
		fmt.Sprintf("%s_configuration_%s.json", s.cfg.AppID, s.cfg.Namespace))
}

func (s *remoteSource) writeCacheFile(configurations map[string]any) {
	if s.cfg.CacheDir == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		s.log.Warn().Err(err).Msg("cannot create remote cache dir")
		return
	}

	data, err := json.Marshal(configurations)
	if err != nil {
		return
	}
	if err = os.WriteFile(s.cacheFilePath(), data, 0o600); err != nil {
		s.log.Warn().Err(err).Msg("cannot write remote cache file")
	}
}

func (s *remoteSource) readCacheFile() (map[string]any, error) {
	if s.cfg.CacheDir == "" {
		return nil, os.ErrNotExist
	}

	data, err := os.ReadFile(s.cacheFilePath())
	if err != nil {
		return nil, err
	}

	var configurations map[string]any
	if err = json.Unmarshal(data, &configurations); err != nil {
		return nil, fmt.Errorf("decoding remote cache file: %w", err)
	}
	return configurations, nil
}
