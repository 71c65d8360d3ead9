/*
 * debrid-relay re-serves debrid streaming links through a single egress address.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lucasduport/debrid-relay/pkg/utils"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Defaults applied when a key is not configured.
const (
	DefaultPort            = 13470
	DefaultProvider        = "realdebrid"
	DefaultCacheCapacity   = 1000
	DefaultCacheTTL        = time.Hour
	DefaultLockTTL         = 5 * time.Minute
	DefaultRelayTimeout    = 5 * time.Minute
	DefaultResolverTimeout = 30 * time.Second

	minAPIKeyLength = 16
)

// AllowedTorrentioHosts lists the only upstream hosts the resolver may talk to.
var AllowedTorrentioHosts = []string{
	"torrentio.strem.fun",
	"torrentio.strem.io",
	"torrentio-debrid.cloud",
}

var (
	ErrMissingTorrentioURL   = errors.New("torrentio-url must be defined; configure the addon on torrentio with your debrid key and paste its manifest URL")
	ErrMissingProxyServerURL = errors.New("proxy-server-url must be defined; it is the public address of this server (e.g. https://your-domain.com or http://your-ip:13470)")
	ErrHostNotAllowed        = errors.New("torrentio-url host is not allowed")
	ErrInvalidAPIKey         = errors.New("api-key contains control characters or whitespace")
	ErrLockTTLTooShort       = errors.New("lock-ttl must be longer than resolver-timeout")
)

// CredentialString represents a secret that must not be logged verbatim.
type CredentialString string

// String returns the raw value.
func (c CredentialString) String() string {
	return string(c)
}

// Masked is safe to log.
func (c CredentialString) Masked() string {
	return utils.MaskString(string(c))
}

// QueryEscape escapes the credential for use as a query value.
func (c CredentialString) QueryEscape() string {
	return url.QueryEscape(string(c))
}

// HostConfiguration containt host infos
type HostConfiguration struct {
	Hostname string
	Port     int
}

// DatabaseConfig points at the optional relay history store.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password CredentialString
	SSLMode  string
}

// Enabled reports whether a history store was configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// DSN builds the lib/pq connection string. Values are quoted so that empty
// ones or ones with spaces keep their place.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		dsnQuote(d.Host), d.Port, dsnQuote(d.Name), dsnQuote(d.User), dsnQuote(string(d.Password)), dsnQuote(d.SSLMode),
	)
}

func dsnQuote(v string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

// ProxyConfig is the validated, immutable configuration of the relay.
type ProxyConfig struct {
	HostConfig *HostConfiguration

	// TorrentioURL is the configured addon URL, configuration segment included.
	TorrentioURL *url.URL
	// TorrentioBaseURL is scheme://host of TorrentioURL.
	TorrentioBaseURL *url.URL
	// ProxyServerURL is the externally reachable address of this server.
	ProxyServerURL *url.URL

	APIKey   CredentialString
	Provider string

	CacheCapacity   uint64
	CacheTTL        time.Duration
	LockTTL         time.Duration
	RelayTimeout    time.Duration
	ResolverTimeout time.Duration

	// BandwidthLimit caps relayed bytes per second, 0 disables it.
	BandwidthLimit int64

	LogLevel string
	LogFile  string

	Database DatabaseConfig
}

// AuthEnabled reports whether addon routes require the api_key parameter.
func (c *ProxyConfig) AuthEnabled() bool {
	return c.APIKey != ""
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("provider", DefaultProvider)
	v.SetDefault("cache-capacity", DefaultCacheCapacity)
	v.SetDefault("cache-ttl", DefaultCacheTTL)
	v.SetDefault("lock-ttl", DefaultLockTTL)
	v.SetDefault("relay-timeout", DefaultRelayTimeout)
	v.SetDefault("resolver-timeout", DefaultResolverTimeout)
	v.SetDefault("log-level", "info")
	v.SetDefault("db-port", 5432)
	v.SetDefault("db-name", "debridrelay")
	v.SetDefault("db-user", "postgres")
	v.SetDefault("db-sslmode", "disable")
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (*ProxyConfig, error) {
	SetDefaults(v)

	rawTorrentio := strings.TrimSpace(v.GetString("torrentio-url"))
	if rawTorrentio == "" {
		return nil, ErrMissingTorrentioURL
	}
	torrentioURL, err := NormalizeTorrentioURL(rawTorrentio)
	if err != nil {
		return nil, err
	}

	rawProxy := strings.TrimSpace(v.GetString("proxy-server-url"))
	if rawProxy == "" {
		return nil, ErrMissingProxyServerURL
	}
	proxyURL, err := parseProxyServerURL(rawProxy)
	if err != nil {
		return nil, err
	}

	apiKey, err := ValidateAPIKey(v.GetString("api-key"))
	if err != nil {
		return nil, err
	}

	provider := strings.Trim(strings.TrimSpace(v.GetString("provider")), "/")
	if provider == "" || strings.Contains(provider, "/") {
		return nil, errors.Errorf("invalid provider %q", v.GetString("provider"))
	}

	conf := &ProxyConfig{
		HostConfig: &HostConfiguration{
			Hostname: v.GetString("hostname"),
			Port:     v.GetInt("port"),
		},
		TorrentioURL:     torrentioURL,
		TorrentioBaseURL: &url.URL{Scheme: torrentioURL.Scheme, Host: torrentioURL.Host},
		ProxyServerURL:   proxyURL,
		APIKey:           apiKey,
		Provider:         provider,
		CacheTTL:         v.GetDuration("cache-ttl"),
		LockTTL:          v.GetDuration("lock-ttl"),
		RelayTimeout:     v.GetDuration("relay-timeout"),
		ResolverTimeout:  v.GetDuration("resolver-timeout"),
		BandwidthLimit:   int64(v.GetFloat64("bandwidth-limit") * 1024 * 1024),
		LogLevel:         v.GetString("log-level"),
		LogFile:          v.GetString("log-file"),
		Database: DatabaseConfig{
			Host:     v.GetString("db-host"),
			Port:     v.GetInt("db-port"),
			Name:     v.GetString("db-name"),
			User:     v.GetString("db-user"),
			Password: CredentialString(v.GetString("db-password")),
			SSLMode:  v.GetString("db-sslmode"),
		},
	}

	if conf.HostConfig.Port <= 0 || conf.HostConfig.Port > 65535 {
		return nil, errors.Errorf("invalid port %d", conf.HostConfig.Port)
	}
	capacity := v.GetInt64("cache-capacity")
	if capacity <= 0 {
		return nil, errors.Errorf("cache-capacity must be positive, got %d", capacity)
	}
	conf.CacheCapacity = uint64(capacity)

	for name, d := range map[string]time.Duration{
		"cache-ttl":        conf.CacheTTL,
		"lock-ttl":         conf.LockTTL,
		"relay-timeout":    conf.RelayTimeout,
		"resolver-timeout": conf.ResolverTimeout,
	} {
		if d <= 0 {
			return nil, errors.Errorf("%s must be positive, got %s", name, d)
		}
	}
	// A resolution lock must outlive the probe made while holding it.
	if conf.LockTTL <= conf.ResolverTimeout {
		return nil, errors.Wrapf(ErrLockTTLTooShort, "lock-ttl %s, resolver-timeout %s", conf.LockTTL, conf.ResolverTimeout)
	}
	if conf.LockTTL > conf.CacheTTL {
		utils.WarnLog("lock-ttl (%s) is longer than cache-ttl (%s)", conf.LockTTL, conf.CacheTTL)
	}
	if conf.BandwidthLimit < 0 {
		return nil, errors.New("bandwidth-limit cannot be negative")
	}

	return conf, nil
}

// NormalizeTorrentioURL turns a pasted addon URL into the base used for
// stream lookups. stremio:// is rewritten to https://, a trailing
// /manifest.json is dropped and the host must be allow-listed.
func NormalizeTorrentioURL(raw string) (*url.URL, error) {
	if strings.HasPrefix(raw, "stremio://") {
		raw = "https://" + strings.TrimPrefix(raw, "stremio://")
	}
	for strings.HasSuffix(raw, "/manifest.json") {
		raw = strings.TrimSuffix(raw, "/manifest.json")
	}
	raw = strings.TrimRight(raw, "/")

	if !strings.HasPrefix(raw, "https://") {
		return nil, errors.Errorf("torrentio-url must start with https://, got %s", utils.RedactURL(raw))
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid torrentio-url")
	}
	if u.Hostname() == "" {
		return nil, errors.New("torrentio-url must have a valid hostname")
	}
	if !isAllowedHost(u.Hostname()) {
		return nil, errors.Wrapf(ErrHostNotAllowed, "%q (allowed: %s)", u.Hostname(), strings.Join(AllowedTorrentioHosts, ", "))
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func isAllowedHost(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range AllowedTorrentioHosts {
		if host == allowed {
			return true
		}
	}
	return false
}

func parseProxyServerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid proxy-server-url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Errorf("proxy-server-url must be an absolute http(s) URL, got %q", raw)
	}
	return u, nil
}

// ValidateAPIKey checks the shared secret. An empty key disables
// authentication, a short one is accepted with a warning.
func ValidateAPIKey(key string) (CredentialString, error) {
	if key == "" {
		return "", nil
	}
	if utils.HasControlOrSpace(key) {
		return "", ErrInvalidAPIKey
	}
	if len(key) < minAPIKeyLength {
		utils.WarnLog("api-key is shorter than %d characters, consider using a longer key", minAPIKeyLength)
	}
	return CredentialString(key), nil
}
