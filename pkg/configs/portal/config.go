package portal

import (
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/amrdata/amrportal/pkg/viz/choropleth"
)

// Default configuration values.
const (
	DefaultPort            = "8080"
	DefaultApiTimeout      = 30 * time.Second
	DefaultSessionLifetime = 12 * time.Hour
	DefaultCacheTTL        = 30 * time.Second
	DefaultCacheMaxEntries = 1024
	DefaultLoginRate       = 10
	DefaultLoginBurst      = 5
	DefaultSiteTitle       = "AMR Data Portal"
	DefaultLogLevel        = "info"
	MinSessionSecretLength = 32
	DefaultCacheSweep      = time.Minute
	DefaultMapWidth        = 960
	DefaultMapHeight       = 500
)

var ErrInvalidConfig = errors.New("invalid config")

// PortalConfig is the configuration of the portal server.
type PortalConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Api     ApiConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Csrf    CsrfConfig    `yaml:"csrf"`
	Cache   CacheConfig   `yaml:"cache"`
	Login   LoginConfig   `yaml:"login"`
	Access  AccessConfig  `yaml:"access"`
	Map     MapConfig     `yaml:"map"`
	Site    SiteConfig    `yaml:"site"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port"`

	// BasePath is the URL prefix where the portal is mounted, like "/portal".
	//
	// Empty means the root.
	BasePath string `yaml:"basePath"`

	// Cert and Key are file paths of the TLS certificate and its key.
	//
	// TLS is enabled only when both are given.
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// TLS tells whether the server should serve https.
func (s ServerConfig) TLS() bool {
	return s.Cert != "" && s.Key != ""
}

type ApiConfig struct {
	// Root is the absolute URL of the upstream REST API.
	Root string `yaml:"root"`

	Timeout time.Duration `yaml:"timeout"`

	// CaCert is a base64 encoded PEM certificate to be trusted for the upstream.
	CaCert string `yaml:"caCert"`
}

type SessionConfig struct {
	Secret     string        `yaml:"secret"`
	Lifetime   time.Duration `yaml:"lifetime"`
	CookieName string        `yaml:"cookieName"`
	Secure     bool          `yaml:"secure"`
}

type CsrfConfig struct {
	// Key is the 32 byte authentication key, base64 encoded.
	Key string `yaml:"key"`
}

// KeyBytes decodes Key.
func (c CsrfConfig) KeyBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.Key)
}

type CacheConfig struct {
	Disabled bool `yaml:"disabled"`

	// TTL of cached upstream responses.
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"maxEntries"`
	Sweep      time.Duration `yaml:"sweep"`
}

type LoginConfig struct {
	// RatePerMinute is the number of login attempts allowed per client per minute.
	RatePerMinute int `yaml:"ratePerMinute"`
	Burst         int `yaml:"burst"`
}

type AccessConfig struct {
	// RerequestCooldown is the time to wait before a denied request can be made again.
	RerequestCooldown time.Duration `yaml:"rerequestCooldown"`
}

type MapConfig struct {
	// GeoJSON is the path to a FeatureCollection of country polygons.
	//
	// Empty disables the map.
	GeoJSON string           `yaml:"geojson"`
	Scale   choropleth.Scale `yaml:"scale"`
	Width   int              `yaml:"width"`
	Height  int              `yaml:"height"`
}

type SiteConfig struct {
	Title        string `yaml:"title"`
	SupportEmail string `yaml:"supportEmail"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// applyDefaults fills in default values for zero-valued fields.
func (c *PortalConfig) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	c.Server.BasePath = strings.TrimSuffix(c.Server.BasePath, "/")
	if c.Api.Timeout == 0 {
		c.Api.Timeout = DefaultApiTimeout
	}
	if c.Session.Lifetime == 0 {
		c.Session.Lifetime = DefaultSessionLifetime
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if c.Cache.Sweep == 0 {
		c.Cache.Sweep = DefaultCacheSweep
	}
	if c.Login.RatePerMinute == 0 {
		c.Login.RatePerMinute = DefaultLoginRate
	}
	if c.Login.Burst == 0 {
		c.Login.Burst = DefaultLoginBurst
	}
	if len(c.Map.Scale.Stops) == 0 {
		c.Map.Scale = choropleth.DefaultScale()
	}
	if c.Map.Scale.NoData == "" {
		c.Map.Scale.NoData = choropleth.NoDataColor
	}
	if c.Map.Width == 0 {
		c.Map.Width = DefaultMapWidth
	}
	if c.Map.Height == 0 {
		c.Map.Height = DefaultMapHeight
	}
	if c.Site.Title == "" {
		c.Site.Title = DefaultSiteTitle
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate checks the configuration. Errors wrap ErrInvalidConfig.
func (c *PortalConfig) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
	}

	if bp := c.Server.BasePath; bp != "" && (!strings.HasPrefix(bp, "/") || path.Clean(bp) != bp) {
		return invalid("server.basePath should be a clean absolute path: %s", bp)
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		return invalid("server.cert and server.key should be given together")
	}

	u, err := url.Parse(c.Api.Root)
	if err != nil || !u.IsAbs() || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return invalid("api.root should be an absolute http(s) URL: %q", c.Api.Root)
	}
	if c.Api.Timeout < 0 {
		return invalid("api.timeout should not be negative")
	}
	if c.Api.CaCert != "" {
		bin, err := base64.StdEncoding.DecodeString(c.Api.CaCert)
		if err != nil {
			return invalid("api.caCert is not base64: %v", err)
		}
		if blk, _ := pem.Decode(bin); blk == nil {
			return invalid("api.caCert is not PEM")
		}
	}

	if len(c.Session.Secret) < MinSessionSecretLength {
		return invalid("session.secret should be at least %d characters", MinSessionSecretLength)
	}
	if c.Session.Lifetime < time.Minute {
		return invalid("session.lifetime should be 1m or longer")
	}

	key, err := c.Csrf.KeyBytes()
	if err != nil {
		return invalid("csrf.key is not base64: %v", err)
	}
	if len(key) != 32 {
		return invalid("csrf.key should be 32 bytes, but %d", len(key))
	}

	if c.Cache.TTL < 0 {
		return invalid("cache.ttl should not be negative")
	}
	if c.Cache.MaxEntries < 1 {
		return invalid("cache.maxEntries should be positive")
	}
	if c.Login.RatePerMinute < 1 || c.Login.Burst < 1 {
		return invalid("login.ratePerMinute and login.burst should be positive")
	}
	if c.Access.RerequestCooldown < 0 {
		return invalid("access.rerequestCooldown should not be negative")
	}
	if err := c.Map.Scale.Validate(); err != nil {
		return invalid("map.scale: %v", err)
	}
	if c.Map.Width < 1 || c.Map.Height < 1 {
		return invalid("map.width and map.height should be positive")
	}
	return nil
}
