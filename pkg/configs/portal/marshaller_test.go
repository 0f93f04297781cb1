package portal_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	pcf "github.com/amrdata/amrportal/pkg/configs/portal"
	"github.com/amrdata/amrportal/pkg/viz/choropleth"
	"github.com/google/go-cmp/cmp"
)

const csrfKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func TestLoadPortalConfig(t *testing.T) {
	t.Run("it can be created from a config file", func(t *testing.T) {
		result, err := pcf.LoadPortalConfig("./testdata/config.yaml")
		if err != nil {
			t.Fatalf("failed to parse config.: %v", err)
		}

		expected := pcf.PortalConfig{
			Server: pcf.ServerConfig{
				Port:     "8443",
				BasePath: "/portal",
				Cert:     "/etc/amrportal/tls.crt",
				Key:      "/etc/amrportal/tls.key",
			},
			Api: pcf.ApiConfig{
				Root:    "https://api.amr.example.org/api/",
				Timeout: 10 * time.Second,
				CaCert:  "LS0tLS1CRUdJTiBDRVJUSUZJQ0FURS0tLS0tCk1JSUIKLS0tLS1FTkQgQ0VSVElGSUNBVEUtLS0tLQo=",
			},
			Session: pcf.SessionConfig{
				Secret:     "this-is-a-very-long-session-secret-for-tests",
				Lifetime:   8 * time.Hour,
				CookieName: "amr",
				Secure:     true,
			},
			Csrf:   pcf.CsrfConfig{Key: csrfKey},
			Cache:  pcf.CacheConfig{TTL: time.Minute, MaxEntries: 500, Sweep: pcf.DefaultCacheSweep},
			Login:  pcf.LoginConfig{RatePerMinute: 6, Burst: 3},
			Access: pcf.AccessConfig{RerequestCooldown: 7 * 24 * time.Hour},
			Map: pcf.MapConfig{
				GeoJSON: "/etc/amrportal/countries.geojson",
				Scale: choropleth.Scale{
					Stops: []choropleth.Stop{
						{Max: 25, Color: "#ffffcc"},
						{Max: 50, Color: "#fd8d3c"},
						{Max: 100, Color: "#800026"},
					},
					NoData: choropleth.NoDataColor,
				},
				Width:  pcf.DefaultMapWidth,
				Height: pcf.DefaultMapHeight,
			},
			Site: pcf.SiteConfig{Title: "AMR Research Portal", SupportEmail: "support@amr.example.org"},
			Log:  pcf.LogConfig{Level: "debug"},
		}
		if diff := cmp.Diff(expected, *result); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		if !result.Server.TLS() {
			t.Error("TLS should be enabled")
		}
	})

	t.Run("it fails when the file is missing", func(t *testing.T) {
		if _, err := pcf.LoadPortalConfig("./testdata/no-such-file.yaml"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestUnmarshal_Defaults(t *testing.T) {
	result, err := pcf.Unmarshal([]byte(`
api:
  root: http://api:8000
session:
  secret: 0123456789abcdef0123456789abcdef
csrf:
  key: ` + csrfKey + `
`))
	if err != nil {
		t.Fatal(err)
	}

	if result.Server.Port != pcf.DefaultPort {
		t.Errorf("port: %s", result.Server.Port)
	}
	if result.Server.TLS() {
		t.Error("TLS should be disabled")
	}
	if result.Api.Timeout != pcf.DefaultApiTimeout {
		t.Errorf("timeout: %s", result.Api.Timeout)
	}
	if result.Session.Lifetime != pcf.DefaultSessionLifetime {
		t.Errorf("lifetime: %s", result.Session.Lifetime)
	}
	if result.Cache.TTL != pcf.DefaultCacheTTL || result.Cache.MaxEntries != pcf.DefaultCacheMaxEntries {
		t.Errorf("cache: %+v", result.Cache)
	}
	if result.Login.RatePerMinute != pcf.DefaultLoginRate || result.Login.Burst != pcf.DefaultLoginBurst {
		t.Errorf("login: %+v", result.Login)
	}
	if diff := cmp.Diff(choropleth.DefaultScale(), result.Map.Scale); diff != "" {
		t.Errorf("scale (-want +got):\n%s", diff)
	}
	if result.Site.Title != pcf.DefaultSiteTitle || result.Log.Level != pcf.DefaultLogLevel {
		t.Errorf("site/log: %+v %+v", result.Site, result.Log)
	}
	if result.Access.RerequestCooldown != 0 {
		t.Errorf("cooldown: %s", result.Access.RerequestCooldown)
	}
}

func TestUnmarshal_Invalid(t *testing.T) {
	base := map[string]string{
		"api":     "api:\n  root: http://api:8000\n",
		"session": "session:\n  secret: 0123456789abcdef0123456789abcdef\n",
		"csrf":    "csrf:\n  key: " + csrfKey + "\n",
	}

	theory := func(override map[string]string, errContains string) func(*testing.T) {
		return func(t *testing.T) {
			sections := map[string]string{}
			for k, v := range base {
				sections[k] = v
			}
			for k, v := range override {
				sections[k] = v
			}
			sb := strings.Builder{}
			for _, v := range sections {
				sb.WriteString(v)
			}

			_, err := pcf.Unmarshal([]byte(sb.String()))
			if !errors.Is(err, pcf.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), errContains) {
				t.Errorf("error %q should mention %q", err, errContains)
			}
		}
	}

	t.Run("relative api root", theory(
		map[string]string{"api": "api:\n  root: /api\n"}, "api.root",
	))
	t.Run("non-http api root", theory(
		map[string]string{"api": "api:\n  root: ftp://api/\n"}, "api.root",
	))
	t.Run("ca cert not in PEM", theory(
		map[string]string{"api": "api:\n  root: http://api\n  caCert: bm90IGEgY2VydA==\n"}, "api.caCert",
	))
	t.Run("short session secret", theory(
		map[string]string{"session": "session:\n  secret: short\n"}, "session.secret",
	))
	t.Run("csrf key with wrong length", theory(
		map[string]string{"csrf": "csrf:\n  key: c2hvcnQ=\n"}, "csrf.key",
	))
	t.Run("cert without key", theory(
		map[string]string{"server": "server:\n  cert: /tls.crt\n"}, "server.cert",
	))
	t.Run("base path not clean", theory(
		map[string]string{"server": "server:\n  basePath: /a/../b\n"}, "server.basePath",
	))
	t.Run("negative cooldown", theory(
		map[string]string{"access": "access:\n  rerequestCooldown: -1h\n"}, "access.rerequestCooldown",
	))
	t.Run("decreasing scale", theory(
		map[string]string{"map": "map:\n  scale:\n    stops:\n      - {max: 50, color: \"#ffffff\"}\n      - {max: 10, color: \"#000000\"}\n"},
		"map.scale",
	))
}
