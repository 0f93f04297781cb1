// Package portal is the web UI of the AMR data portal.
//
// Pages are rendered on the server from the data API, through rest.AMRClient.
// The portal keeps no state of its own except the session cookie.
package portal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/amrdata/amrportal/pkg/echoutil"
	"github.com/amrdata/amrportal/pkg/metrics"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/amrdata/amrportal/pkg/session"
	"github.com/amrdata/amrportal/pkg/viz/choropleth"
	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultLoginRatePerMinute = 10
	DefaultLoginBurst         = 5

	csrfCookieName = "amrportal_csrf"
	csrfFieldName  = "csrf_token"
)

var ErrInvalidOptions = errors.New("invalid portal options")

// Site is what pages tell about the portal itself.
type Site struct {
	Title        string
	SupportEmail string
}

// MapOptions configures the choropleth.
type MapOptions struct {
	// Features are country shapes. When nil, the map is disabled.
	Features *geojson.FeatureCollection
	Scale    choropleth.Scale
	Width    int
	Height   int
}

type Options struct {
	// BasePath is the URL prefix where the portal is mounted, like "/portal". Empty for root.
	BasePath string
	Site     Site

	// CSRFKey is the 32 byte key to sign CSRF tokens.
	CSRFKey []byte

	// SecureCookies marks cookies https-only.
	// When false, requests without TLS are taken as plain http for CSRF origin checks.
	SecureCookies bool

	LoginRatePerMinute int
	LoginBurst         int

	// RerequestCooldown is how long a user waits after a denial before requesting again.
	RerequestCooldown time.Duration

	Map MapOptions

	// Metrics, when not nil, counts requests.
	Metrics *metrics.Metrics

	// Gatherer, when not nil, is served at /metrics.
	Gatherer prometheus.Gatherer

	Now func() time.Time
}

// Portal serves the pages.
type Portal struct {
	client   rest.AMRClient
	sessions *session.Manager
	logger   *zap.Logger
	render   *renderer
	limiter  *ipLimiter
	opts     Options
}

// New creates a Portal over client, which should be a client without token.
func New(client rest.AMRClient, sessions *session.Manager, logger *zap.Logger, opts Options) (*Portal, error) {
	if client == nil || sessions == nil {
		return nil, fmt.Errorf("%w: client and session manager are required", ErrInvalidOptions)
	}
	if len(opts.CSRFKey) != 32 {
		return nil, fmt.Errorf("%w: csrf key should be 32 bytes", ErrInvalidOptions)
	}
	opts.BasePath = strings.TrimSuffix(opts.BasePath, "/")
	if opts.BasePath != "" && !strings.HasPrefix(opts.BasePath, "/") {
		return nil, fmt.Errorf("%w: base path should start with '/'", ErrInvalidOptions)
	}
	if opts.Site.Title == "" {
		opts.Site.Title = "AMR Data Portal"
	}
	if opts.LoginRatePerMinute <= 0 {
		opts.LoginRatePerMinute = DefaultLoginRatePerMinute
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = DefaultLoginBurst
	}
	if len(opts.Map.Scale.Stops) == 0 {
		opts.Map.Scale = choropleth.DefaultScale()
	}
	if err := opts.Map.Scale.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if opts.Map.Width <= 0 {
		opts.Map.Width = 960
	}
	if opts.Map.Height <= 0 {
		opts.Map.Height = 500
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r, err := newRenderer(opts.BasePath, opts.Site)
	if err != nil {
		return nil, err
	}

	return &Portal{
		client:   client,
		sessions: sessions,
		logger:   logger,
		render:   r,
		limiter: newIPLimiter(
			rate.Every(time.Minute/time.Duration(opts.LoginRatePerMinute)),
			opts.LoginBurst,
			opts.Now,
		),
		opts: opts,
	}, nil
}

// path makes p an absolute path under the base path.
func (p *Portal) path(s string) string {
	return p.opts.BasePath + s
}

// Register installs middlewares, the error handler and all routes to e.
func (p *Portal) Register(e *echo.Echo) {
	e.HTTPErrorHandler = p.handleError

	e.Use(
		middleware.Recover(),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			Generator: uuid.NewString,
		}),
	)
	// metrics wraps the logger, which answers errors, to see the final status.
	if p.opts.Metrics != nil {
		e.Use(p.opts.Metrics.Middleware())
	}
	e.Use(echoutil.LogHandler(p.logger))
	e.Use(
		middleware.SecureWithConfig(middleware.SecureConfig{
			XSSProtection:         "1; mode=block",
			ContentTypeNosniff:    "nosniff",
			XFrameOptions:         "SAMEORIGIN",
			HSTSMaxAge:            hstsMaxAge(p.opts.SecureCookies),
			ReferrerPolicy:        "same-origin",
			ContentSecurityPolicy: "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'",
		}),
		middleware.GzipWithConfig(middleware.GzipConfig{
			// downloads are streamed as the data API sends them.
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Path(), "/download")
			},
		}),
	)

	e.GET("/healthz", p.healthz)
	e.GET("/readyz", p.readyz)
	if p.opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(p.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	g := e.Group(
		p.opts.BasePath,
		p.markPlaintext,
		echo.WrapMiddleware(csrf.Protect(
			p.opts.CSRFKey,
			csrf.CookieName(csrfCookieName),
			csrf.FieldName(csrfFieldName),
			csrf.Path(cookiePath(p.opts.BasePath)),
			csrf.Secure(p.opts.SecureCookies),
			csrf.SameSite(csrf.SameSiteLaxMode),
			csrf.ErrorHandler(http.HandlerFunc(p.csrfFailure)),
		)),
		p.sessions.Load(),
	)
	g.StaticFS("/static", echo.MustSubFS(staticFS, "static"))

	login := session.RequireLogin(p.path("/login"))
	reviewers := session.RequireRole(apiusers.RoleAdmin, apiusers.RoleReferee)
	admins := session.RequireRole(apiusers.RoleAdmin)

	g.GET("/", p.home)
	if p.opts.BasePath != "" {
		g.GET("", p.home)
	}
	g.GET("/login", p.loginPage)
	g.POST("/login", p.login)
	g.GET("/register", p.registerPage)
	g.POST("/register", p.register, p.throttle)
	g.GET("/password/reset", p.passwordResetPage)
	g.POST("/password/reset", p.passwordReset, p.throttle)
	g.POST("/logout", p.logout)

	g.GET("/datasets", p.datasets, login)
	g.GET("/datasets/:id", p.dataset, login)
	g.GET("/datasets/:id/dictionary", p.dictionary, login)
	g.GET("/datasets/:id/request", p.requestPage, login)
	g.POST("/datasets/:id/request", p.request, login)
	g.GET("/datasets/:id/download", p.download, login)
	g.GET("/permissions", p.myPermissions, login)

	g.GET("/models", p.models, login)
	g.GET("/models/:id", p.model, login)
	g.POST("/models/:id/infer", p.infer, login)

	g.GET("/visualisations/trends", p.trendsPage, login)
	g.GET("/visualisations/map", p.mapPage, login)

	g.GET("/admin/users", p.adminUsers, login, admins)
	g.POST("/admin/users/:id/approve", p.approveUser, login, admins)
	g.POST("/admin/users/:id/deactivate", p.deactivateUser, login, admins)
	g.GET("/admin/permissions", p.adminPermissions, login, reviewers)
	g.POST("/admin/permissions/:id/:action", p.decide, login, reviewers)

	api := g.Group("/api", p.requireLoginAPI)
	api.GET("/charts/trend.svg", p.trendChart)
	api.GET("/charts/countries.svg", p.countriesChart)
	api.GET("/map.svg", p.mapSVG)
	api.GET("/map.geojson", p.mapGeoJSON)
	api.GET("/map/legend", p.mapLegend)
}

func hstsMaxAge(secure bool) int {
	if secure {
		return 31536000
	}
	return 0
}

// markPlaintext tells the CSRF middleware that the request came over plain http,
// so that it does not require a https Referer.
func (p *Portal) markPlaintext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !p.opts.SecureCookies && c.Request().TLS == nil {
			c.SetRequest(csrf.PlaintextHTTPRequest(c.Request()))
		}
		return next(c)
	}
}

// requireLoginAPI is RequireLogin for endpoints embedded in pages: it answers 401 instead of redirecting.
func (p *Portal) requireLoginAPI(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := session.FromContext(c.Request().Context()); !ok {
			return errUnauthorized
		}
		return next(c)
	}
}
