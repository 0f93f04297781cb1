package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/amrdata/amrportal/internal/portal"
	portalconf "github.com/amrdata/amrportal/pkg/configs/portal"
	"github.com/amrdata/amrportal/pkg/echoutil"
	xe "github.com/amrdata/amrportal/pkg/errors"
	"github.com/amrdata/amrportal/pkg/logging"
	"github.com/amrdata/amrportal/pkg/metrics"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/amrdata/amrportal/pkg/session"
	"github.com/amrdata/amrportal/pkg/utils/filewatch"
	"github.com/amrdata/amrportal/pkg/viz/choropleth"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// serve runs the portal until ctx is done or the config (or the map shapes) is modified.
//
// A modification is reported as an error wrapping filewatch.ErrModified,
// so that the supervisor restarts the server with the new files.
func serve(ctx context.Context, configPath string, loglevel string, logOut io.Writer) error {
	conf, err := portalconf.LoadPortalConfig(configPath)
	if err != nil {
		return xe.WrapWithNote("can not read configuration", err)
	}
	if loglevel == "" {
		loglevel = conf.Log.Level
	}
	logger := logging.New(logOut, loglevel)
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	e, closer, err := newServer(conf, logger, loglevel, reg)
	if err != nil {
		return err
	}
	defer closer()

	if ce := logger.Check(zap.DebugLevel, "registered routes"); ce != nil {
		for _, r := range e.Routes() {
			logger.Debug("route", zap.String("method", r.Method), zap.String("path", r.Path))
		}
	}

	watching, cancel, err := filewatch.UntilModifyContext(ctx, configPath, conf.Map.GeoJSON)
	if err != nil {
		return xe.WrapWithNote("can not watch configuration", err)
	}
	defer cancel()

	served := make(chan error, 1)
	go func() {
		addr := ":" + conf.Server.Port
		logger.Info("portal is starting", zap.String("addr", addr), zap.Bool("tls", conf.Server.TLS()))
		if conf.Server.TLS() {
			served <- e.StartTLS(addr, conf.Server.Cert, conf.Server.Key)
		} else {
			served <- e.Start(addr)
		}
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-watching.Done():
	}

	cause := context.Cause(watching)
	if errors.Is(cause, filewatch.ErrModified) {
		logger.Warn("configuration is updated. shutting down to restart")
	} else {
		logger.Info("shutting down")
	}

	graceful, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := e.Shutdown(graceful); err != nil {
		logger.Error("error on shutdown", zap.Error(err))
	}

	if errors.Is(cause, filewatch.ErrModified) {
		return cause
	}
	return nil
}

// newServer wires the portal for conf.
//
// The returned func releases resources (the cache janitor). Call it after the server stops.
func newServer(
	conf *portalconf.PortalConfig,
	logger *zap.Logger,
	loglevel string,
	reg *prometheus.Registry,
) (*echo.Echo, func(), error) {
	m := metrics.New(reg)

	closer := func() {}
	var cache *rest.Cache
	opts := []rest.Option{rest.WithMetrics(m)}
	if !conf.Cache.Disabled {
		cache = rest.NewCache(
			conf.Cache.TTL, conf.Cache.MaxEntries, conf.Cache.Sweep,
			rest.WithCacheMetrics(m),
			rest.WithFetchTimeout(conf.Api.Timeout),
		)
		closer = cache.Close
		opts = append(opts, rest.WithCache(cache))
	}
	opts = append(opts, rest.WithOnExpired(func(token string) {
		if cache != nil {
			cache.InvalidateToken(token)
		}
		logger.Debug("upstream token is rejected")
	}))

	client, err := rest.NewClient(&rest.Profile{
		ApiRoot: conf.Api.Root,
		CA:      conf.Api.CaCert,
		Timeout: conf.Api.Timeout,
	}, opts...)
	if err != nil {
		closer()
		return nil, nil, xe.WrapWithNote("api", err)
	}

	cookiePath := conf.Server.BasePath
	if cookiePath == "" {
		cookiePath = "/"
	}
	sessions := session.New(
		conf.Session.Secret, conf.Session.Lifetime,
		session.WithCookieName(conf.Session.CookieName),
		session.WithPath(cookiePath),
		session.WithSecure(conf.Session.Secure),
	)

	mapOpts := portal.MapOptions{
		Scale:  conf.Map.Scale,
		Width:  conf.Map.Width,
		Height: conf.Map.Height,
	}
	if conf.Map.GeoJSON != "" {
		fc, err := choropleth.Load(conf.Map.GeoJSON)
		if err != nil {
			closer()
			return nil, nil, xe.WrapWithNote("map.geojson", err)
		}
		mapOpts.Features = fc
	}

	csrfKey, err := conf.Csrf.KeyBytes()
	if err != nil {
		closer()
		return nil, nil, xe.WrapWithNote("csrf.key", err)
	}

	p, err := portal.New(client, sessions, logger, portal.Options{
		BasePath: conf.Server.BasePath,
		Site: portal.Site{
			Title:        conf.Site.Title,
			SupportEmail: conf.Site.SupportEmail,
		},
		CSRFKey:            csrfKey,
		SecureCookies:      conf.Session.Secure,
		LoginRatePerMinute: conf.Login.RatePerMinute,
		LoginBurst:         conf.Login.Burst,
		RerequestCooldown:  conf.Access.RerequestCooldown,
		Map:                mapOpts,
		Metrics:            m,
		Gatherer:           reg,
	})
	if err != nil {
		closer()
		return nil, nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	echoutil.SetLevel(e, loglevel)
	p.Register(e)
	return e, closer, nil
}
