package broker

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/upb/zoneauth/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Route sends every request under Prefix to Target.
type Route struct {
	Zone   string
	Prefix string // "/user" matches /user and /user/...
	Target *url.URL
}

// Matches reports whether path falls under the route prefix.
func (rt Route) Matches(path string) bool {
	return path == rt.Prefix || strings.HasPrefix(path, rt.Prefix+"/")
}

// FrontDoor proxies zone prefixes to their origins and hands everything
// else to the fallback handler. Paths, queries, cookies and Set-Cookie
// headers pass through untouched.
type FrontDoor struct {
	routes   []Route
	proxies  []http.Handler
	fallback http.Handler
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewFrontDoor builds one reverse proxy per route.
func NewFrontDoor(routes []Route, fallback http.Handler, metrics *observability.Metrics, logger *zap.Logger) *FrontDoor {
	fd := &FrontDoor{
		routes:   routes,
		fallback: fallback,
		metrics:  metrics,
		logger:   logger,
	}
	for _, rt := range routes {
		fd.proxies = append(fd.proxies, newProxy(rt.Zone, rt.Target, metrics, logger))
	}
	return fd
}

// ParseRoute builds a Route from a zone origin URL.
func ParseRoute(zone, prefix, rawURL string) (Route, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return Route{}, fmt.Errorf("parse %s zone url: %w", zone, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return Route{}, fmt.Errorf("%s zone url %q must be absolute", zone, rawURL)
	}
	return Route{Zone: zone, Prefix: strings.TrimSuffix(prefix, "/"), Target: target}, nil
}

func (fd *FrontDoor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for i, rt := range fd.routes {
		if rt.Matches(r.URL.Path) {
			fd.proxies[i].ServeHTTP(w, r)
			return
		}
	}
	fd.fallback.ServeHTTP(w, r)
}

// AuthPassthrough proxies /auth/* from a non-front-door zone to the front
// door so sign-in has a single callback origin.
func AuthPassthrough(frontDoor *url.URL, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	return newProxy("frontdoor", frontDoor, metrics, logger)
}

func newProxy(zone string, target *url.URL, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			// keep the incoming path as-is; SetURL would join the target path
			pr.Out.URL.Path = pr.In.URL.Path
			pr.Out.URL.RawPath = pr.In.URL.RawPath
			pr.Out.URL.RawQuery = pr.In.URL.RawQuery
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("zone proxy error",
				zap.String("zone", zone),
				zap.String("target", target.Host),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	measured := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		proxy.ServeHTTP(sw, r)
		metrics.Proxy(zone, strconv.Itoa(sw.status), time.Since(start).Seconds())
	})
	return otelhttp.NewHandler(measured, "proxy."+zone)
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
