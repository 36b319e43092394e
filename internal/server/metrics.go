package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/namelens/chatgate/internal/errors"
	"github.com/namelens/chatgate/internal/observability"
)

const (
	metricsScrapeTimeout = 5 * time.Second
	prometheusTextFormat = "text/plain; version=0.0.4"
)

// metricsTransport carries scrapes to the exporter. Tests replace it.
var metricsTransport http.RoundTripper = http.DefaultTransport

// metricsProxy serves the Prometheus exporter's output on the main listener so
// one port covers chat traffic and scraping.
type metricsProxy struct {
	proxy  *httputil.ReverseProxy
	logger *zap.Logger
}

func newMetricsProxy(logger *zap.Logger) *metricsProxy {
	m := &metricsProxy{logger: logger}
	m.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = "http"
			pr.Out.URL.Host = exporterAddr()
			pr.Out.URL.Path = "/metrics"
			pr.Out.URL.RawQuery = ""
			pr.Out.Host = ""
		},
		Transport: transportFunc(func(req *http.Request) (*http.Response, error) {
			return metricsTransport.RoundTrip(req)
		}),
		ModifyResponse: func(resp *http.Response) error {
			if resp.Header.Get("Content-Type") == "" {
				resp.Header.Set("Content-Type", prometheusTextFormat)
			}
			return nil
		},
		ErrorHandler: m.scrapeFailed,
	}
	return m
}

func (m *metricsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), metricsScrapeTimeout)
	defer cancel()
	m.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func (m *metricsProxy) scrapeFailed(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.Warn("Prometheus exporter scrape failed",
		zap.String("exporter", exporterAddr()),
		zap.Error(err))
	apperrors.RespondWithError(w, r, apperrors.WrapExternalService(r.Context(), err, "Prometheus exporter unavailable"))
}

func exporterAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", observability.GetMetricsPort())
}

type transportFunc func(*http.Request) (*http.Response, error)

func (f transportFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
