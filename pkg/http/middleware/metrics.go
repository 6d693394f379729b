package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applogger "SPXEngine/pkg/logger"
)

// Metrics records request count, latency and in-flight gauges labelled by
// the route template to keep cardinality low.
func Metrics(reg prometheus.Registerer, l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	f := promauto.With(reg)
	requests := f.NewCounterVec(prometheus.CounterOpts{
		Name: "spxengine_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"route", "method", "status"})
	duration := f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spxengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "class"})
	inFlight := f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spxengine_http_in_flight_requests",
		Help: "Current number of in-flight HTTP requests",
	}, []string{"route", "method"})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := routeLabel(c)
			method := c.Request().Method

			inFlight.WithLabelValues(route, method).Inc()
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)
			inFlight.WithLabelValues(route, method).Dec()

			code := c.Response().Status
			status := strconv.Itoa(code)
			requests.WithLabelValues(route, method, status).Inc()
			duration.WithLabelValues(route, method, statusClass(code)).Observe(elapsed.Seconds())

			switch {
			case code >= 500:
				l.Error("http request failed",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.String("status", status),
					applogger.Duration("duration_ms", elapsed),
				)
			case slowThreshold > 0 && elapsed >= slowThreshold:
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.String("status", status),
					applogger.Duration("duration_ms", elapsed),
				)
			}
			return nil
		}
	}
}

// routeLabel prefers the registered route template over the raw path.
func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}

func statusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
