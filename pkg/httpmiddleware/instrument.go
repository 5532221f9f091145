package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instrument traces requests with otelhttp and counts them by route and
// status class. route maps a request to a low-cardinality name.
func Instrument(tp trace.TracerProvider, mp metric.MeterProvider, route func(*http.Request) string) (Middleware, error) {
	requests, err := mp.Meter("roofgenius/http").Int64Counter("http.server.requests",
		metric.WithDescription("Handled HTTP requests"),
	)
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler {
		counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			requests.Add(r.Context(), 1, metric.WithAttributes(
				attribute.String("route", route(r)),
				attribute.String("method", r.Method),
				attribute.Int("status_class", status/100),
			))
		})
		return otelhttp.NewHandler(counted, "http",
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + route(r)
			}),
		)
	}, nil
}
