package middleware

import (
	"net/http"
	"time"

	"skycast/pkg/logger"
	"skycast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const TraceIDHeader = "X-Trace-ID"

// TracingMiddleware opens one span per HTTP request, named after the matched
// route. It runs after RequestLogMiddleware so the request id is on the span
// and the trace id reaches the access log. Only 5xx replies fail the span.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, route)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		if sc := tracing.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
			c.Header(TraceIDHeader, sc.TraceID().String())
		}
		attrs := []attribute.KeyValue{attribute.String("http.client_ip", c.ClientIP())}
		if id := logger.RequestIDFrom(ctx); id != "" {
			attrs = append(attrs, attribute.String("http.request_id", id))
		}
		tracing.AddSpanAttributes(ctx, attrs...)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		tracing.AddSpanAttributes(ctx, attribute.Int("http.status_code", status))
		tracing.MeasureDuration(ctx, start, c.Request.Method+" "+route)
		if status >= http.StatusInternalServerError {
			msg := http.StatusText(status)
			if len(c.Errors) > 0 {
				msg = c.Errors.Last().Error()
			}
			tracing.SetSpanStatus(ctx, codes.Error, msg)
		}
	}
}
