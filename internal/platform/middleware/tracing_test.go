package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	c := e.NewContext(req, httptest.NewRecorder())

	var got trace.SpanContext
	err := Tracing()(func(c echo.Context) error {
		got = trace.SpanContextFromContext(c.Request().Context())
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected the incoming trace id, got %s", got.TraceID())
	}
}

func TestTracing_PassesErrorsThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	want := echo.NewHTTPError(http.StatusBadGateway, "upstream")
	err := Tracing()(func(echo.Context) error { return want })(c)
	if err != want {
		t.Errorf("expected the handler error, got %v", err)
	}
}
