package db

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pashagolub/pgxmock/v4"
)

func runHealth(t *testing.T, p Pinger) (int, healthResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := HealthHandler(p)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	mock.ExpectPing()

	code, body := runHealth(t, mock)
	if code != http.StatusOK || body.Status != "healthy" {
		t.Errorf("expected 200 healthy, got %d %+v", code, body)
	}
	if body.Pool != nil {
		t.Error("pool stats are only reported for a real pool")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	code, body := runHealth(t, mock)
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if body.Status != "unhealthy" || body.Error != "connection refused" {
		t.Errorf("unexpected body %+v", body)
	}
}
