package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor(t, "?limit=30&offset=10")
	if p.Limit != 30 || p.Offset != 10 {
		t.Errorf("expected 30/10, got %d/%d", p.Limit, p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := paramsFor(t, "?limit=5000")
	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	p := paramsFor(t, "?offset=-5")
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	r := Page(items, Params{Limit: 2, Offset: 1})
	if len(r.Data) != 2 || r.Data[0] != 2 || r.Data[1] != 3 {
		t.Errorf("unexpected window %v", r.Data)
	}
	if r.Total != 5 || !r.HasMore {
		t.Errorf("expected total 5 with more, got %d/%v", r.Total, r.HasMore)
	}

	last := Page(items, Params{Limit: 2, Offset: 4})
	if len(last.Data) != 1 || last.HasMore {
		t.Errorf("unexpected last page %+v", last)
	}

	past := Page(items, Params{Limit: 2, Offset: 10})
	if past.Data == nil || len(past.Data) != 0 {
		t.Errorf("expected empty non-nil page, got %#v", past.Data)
	}
}
