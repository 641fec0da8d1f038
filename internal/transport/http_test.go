package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/order-management/internal/order"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}

type panickingService struct {
	order.Service
}

func (panickingService) ListOrders(ctx context.Context) ([]order.Order, error) {
	panic("boom")
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name         string
		pingErr      error
		expectedCode int
		expectedBody string
	}{
		{name: "ok", expectedCode: http.StatusOK, expectedBody: "OK"},
		{name: "db_down", pingErr: errors.New("refused"), expectedCode: http.StatusServiceUnavailable, expectedBody: "database unavailable\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := newRouter(panickingService{}, stubPinger{err: tt.pingErr})
			require.NoError(t, err)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedCode, rr.Code)
			assert.Equal(t, tt.expectedBody, rr.Body.String())
			assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
		})
	}
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	r, err := newRouter(panickingService{}, stubPinger{})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRouter_IssuesAntiForgeryCookie(t *testing.T) {
	r, err := newRouter(panickingService{}, stubPinger{})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/create", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "csrf_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}
