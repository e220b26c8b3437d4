package inventory

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newMovementRouter(repo *stockRepo) http.Handler {
	svc := NewService(repo, nil, nil, ServiceConfig{})
	h := NewHandler(slog.Default(), svc)
	r := chi.NewRouter()
	r.Route("/products", h.MountRoutes)
	return r
}

func postMovement(t *testing.T, router http.Handler, productID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/products/"+productID+"/movements", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDirectMovementKinds(t *testing.T) {
	repo := newStockRepo()
	repo.seed(1, "10", "5", "8")
	router := newMovementRouter(repo)

	// A refund returns sold stock without going through an invoice.
	rec := postMovement(t, router, "1", `{"kind":"refund","quantity":"3","unitPrice":"8"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, repo.stocks[1].Quantity.Equal(dec("13")), "quantity = %s", repo.stocks[1].Quantity)

	rec = postMovement(t, router, "1", `{"kind":"adjustment","quantity":"2","negative":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, repo.stocks[1].Quantity.Equal(dec("11")))

	// Invoice-backed kinds stay off the direct endpoint.
	rec = postMovement(t, router, "1", `{"kind":"sale","quantity":"1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postMovement(t, router, "1", `{"kind":"purchase","quantity":"1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
