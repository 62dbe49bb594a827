package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

type CatalogHandler struct {
	catalog CatalogService
	timeout time.Duration
}

func NewCatalogHandler(c CatalogService, timeout time.Duration) *CatalogHandler {
	return &CatalogHandler{
		catalog: c,
		timeout: timeout,
	}
}

// GET /api/v1/catalog/{kind}
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	kind, err := domain.ParseItemType(chi.URLParam(r, "kind"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	resp, err := h.catalog.List(ctx, kind, catalog.Query{
		Page:   page,
		Limit:  limit,
		Sort:   q.Get("sortBy"),
		Order:  q.Get("order"),
		Search: q.Get("search"),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// GET /api/v1/catalog/{kind}/{id}
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	kind, err := domain.ParseItemType(chi.URLParam(r, "kind"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	e, err := h.catalog.Get(ctx, kind, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// GET /api/v1/catalog/search?q=
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	found, err := h.catalog.SearchAll(ctx, r.URL.Query().Get("q"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	out := make(map[string][]domain.CatalogEntity, len(found))
	for kind, items := range found {
		if items == nil {
			items = []domain.CatalogEntity{}
		}
		out[kind.Plural()] = items
	}
	respondJSON(w, http.StatusOK, out)
}
