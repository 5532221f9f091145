package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/roofgenius/internal/domain/auth"
	"github.com/xenking/roofgenius/internal/domain/product"
)

const searchLimit = 20

// Search finds active products whose name contains the query.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var query string
	if !h.decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key == "query" {
			return optStr(d, &query)
		}
		return d.Skip()
	}) {
		return
	}
	query = strings.TrimSpace(query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	products, err := h.Products.Search(r.Context(), query, searchLimit)
	if err != nil {
		internalError(w, r, "search failed", err)
		return
	}
	writeProducts(w, "results", products)
}

// PartnerProducts lists a tenant's active products. Requires a partner API key.
func (h *Handler) PartnerProducts(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, auth.ScopePartner) {
		return
	}
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "tenant required")
		return
	}

	products, err := h.Products.ListByTenant(r.Context(), tenant)
	if err != nil {
		internalError(w, r, "list products failed", err)
		return
	}
	writeProducts(w, "products", products)
}

func writeProducts(w http.ResponseWriter, field string, products []product.Product) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field(field, func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range products {
						encodeProduct(e, &products[i])
					}
				})
			})
		})
	})
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { e.Float64(p.Price.InexactFloat64()) })
		e.Field("price_id", func(e *jx.Encoder) { e.Str(p.PriceID) })
		if p.TenantID != "" {
			e.Field("tenant_id", func(e *jx.Encoder) { e.Str(p.TenantID) })
		}
	})
}
