// Package handler implements the HTTP API on top of the domain services.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/roofgenius/internal/domain/analytics"
	"github.com/xenking/roofgenius/internal/domain/auth"
	"github.com/xenking/roofgenius/internal/domain/copilot"
	"github.com/xenking/roofgenius/internal/domain/download"
	"github.com/xenking/roofgenius/internal/domain/fulfillment"
	"github.com/xenking/roofgenius/internal/domain/order"
	"github.com/xenking/roofgenius/internal/domain/payment"
	"github.com/xenking/roofgenius/internal/domain/product"
	"github.com/xenking/roofgenius/internal/domain/roof"
	"github.com/xenking/roofgenius/internal/filestore"
	"github.com/xenking/roofgenius/internal/stripeapi"
)

// EventVerifier authenticates and decodes a provider webhook.
type EventVerifier interface {
	Verify(payload []byte, signature string) (payment.Event, error)
}

// EventRouter applies a verified webhook event.
type EventRouter interface {
	Route(ctx context.Context, ev payment.Event) (fulfillment.Outcome, error)
}

// CheckoutCreator opens payment sessions with the provider.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, p stripeapi.CheckoutParams) (*stripeapi.CheckoutSession, error)
}

// Subscriber adds an address to the mailing list.
type Subscriber interface {
	Subscribe(ctx context.Context, email string) error
}

// Downloads validates and redeems download tokens.
type Downloads interface {
	Authorize(ctx context.Context, token string) (*download.Grant, error)
	Redeem(ctx context.Context, g *download.Grant, ip, userAgent string) error
	Links(ctx context.Context, orderID string) ([]download.Link, error)
}

// FileOpener reads purchased files from storage.
type FileOpener interface {
	Open(ctx context.Context, ref string) (*filestore.Object, error)
}

// KeyAuthenticator checks API keys for a scope.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey, scope string) (*auth.APIKeyInfo, error)
}

// RoofAnalyzer runs vision analysis on roof photos.
type RoofAnalyzer interface {
	Analyze(ctx context.Context, req roof.Request) (*roof.Analysis, error)
}

// Assistant answers copilot messages.
type Assistant interface {
	Reply(ctx context.Context, req copilot.Request) (*copilot.Reply, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// SiteURL is the public site used for checkout redirect URLs.
	SiteURL string
	// MaxBodyBytes bounds JSON and webhook request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
}

// Deps are the services behind the API.
type Deps struct {
	Verifier  EventVerifier
	Router    EventRouter
	Checkout  CheckoutCreator
	Mailing   Subscriber
	Orders    order.Repository
	Products  product.Repository
	Downloads Downloads
	Files     FileOpener
	Keys      KeyAuthenticator
	Analyzer  RoofAnalyzer
	Assistant Assistant
	Tracker   analytics.Tracker
}

// Handler serves the HTTP API.
type Handler struct {
	Deps
	siteURL string
	maxBody int64
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{Deps: deps, siteURL: cfg.SiteURL, maxBody: cfg.MaxBodyBytes}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/webhook", h.Webhook)
	mux.HandleFunc("POST /api/checkout", h.CreateCheckout)
	mux.HandleFunc("POST /api/subscribe", h.Subscribe)
	mux.HandleFunc("GET /api/order/{session_id}", h.GetOrder)
	mux.HandleFunc("GET /api/download/{token}", h.Download)
	mux.HandleFunc("POST /api/search", h.Search)
	mux.HandleFunc("GET /api/partner/products", h.PartnerProducts)
	mux.HandleFunc("GET /api/admin/orders", h.AdminOrders)
	mux.HandleFunc("POST /api/ai/analyze-roof", h.AnalyzeRoof)
	mux.HandleFunc("POST /api/copilot", h.Copilot)
	mux.HandleFunc("POST /api/analytics/track", h.Track)
}

// Route returns the registered pattern for r, for low-cardinality metric
// and span names.
func Route(mux *http.ServeMux) func(*http.Request) string {
	return func(r *http.Request) string {
		if _, pattern := mux.Handler(r); pattern != "" {
			return pattern
		}
		return "unmatched"
	}
}
