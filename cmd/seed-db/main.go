package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/roofgenius/internal/domain/auth"
	"github.com/xenking/roofgenius/internal/domain/fulfillment"
	"github.com/xenking/roofgenius/internal/domain/notify"
	"github.com/xenking/roofgenius/internal/domain/product"
	"github.com/xenking/roofgenius/internal/storage/postgres"
)

type catalogJSON struct {
	Products []struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Price       decimal.Decimal `json:"price"`
		PriceID     string          `json:"price_id"`
		TenantID    string          `json:"tenant_id"`
		Inactive    bool            `json:"inactive"`
		Files       []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"files"`
	} `json:"products"`
}

type options struct {
	databaseURL  string
	catalogFile  string
	templateHTML string
	templateText string
	partnerKey   string
	adminKey     string
	apiKeyPepper string
}

func main() {
	var o options

	flag.StringVar(&o.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&o.catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&o.templateHTML, "template-html", "db/seed/order_confirmation.html", "order confirmation HTML template")
	flag.StringVar(&o.templateText, "template-text", "db/seed/order_confirmation.txt", "order confirmation text template")
	flag.StringVar(&o.partnerKey, "partner-key", "", "partner API key to seed (or ROOFGENIUS_SEED_PARTNER_KEY env)")
	flag.StringVar(&o.adminKey, "admin-key", "", "admin API key to seed (or ROOFGENIUS_SEED_ADMIN_KEY env)")
	flag.StringVar(&o.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ROOFGENIUS_API_KEY_PEPPER env)")
	flag.Parse()

	if o.databaseURL == "" {
		o.databaseURL = os.Getenv("DATABASE_URL")
	}
	if o.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if o.partnerKey == "" {
		o.partnerKey = os.Getenv("ROOFGENIUS_SEED_PARTNER_KEY")
	}
	if o.adminKey == "" {
		o.adminKey = os.Getenv("ROOFGENIUS_SEED_ADMIN_KEY")
	}
	if o.apiKeyPepper == "" {
		o.apiKeyPepper = os.Getenv("ROOFGENIUS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, o); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, o options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, o.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	db := postgres.NewDB(pool)
	return db.InTx(ctx, func(ctx context.Context) error {
		if err := seedCatalog(ctx, postgres.NewProductRepository(db), o.catalogFile); err != nil {
			return errors.Wrap(err, "seed catalog")
		}
		if err := seedTemplates(ctx, postgres.NewEmailRepository(db), o.templateHTML, o.templateText); err != nil {
			return errors.Wrap(err, "seed email templates")
		}
		if err := seedAPIKeys(ctx, db, o); err != nil {
			return errors.Wrap(err, "seed api keys")
		}
		return nil
	})
}

func seedCatalog(ctx context.Context, repo *postgres.ProductRepository, path string) error {
	slog.Info("reading catalog file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(catalog.Products)))

	for _, p := range catalog.Products {
		if err := repo.Upsert(ctx, product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			PriceID:     p.PriceID,
			TenantID:    p.TenantID,
			Active:      !p.Inactive,
		}); err != nil {
			return err
		}
		for _, f := range p.Files {
			if err := repo.UpsertFile(ctx, product.File{
				ID:        f.ID,
				ProductID: p.ID,
				Name:      f.Name,
				URL:       f.URL,
			}); err != nil {
				return err
			}
		}

		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.Int("files", len(p.Files)),
		)
	}

	return nil
}

func seedTemplates(ctx context.Context, repo *postgres.EmailRepository, htmlPath, textPath string) error {
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		return errors.Wrap(err, "read html template")
	}
	text, err := os.ReadFile(textPath)
	if err != nil {
		return errors.Wrap(err, "read text template")
	}

	if err := repo.UpsertTemplate(ctx, notify.Template{
		Name:    fulfillment.ConfirmationTemplate,
		Subject: "Your RoofGenius order #{{.OrderNumber}}",
		HTML:    string(html),
		Text:    string(text),
	}); err != nil {
		return err
	}

	slog.Info("upserted email template", slog.String("name", fulfillment.ConfirmationTemplate))
	return nil
}

func seedAPIKeys(ctx context.Context, db *postgres.DB, o options) error {
	repo := postgres.NewAPIKeyRepository(db)
	authn := auth.NewAuthenticator(repo, []byte(o.apiKeyPepper))

	keys := []struct {
		id, raw, name, scope string
	}{
		{"partner-default", o.partnerKey, "Default partner key", auth.ScopePartner},
		{"admin-default", o.adminKey, "Default admin key", auth.ScopeAdmin},
	}
	for _, k := range keys {
		if k.raw == "" {
			slog.Info("skipping API key, no value given", slog.String("id", k.id))
			continue
		}
		if err := repo.Upsert(ctx, auth.APIKeyInfo{
			ID:      k.id,
			KeyHash: authn.Hash(k.raw),
			Name:    k.name,
			Scopes:  []string{k.scope},
		}); err != nil {
			return err
		}

		slog.Info("upserted API key", slog.String("id", k.id), slog.String("scope", k.scope))
	}

	return nil
}
