package sites

import (
	"context"
	"io"
	"log"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	pkgerrors "github.com/proofpulse/proofpulse-backend/pkg/errors"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	silent := gormlogger.New(log.New(io.Discard, "", log.LstdFlags), gormlogger.Config{LogLevel: gormlogger.Silent})
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger:         silent,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&Site{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := conn.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_sites_provider_domain ON sites(provider, shop_domain)",
	).Error; err != nil {
		t.Fatalf("create index: %v", err)
	}
	return NewRepository(conn)
}

func seedSite(t *testing.T, repo *Repository, id, domain string, status enums.SiteStatus) {
	t.Helper()
	err := repo.Create(context.Background(), &Site{
		ID:         id,
		ShopDomain: domain,
		Provider:   enums.EventSourceShopify,
		Status:     status,
	})
	if err != nil {
		t.Fatalf("seed site %s: %v", id, err)
	}
}

func TestLookupByDomain(t *testing.T) {
	repo := newTestRepo(t)
	seedSite(t, repo, "s_123", "demo.myshopify.com", enums.SiteStatusVerified)

	entry, err := repo.LookupByDomain(context.Background(), enums.EventSourceShopify, "demo.myshopify.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if entry.SiteID != "s_123" || !entry.Verified() {
		t.Fatalf("entry = %+v", entry)
	}

	// Case-insensitive on domain.
	if _, err := repo.LookupByDomain(context.Background(), enums.EventSourceShopify, "DEMO.myshopify.com"); err != nil {
		t.Fatalf("lookup should fold case: %v", err)
	}

	_, err = repo.LookupByDomain(context.Background(), enums.EventSourceShopify, "other.myshopify.com")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	// Same domain under a different provider is a different store.
	_, err = repo.LookupByDomain(context.Background(), enums.EventSourceWooCommerce, "demo.myshopify.com")
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found across providers, got %v", err)
	}
}

func TestGet(t *testing.T) {
	repo := newTestRepo(t)
	seedSite(t, repo, "s_abc", "shop.example.com", enums.SiteStatusPendingVerification)

	entry, err := repo.Get(context.Background(), "s_abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Verified() {
		t.Fatalf("pending site must not verify")
	}

	_, err = repo.Get(context.Background(), "s_missing")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateRejectsDuplicateStore(t *testing.T) {
	repo := newTestRepo(t)
	seedSite(t, repo, "s_1", "demo.myshopify.com", enums.SiteStatusVerified)

	err := repo.Create(context.Background(), &Site{
		ID:         "s_2",
		ShopDomain: "Demo.MyShopify.com",
		Provider:   enums.EventSourceShopify,
		Status:     enums.SiteStatusVerified,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}
