package sites

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	"gorm.io/gorm"
)

// Site is the directory row backing lookups. The ingestion and stream paths
// only read it; writes happen through the admin registration surface.
type Site struct {
	ID         string            `gorm:"primaryKey"`
	ShopDomain string            `gorm:"column:shop_domain"`
	Provider   enums.EventSource `gorm:"column:provider"`
	Status     enums.SiteStatus  `gorm:"column:status"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName implements gorm's table naming.
func (Site) TableName() string {
	return "sites"
}

// Repository is the gorm-backed Directory implementation.
type Repository struct {
	db *gorm.DB
}

// NewRepository wires the repository to a database handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LookupByDomain implements Directory.
func (r *Repository) LookupByDomain(ctx context.Context, provider enums.EventSource, shopDomain string) (*Entry, error) {
	domain := strings.ToLower(strings.TrimSpace(shopDomain))
	if domain == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop domain is required")
	}

	var site Site
	err := r.db.WithContext(ctx).
		Where("provider = ? AND shop_domain = ?", provider, domain).
		First(&site).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown store")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "site lookup failed")
	}

	return &Entry{SiteID: site.ID, Status: site.Status}, nil
}

// Create registers a new site. The (provider, shop_domain) pair is unique;
// re-registering an existing store is rejected.
func (r *Repository) Create(ctx context.Context, site *Site) error {
	if site == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "site is required")
	}
	site.ShopDomain = strings.ToLower(strings.TrimSpace(site.ShopDomain))
	if err := r.db.WithContext(ctx).Create(site).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return pkgerrors.New(pkgerrors.CodeValidation, "store is already registered").
				WithDetails(map[string]any{"shop_domain": site.ShopDomain})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "site create failed")
	}
	return nil
}

// Get implements Directory.
func (r *Repository) Get(ctx context.Context, siteID string) (*Entry, error) {
	id := strings.TrimSpace(siteID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "site id is required")
	}

	var site Site
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&site).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "site not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "site fetch failed")
	}

	return &Entry{SiteID: site.ID, Status: site.Status}, nil
}
