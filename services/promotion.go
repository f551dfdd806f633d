package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/store"
)

// maxMultiplier bounds promotion multipliers so a typo cannot mint caps.
var maxMultiplier = decimal.NewFromInt(10)

// PromotionInput is the admin payload for a new promotion.
type PromotionInput struct {
	Name        string
	Description string
	Multiplier  decimal.Decimal
	StartDate   time.Time
	EndDate     time.Time
	CreatedBy   string
}

// Validate checks the promotion's window and multiplier.
func (in PromotionInput) Validate() error {
	var errs []error
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !in.Multiplier.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("multiplier must be greater than 1"))
	} else if in.Multiplier.GreaterThan(maxMultiplier) {
		errs = append(errs, fmt.Errorf("multiplier must not exceed %s", maxMultiplier))
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		errs = append(errs, errors.New("start_date and end_date are required"))
	} else if !in.EndDate.After(in.StartDate) {
		errs = append(errs, errors.New("end_date must be after start_date"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidation, errors.Join(errs...))
	}
	return nil
}

// PromotionService manages promotions.
type PromotionService struct {
	store store.Store
	now   func() time.Time
}

// NewPromotionService builds a PromotionService.
func NewPromotionService(st store.Store) *PromotionService {
	return &PromotionService{store: st, now: time.Now}
}

// WithClock replaces the time source.
func (p *PromotionService) WithClock(now func() time.Time) *PromotionService {
	p.now = now
	return p
}

// Create validates and stores a promotion.
func (p *PromotionService) Create(ctx context.Context, in PromotionInput) (*models.Promotion, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	promo := &models.Promotion{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Multiplier:  in.Multiplier,
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate.UTC(),
		CreatedBy:   in.CreatedBy,
	}
	if err := p.store.CreatePromotion(ctx, promo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return promo, nil
}

// End closes a promotion now. Ending one that already ended keeps its end date.
func (p *PromotionService) End(ctx context.Context, id string) (*models.Promotion, error) {
	if err := p.store.EndPromotion(ctx, id, p.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPromotionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	promo, err := p.store.GetPromotion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return promo, nil
}

// Active returns the promotions running now, highest multiplier first.
func (p *PromotionService) Active(ctx context.Context) ([]models.Promotion, error) {
	promos, err := p.store.ListActivePromotions(ctx, p.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return promos, nil
}

// List pages through all promotions.
func (p *PromotionService) List(ctx context.Context, page store.Page) ([]models.Promotion, int64, error) {
	items, total, err := p.store.ListPromotions(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return items, total, nil
}
