package entitlements

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/pkg/logger"
)

// Grant is the set of content identifiers an account may access.
type Grant struct {
	ChannelIDs  []uuid.UUID
	CategoryIDs []uuid.UUID
}

// Empty reports whether the grant carries no content at all.
func (g Grant) Empty() bool {
	return len(g.ChannelIDs) == 0 && len(g.CategoryIDs) == 0
}

type mappingReader interface {
	PlanChannelIDs(ctx context.Context, planID uuid.UUID) ([]uuid.UUID, error)
	PlanCategoryIDs(ctx context.Context, planID uuid.UUID) ([]uuid.UUID, error)
	ActiveChannelIDs(ctx context.Context) ([]uuid.UUID, error)
	ActiveCategoryIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ResolverParams configure the entitlement resolver.
type ResolverParams struct {
	Logger *logger.Logger
	Repo   mappingReader
}

// Resolver turns a plan id into the content set it entitles. Plans with no
// explicit mapping fall back to all active content; the fallback is logged so
// an operator can tell which path granted access.
type Resolver struct {
	logg *logger.Logger
	repo mappingReader
}

// NewResolver builds an entitlement resolver.
func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("mapping repo required")
	}
	return &Resolver{logg: params.Logger, repo: params.Repo}, nil
}

// Resolve returns the grant set for the plan.
func (r *Resolver) Resolve(ctx context.Context, planID uuid.UUID) (Grant, error) {
	channelIDs, err := r.repo.PlanChannelIDs(ctx, planID)
	if err != nil {
		return Grant{}, fmt.Errorf("plan channel mapping: %w", err)
	}
	categoryIDs, err := r.repo.PlanCategoryIDs(ctx, planID)
	if err != nil {
		return Grant{}, fmt.Errorf("plan category mapping: %w", err)
	}

	grant := Grant{ChannelIDs: channelIDs, CategoryIDs: categoryIDs}
	if !grant.Empty() {
		return grant, nil
	}

	logCtx := r.logg.WithField(ctx, "plan_id", planID.String())
	r.logg.Warn(logCtx, "plan has no content mapping; granting all active content")

	allChannels, err := r.repo.ActiveChannelIDs(ctx)
	if err != nil {
		return Grant{}, fmt.Errorf("active channels: %w", err)
	}
	allCategories, err := r.repo.ActiveCategoryIDs(ctx)
	if err != nil {
		return Grant{}, fmt.Errorf("active categories: %w", err)
	}
	return Grant{ChannelIDs: allChannels, CategoryIDs: allCategories}, nil
}
