// Package admin implements the Admin Surface (spec.md C7): read-only
// identity/aggregate views plus the one permitted mutation, a tier
// change.
package admin

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentkernel/gateway/internal/identity"
	"github.com/agentkernel/gateway/internal/tier"
)

// ErrNotFound is returned when a fingerprint has no identity record.
var ErrNotFound = errors.New("admin: identity not found")

// IdentityView is the admin-facing projection of an Identity: it carries
// no memory contents and no fingerprint (spec.md §4.7 "never expose raw
// memory contents or the fingerprint itself").
type IdentityView struct {
	ID                string
	DisplayName       string
	Tier              tier.Tier
	CreatedAt         time.Time
	CallsToday        int
	CallsTotal        int
	MemorySize        int
	Traits            identity.Traits
	BillingCustomerID *string
}

// TierCounts is the number of identities on each tier.
type TierCounts map[tier.Tier]int

// Aggregate is the admin rollup over every identity (spec.md §4.7,
// SPEC_FULL.md §C "aggregate calls-today breakdown").
type Aggregate struct {
	TotalIdentities int
	ByTier          TierCounts
	CallsTotal      int
	CallsToday      int
	CallsTodayByTier TierCounts
}

// Admin is the C7 admin surface, backed directly by the identity store.
type Admin struct {
	store *identity.Store
	log   zerolog.Logger
}

// New returns a ready Admin.
func New(store *identity.Store, log zerolog.Logger) *Admin {
	return &Admin{store: store, log: log.With().Str("component", "admin.Admin").Logger()}
}

// Lookup returns the public projection for fp (spec.md §4.7, §6 "GET
// /admin/identity" by upstream key header).
func (a *Admin) Lookup(fp string) (IdentityView, error) {
	id, err := a.store.Load(fp)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return IdentityView{}, ErrNotFound
		}
		return IdentityView{}, err
	}
	return viewOf(id), nil
}

// Aggregate computes the tier-count, calls-total, and calls-today-by-tier
// rollups over every identity (spec.md §4.7, §6 "GET /admin/stats").
func (a *Admin) Aggregate() Aggregate {
	agg := Aggregate{ByTier: TierCounts{}, CallsTodayByTier: TierCounts{}}
	for _, id := range a.store.Iter() {
		agg.TotalIdentities++
		agg.ByTier[id.Tier]++
		agg.CallsTotal += id.CallsTotal
		agg.CallsToday += id.CallsToday
		agg.CallsTodayByTier[id.Tier] += id.CallsToday
	}
	return agg
}

// UpdateTier is the one mutating admin operation: it changes an
// identity's tier (and optionally its billing customer id) and persists
// the change; every other field is left untouched (spec.md §4.7, §6
// "POST /admin/identity/tier", body {fingerprint, tier, billing_customer_id?}).
func (a *Admin) UpdateTier(fp string, newTier tier.Tier, billingCustomerID *string) (IdentityView, error) {
	if !newTier.Valid() {
		return IdentityView{}, errors.New("admin: invalid tier")
	}
	id, err := a.store.Load(fp)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return IdentityView{}, ErrNotFound
		}
		return IdentityView{}, err
	}

	id.Tier = newTier
	if billingCustomerID != nil {
		id.BillingCustomerID = billingCustomerID
	}
	if err := a.store.Save(id); err != nil {
		a.log.Error().Err(err).Str("fingerprint", fp).Msg("failed to persist tier update")
		return IdentityView{}, err
	}
	return viewOf(id), nil
}

func viewOf(id *identity.Identity) IdentityView {
	return IdentityView{
		ID:                id.ID,
		DisplayName:       id.DisplayName,
		Tier:              id.Tier,
		CreatedAt:         time.UnixMilli(id.CreatedAt),
		CallsToday:        id.CallsToday,
		CallsTotal:        id.CallsTotal,
		MemorySize:        len(id.Memory),
		Traits:            id.Traits,
		BillingCustomerID: id.BillingCustomerID,
	}
}
