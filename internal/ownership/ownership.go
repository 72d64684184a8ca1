// Package ownership is the owner/renter/spare key engine shared by every
// asset class. It keeps an in-memory index of asset states and keys that is
// only updated after the matching store transaction committed.
package ownership

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
)

// Store is the slice of the store adapter the engine needs.
type Store interface {
	ListAssetStates(ctx context.Context, class models.AssetClass) ([]models.AssetState, error)
	ListKeys(ctx context.Context, class models.AssetClass) ([]models.AssetKey, error)
	ClaimAsset(ctx context.Context, class models.AssetClass, assetID, buyerID uint) (price, cash int64, err error)
	ReleaseAsset(ctx context.Context, class models.AssetClass, assetID, sellerID uint, percent int64) (payout, cash int64, err error)
	InsertKey(ctx context.Context, key *models.AssetKey) error
	DeleteKey(ctx context.Context, class models.AssetClass, assetID, holderID uint) error
	RentProperty(ctx context.Context, propertyID, renterID uint, now, until time.Time) (*storage.RentResult, error)
	SetRentOffer(ctx context.Context, propertyID, ownerID uint, forRent bool, price int64) error
	SetImpounded(ctx context.Context, class models.AssetClass, assetID uint, impounded bool) error
	UnimpoundPaid(ctx context.Context, class models.AssetClass, assetID, payerID uint, fee int64) (int64, error)
}

// Permissions answers admin capability questions.
type Permissions interface {
	HasPermission(actorID uint, capability string) bool
}

// Auditor appends admin actions.
type Auditor interface {
	Record(ctx context.Context, adminID uint, action string, targetID uint, details string)
}

// Policy holds the per-class business rules.
type Policy struct {
	Class        models.AssetClass
	Noun         string
	SellPercent  int64
	Rentable     bool
	RentPeriod   time.Duration
	UnimpoundFee int64
}

// Engine manages ownership of one asset class.
type Engine struct {
	policy Policy
	store  Store
	perms  Permissions
	audit  Auditor
	events events.Emitter
	locks  lock.Locker
	log    *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	assets map[uint]*models.AssetState
	keys   map[uint][]models.AssetKey
}

func NewEngine(policy Policy, store Store, perms Permissions, audit Auditor, emitter events.Emitter, locks lock.Locker, log *zap.Logger) *Engine {
	return &Engine{
		policy: policy,
		store:  store,
		perms:  perms,
		audit:  audit,
		events: emitter,
		locks:  locks,
		log:    log.With(zap.String("class", string(policy.Class))),
		now:    func() time.Time { return time.Now().UTC() },
		assets: make(map[uint]*models.AssetState),
		keys:   make(map[uint][]models.AssetKey),
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Class is the asset class this engine manages.
func (e *Engine) Class() models.AssetClass { return e.policy.Class }

// Load rebuilds the index from the store.
func (e *Engine) Load(ctx context.Context) error {
	states, err := e.store.ListAssetStates(ctx, e.policy.Class)
	if err != nil {
		return err
	}
	keys, err := e.store.ListKeys(ctx, e.policy.Class)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.assets = make(map[uint]*models.AssetState, len(states))
	for i := range states {
		e.assets[states[i].ID] = &states[i]
	}
	e.keys = make(map[uint][]models.AssetKey)
	for _, k := range keys {
		e.keys[k.AssetID] = append(e.keys[k.AssetID], k)
	}
	e.log.Info("assets loaded", zap.Int("assets", len(e.assets)), zap.Int("keys", len(keys)))
	return nil
}

// Track adds a freshly created asset to the index.
func (e *Engine) Track(state models.AssetState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := state
	e.assets[s.ID] = &s
}

// State returns a copy of the indexed state of an asset.
func (e *Engine) State(assetID uint) (models.AssetState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.assets[assetID]
	if !ok {
		return models.AssetState{}, false
	}
	return *s, true
}

// Keys returns a copy of the keys of an asset.
func (e *Engine) Keys(assetID uint) []models.AssetKey {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.keys[assetID])
}

// HasKey scans the keys of one asset for holderID.
func (e *Engine) HasKey(assetID, holderID uint) bool {
	_, ok := e.KeyKind(assetID, holderID)
	return ok
}

// KeyKind returns the kind of key holderID has for an asset.
func (e *Engine) KeyKind(assetID, holderID uint) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, k := range e.keys[assetID] {
		if k.HolderID == holderID {
			return k.Kind, true
		}
	}
	return "", false
}

// OwnedBy lists the ids of every asset owned by ownerID.
func (e *Engine) OwnedBy(ownerID uint) []uint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []uint
	for id, s := range e.assets {
		if s.OwnerID != nil && *s.OwnerID == ownerID {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (e *Engine) assetKey(assetID uint) string {
	return lock.Key(string(e.policy.Class), assetID)
}

func (e *Engine) lockAsset(ctx context.Context, assetID uint, actors ...uint) (lock.Release, error) {
	keys := []string{e.assetKey(assetID)}
	for _, a := range actors {
		keys = append(keys, lock.Key("char", a))
	}
	release, err := lock.AcquireAll(ctx, e.locks, keys...)
	if err != nil {
		return nil, apperr.Store("lock asset", err)
	}
	return release, nil
}

func (e *Engine) storeFailure(op string, assetID uint, err error) error {
	e.log.Error(op+" failed", zap.Uint("asset_id", assetID), zap.Error(err))
	return apperr.Store(op, err)
}

func (e *Engine) notFound() error {
	return apperr.NotFound("That %s does not exist.", e.policy.Noun)
}

func (e *Engine) impounded() error {
	return apperr.Conflict("That %s is impounded.", e.policy.Noun)
}

func isOwner(s *models.AssetState, actorID uint) bool {
	return s.OwnerID != nil && *s.OwnerID == actorID
}

func rented(s *models.AssetState, now time.Time) bool {
	return s.RenterID != nil && s.RentExpiresAt != nil && s.RentExpiresAt.After(now)
}

func (e *Engine) emitBalance(ctx context.Context, charID uint, cash, bank *int64) {
	e.events.Emit(ctx, events.TopicBalance, events.BalanceChanged{CharacterID: charID, Cash: cash, Bank: bank})
}

// Purchase sells a listed asset to buyer. The claim, debit and owner key are
// one store transaction; the index changes in one block after it commits.
func (e *Engine) Purchase(ctx context.Context, assetID, buyerID uint) (int64, error) {
	release, err := e.lockAsset(ctx, assetID, buyerID)
	if err != nil {
		return 0, err
	}
	defer release()

	s, ok := e.State(assetID)
	switch {
	case !ok:
		return 0, e.notFound()
	case s.Impounded:
		return 0, e.impounded()
	case s.OwnerID != nil || !s.ForSale:
		return 0, apperr.Conflict("That %s is not for sale.", e.policy.Noun)
	}

	price, cash, err := e.store.ClaimAsset(ctx, e.policy.Class, assetID, buyerID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return 0, apperr.Conflict("That %s is not for sale.", e.policy.Noun)
		case errors.Is(err, storage.ErrNotFound):
			return 0, e.notFound()
		case errors.Is(err, storage.ErrInsufficientFunds):
			return 0, apperr.InsufficientFunds("You need $%d in cash to buy that %s.", s.Price, e.policy.Noun)
		}
		return 0, e.storeFailure("purchase", assetID, err)
	}

	e.mu.Lock()
	a := e.assets[assetID]
	owner := buyerID
	a.OwnerID = &owner
	a.ForSale = false
	e.keys[assetID] = []models.AssetKey{{AssetClass: e.policy.Class, AssetID: assetID, HolderID: buyerID, Kind: models.KeyOwner}}
	e.mu.Unlock()

	e.emitBalance(ctx, buyerID, &cash, nil)
	e.events.Emit(ctx, events.TopicAssetPurchased, events.AssetChanged{Class: e.policy.Class, AssetID: assetID, ActorID: buyerID, Amount: price})
	return price, nil
}

// Sell returns an owned asset to the market for the class's share of its
// price. Every key and any rental on it are dropped.
func (e *Engine) Sell(ctx context.Context, assetID, sellerID uint) (int64, error) {
	release, err := e.lockAsset(ctx, assetID, sellerID)
	if err != nil {
		return 0, err
	}
	defer release()

	s, ok := e.State(assetID)
	switch {
	case !ok:
		return 0, e.notFound()
	case !isOwner(&s, sellerID):
		return 0, apperr.DeniedMsg("You do not own that %s.", e.policy.Noun)
	case s.Impounded:
		return 0, e.impounded()
	}

	payout, cash, err := e.store.ReleaseAsset(ctx, e.policy.Class, assetID, sellerID, e.policy.SellPercent)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return 0, apperr.Conflict("That %s cannot be sold right now.", e.policy.Noun)
		case errors.Is(err, storage.ErrNotFound):
			return 0, e.notFound()
		}
		return 0, e.storeFailure("sell", assetID, err)
	}

	e.mu.Lock()
	a := e.assets[assetID]
	a.OwnerID = nil
	a.ForSale = true
	a.ForRent = false
	a.RenterID = nil
	a.RentExpiresAt = nil
	delete(e.keys, assetID)
	e.mu.Unlock()

	e.emitBalance(ctx, sellerID, &cash, nil)
	e.events.Emit(ctx, events.TopicAssetSold, events.AssetChanged{Class: e.policy.Class, AssetID: assetID, ActorID: sellerID, Amount: payout})
	return payout, nil
}

// Rent lets renterID use a rentable asset for the rent period. Lapsed rent
// is not reclaimed; it only stops counting once it has expired.
func (e *Engine) Rent(ctx context.Context, assetID, renterID uint) (time.Time, error) {
	if !e.policy.Rentable {
		return time.Time{}, apperr.InvalidInput("A %s cannot be rented.", e.policy.Noun)
	}
	release, err := e.lockAsset(ctx, assetID, renterID)
	if err != nil {
		return time.Time{}, err
	}
	defer release()

	now := e.now()
	s, ok := e.State(assetID)
	switch {
	case !ok:
		return time.Time{}, e.notFound()
	case s.Impounded:
		return time.Time{}, e.impounded()
	case isOwner(&s, renterID):
		return time.Time{}, apperr.Conflict("You already own that %s.", e.policy.Noun)
	case !s.ForRent || s.ForSale:
		return time.Time{}, apperr.Conflict("That %s is not for rent.", e.policy.Noun)
	case rented(&s, now):
		return time.Time{}, apperr.Conflict("That %s is already rented.", e.policy.Noun)
	}

	until := now.Add(e.policy.RentPeriod)
	res, err := e.store.RentProperty(ctx, assetID, renterID, now, until)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return time.Time{}, apperr.Conflict("That %s is not available for rent.", e.policy.Noun)
		case errors.Is(err, storage.ErrNotFound):
			return time.Time{}, e.notFound()
		case errors.Is(err, storage.ErrInsufficientFunds):
			return time.Time{}, apperr.InsufficientFunds("You need $%d in cash to rent that %s.", s.RentPrice, e.policy.Noun)
		}
		return time.Time{}, e.storeFailure("rent", assetID, err)
	}

	e.mu.Lock()
	a := e.assets[assetID]
	renter := renterID
	a.RenterID = &renter
	a.RentExpiresAt = &until
	keys := slices.DeleteFunc(e.keys[assetID], func(k models.AssetKey) bool {
		return k.Kind != models.KeyOwner && (k.Kind == models.KeyRenter || k.HolderID == renterID)
	})
	e.keys[assetID] = append(keys, res.Key)
	e.mu.Unlock()

	e.emitBalance(ctx, renterID, &res.RenterCash, nil)
	if res.OwnerID != nil {
		e.emitBalance(ctx, *res.OwnerID, nil, &res.OwnerBank)
	}
	e.events.Emit(ctx, events.TopicAssetRented, events.AssetChanged{Class: e.policy.Class, AssetID: assetID, ActorID: renterID, Amount: res.Rent})
	return until, nil
}

// SetRentOffer opens or closes an owned asset for rent at price.
func (e *Engine) SetRentOffer(ctx context.Context, ownerID, assetID uint, forRent bool, price int64) error {
	if !e.policy.Rentable {
		return apperr.InvalidInput("A %s cannot be rented.", e.policy.Noun)
	}
	if forRent && price <= 0 {
		return apperr.InvalidInput("The rent must be a positive amount.")
	}
	release, err := e.lockAsset(ctx, assetID)
	if err != nil {
		return err
	}
	defer release()

	s, ok := e.State(assetID)
	switch {
	case !ok:
		return e.notFound()
	case !isOwner(&s, ownerID):
		return apperr.DeniedMsg("You do not own that %s.", e.policy.Noun)
	case s.Impounded:
		return e.impounded()
	}

	if err := e.store.SetRentOffer(ctx, assetID, ownerID, forRent, price); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperr.Conflict("That %s cannot be offered for rent right now.", e.policy.Noun)
		}
		return e.storeFailure("set rent offer", assetID, err)
	}

	e.mu.Lock()
	e.assets[assetID].ForRent = forRent
	e.assets[assetID].RentPrice = price
	e.mu.Unlock()
	return nil
}

// canManageKeys is true for the owner and for asset managers.
func (e *Engine) canManageKeys(s *models.AssetState, actorID uint) bool {
	return isOwner(s, actorID) || e.perms.HasPermission(actorID, permission.ManageAssets)
}

// GiveKey issues a spare or renter key. A holder may have only one key per
// asset; a second one is rejected rather than merged.
func (e *Engine) GiveKey(ctx context.Context, actorID, assetID, holderID uint, kind string) error {
	if kind != models.KeySpare && kind != models.KeyRenter {
		return apperr.InvalidInput("Only spare and renter keys can be handed out.")
	}
	release, err := e.lockAsset(ctx, assetID)
	if err != nil {
		return err
	}
	defer release()

	s, ok := e.State(assetID)
	switch {
	case !ok:
		return e.notFound()
	case !e.canManageKeys(&s, actorID):
		return apperr.DeniedMsg("You do not own that %s.", e.policy.Noun)
	case s.Impounded:
		return e.impounded()
	case e.HasKey(assetID, holderID):
		return apperr.Conflict("That player already has a key.")
	}

	key := models.AssetKey{AssetClass: e.policy.Class, AssetID: assetID, HolderID: holderID, Kind: kind}
	if err := e.store.InsertKey(ctx, &key); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return apperr.Conflict("That player already has a key.")
		case errors.Is(err, storage.ErrNotFound):
			return e.notFound()
		}
		return e.storeFailure("give key", assetID, err)
	}

	e.mu.Lock()
	e.keys[assetID] = append(e.keys[assetID], key)
	e.mu.Unlock()

	e.events.Emit(ctx, events.TopicKeyGiven, events.AssetChanged{Class: e.policy.Class, AssetID: assetID, ActorID: actorID, HolderID: holderID})
	return nil
}

// RemoveKey takes a non-owner key away. Holders may also drop their own key.
// Owner keys only disappear through a sale.
func (e *Engine) RemoveKey(ctx context.Context, actorID, assetID, holderID uint) error {
	release, err := e.lockAsset(ctx, assetID)
	if err != nil {
		return err
	}
	defer release()

	s, ok := e.State(assetID)
	switch {
	case !ok:
		return e.notFound()
	case actorID != holderID && !e.canManageKeys(&s, actorID):
		return apperr.DeniedMsg("You do not own that %s.", e.policy.Noun)
	case s.Impounded:
		return e.impounded()
	}
	if kind, ok := e.KeyKind(assetID, holderID); !ok || kind == models.KeyOwner {
		return apperr.NotFound("That player has no removable key.")
	}

	if err := e.store.DeleteKey(ctx, e.policy.Class, assetID, holderID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("That player has no removable key.")
		}
		return e.storeFailure("remove key", assetID, err)
	}

	e.mu.Lock()
	e.keys[assetID] = slices.DeleteFunc(e.keys[assetID], func(k models.AssetKey) bool {
		return k.HolderID == holderID && k.Kind != models.KeyOwner
	})
	e.mu.Unlock()

	e.events.Emit(ctx, events.TopicKeyRemoved, events.AssetChanged{Class: e.policy.Class, AssetID: assetID, ActorID: actorID, HolderID: holderID})
	return nil
}

// Impound flags an asset. Sale, rent, key changes and use are blocked until released.
func (e *Engine) Impound(ctx context.Context, adminID, assetID uint, reason string) error {
	if !e.perms.HasPermission(adminID, permission.Impound) {
		return apperr.Denied()
	}
	release, err := e.lockAsset(ctx, assetID)
	if err != nil {
		return err
	}
	defer release()

	s, ok := e.State(assetID)
	switch {
	case !ok:
		return e.notFound()
	case s.Impounded:
		return apperr.Conflict("That %s is already impounded.", e.policy.Noun)
	}

	if err := e.store.SetImpounded(ctx, e.policy.Class, assetID, true); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperr.Conflict("That %s is already impounded.", e.policy.Noun)
		}
		return e.storeFailure("impound", assetID, err)
	}

	e.mu.Lock()
	e.assets[assetID].Impounded = true
	e.mu.Unlock()

	e.audit.Record(ctx, adminID, "impound_"+string(e.policy.Class), assetID, reason)
	e.events.Emit(ctx, events.TopicImpounded, events.AssetChanged{Class: e.policy.Class, AssetID: assetID, ActorID: adminID})
	return nil
}

// Unimpound releases an asset. The owner pays the fee; an admin with the
// impound capability releases it for free.
func (e *Engine) Unimpound(ctx context.Context, actorID, assetID uint) error {
	release, err := e.lockAsset(ctx, assetID, actorID)
	if err != nil {
		return err
	}
	defer release()

	s, ok := e.State(assetID)
	owner := ok && isOwner(&s, actorID)
	admin := e.perms.HasPermission(actorID, permission.Impound)
	switch {
	case !owner && !admin:
		return apperr.Denied()
	case !ok:
		return e.notFound()
	case !s.Impounded:
		return apperr.Conflict("That %s is not impounded.", e.policy.Noun)
	}

	if owner {
		cash, err := e.store.UnimpoundPaid(ctx, e.policy.Class, assetID, actorID, e.policy.UnimpoundFee)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrConflict):
				return apperr.Conflict("That %s is not impounded.", e.policy.Noun)
			case errors.Is(err, storage.ErrInsufficientFunds):
				return apperr.InsufficientFunds("The impound fee is $%d.", e.policy.UnimpoundFee)
			}
			return e.storeFailure("unimpound", assetID, err)
		}
		e.emitBalance(ctx, actorID, &cash, nil)
	} else {
		if err := e.store.SetImpounded(ctx, e.policy.Class, assetID, false); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return apperr.Conflict("That %s is not impounded.", e.policy.Noun)
			}
			return e.storeFailure("unimpound", assetID, err)
		}
		e.audit.Record(ctx, actorID, "unimpound_"+string(e.policy.Class), assetID, "")
	}

	e.mu.Lock()
	e.assets[assetID].Impounded = false
	e.mu.Unlock()

	e.events.Emit(ctx, events.TopicUnimpounded, events.AssetChanged{Class: e.policy.Class, AssetID: assetID, ActorID: actorID})
	return nil
}
