package storage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"rpworld/backend/internal/models"
	"rpworld/backend/internal/storage"
	"rpworld/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := storage.Open("oracle", "")
	assert.Error(t, err)
}

func TestDebit_InsufficientFundsLeavesBalance(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	c := storagetest.Character(t, s, "Poor_Guy", 100, 0)

	_, err := s.Debit(ctx, c.ID, models.AccountCash, 150, models.TxFuel, "")
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

	cash, _, err := s.Balances(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cash)

	_, err = s.Debit(ctx, 999, models.AccountCash, 1, models.TxFuel, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTransfer_WritesLedger(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	a := storagetest.Character(t, s, "Alice_A", 500, 0)
	b := storagetest.Character(t, s, "Bob_B", 0, 0)

	fromCash, toCash, err := s.Transfer(ctx, a.ID, b.ID, 200, "pay")
	require.NoError(t, err)
	assert.Equal(t, int64(300), fromCash)
	assert.Equal(t, int64(200), toCash)

	txs, err := s.ListTransactions(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-200), txs[0].Amount)
	assert.Equal(t, int64(300), txs[0].BalanceAfter)
	assert.Equal(t, models.TxTransferOut, txs[0].Kind)
}

func TestMoveBetweenAccounts(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	c := storagetest.Character(t, s, "Saver", 1000, 50)

	cash, bank, err := s.MoveBetweenAccounts(ctx, c.ID, models.AccountCash, models.AccountBank, 400)
	require.NoError(t, err)
	assert.Equal(t, int64(600), cash)
	assert.Equal(t, int64(450), bank)

	_, _, err = s.MoveBetweenAccounts(ctx, c.ID, models.AccountBank, models.AccountCash, 451)
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)
}

func TestGetCharacterByName_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	c := storagetest.Character(t, s, "John_Doe", 0, 0)

	got, err := s.GetCharacterByName(ctx, "JOHN_doe")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = s.GetCharacterByName(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsertGrant_SingleRowPerCharacter(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	c := storagetest.Character(t, s, "Admin_One", 0, 0)

	require.NoError(t, s.UpsertGrant(ctx, &models.AdminGrant{CharacterID: c.ID, Level: 3, Permissions: []string{"ban"}, GrantedBy: 1}))
	require.NoError(t, s.UpsertGrant(ctx, &models.AdminGrant{CharacterID: c.ID, Level: 5, Permissions: []string{"ban", "impound"}, GrantedBy: 1}))

	grants, err := s.ListActiveGrants(ctx)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, 5, grants[0].Level)
	assert.ElementsMatch(t, []string{"ban", "impound"}, []string(grants[0].Permissions))

	require.NoError(t, s.UpsertGrant(ctx, &models.AdminGrant{CharacterID: c.ID, Level: 0, GrantedBy: 1}))
	grants, err = s.ListActiveGrants(ctx)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestCreateBan_SingleActive(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	now := time.Now().UTC()

	require.NoError(t, s.CreateBan(ctx, &models.Ban{TargetID: 9, IssuedBy: 1, Reason: "cheating"}, now))
	err := s.CreateBan(ctx, &models.Ban{TargetID: 9, IssuedBy: 1, Reason: "again"}, now)
	assert.ErrorIs(t, err, storage.ErrConflict)

	active, err := s.ListActiveBans(ctx, now)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCreateBan_ExpiredBanDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	require.NoError(t, s.CreateBan(ctx, &models.Ban{TargetID: 9, IssuedBy: 1, ExpiresAt: &past}, now.Add(-2*time.Hour)))
	require.NoError(t, s.CreateBan(ctx, &models.Ban{TargetID: 9, IssuedBy: 1}, now))

	history, err := s.ListBans(ctx, 9)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Active)
	assert.False(t, history[1].Active)
}

func TestRevokeBan(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	now := time.Now().UTC()

	_, err := s.RevokeBan(ctx, 9, 1, "appeal", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.CreateBan(ctx, &models.Ban{TargetID: 9, IssuedBy: 1}, now))
	ban, err := s.RevokeBan(ctx, 9, 2, "appeal", now)
	require.NoError(t, err)
	assert.False(t, ban.Active)
	require.NotNil(t, ban.RevokedBy)
	assert.Equal(t, uint(2), *ban.RevokedBy)

	active, err := s.ListActiveBans(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMutes(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	now := time.Now().UTC()

	require.NoError(t, s.CreateMute(ctx, &models.Mute{TargetID: 4, IssuedBy: 1, ExpiresAt: now.Add(10 * time.Minute)}, now))
	assert.ErrorIs(t, s.CreateMute(ctx, &models.Mute{TargetID: 4, IssuedBy: 1, ExpiresAt: now.Add(time.Minute)}, now), storage.ErrConflict)

	_, err := s.RevokeMute(ctx, 4, 1, "", now)
	require.NoError(t, err)
	_, err = s.RevokeMute(ctx, 4, 1, "", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReports_OneOpenPerReporter(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	now := time.Now().UTC()

	first := &models.Report{ReporterID: 5, ReportedID: 9, Reason: "deathmatch"}
	require.NoError(t, s.CreateReport(ctx, first))
	assert.ErrorIs(t, s.CreateReport(ctx, &models.Report{ReporterID: 5, ReportedID: 11, Reason: "other"}), storage.ErrConflict)

	require.NoError(t, s.AcceptReport(ctx, first.ID, 1))
	assert.ErrorIs(t, s.AcceptReport(ctx, first.ID, 2), storage.ErrConflict)
	assert.ErrorIs(t, s.AcceptReport(ctx, 999, 2), storage.ErrNotFound)

	require.NoError(t, s.CloseReport(ctx, first.ID, 1, "warned", now))
	assert.ErrorIs(t, s.CloseReport(ctx, first.ID, 1, "again", now), storage.ErrConflict)

	got, err := s.GetReport(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportClosed, got.Status)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, "warned", *got.Resolution)

	require.NoError(t, s.CreateReport(ctx, &models.Report{ReporterID: 5, ReportedID: 11, Reason: "other"}))
}

func TestCloseReport_UnassignedTakesCloser(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)

	r := &models.Report{ReporterID: 5, ReportedID: 9, Reason: "spam"}
	require.NoError(t, s.CreateReport(ctx, r))
	require.NoError(t, s.CloseReport(ctx, r.ID, 7, "done", time.Now().UTC()))

	got, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssignedAdmin)
	assert.Equal(t, uint(7), *got.AssignedAdmin)
}

func TestClaimAndReleaseAsset_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	buyer := storagetest.Character(t, s, "Buyer", 10000, 0)
	v := storagetest.Vehicle(t, s, "sultan", 4000)

	price, cash, err := s.ClaimAsset(ctx, models.AssetVehicle, v.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), price)
	assert.Equal(t, int64(6000), cash)

	keys, err := s.ListKeys(ctx, models.AssetVehicle)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, models.KeyOwner, keys[0].Kind)

	_, _, err = s.ClaimAsset(ctx, models.AssetVehicle, v.ID, buyer.ID)
	assert.ErrorIs(t, err, storage.ErrConflict)

	payout, cash, err := s.ReleaseAsset(ctx, models.AssetVehicle, v.ID, buyer.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), payout)
	assert.Equal(t, int64(8000), cash)

	keys, err = s.ListKeys(ctx, models.AssetVehicle)
	require.NoError(t, err)
	assert.Empty(t, keys)

	states, err := s.ListAssetStates(ctx, models.AssetVehicle)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Nil(t, states[0].OwnerID)
	assert.True(t, states[0].ForSale)
}

func TestClaimAsset_InsufficientFundsRollsBack(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	buyer := storagetest.Character(t, s, "Broke", 10, 0)
	p := storagetest.Property(t, s, "Grove St 1", 50000)

	_, _, err := s.ClaimAsset(ctx, models.AssetProperty, p.ID, buyer.ID)
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

	got, err := s.GetProperty(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.OwnerID)
	assert.True(t, got.ForSale)
}

func TestClaimAsset_ConcurrentBuyers(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	a := storagetest.Character(t, s, "Buyer_A", 5000, 0)
	b := storagetest.Character(t, s, "Buyer_B", 5000, 0)
	v := storagetest.Vehicle(t, s, "infernus", 3000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uint{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			_, _, errs[i] = s.ClaimAsset(ctx, models.AssetVehicle, v.ID, id)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, storage.ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded)

	cashA, _, _ := s.Balances(ctx, a.ID)
	cashB, _, _ := s.Balances(ctx, b.ID)
	assert.Equal(t, int64(7000), cashA+cashB)
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	v := storagetest.Vehicle(t, s, "banshee", 100)

	key := &models.AssetKey{AssetClass: models.AssetVehicle, AssetID: v.ID, HolderID: 3, Kind: models.KeySpare}
	require.NoError(t, s.InsertKey(ctx, key))
	assert.ErrorIs(t, s.InsertKey(ctx, &models.AssetKey{AssetClass: models.AssetVehicle, AssetID: v.ID, HolderID: 3, Kind: models.KeySpare}), storage.ErrConflict)
	assert.ErrorIs(t, s.InsertKey(ctx, &models.AssetKey{AssetClass: models.AssetVehicle, AssetID: 999, HolderID: 3, Kind: models.KeySpare}), storage.ErrNotFound)

	require.NoError(t, s.DeleteKey(ctx, models.AssetVehicle, v.ID, 3))
	assert.ErrorIs(t, s.DeleteKey(ctx, models.AssetVehicle, v.ID, 3), storage.ErrNotFound)
}

func TestDeleteKey_OwnerKeyIsUnremovable(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	owner := storagetest.Character(t, s, "Owner", 1000, 0)
	v := storagetest.Vehicle(t, s, "blista", 100)
	_, _, err := s.ClaimAsset(ctx, models.AssetVehicle, v.ID, owner.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteKey(ctx, models.AssetVehicle, v.ID, owner.ID), storage.ErrNotFound)
}

func TestRentProperty(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	owner := storagetest.Character(t, s, "Landlord", 100000, 0)
	renter := storagetest.Character(t, s, "Tenant", 1000, 0)
	p := storagetest.Property(t, s, "Flat 2", 20000)
	_, _, err := s.ClaimAsset(ctx, models.AssetProperty, p.ID, owner.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = s.RentProperty(ctx, p.ID, renter.ID, now, now.Add(time.Hour))
	assert.ErrorIs(t, err, storage.ErrConflict, "not offered for rent yet")

	require.NoError(t, s.SetRentOffer(ctx, p.ID, owner.ID, true, 300))
	res, err := s.RentProperty(ctx, p.ID, renter.ID, now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(300), res.Rent)
	assert.Equal(t, int64(700), res.RenterCash)

	_, bank, err := s.Balances(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), bank)

	_, err = s.RentProperty(ctx, p.ID, renter.ID, now, now.Add(time.Hour))
	assert.ErrorIs(t, err, storage.ErrConflict, "already rented")

	later := now.Add(2 * time.Hour)
	_, err = s.RentProperty(ctx, p.ID, renter.ID, later, later.Add(time.Hour))
	require.NoError(t, err, "lapsed rent can be renewed")

	keys, err := s.ListKeys(ctx, models.AssetProperty)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestImpound(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	owner := storagetest.Character(t, s, "Driver", 1000, 0)
	v := storagetest.Vehicle(t, s, "pony", 100)
	_, _, err := s.ClaimAsset(ctx, models.AssetVehicle, v.ID, owner.ID)
	require.NoError(t, err)

	require.NoError(t, s.SetImpounded(ctx, models.AssetVehicle, v.ID, true))
	assert.ErrorIs(t, s.SetImpounded(ctx, models.AssetVehicle, v.ID, true), storage.ErrConflict)

	_, _, err = s.ReleaseAsset(ctx, models.AssetVehicle, v.ID, owner.ID, 50)
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.ErrorIs(t, s.SetEngine(ctx, v.ID, true), storage.ErrConflict)

	cash, err := s.UnimpoundPaid(ctx, models.AssetVehicle, v.ID, owner.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(400), cash)
	require.NoError(t, s.SetEngine(ctx, v.ID, true))
}

func TestRefuelAndRepair(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	c := storagetest.Character(t, s, "Mechanic", 5000, 0)
	v := storagetest.Vehicle(t, s, "bobcat", 100)

	added, fuel, cash, err := s.RefuelVehicle(ctx, v.ID, c.ID, 80, 100, 3)
	require.NoError(t, err)
	assert.Equal(t, 50, added)
	assert.Equal(t, 100, fuel)
	assert.Equal(t, int64(4850), cash)

	_, _, _, err = s.RefuelVehicle(ctx, v.ID, c.ID, 1, 100, 3)
	assert.ErrorIs(t, err, storage.ErrConflict)

	require.NoError(t, s.UpdateVehicleCondition(ctx, v.ID, storage.VehicleCondition{Fuel: 100, EngineHealth: 900, BodyHealth: 800}))
	cost, cash, err := s.RepairVehicle(ctx, v.ID, c.ID, 1000, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(600), cost)
	assert.Equal(t, int64(4250), cash)
}

func TestFactions(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	now := time.Now().UTC()
	leader := storagetest.Character(t, s, "Boss", 1000, 0)
	recruit := storagetest.Character(t, s, "Recruit", 0, 0)
	other := storagetest.Character(t, s, "Other_Boss", 0, 0)

	ranks := []models.FactionRank{{Level: 1, Name: "Member"}, {Level: 10, Name: "Leader", Permissions: []string{"*"}}}
	f := &models.Faction{Name: "Ballas", Tag: "BLS", Type: models.FactionGang, LeaderID: leader.ID, MemberCap: 2}
	require.NoError(t, s.CreateFaction(ctx, f, ranks, 10))

	dup := &models.Faction{Name: "BALLAS", Tag: "XX", Type: models.FactionGang, LeaderID: other.ID, MemberCap: 2}
	assert.ErrorIs(t, s.CreateFaction(ctx, dup, nil, 10), storage.ErrConflict)

	require.NoError(t, s.CreateInvite(ctx, &models.FactionInvite{FactionID: f.ID, InviteeID: recruit.ID, InviterID: leader.ID, ExpiresAt: now.Add(time.Hour)}, now))
	assert.ErrorIs(t, s.CreateInvite(ctx, &models.FactionInvite{FactionID: f.ID, InviteeID: recruit.ID, InviterID: leader.ID, ExpiresAt: now.Add(time.Hour)}, now), storage.ErrConflict)

	inv, err := s.AcceptInvite(ctx, recruit.ID, 0, 1, now)
	require.NoError(t, err)
	assert.Equal(t, f.ID, inv.FactionID)

	n, err := s.CountMembers(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.SetMemberRank(ctx, f.ID, recruit.ID, 1, 5))
	assert.ErrorIs(t, s.SetMemberRank(ctx, f.ID, recruit.ID, 1, 6), storage.ErrConflict)

	cash, treasury, err := s.DepositTreasury(ctx, f.ID, leader.ID, 400)
	require.NoError(t, err)
	assert.Equal(t, int64(600), cash)
	assert.Equal(t, int64(400), treasury)
	_, _, err = s.WithdrawTreasury(ctx, f.ID, leader.ID, 401)
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

	assert.ErrorIs(t, s.RemoveMember(ctx, f.ID, recruit.ID, 1), storage.ErrConflict, "stale rank")
	require.NoError(t, s.RemoveMember(ctx, f.ID, recruit.ID, 5))
	assert.ErrorIs(t, s.RemoveMember(ctx, f.ID, recruit.ID, 5), storage.ErrConflict)

	require.NoError(t, s.DisbandFaction(ctx, f.ID, now))
	c, err := s.GetCharacter(ctx, leader.ID)
	require.NoError(t, err)
	assert.Nil(t, c.FactionID)
	assert.Equal(t, int64(400), c.Bank)
}

func TestAcceptInvite_MemberCap(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	now := time.Now().UTC()
	leader := storagetest.Character(t, s, "Solo", 0, 0)
	recruit := storagetest.Character(t, s, "Late", 0, 0)

	f := &models.Faction{Name: "Lonely", Tag: "LON", Type: models.FactionOther, LeaderID: leader.ID, MemberCap: 1}
	require.NoError(t, s.CreateFaction(ctx, f, []models.FactionRank{{Level: 10, Name: "Leader"}}, 10))
	require.NoError(t, s.CreateInvite(ctx, &models.FactionInvite{FactionID: f.ID, InviteeID: recruit.ID, InviterID: leader.ID, ExpiresAt: now.Add(time.Hour)}, now))

	_, err := s.AcceptInvite(ctx, recruit.ID, f.ID, 1, now)
	assert.ErrorIs(t, err, storage.ErrFull)

	_, err = s.AcceptInvite(ctx, recruit.ID, f.ID, 1, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, storage.ErrNotFound, "expired invite")
}

func TestWars_UnorderedPair(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	a := storagetest.Character(t, s, "Leader_A", 0, 0)
	b := storagetest.Character(t, s, "Leader_B", 0, 0)
	fa := &models.Faction{Name: "Grove", Tag: "GSF", Type: models.FactionGang, LeaderID: a.ID, MemberCap: 5}
	fb := &models.Faction{Name: "Vagos", Tag: "LSV", Type: models.FactionGang, LeaderID: b.ID, MemberCap: 5}
	require.NoError(t, s.CreateFaction(ctx, fa, nil, 10))
	require.NoError(t, s.CreateFaction(ctx, fb, nil, 10))

	require.NoError(t, s.CreateWar(ctx, &models.FactionWar{FactionA: fa.ID, FactionB: fb.ID, DeclaredBy: a.ID, StartedAt: time.Now().UTC()}))
	assert.ErrorIs(t, s.CreateWar(ctx, &models.FactionWar{FactionA: fb.ID, FactionB: fa.ID, DeclaredBy: b.ID, StartedAt: time.Now().UTC()}), storage.ErrConflict)

	wars, err := s.ListActiveWars(ctx)
	require.NoError(t, err)
	assert.Len(t, wars, 1)

	w, err := s.EndWar(ctx, fb.ID, fa.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, models.WarEnded, w.Status)
	_, err = s.EndWar(ctx, fa.ID, fb.ID, time.Now().UTC())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEmployment(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	c := storagetest.Character(t, s, "Worker", 0, 0)
	now := time.Now().UTC()

	require.NoError(t, s.CreateEmployment(ctx, &models.Employment{CharacterID: c.ID, JobID: "trucker", HiredAt: now}))
	assert.ErrorIs(t, s.CreateEmployment(ctx, &models.Employment{CharacterID: c.ID, JobID: "taxi", HiredAt: now}), storage.ErrConflict)

	_, err := s.PaySalary(ctx, c.ID, 100, now, now.Add(-time.Hour))
	assert.ErrorIs(t, err, storage.ErrConflict, "off duty")

	require.NoError(t, s.SetDuty(ctx, c.ID, true))
	assert.ErrorIs(t, s.SetDuty(ctx, c.ID, true), storage.ErrConflict)

	bank, err := s.PaySalary(ctx, c.ID, 100, now, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(100), bank)

	_, err = s.PaySalary(ctx, c.ID, 100, now.Add(time.Minute), now.Add(-time.Minute))
	assert.ErrorIs(t, err, storage.ErrConflict, "already paid this period")

	require.NoError(t, s.DeleteEmployment(ctx, c.ID))
	assert.ErrorIs(t, s.SetDuty(ctx, c.ID, false), storage.ErrNotFound)
}
