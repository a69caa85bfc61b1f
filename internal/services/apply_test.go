package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
)

func change(version int64, entityType string, id int64, action domain.Action, payload string) domain.ChangeLogEntry {
	return domain.ChangeLogEntry{Version: version, StoreID: 1, EntityType: entityType, EntityID: id, Action: action, Payload: payload}
}

func applyAll(t *testing.T, db *gorm.DB, changes []domain.ChangeLogEntry, policy ApplyPolicy) (BatchResult, error) {
	t.Helper()
	var (
		res      BatchResult
		applyErr error
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		res, applyErr = ApplyBatch(context.Background(), tx, DefaultRegistry(), changes, policy)
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	return res, applyErr
}

func TestApply_UpsertIsIdempotent(t *testing.T) {
	db := newTerminalDB(t, "apply")
	changes := []domain.ChangeLogEntry{
		change(1, "product", 1, domain.ActionCreate, `{"name":"Cola","price_cents":150,"stock":10,"active":true}`),
		change(2, "product", 1, domain.ActionUpdate, `{"name":"Cola","price_cents":150,"stock":11,"active":true}`),
	}

	for i := 0; i < 3; i++ {
		res, err := applyAll(t, db, changes, ApplySkip)
		if err != nil || res.Applied != 2 || res.Failed != 0 {
			t.Fatalf("round %d: res=%+v err=%v", i, res, err)
		}
	}
	p := product(t, db, 1)
	if p.Stock != 11 || p.Name != "Cola" {
		t.Fatalf("unexpected product: %+v", p)
	}
	var n int64
	db.Model(&domain.Product{}).Count(&n)
	if n != 1 {
		t.Fatalf("replays created %d rows", n)
	}
}

func TestApply_EntityIDOverridesPayloadID(t *testing.T) {
	db := newTerminalDB(t, "apply-id")
	if _, err := applyAll(t, db, []domain.ChangeLogEntry{
		change(1, "category", 7, domain.ActionCreate, `{"id":99,"name":"Snacks"}`),
	}, ApplySkip); err != nil {
		t.Fatalf("apply: %v", err)
	}
	var c domain.Category
	if err := db.First(&c, 7).Error; err != nil || c.Name != "Snacks" {
		t.Fatalf("category 7 = %+v, %v", c, err)
	}
}

func TestApply_DeleteMissingIsNoop(t *testing.T) {
	db := newTerminalDB(t, "apply-del")
	res, err := applyAll(t, db, []domain.ChangeLogEntry{
		change(1, "user", 3, domain.ActionCreate, `{"username":"ana","role":"manager","active":true}`),
		change(2, "user", 3, domain.ActionDelete, `{"id":3}`),
		change(3, "user", 3, domain.ActionDelete, ``),
	}, ApplySkip)
	if err != nil || res.Applied != 3 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	var n int64
	db.Model(&domain.User{}).Count(&n)
	if n != 0 {
		t.Fatalf("user not deleted")
	}
}

func TestApply_UnknownEntitySkippedWithoutFailure(t *testing.T) {
	db := newTerminalDB(t, "apply-unknown")
	res, err := applyAll(t, db, []domain.ChangeLogEntry{
		change(1, "invoice", 1, domain.ActionCreate, `{}`),
		change(2, "product", 1, domain.ActionCreate, `{"name":"Tea"}`),
	}, ApplyHalt)
	if err != nil {
		t.Fatalf("unknown entity must not halt: %v", err)
	}
	if res.Skipped != 1 || res.Applied != 1 {
		t.Fatalf("res=%+v", res)
	}
}

func TestApply_SkipPolicyIsolatesFailure(t *testing.T) {
	db := newTerminalDB(t, "apply-skip")
	res, err := applyAll(t, db, []domain.ChangeLogEntry{
		change(1, "product", 1, domain.ActionCreate, `{"name":"A"}`),
		change(2, "product", 2, domain.ActionCreate, `{not json`),
		change(3, "product", 3, domain.ActionCreate, `{"name":"C"}`),
	}, ApplySkip)
	if err != nil {
		t.Fatalf("skip policy returned %v", err)
	}
	if res.Applied != 2 || res.Failed != 1 || res.HaltedAt != 0 {
		t.Fatalf("res=%+v", res)
	}
	var n int64
	db.Model(&domain.Product{}).Count(&n)
	if n != 2 {
		t.Fatalf("expected 2 products, got %d", n)
	}
}

func TestApply_HaltPolicyStopsAtFailure(t *testing.T) {
	db := newTerminalDB(t, "apply-halt")
	res, err := applyAll(t, db, []domain.ChangeLogEntry{
		change(4, "product", 1, domain.ActionCreate, `{"name":"A"}`),
		change(5, "product", 2, domain.ActionUpdate, ``),
		change(6, "product", 3, domain.ActionCreate, `{"name":"C"}`),
	}, ApplyHalt)
	if !errors.Is(err, ErrApply) {
		t.Fatalf("want ErrApply, got %v", err)
	}
	if res.Applied != 1 || res.Failed != 1 || res.HaltedAt != 5 {
		t.Fatalf("res=%+v", res)
	}
	var n int64
	db.Model(&domain.Product{}).Count(&n)
	if n != 1 {
		t.Fatalf("changes before the failure must stay applied; got %d rows", n)
	}
}

func TestRegistry_ApplyUnknownAndCustom(t *testing.T) {
	db := newTerminalDB(t, "registry")
	reg := NewRegistry()
	ctx := context.Background()

	if err := reg.Apply(ctx, db, "product", domain.ActionCreate, 1, "{}"); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("want ErrUnknownEntity, got %v", err)
	}

	var calls int
	reg.Register(" Product ", func(ctx context.Context, tx *gorm.DB, a domain.Action, id int64, p string) error {
		calls++
		return nil
	})
	if err := reg.Apply(ctx, db, "PRODUCT", domain.ActionDelete, 1, ""); err != nil || calls != 1 {
		t.Fatalf("custom apply: err=%v calls=%d", err, calls)
	}
}

func TestParseApplyPolicy(t *testing.T) {
	for in, want := range map[string]ApplyPolicy{"halt": ApplyHalt, " HALT ": ApplyHalt, "skip": ApplySkip, "": ApplySkip, "other": ApplySkip} {
		if got := ParseApplyPolicy(in); got != want {
			t.Fatalf("ParseApplyPolicy(%q) = %q, want %q", in, got, want)
		}
	}
}
