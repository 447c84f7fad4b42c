package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/verdantclimate/verdant-backend/internal/catalog"
	"github.com/verdantclimate/verdant-backend/pkg/db/models"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// in-memory sqlite cannot take concurrent writers; funnel the pool
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Product{}, &models.InventoryItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	repo, err := NewRepository(db, cat)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo
}

func TestEnsureInitializedSeedsFromCatalog(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.EnsureInitialized(ctx); err != nil {
		t.Fatalf("ensure initialized: %v", err)
	}

	stock, err := repo.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if stock["gs-wind-ind-2020"] != 60 {
		t.Fatalf("expected 60 tonnes for gs-wind-ind-2020, got %d", stock["gs-wind-ind-2020"])
	}
}

func TestEnsureInitializedPreservesLiveStock(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.EnsureInitialized(ctx); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := repo.Decrement(ctx, map[string]int{"gs-wind-ind-2020": 15}); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	// second bootstrap must not reset rows back to catalog stock
	if err := repo.EnsureInitialized(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}

	remaining, err := repo.Remaining(ctx, "gs-wind-ind-2020")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 45 {
		t.Fatalf("expected 45 remaining, got %d", remaining)
	}
}

func TestReserveCheckReportsShortfall(t *testing.T) {
	t.Parallel()

	available := map[string]int{"gs-wind-ind-2020": 60}

	if err := ReserveCheck(map[string]int{"gs-wind-ind-2020": 60}, available); err != nil {
		t.Fatalf("exact quantity should pass: %v", err)
	}

	err := ReserveCheck(map[string]int{"gs-wind-ind-2020": 65}, available)
	if err == nil {
		t.Fatal("expected insufficient stock")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected structured details, got %T", typed.Details())
	}
	if details["product_id"] != "gs-wind-ind-2020" || details["requested"] != 65 || details["available"] != 60 {
		t.Fatalf("unexpected shortfall details: %+v", details)
	}
}

func TestReserveCheckUnknownProductIsShort(t *testing.T) {
	t.Parallel()

	err := ReserveCheck(map[string]int{"no-such-product": 1}, map[string]int{})
	if err == nil {
		t.Fatal("expected insufficient stock for untracked product")
	}
}

func TestDecrementFloorsAtZero(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.EnsureInitialized(ctx); err != nil {
		t.Fatalf("ensure initialized: %v", err)
	}

	// repeated decrements summing past the stock never drive the row negative
	for i := 0; i < 5; i++ {
		if err := repo.Decrement(ctx, map[string]int{"gs-wind-ind-2020": 25}); err != nil {
			t.Fatalf("decrement %d: %v", i, err)
		}
		remaining, err := repo.Remaining(ctx, "gs-wind-ind-2020")
		if err != nil {
			t.Fatalf("remaining: %v", err)
		}
		if remaining < 0 {
			t.Fatalf("inventory went negative: %d", remaining)
		}
	}

	remaining, err := repo.Remaining(ctx, "gs-wind-ind-2020")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected floor at 0, got %d", remaining)
	}
}

func TestDecrementNoOversellUnderConcurrency(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.EnsureInitialized(ctx); err != nil {
		t.Fatalf("ensure initialized: %v", err)
	}

	// 12 buyers race for 10 tonnes each against 60 in stock. The conditional
	// update absorbs the overshoot: exactly the seeded stock is consumed and
	// the row never goes negative.
	const (
		buyers      = 12
		perBuyer    = 10
		seededStock = 60
	)

	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Decrement(ctx, map[string]int{"gs-wind-ind-2020": perBuyer})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("decrement: %v", err)
		}
	}

	remaining, err := repo.Remaining(ctx, "gs-wind-ind-2020")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining < 0 {
		t.Fatalf("inventory went negative: %d", remaining)
	}
	if consumed := seededStock - remaining; consumed > seededStock {
		t.Fatalf("consumed %d tonnes from a stock of %d", consumed, seededStock)
	}
	if remaining != 0 {
		t.Fatalf("expected stock fully consumed, got %d remaining", remaining)
	}

	stock, err := repo.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for id, qty := range stock {
		if qty < 0 {
			t.Fatalf("product %s went negative: %d", id, qty)
		}
	}
}

func TestDecrementIgnoresNonPositiveQuantities(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.EnsureInitialized(ctx); err != nil {
		t.Fatalf("ensure initialized: %v", err)
	}

	if err := repo.Decrement(ctx, map[string]int{"gs-wind-ind-2020": 0, "vcs-forest-bra-2019": -4}); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	stock, err := repo.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if stock["gs-wind-ind-2020"] != 60 || stock["vcs-forest-bra-2019"] != 120 {
		t.Fatalf("stock should be untouched: %+v", stock)
	}
}
