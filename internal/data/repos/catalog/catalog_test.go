package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/bookrec-backend/internal/data/repos/testutil"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
)

func TestBookRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: db}
	repo := NewBookRepo(db, testutil.Logger(t))

	scifi := testutil.SeedCategory(t, ctx, db, "scifi")
	history := testutil.SeedCategory(t, ctx, db, "history")
	b1 := testutil.SeedBook(t, ctx, db, "Dune", "Herbert", scifi, 4.5)
	b2 := testutil.SeedBook(t, ctx, db, "Foundation", "Asimov", scifi, 4.8)
	b3 := testutil.SeedBook(t, ctx, db, "SPQR", "Beard", history, 4.1)

	got, err := repo.GetByID(dbc, b1.ID)
	if err != nil || got == nil || got.CategoryName() != "scifi" {
		t.Fatalf("GetByID: got=%+v err=%v", got, err)
	}
	if missing, err := repo.GetByID(dbc, 9999); err != nil || missing != nil {
		t.Fatalf("GetByID missing: got=%v err=%v", missing, err)
	}

	ordered, err := repo.GetByIDs(dbc, []int64{b3.ID, b1.ID, 9999})
	if err != nil || len(ordered) != 2 || ordered[0].ID != b3.ID || ordered[1].ID != b1.ID {
		t.Fatalf("GetByIDs order: %v err=%v", ordered, err)
	}

	popular, err := repo.ListPopular(dbc, []int64{b2.ID}, 5)
	if err != nil || len(popular) != 2 || popular[0].ID != b1.ID {
		t.Fatalf("ListPopular: %v err=%v", popular, err)
	}

	found, err := repo.Search(dbc, "Asim", 2)
	if err != nil || len(found) != 1 || found[0].ID != b2.ID {
		t.Fatalf("Search: %v err=%v", found, err)
	}

	byCat, err := repo.ListByCategoryNames(dbc, []string{"history"}, 10)
	if err != nil || len(byCat) != 1 || byCat[0].ID != b3.ID {
		t.Fatalf("ListByCategoryNames: %v err=%v", byCat, err)
	}

	names, err := repo.ListCategoryNames(dbc)
	if err != nil || len(names) != 2 || names[0] != "history" {
		t.Fatalf("ListCategoryNames: %v err=%v", names, err)
	}

	page, err := repo.ListAfterID(dbc, b1.ID, 10)
	if err != nil || len(page) != 2 || page[0].ID != b2.ID {
		t.Fatalf("ListAfterID: %v err=%v", page, err)
	}
}

func TestInteractionRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: db}
	repo := NewInteractionRepo(db, testutil.Logger(t))

	scifi := testutil.SeedCategory(t, ctx, db, "scifi")
	history := testutil.SeedCategory(t, ctx, db, "history")
	b1 := testutil.SeedBook(t, ctx, db, "Dune", "Herbert", scifi, 4.5)
	b2 := testutil.SeedBook(t, ctx, db, "SPQR", "Beard", history, 4.1)

	base := time.Now().UTC().Add(-time.Hour)
	testutil.SeedInteraction(t, ctx, db, 1, b1.ID, "click", base)
	testutil.SeedInteraction(t, ctx, db, 1, b1.ID, "collect", base.Add(time.Minute))
	testutil.SeedInteraction(t, ctx, db, 1, b2.ID, "click", base.Add(2*time.Minute))

	recent, err := repo.ListRecentByUser(dbc, 1, 2)
	if err != nil || len(recent) != 2 {
		t.Fatalf("ListRecentByUser: len=%d err=%v", len(recent), err)
	}
	if recent[0].BookID != b2.ID || recent[0].Book == nil || recent[0].Book.CategoryName() != "history" {
		t.Fatalf("expected newest first with book loaded, got %+v", recent[0])
	}

	counts, err := repo.CategoryCounts(dbc, 1)
	if err != nil || len(counts) != 2 {
		t.Fatalf("CategoryCounts: %v err=%v", counts, err)
	}
	if counts[0].Name != "scifi" || counts[0].Count != 2 {
		t.Fatalf("unexpected first count %+v", counts[0])
	}
}

func TestUserAndSearchRepos(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: db}

	u := testutil.SeedUser(t, ctx, db, "reader")
	if err := db.Model(u).Update("preferred_categories", "scifi, history ,").Error; err != nil {
		t.Fatalf("update prefs: %v", err)
	}
	users := NewUserRepo(db, testutil.Logger(t))
	prefs, err := users.PreferredCategories(dbc, u.ID)
	if err != nil || len(prefs) != 2 || prefs[1] != "history" {
		t.Fatalf("PreferredCategories: %v err=%v", prefs, err)
	}
	if page, err := users.ListAfterID(dbc, 0, 10); err != nil || len(page) != 1 || page[0].ID != u.ID {
		t.Fatalf("ListAfterID: %v err=%v", page, err)
	}

	searches := NewSearchLogRepo(db, testutil.Logger(t))
	now := time.Now().UTC()
	testutil.SeedSearch(t, ctx, db, u.ID, "old", now.Add(-time.Hour))
	testutil.SeedSearch(t, ctx, db, u.ID, "new", now)
	rows, err := searches.ListRecentByUser(dbc, u.ID, 1)
	if err != nil || len(rows) != 1 || rows[0].Query != "new" {
		t.Fatalf("ListRecentByUser: %v err=%v", rows, err)
	}
}
