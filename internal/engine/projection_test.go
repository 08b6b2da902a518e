package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/huginn_fleet/internal/models"
	"github.com/friendsincode/huginn_fleet/internal/queue"
)

func newProjectionStore(t *testing.T) (*queue.Store, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.QueueItem{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return queue.New(db, zerolog.Nop()), db
}

func TestProjectEmptyFleetReportsNothing(t *testing.T) {
	t.Parallel()

	store, db := newProjectionStore(t)
	item := models.QueueItem{Link: "l", Name: "song", DesiredPlays: 5, DurationMin: 3, Status: models.StatusPlaying}
	if err := db.Create(&item).Error; err != nil {
		t.Fatal(err)
	}

	current, err := Project(context.Background(), store, 0)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if current.Link != "" || current.Name != "" || current.ChangeToken != 0 {
		t.Fatalf("expected empty projection with zero devices, got %+v", current)
	}
}

func TestProjectReturnsActiveItem(t *testing.T) {
	t.Parallel()

	store, db := newProjectionStore(t)
	item := models.QueueItem{Link: "spotify:track:z", Name: "song", DesiredPlays: 5,
		DurationMin: 2.5, Status: models.StatusPlaying}
	if err := db.Create(&item).Error; err != nil {
		t.Fatal(err)
	}

	current, err := Project(context.Background(), store, 3)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if current.Link != "spotify:track:z" || current.DurationMin != 2.5 {
		t.Fatalf("unexpected projection: %+v", current)
	}
	if current.ChangeToken == 0 {
		t.Fatal("active item must carry a non-zero change token")
	}
}

func TestProjectTokenStableWithinCycle(t *testing.T) {
	t.Parallel()

	store, db := newProjectionStore(t)
	item := models.QueueItem{Link: "l", Name: "song", DesiredPlays: 10, DurationMin: 3, Status: models.StatusPlaying}
	if err := db.Create(&item).Error; err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	first, err := Project(ctx, store, 2)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Project(ctx, store, 2)
	if err != nil {
		t.Fatal(err)
	}
	if first.ChangeToken != second.ChangeToken {
		t.Fatal("repeated polls within one cycle must see the same token")
	}

	// Progress advancing starts a new cycle and changes the token.
	if err := db.Model(&models.QueueItem{}).Where("id = ?", item.ID).
		Update("current_plays", gorm.Expr("current_plays + ?", 2)).Error; err != nil {
		t.Fatal(err)
	}

	third, err := Project(ctx, store, 2)
	if err != nil {
		t.Fatal(err)
	}
	if third.ChangeToken == first.ChangeToken {
		t.Fatal("token must change once persisted progress advances")
	}
}

func TestProjectSkipsExhaustedItem(t *testing.T) {
	t.Parallel()

	store, db := newProjectionStore(t)
	item := models.QueueItem{Link: "l", Name: "song", DesiredPlays: 5, CurrentPlays: 5,
		DurationMin: 3, Status: models.StatusPlaying}
	if err := db.Create(&item).Error; err != nil {
		t.Fatal(err)
	}

	current, err := Project(context.Background(), store, 2)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if current.Link != "" {
		t.Fatalf("item at target must not be projected, got %+v", current)
	}
}
