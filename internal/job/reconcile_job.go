package job

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/backmoon7/webhookengine/internal/model"
	"github.com/backmoon7/webhookengine/internal/reconcile"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReconcileJob runs the reconciler on a fixed interval, unattended, tracking
// its own last_event_id cursor across runs (a SPEC_FULL.md addition; the
// caller-driven /reconcile endpoint's starting_after_event_id contract is
// separate and unaffected).
type ReconcileJob struct {
	db         *gorm.DB
	reconciler *reconcile.Reconciler
	window     time.Duration
	pageLimit  int
	interval   time.Duration
	cursorName string
	stopCh     chan struct{}
}

func NewReconcileJob(db *gorm.DB, r *reconcile.Reconciler, window time.Duration, pageLimit int, interval time.Duration) *ReconcileJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ReconcileJob{
		db:         db,
		reconciler: r,
		window:     window,
		pageLimit:  pageLimit,
		interval:   interval,
		cursorName: "default",
		stopCh:     make(chan struct{}),
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Println("[ReconcileJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileJob] stopping: context canceled")
			return
		case <-j.stopCh:
			log.Println("[ReconcileJob] stopping")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *ReconcileJob) runOnce(ctx context.Context) {
	cursor, err := j.loadCursor(ctx)
	if err != nil {
		log.Printf("[ReconcileJob] load cursor failed: %v", err)
		return
	}

	opts := reconcile.Options{
		Limit:                j.pageLimit,
		CreatedAfter:         time.Now().Add(-j.window),
		StartingAfterEventID: cursor,
	}
	result := j.reconciler.Run(ctx, opts)

	if result.Total > 0 {
		log.Printf("[ReconcileJob] total=%d processed=%d duplicates=%d failed=%d",
			result.Total, result.Processed, result.Duplicates, result.Failed)
	}

	if result.LastEventID != "" {
		if err := j.saveCursor(ctx, result.LastEventID); err != nil {
			log.Printf("[ReconcileJob] save cursor failed: %v", err)
		}
	}
}

func (j *ReconcileJob) loadCursor(ctx context.Context) (string, error) {
	var row model.ReconcileCursor
	err := j.db.WithContext(ctx).Where("name = ?", j.cursorName).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.LastEventID, nil
}

func (j *ReconcileJob) saveCursor(ctx context.Context, lastEventID string) error {
	// Save() against the pre-populated Name primary key would only ever
	// UPDATE, matching zero rows on the very first run. Upsert instead.
	row := model.ReconcileCursor{Name: j.cursorName, LastEventID: lastEventID}
	return j.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}
