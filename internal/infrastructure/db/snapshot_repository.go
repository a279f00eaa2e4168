package db

import (
	"context"
	"errors"
	"time"

	"github.com/leadbridge/backend/internal/core/ports"
	"github.com/leadbridge/backend/internal/domain"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

// PanelState is the single-row table holding panel flags alongside the task
// rows.
type PanelState struct {
	ID        uint      `gorm:"primaryKey"`
	Minimized bool      `gorm:"not null;default:false"`
	SavedAt   time.Time `gorm:"not null"`
}

type snapshotRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewSnapshotRepository returns a SnapshotStore backed by Postgres. Each Save
// replaces the task rows with the snapshot contents in one transaction, so a
// reader never observes a half-written panel state.
func NewSnapshotRepository(database *gorm.DB, log *logger.Logger) ports.SnapshotStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &snapshotRepository{db: database, log: log}
}

func (r *snapshotRepository) Save(ctx context.Context, snap *domain.PanelSnapshot) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.Task{}).Error; err != nil {
			return err
		}
		if len(snap.Tasks) > 0 {
			if err := tx.Create(snap.Tasks).Error; err != nil {
				return err
			}
		}
		state := PanelState{ID: 1, Minimized: snap.Minimized, SavedAt: snap.SavedAt}
		return tx.Save(&state).Error
	})
	if err != nil {
		r.log.Errorw("snapshot_repo_save_failed", "tasks", len(snap.Tasks), "error", err)
		return err
	}
	return nil
}

func (r *snapshotRepository) Load(ctx context.Context) (*domain.PanelSnapshot, error) {
	var tasks []*domain.Task
	if err := r.db.WithContext(ctx).Find(&tasks).Error; err != nil {
		r.log.Errorw("snapshot_repo_load_failed", "error", err)
		return nil, err
	}

	var state PanelState
	if err := r.db.WithContext(ctx).First(&state, 1).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Errorw("snapshot_repo_state_load_failed", "error", err)
			return nil, err
		}
	}

	r.log.Infow("snapshot_repo_load_ok", "tasks", len(tasks))
	return &domain.PanelSnapshot{
		Tasks:     tasks,
		Minimized: state.Minimized,
		SavedAt:   state.SavedAt,
	}, nil
}
