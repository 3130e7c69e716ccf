// SQLStore implements the server-based dedup store engine over gorm and
// postgres, for multi-host collections where several coordinator processes
// share one database (§4.2 "server-based option").
package store

import (
	"context"
	"errors"
	"time"

	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type fileRow struct {
	Workspace           string `gorm:"primaryKey"`
	SHA256              string `gorm:"primaryKey"`
	Size                int64
	Bytes               []byte
	MimeHint            string
	MatchedRuleIdx      int
	MatchedRulePriority int
	MatchedRuleSet      string
	Category            string
	Verdict             int
	Comment             string
}

func (fileRow) TableName() string { return "hunter_files" }

type pathRow struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	Workspace    string `gorm:"index"`
	HostProtocol string
	HostAddress  string
	HostPort     int
	HostShare    string
	FullPath     string
	ArchiveChain string
	FileSHA256   string `gorm:"index"`
	ObservedAt   time.Time
}

func (pathRow) TableName() string { return "hunter_paths" }

type hostRow struct {
	Workspace string `gorm:"primaryKey"`
	HostKey   string `gorm:"primaryKey"`
	Completed bool
}

func (hostRow) TableName() string { return "hunter_hosts" }

type ruleSnapshotRow struct {
	Workspace string `gorm:"primaryKey"`
	Snapshot  string
}

func (ruleSnapshotRow) TableName() string { return "hunter_rule_snapshots" }

// SQLStore is the gorm-backed server engine.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQL connects to a postgres DSN and migrates the hunter tables,
// grounded on the connect-and-AutoMigrate idiom gorm.io/gorm expects of
// its callers rather than on any teacher source (rclone has no SQL
// backend of its own).
func OpenSQL(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&fileRow{}, &pathRow{}, &hostRow{}, &ruleSnapshotRow{}); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Lookup(ctx context.Context, workspace, sha256 string) (model.File, error) {
	var row fileRow
	err := withRetry(ctx, 3, backoffSchedule, func() error {
		return s.db.WithContext(ctx).
			Where("workspace = ? AND sha256 = ?", workspace, sha256).
			First(&row).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.File{}, ErrNotFound
	}
	if err != nil {
		return model.File{}, fserrors.Retriable(err)
	}
	return fileFromRow(row), nil
}

// UpsertFile relies on Postgres's ON CONFLICT DO NOTHING over the
// (workspace, sha256) primary key so the earliest committed row always
// wins; a losing insert re-reads the winner in the same transaction.
func (s *SQLStore) UpsertFile(ctx context.Context, f model.File) (model.File, error) {
	row := rowFromFile(f)
	var result model.File
	err := withRetry(ctx, 3, backoffSchedule, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
			if err != nil {
				return err
			}
			var stored fileRow
			if err := tx.Where("workspace = ? AND sha256 = ?", f.Workspace, f.SHA256).
				First(&stored).Error; err != nil {
				return err
			}
			result = fileFromRow(stored)
			return nil
		})
	})
	if err != nil {
		return model.File{}, fserrors.Retriable(err)
	}
	return result, nil
}

func (s *SQLStore) AddPath(ctx context.Context, p model.Path) error {
	if p.ObservedAt.IsZero() {
		p.ObservedAt = time.Now()
	}
	row := pathRow{
		Workspace:    p.Workspace,
		HostProtocol: string(p.Host.Protocol),
		HostAddress:  p.Host.Address,
		HostPort:     p.Host.Port,
		HostShare:    p.Host.Share,
		FullPath:     p.FullPath,
		ArchiveChain: joinChain(p.ArchiveChain),
		FileSHA256:   p.FileSHA256,
		ObservedAt:   p.ObservedAt,
	}
	return withRetry(ctx, 3, backoffSchedule, func() error {
		return s.db.WithContext(ctx).Create(&row).Error
	})
}

func (s *SQLStore) MarkHostComplete(ctx context.Context, workspace string, host model.Host) error {
	row := hostRow{Workspace: workspace, HostKey: host.Key(), Completed: true}
	return withRetry(ctx, 3, backoffSchedule, func() error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace"}, {Name: "host_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"completed"}),
		}).Create(&row).Error
	})
}

func (s *SQLStore) HostCompleted(ctx context.Context, workspace string, host model.Host) (bool, error) {
	var row hostRow
	err := s.db.WithContext(ctx).
		Where("workspace = ? AND host_key = ?", workspace, host.Key()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.Completed, nil
}

func (s *SQLStore) PutRuleSnapshot(ctx context.Context, workspace string, rules []model.RuleSnapshot) error {
	raw, err := encodeRuleSnapshot(rules)
	if err != nil {
		return err
	}
	row := ruleSnapshotRow{Workspace: workspace, Snapshot: raw}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace"}},
		DoUpdates: clause.AssignmentColumns([]string{"snapshot"}),
	}).Create(&row).Error
}

func (s *SQLStore) ListForReview(ctx context.Context, workspace string) ([]ReviewRow, error) {
	var fileRows []fileRow
	if err := s.db.WithContext(ctx).Where("workspace = ?", workspace).Find(&fileRows).Error; err != nil {
		return nil, err
	}
	var pathRows []pathRow
	if err := s.db.WithContext(ctx).Where("workspace = ?", workspace).Find(&pathRows).Error; err != nil {
		return nil, err
	}

	pathsBySHA := map[string][]model.Path{}
	for _, pr := range pathRows {
		pathsBySHA[pr.FileSHA256] = append(pathsBySHA[pr.FileSHA256], pathFromRow(pr))
	}

	rows := make([]ReviewRow, 0, len(fileRows))
	for _, fr := range fileRows {
		f := fileFromRow(fr)
		rows = append(rows, ReviewRow{
			File:     f,
			Paths:    pathsBySHA[f.SHA256],
			Priority: fr.MatchedRulePriority,
			Category: f.Category,
		})
	}
	sortReviewRows(rows)
	return rows, nil
}

func (s *SQLStore) SetReview(ctx context.Context, workspace, sha256 string, verdict model.Verdict, comment string) error {
	res := s.db.WithContext(ctx).Model(&fileRow{}).
		Where("workspace = ? AND sha256 = ?", workspace, sha256).
		Updates(map[string]any{"verdict": int(verdict), "comment": comment})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

var _ Store = (*SQLStore)(nil)
