package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when an evaluation id does not exist.
var ErrNotFound = errors.New("evaluation not found")

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Evaluation{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveEvaluation stores a run. A row for the same file-name key and variant is
// overwritten in place so the table holds the latest outcome per recording.
func (d *Database) SaveEvaluation(e *Evaluation) error {
	if e == nil {
		return errors.New("evaluation is nil")
	}
	e.SetFileNameKey(e.FileNameKey)
	d.mu.Lock()
	defer d.mu.Unlock()
	if e.FileNameKey == "" {
		return d.gorm.Create(e).Error
	}
	return d.gorm.Transaction(func(tx *gorm.DB) error {
		var existing Evaluation
		err := tx.Where("file_name_key = ? AND variant = ?", e.FileNameKey, e.Variant).
			Order("id DESC").
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(e).Error
		case err != nil:
			return err
		}
		e.ID = existing.ID
		e.CreatedAt = existing.CreatedAt
		return tx.Save(e).Error
	})
}

// GetEvaluation loads a single evaluation by id.
func (d *Database) GetEvaluation(id uint) (*Evaluation, error) {
	var row Evaluation
	if err := d.gorm.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// EvaluationQuery encapsulates filters and pagination for listing evaluation rows.
type EvaluationQuery struct {
	Campaign string
	Variant  string
	Status   string
	Offset   int
	Limit    int
}

// ListEvaluations returns paginated evaluation records applying optional filters,
// newest first, together with the filtered total.
func (d *Database) ListEvaluations(opts EvaluationQuery) ([]Evaluation, int64, error) {
	var total int64
	base := d.gorm.Model(&Evaluation{})
	if campaign := strings.TrimSpace(opts.Campaign); campaign != "" {
		base = base.Where("campaign_id = ?", campaign)
	}
	if variant := strings.TrimSpace(opts.Variant); variant != "" {
		base = base.Where("variant = ?", variant)
	}
	if status := strings.TrimSpace(opts.Status); status != "" {
		base = base.Where("status = ?", strings.ToUpper(status))
	}

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	queryBuilder := base.Order("evaluations.id DESC").Offset(opts.Offset)
	if opts.Limit > 0 {
		queryBuilder = queryBuilder.Limit(opts.Limit)
	}

	var rows []Evaluation
	if err := queryBuilder.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_evaluations_key_variant ON evaluations(file_name_key, variant)",
		"CREATE INDEX IF NOT EXISTS idx_evaluations_campaign_status ON evaluations(campaign_id, status)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
