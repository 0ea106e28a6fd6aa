// Package sqlstore keeps options in a MySQL table laid out like WordPress's
// options table (option_name / option_value / autoload).
//
// Values are JSON documents, so the table should be dedicated to easysmtp
// rather than a live WordPress options table, whose rows are PHP-serialized.
// An existing table is used as is and never altered.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const defaultTable = "wp_options"

type option struct {
	ID       uint64 `gorm:"column:option_id;primaryKey;autoIncrement"`
	Name     string `gorm:"column:option_name;size:191;uniqueIndex;not null"`
	Value    string `gorm:"column:option_value;type:longtext;not null"`
	Autoload string `gorm:"column:autoload;size:20;not null;default:yes"`
}

// Store implements store.Store on a gorm connection.
type Store struct {
	db    *gorm.DB
	table string
}

// Open connects to MySQL with dsn and ensures the options table exists.
func Open(dsn, table string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}

	s := New(db, table)
	if err := s.ensureTable(s.db.Table(s.table).Migrator()); err != nil {
		return nil, fmt.Errorf("failed to migrate %s: %w", s.table, err)
	}
	return s, nil
}

// ensureTable creates the options table when it is missing.
func (s *Store) ensureTable(m gorm.Migrator) error {
	if m.HasTable(s.table) {
		return nil
	}
	return m.AutoMigrate(&option{})
}

// New wraps an open gorm handle. An empty table selects wp_options.
func New(db *gorm.DB, table string) *Store {
	if table == "" {
		table = defaultTable
	}
	return &Store{db: db, table: table}
}

// Table returns the table options are stored in.
func (s *Store) Table() string {
	return s.table
}

func (s *Store) Get(ctx context.Context, name string) ([]byte, bool, error) {
	var row option
	err := s.find(s.db.WithContext(ctx), name, &row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(row.Value), true, nil
}

func (s *Store) find(db *gorm.DB, name string, row *option) *gorm.DB {
	return db.Table(s.table).Where("option_name = ?", name).Take(row)
}

func (s *Store) Set(ctx context.Context, name string, value []byte) error {
	return s.upsert(s.db.WithContext(ctx), name, value).Error
}

func (s *Store) upsert(db *gorm.DB, name string, value []byte) *gorm.DB {
	return db.Table(s.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "option_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"option_value"}),
		}).
		Create(&option{Name: name, Value: string(value), Autoload: "yes"})
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return s.remove(s.db.WithContext(ctx), name).Error
}

func (s *Store) remove(db *gorm.DB, name string) *gorm.DB {
	return db.Table(s.table).Where("option_name = ?", name).Delete(&option{})
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
