package db

import (
	"fmt"

	"github.com/Archive-Origin/backend-sub002/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

// NewStore connects to postgres when a DSN is configured. Without one the
// store is nil-backed and the daemon runs on the in-memory ledger.
func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Store{DB: gdb}, nil
}

func (s *Store) Available() bool {
	return s != nil && s.DB != nil
}

// Migrate creates or updates the schema for all models.
func (s *Store) Migrate() error {
	if !s.Available() {
		return errDBUnavailable
	}
	return s.DB.AutoMigrate(
		&LedgerEntryModel{},
		&TreeRootModel{},
		&CertificateModel{},
	)
}
