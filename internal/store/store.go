package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	Image() Image
	Symbol() Symbol
	InitialMigration(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db     *gorm.DB
	job    Job
	image  Image
	symbol Symbol
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		job:    NewJobStore(db),
		image:  NewImageStore(db),
		symbol: NewSymbolStore(db),
		db:     db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Image() Image {
	return s.image
}

func (s *DataStore) Symbol() Symbol {
	return s.symbol
}

func (s *DataStore) InitialMigration(ctx context.Context) error {
	if err := s.Image().InitialMigration(ctx); err != nil {
		return err
	}
	if err := s.Job().InitialMigration(ctx); err != nil {
		return err
	}
	return s.Symbol().InitialMigration(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
