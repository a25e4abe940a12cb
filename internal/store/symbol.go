package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/virtforensics/memory-inspector/internal/store/model"
)

type Symbol interface {
	List(ctx context.Context) (model.SymbolTableList, error)
	Get(ctx context.Context, kernelVersion string) (*model.SymbolTable, error)
	Upsert(ctx context.Context, table model.SymbolTable) (*model.SymbolTable, error)
	Delete(ctx context.Context, kernelVersion string) error
	InitialMigration(ctx context.Context) error
}

type SymbolStore struct {
	db *gorm.DB
}

// Make sure we conform to Symbol interface
var _ Symbol = (*SymbolStore)(nil)

func NewSymbolStore(db *gorm.DB) Symbol {
	return &SymbolStore{db: db}
}

func (s *SymbolStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.SymbolTable{})
}

func (s *SymbolStore) List(ctx context.Context) (model.SymbolTableList, error) {
	var tables model.SymbolTableList
	if result := s.getDB(ctx).Model(&tables).Order("kernel_version").Find(&tables); result.Error != nil {
		return nil, result.Error
	}
	return tables, nil
}

func (s *SymbolStore) Get(ctx context.Context, kernelVersion string) (*model.SymbolTable, error) {
	table := model.SymbolTable{KernelVersion: kernelVersion}
	if result := s.getDB(ctx).First(&table); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &table, nil
}

// Upsert records a resolved symbol table. A later resolution for the same
// kernel replaces the previous row so a degraded table can be upgraded once a
// better strategy succeeds.
func (s *SymbolStore) Upsert(ctx context.Context, table model.SymbolTable) (*model.SymbolTable, error) {
	result := s.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kernel_version"}},
		DoUpdates: clause.AssignmentColumns([]string{"path", "strategy", "degraded", "updated_at"}),
	}).Create(&table)
	if result.Error != nil {
		return nil, result.Error
	}
	return &table, nil
}

func (s *SymbolStore) Delete(ctx context.Context, kernelVersion string) error {
	result := s.getDB(ctx).Unscoped().Delete(&model.SymbolTable{KernelVersion: kernelVersion})
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (s *SymbolStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
