package model

import (
	"encoding/json"

	"gorm.io/gorm"
)

type SymbolTable struct {
	gorm.Model
	KernelVersion string `gorm:"primaryKey;type:VARCHAR(255)"`
	Path          string `gorm:"not null"`
	Strategy      string `gorm:"not null"`
	Degraded      bool   `gorm:"not null;default:false"`
}

type SymbolTableList []SymbolTable

func (s SymbolTable) String() string {
	val, _ := json.Marshal(s)
	return string(val)
}
