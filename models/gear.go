package models

import (
	"strings"
	"time"
)

const GearTable = "lsm_gears"

type GearType string

const (
	GearTank      GearType = "tank"
	GearRegulator GearType = "regulator"
	GearBCD       GearType = "bcd"
)

// 展示顺序：气瓶 → 调节器 → BCD
var GearTypes = []GearType{GearTank, GearRegulator, GearBCD}

func (t GearType) Valid() bool {
	for _, g := range GearTypes {
		if g == t {
			return true
		}
	}
	return false
}

// Rank 返回类型在展示顺序中的位置，未知类型排最后
func (t GearType) Rank() int {
	for i, g := range GearTypes {
		if g == t {
			return i
		}
	}
	return len(GearTypes)
}

var (
	TankSizes = []string{"", "6L", "7L", "9L", "10L", "12L", "15L", "18L"}
	BCDSizes  = []string{"", "Enfant", "XXS", "XS", "S", "M", "L", "XL", "XXL"}
)

// AllowedSizes 返回该类型允许的尺寸；nil 表示不限制
func (t GearType) AllowedSizes() []string {
	switch t {
	case GearTank:
		return TankSizes
	case GearBCD:
		return BCDSizes
	}
	return nil
}

type Gear struct {
	ID      string   `gorm:"type:uuid;primaryKey" json:"id"`
	Type    GearType `gorm:"size:20;not null;uniqueIndex:lsm_gears_type_name" json:"type"`
	Name    string   `gorm:"size:120;not null;uniqueIndex:lsm_gears_type_name" json:"name"`
	BarCode string   `gorm:"column:barcode;size:120;uniqueIndex;not null" json:"barcode"`
	Size    string   `gorm:"size:20" json:"size"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Gear) TableName() string { return GearTable }

// DisplayName 例如 "tank 12"
func (g Gear) DisplayName() string {
	return strings.TrimSpace(string(g.Type) + " " + g.Name)
}
