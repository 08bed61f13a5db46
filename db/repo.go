package db

import (
	"context"
	"errors"
	"strings"

	"Gin_postgres_redis_gear_kiosk/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAmbiguousGear       = errors.New("several gears share this name")
	ErrGearAlreadyBorrowed = errors.New("gear already borrowed")
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// IsDuplicate 唯一约束冲突（需开启 gorm.Config.TranslateError）
func IsDuplicate(err error) bool { return errors.Is(err, gorm.ErrDuplicatedKey) }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Users

func (r *Repo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// 全部用户，按名字排序（用户规模很小，一次取完）
func (r *Repo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.DB.WithContext(ctx).Order("name ASC").Find(&users).Error
	return users, err
}

// Gears

func (r *Repo) FindGearByID(ctx context.Context, id string) (*models.Gear, error) {
	var g models.Gear
	if err := r.DB.WithContext(ctx).First(&g, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (r *Repo) ListGears(ctx context.Context) ([]models.Gear, error) {
	var gears []models.Gear
	err := r.DB.WithContext(ctx).Order("type, name").Find(&gears).Error
	return gears, err
}

// FindGearByInput 扫码/键盘输入：先按名字（不区分大小写），再按条码（精确）
func (r *Repo) FindGearByInput(ctx context.Context, input string) (*models.Gear, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrNotFound
	}
	db := r.DB.WithContext(ctx)

	var byName []models.Gear
	if err := db.Where("LOWER(name) = ?", strings.ToLower(input)).Limit(2).Find(&byName).Error; err != nil {
		return nil, err
	}
	if len(byName) == 1 {
		return &byName[0], nil
	}

	var g models.Gear
	err := db.Where("barcode = ?", input).First(&g).Error
	if err == nil {
		return &g, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if len(byName) > 1 {
		return nil, ErrAmbiguousGear
	}
	return nil, ErrNotFound
}

type GearState struct {
	Gear     models.Gear
	Borrowed bool
}

// ListGearStates 全部器材 + 是否存在 open 借用
func (r *Repo) ListGearStates(ctx context.Context) ([]GearState, error) {
	gears, err := r.ListGears(ctx)
	if err != nil {
		return nil, err
	}
	var openIDs []string
	if err := r.DB.WithContext(ctx).Model(&models.Borrowing{}).
		Where("state = ?", models.BorrowingOpen).
		Distinct().Pluck("gear_id", &openIDs).Error; err != nil {
		return nil, err
	}
	open := make(map[string]bool, len(openIDs))
	for _, id := range openIDs {
		open[id] = true
	}
	out := make([]GearState, 0, len(gears))
	for _, g := range gears {
		out = append(out, GearState{Gear: g, Borrowed: open[g.ID]})
	}
	return out, nil
}
