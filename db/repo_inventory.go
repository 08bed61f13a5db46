package db

import (
	"context"
	"fmt"

	"Gin_postgres_redis_gear_kiosk/models"

	"gorm.io/gorm"
)

// InventoryChanges 管理界面一次提交的全部改动（已校验）
type InventoryChanges struct {
	CreateUsers   []models.User
	UpdateUsers   []models.User
	DeleteUserIDs []string

	CreateGears   []models.Gear
	UpdateGears   []models.Gear
	DeleteGearIDs []string
}

func (c InventoryChanges) Empty() bool {
	return len(c.CreateUsers)+len(c.UpdateUsers)+len(c.DeleteUserIDs)+
		len(c.CreateGears)+len(c.UpdateGears)+len(c.DeleteGearIDs) == 0
}

// ApplyInventory 单事务提交：先删（释放唯一名），再改，最后建
func (r *Repo) ApplyInventory(ctx context.Context, c InventoryChanges) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(c.DeleteUserIDs) > 0 {
			if err := tx.Where("id IN ?", c.DeleteUserIDs).Delete(&models.User{}).Error; err != nil {
				return fmt.Errorf("delete users: %w", err)
			}
		}
		if len(c.DeleteGearIDs) > 0 {
			if err := tx.Where("id IN ?", c.DeleteGearIDs).Delete(&models.Gear{}).Error; err != nil {
				return fmt.Errorf("delete gears: %w", err)
			}
		}
		for _, u := range c.UpdateUsers {
			res := tx.Model(&models.User{}).Where("id = ?", u.ID).
				Select("name", "phone").
				Updates(&u)
			if res.Error != nil {
				return fmt.Errorf("update user %s: %w", u.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("update user %s: %w", u.ID, ErrNotFound)
			}
		}
		for _, g := range c.UpdateGears {
			res := tx.Model(&models.Gear{}).Where("id = ?", g.ID).
				Select("type", "name", "barcode", "size").
				Updates(&g)
			if res.Error != nil {
				return fmt.Errorf("update gear %s: %w", g.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("update gear %s: %w", g.ID, ErrNotFound)
			}
		}
		if len(c.CreateUsers) > 0 {
			if err := tx.Create(&c.CreateUsers).Error; err != nil {
				return fmt.Errorf("create users: %w", err)
			}
		}
		if len(c.CreateGears) > 0 {
			if err := tx.Create(&c.CreateGears).Error; err != nil {
				return fmt.Errorf("create gears: %w", err)
			}
		}
		return nil
	})
}
