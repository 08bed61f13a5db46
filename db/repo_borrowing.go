package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"Gin_postgres_redis_gear_kiosk/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListActiveBorrowings 当前未归还的借用（含用户与器材），按借出时间升序
func (r *Repo) ListActiveBorrowings(ctx context.Context) ([]models.Borrowing, error) {
	var bs []models.Borrowing
	err := r.DB.WithContext(ctx).
		Preload("User").Preload("Gear").
		Where("state = ?", models.BorrowingOpen).
		Order("borrow_time ASC").
		Find(&bs).Error
	return bs, err
}

// FindOpenBorrowing 返回该器材的 open 借用；没有时返回 nil, nil
func (r *Repo) FindOpenBorrowing(ctx context.Context, gearID string) (*models.Borrowing, error) {
	var bs []models.Borrowing
	if err := r.DB.WithContext(ctx).
		Preload("User").
		Where("gear_id = ? AND state = ?", gearID, models.BorrowingOpen).
		Order("borrow_time DESC").
		Limit(1).
		Find(&bs).Error; err != nil {
		return nil, err
	}
	if len(bs) == 0 {
		return nil, nil
	}
	return &bs[0], nil
}

type BorrowCommit struct {
	UserID     string
	GearIDs    []string
	ForceClose []string // 扫码时确认要强制关闭的借用 ID
	Comment    string
	At         time.Time
}

// 锁住器材行（按 ID 排序加锁，避免多终端死锁）
func lockGears(tx *gorm.DB, gearIDs []string) error {
	ids := append([]string(nil), gearIDs...)
	sort.Strings(ids)
	for _, id := range ids {
		var g models.Gear
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&g, "id = ?", id).Error; err != nil {
			return fmt.Errorf("gear %s: %w", id, notFound(err))
		}
	}
	return nil
}

func appendCommentExpr(extra string) clause.Expr {
	return gorm.Expr("CASE WHEN COALESCE(comment, '') = '' THEN ? ELSE comment || ' ' || ? END", extra, extra)
}

// forceClose 只作用于仍为 open 的借用；已被别处关闭时 RowsAffected 为 0
func forceClose(tx *gorm.DB, borrowingID string, at time.Time) *gorm.DB {
	return tx.Model(&models.Borrowing{}).
		Where("id = ? AND state = ?", borrowingID, models.BorrowingOpen).
		Updates(map[string]any{
			"state":       models.BorrowingForcedClose,
			"return_time": at,
			"comment":     appendCommentExpr(models.ForcedCloseComment),
		})
}

// openGearIDs 列出仍有 open 借用的器材
func openGearIDs(tx *gorm.DB, gearIDs []string, dest *[]string) *gorm.DB {
	return tx.Model(&models.Borrowing{}).
		Where("gear_id IN ? AND state = ?", gearIDs, models.BorrowingOpen).
		Pluck("gear_id", dest)
}

// closeReturned 归还一条 open 借用，备注追加在原备注之后
func closeReturned(tx *gorm.DB, l ReturnLine, at time.Time) *gorm.DB {
	updates := map[string]any{
		"state":       models.BorrowingReturned,
		"return_time": at,
	}
	if l.Comment != "" {
		updates["comment"] = appendCommentExpr(l.Comment)
	}
	return tx.Model(&models.Borrowing{}).
		Where("id = ? AND state = ?", l.BorrowingID, models.BorrowingOpen).
		Updates(updates)
}

// CommitBorrow 原子操作 = 锁器材 → 强制关闭旧借用 → 校验无其它 open → 新建借用
func (r *Repo) CommitBorrow(ctx context.Context, in BorrowCommit) ([]models.Borrowing, error) {
	var created []models.Borrowing
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.First(&u, "id = ?", in.UserID).Error; err != nil {
			return fmt.Errorf("user %s: %w", in.UserID, notFound(err))
		}
		if err := lockGears(tx, in.GearIDs); err != nil {
			return err
		}

		// 乐观：别的终端已关闭的借用直接跳过
		for _, id := range in.ForceClose {
			if err := forceClose(tx, id, in.At).Error; err != nil {
				return err
			}
		}

		var stillOpen []string
		if err := openGearIDs(tx, in.GearIDs, &stillOpen).Error; err != nil {
			return err
		}
		if len(stillOpen) > 0 {
			return fmt.Errorf("%w: %s", ErrGearAlreadyBorrowed, stillOpen[0])
		}

		uid := u.ID
		for _, gid := range in.GearIDs {
			created = append(created, models.Borrowing{
				ID:         uuid.NewString(),
				GearID:     gid,
				UserID:     &uid,
				BorrowTime: in.At,
				Comment:    in.Comment,
				State:      models.BorrowingOpen,
			})
		}
		if len(created) == 0 {
			return nil
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

type ReturnLine struct {
	GearID      string
	BorrowingID string // 为空表示扫码时没有 open 借用
	Comment     string
}

type ReturnCommit struct {
	Lines []ReturnLine
	At    time.Time
}

// CommitReturn 关闭扫到的借用；未借先还的器材写一条借出=归还的记录
func (r *Repo) CommitReturn(ctx context.Context, in ReturnCommit) ([]models.Borrowing, error) {
	var touched []models.Borrowing
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gearIDs := make([]string, 0, len(in.Lines))
		for _, l := range in.Lines {
			gearIDs = append(gearIDs, l.GearID)
		}
		if err := lockGears(tx, gearIDs); err != nil {
			return err
		}

		for _, l := range in.Lines {
			if l.BorrowingID == "" {
				b := models.Borrowing{
					ID:         uuid.NewString(),
					GearID:     l.GearID,
					BorrowTime: in.At,
					ReturnTime: &in.At,
					Comment:    models.AppendComment(models.ReturnedUnborrowComment, l.Comment),
					State:      models.BorrowingReturned,
				}
				if err := tx.Create(&b).Error; err != nil {
					return err
				}
				touched = append(touched, b)
				continue
			}

			res := closeReturned(tx, l, in.At)
			if res.Error != nil {
				return res.Error
			}
			// 已被其它终端关闭：跳过
			if res.RowsAffected == 0 {
				continue
			}
			var b models.Borrowing
			if err := tx.First(&b, "id = ?", l.BorrowingID).Error; err != nil {
				return err
			}
			touched = append(touched, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return touched, nil
}

// History

func (r *Repo) GearHistory(ctx context.Context, gearID string) ([]models.Borrowing, error) {
	var bs []models.Borrowing
	err := r.DB.WithContext(ctx).Preload("User").
		Where("gear_id = ?", gearID).
		Order("borrow_time DESC").
		Find(&bs).Error
	return bs, err
}

func (r *Repo) UserHistory(ctx context.Context, userID string) ([]models.Borrowing, error) {
	var bs []models.Borrowing
	err := r.DB.WithContext(ctx).Preload("Gear").
		Where("user_id = ?", userID).
		Order("borrow_time DESC").
		Find(&bs).Error
	return bs, err
}

func (r *Repo) ClearGearHistory(ctx context.Context, gearID string) (int64, error) {
	res := r.DB.WithContext(ctx).Where("gear_id = ?", gearID).Delete(&models.Borrowing{})
	return res.RowsAffected, res.Error
}

func (r *Repo) ClearUserHistory(ctx context.Context, userID string) (int64, error) {
	res := r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Borrowing{})
	return res.RowsAffected, res.Error
}
