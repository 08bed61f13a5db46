package db

import (
	"context"
	"time"

	"Gin_postgres_redis_gear_kiosk/models"

	"gorm.io/gorm"
)

// BorrowingsSince 统计用：borrow_time >= since 的全部借用
func (r *Repo) BorrowingsSince(ctx context.Context, since time.Time) ([]models.Borrowing, error) {
	var bs []models.Borrowing
	err := r.DB.WithContext(ctx).
		Where("borrow_time >= ?", since).
		Order("borrow_time ASC").
		Find(&bs).Error
	return bs, err
}

type PeriodRow struct {
	UserName   *string         `json:"user"`
	GearType   models.GearType `json:"gearType"`
	GearName   string          `json:"gear"`
	BorrowTime time.Time       `json:"fromDate"`
	ReturnTime *time.Time      `json:"toDate,omitempty"`
}

type PeriodQuery struct {
	From      time.Time
	To        time.Time
	Inclusive bool // true：只要完全落在区间内的借用
}

func periodScope(q PeriodQuery) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if q.Inclusive {
			return tx.Where("b.borrow_time >= ? AND b.return_time <= ?", q.From, q.To)
		}
		return tx.Where(`
			(b.borrow_time < @from AND b.return_time > @from AND b.return_time <= @to) OR
			(b.borrow_time >= @from AND b.borrow_time < @to AND b.return_time > @to) OR
			(b.borrow_time >= @from AND b.return_time <= @to)`,
			map[string]any{"from": q.From, "to": q.To})
	}
}

// BorrowingsInPeriod 区间报表（调用方保证 From < To）
func (r *Repo) BorrowingsInPeriod(ctx context.Context, q PeriodQuery) ([]PeriodRow, error) {
	var rows []PeriodRow
	err := r.DB.WithContext(ctx).
		Table(models.BorrowingTable + " b").
		Select("u.name AS user_name, g.type AS gear_type, g.name AS gear_name, b.borrow_time, b.return_time").
		Joins("JOIN " + models.GearTable + " g ON g.id = b.gear_id").
		Joins("LEFT JOIN " + models.UserTable + " u ON u.id = b.user_id").
		Scopes(periodScope(q)).
		Order("b.borrow_time ASC").
		Scan(&rows).Error
	return rows, err
}
