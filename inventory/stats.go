package inventory

import (
	"time"

	"Gin_postgres_redis_gear_kiosk/models"
)

// DefaultStatsSince 统计起始日期的默认值
var DefaultStatsSince = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type GearStat struct {
	Gear          models.Gear   `json:"gear"`
	BorrowCount   int           `json:"borrowCount"`
	TotalDuration time.Duration `json:"-"`
	TotalSeconds  int64         `json:"totalSeconds"`
}

type UserStat struct {
	User        models.User `json:"user"`
	BorrowCount int         `json:"borrowCount"`
}

type Stats struct {
	Since time.Time  `json:"since"`
	Gears []GearStat `json:"gears"`
	Users []UserStat `json:"users"`
}

// ComputeStats 每件器材的借用次数与总时长、每个用户的借用次数。
// 调用方只传入 borrow_time >= since 的借用；没有借用的器材和用户计 0。
func ComputeStats(since, now time.Time, gears []models.Gear, users []models.User, bs []models.Borrowing) Stats {
	gi := make(map[string]int, len(gears))
	st := Stats{
		Since: since,
		Gears: make([]GearStat, 0, len(gears)),
		Users: make([]UserStat, 0, len(users)),
	}
	for _, g := range gears {
		gi[g.ID] = len(st.Gears)
		st.Gears = append(st.Gears, GearStat{Gear: g})
	}
	ui := make(map[string]int, len(users))
	for _, u := range users {
		ui[u.ID] = len(st.Users)
		st.Users = append(st.Users, UserStat{User: u})
	}

	for _, b := range bs {
		if b.BorrowTime.Before(since) {
			continue
		}
		if i, ok := gi[b.GearID]; ok {
			st.Gears[i].BorrowCount++
			st.Gears[i].TotalDuration += b.Duration(now)
		}
		if b.UserID == nil {
			continue
		}
		if i, ok := ui[*b.UserID]; ok {
			st.Users[i].BorrowCount++
		}
	}
	for i := range st.Gears {
		st.Gears[i].TotalSeconds = int64(st.Gears[i].TotalDuration / time.Second)
	}
	return st
}
