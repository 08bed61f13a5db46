package inventory

import (
	"context"
	"errors"
	"log"
	"time"

	"Gin_postgres_redis_gear_kiosk/apperr"
	"Gin_postgres_redis_gear_kiosk/db"
	"Gin_postgres_redis_gear_kiosk/models"

	"github.com/go-playground/validator/v10"
)

type Store interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	ListGears(ctx context.Context) ([]models.Gear, error)
	ApplyInventory(ctx context.Context, c db.InventoryChanges) error
	BorrowingsSince(ctx context.Context, since time.Time) ([]models.Borrowing, error)
	BorrowingsInPeriod(ctx context.Context, q db.PeriodQuery) ([]db.PeriodRow, error)
}

type Service struct {
	store Store
	v     *validator.Validate
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, v: newValidator(), now: time.Now}
}

type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

type Summary struct {
	Users      Counts   `json:"users"`
	Gears      Counts   `json:"gears"`
	CreatedIDs []string `json:"createdIds"`
}

func summarize(c db.InventoryChanges) Summary {
	s := Summary{
		Users:      Counts{len(c.CreateUsers), len(c.UpdateUsers), len(c.DeleteUserIDs)},
		Gears:      Counts{len(c.CreateGears), len(c.UpdateGears), len(c.DeleteGearIDs)},
		CreatedIDs: []string{},
	}
	for _, u := range c.CreateUsers {
		s.CreatedIDs = append(s.CreatedIDs, u.ID)
	}
	for _, g := range c.CreateGears {
		s.CreatedIDs = append(s.CreatedIDs, g.ID)
	}
	return s
}

// Plan 只校验不写库
func (s *Service) Plan(ctx context.Context, cs Changeset) (Plan, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return Plan{}, err
	}
	gears, err := s.store.ListGears(ctx)
	if err != nil {
		return Plan{}, err
	}
	validate := func(entity string, index int, id string, entry any) []FieldError {
		return fieldErrors(s.v, entity, index, id, entry)
	}
	return plan(validate, users, gears, cs), nil
}

// Commit 校验整批改动，全部通过才在一个事务中写入
func (s *Service) Commit(ctx context.Context, cs Changeset) (Summary, error) {
	p, err := s.Plan(ctx, cs)
	if err != nil {
		return Summary{}, err
	}
	if len(p.Errors) > 0 {
		return Summary{}, apperr.WithDetails(apperr.CodeValidation, "changeset has invalid entries", p.Errors)
	}
	if p.Changes.Empty() {
		return Summary{}, apperr.New(apperr.CodeNothingToCommit, "nothing changed")
	}
	if err := s.store.ApplyInventory(ctx, p.Changes); err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			return Summary{}, apperr.New(apperr.CodeNotFound, "%v", err)
		case db.IsDuplicate(err):
			return Summary{}, apperr.New(apperr.CodeConflict, "inventory was modified concurrently: %v", err)
		}
		return Summary{}, err
	}
	sum := summarize(p.Changes)
	log.Printf("[inventory] users +%d ~%d -%d, gears +%d ~%d -%d",
		sum.Users.Created, sum.Users.Updated, sum.Users.Deleted,
		sum.Gears.Created, sum.Gears.Updated, sum.Gears.Deleted)
	return sum, nil
}

func (s *Service) Stats(ctx context.Context, since time.Time) (Stats, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return Stats{}, err
	}
	gears, err := s.store.ListGears(ctx)
	if err != nil {
		return Stats{}, err
	}
	bs, err := s.store.BorrowingsSince(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(since, s.now(), gears, users, bs), nil
}

func (s *Service) Period(ctx context.Context, q db.PeriodQuery) ([]db.PeriodRow, error) {
	if !q.From.Before(q.To) {
		return nil, apperr.New(apperr.CodeInvalidArgument, "from must be before to")
	}
	rows, err := s.store.BorrowingsInPeriod(ctx, q)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []db.PeriodRow{}
	}
	return rows, nil
}

type TypeSizes struct {
	Type  models.GearType `json:"type"`
	Sizes []string        `json:"sizes"` // nil：不限
}

// AllowedSizes 每种器材类型允许的尺寸，按展示顺序
func AllowedSizes() []TypeSizes {
	out := make([]TypeSizes, 0, len(models.GearTypes))
	for _, t := range models.GearTypes {
		out = append(out, TypeSizes{Type: t, Sizes: t.AllowedSizes()})
	}
	return out
}
