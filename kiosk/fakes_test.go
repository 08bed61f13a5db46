package kiosk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"Gin_postgres_redis_gear_kiosk/db"
	"Gin_postgres_redis_gear_kiosk/models"
)

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance 推进时间并同步执行到期的计时器（在时钟锁之外调用回调）
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.at.After(c.now) {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type fakeStore struct {
	mu      sync.Mutex
	users   []models.User
	gears   []models.Gear
	open    map[string]models.Borrowing // gear_id → open borrowing
	borrows []db.BorrowCommit
	returns []db.ReturnCommit

	commitErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: []models.User{
			{ID: "u-bob", Name: "Bob"},
			{ID: "u-alice", Name: "alice"},
			{ID: "u-albert", Name: "Albert"},
		},
		gears: []models.Gear{
			{ID: "g-t12", Type: models.GearTank, Name: "12", BarCode: "T012", Size: "12L"},
			{ID: "g-t2", Type: models.GearTank, Name: "2", BarCode: "T002"},
			{ID: "g-r1", Type: models.GearRegulator, Name: "Apeks", BarCode: "R001"},
			{ID: "g-b1", Type: models.GearBCD, Name: "1", BarCode: "B001", Size: "M"},
			{ID: "g-b2", Type: models.GearBCD, Name: "2", BarCode: "B002"},
		},
		open: map[string]models.Borrowing{},
	}
}

func (f *fakeStore) ListUsers(context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.User(nil), f.users...), nil
}

func (f *fakeStore) ListGearStates(context.Context) ([]db.GearState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]db.GearState, 0, len(f.gears))
	for _, g := range f.gears {
		_, borrowed := f.open[g.ID]
		out = append(out, db.GearState{Gear: g, Borrowed: borrowed})
	}
	return out, nil
}

func (f *fakeStore) FindGearByInput(_ context.Context, input string) (*models.Gear, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var byName []models.Gear
	for _, g := range f.gears {
		if strings.EqualFold(g.Name, input) {
			byName = append(byName, g)
		}
	}
	if len(byName) == 1 {
		return &byName[0], nil
	}
	for _, g := range f.gears {
		if g.BarCode == input {
			g := g
			return &g, nil
		}
	}
	if len(byName) > 1 {
		return nil, db.ErrAmbiguousGear
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) FindOpenBorrowing(_ context.Context, gearID string) (*models.Borrowing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.open[gearID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) CommitBorrow(_ context.Context, in db.BorrowCommit) ([]models.Borrowing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	// 与数据库事务一致：只强制关闭指定且仍为 open 的借用，其余 open 借用使整批失败
	closing := map[string]bool{}
	for _, id := range in.ForceClose {
		closing[id] = true
	}
	for _, gid := range in.GearIDs {
		if b, ok := f.open[gid]; ok && !closing[b.ID] {
			return nil, fmt.Errorf("%w: %s", db.ErrGearAlreadyBorrowed, gid)
		}
	}
	for gid, b := range f.open {
		if closing[b.ID] {
			delete(f.open, gid)
		}
	}
	f.borrows = append(f.borrows, in)
	var out []models.Borrowing
	uid := in.UserID
	for _, gid := range in.GearIDs {
		b := models.Borrowing{ID: "b-" + gid, GearID: gid, UserID: &uid, BorrowTime: in.At, Comment: in.Comment, State: models.BorrowingOpen}
		f.open[gid] = b
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) CommitReturn(_ context.Context, in db.ReturnCommit) ([]models.Borrowing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	f.returns = append(f.returns, in)
	var out []models.Borrowing
	for _, l := range in.Lines {
		at := in.At
		if l.BorrowingID == "" {
			out = append(out, models.Borrowing{GearID: l.GearID, BorrowTime: at, ReturnTime: &at, State: models.BorrowingReturned})
			continue
		}
		b, ok := f.open[l.GearID]
		if !ok || b.ID != l.BorrowingID {
			continue
		}
		delete(f.open, l.GearID)
		b.State = models.BorrowingReturned
		b.ReturnTime = &at
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) borrowCommits() []db.BorrowCommit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]db.BorrowCommit(nil), f.borrows...)
}

func (f *fakeStore) returnCommits() []db.ReturnCommit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]db.ReturnCommit(nil), f.returns...)
}

func (f *fakeStore) setOpen(gearID, borrowingID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open[gearID] = models.Borrowing{ID: borrowingID, GearID: gearID, State: models.BorrowingOpen}
}

func (f *fakeStore) clearOpen(gearID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, gearID)
}

func newTestManager() (*Manager, *fakeStore, *fakeClock) {
	store := newFakeStore()
	clock := newFakeClock()
	m := NewManager(store, Options{Clock: clock})
	return m, store, clock
}
