package kiosk

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"Gin_postgres_redis_gear_kiosk/apperr"
	"Gin_postgres_redis_gear_kiosk/db"
	"Gin_postgres_redis_gear_kiosk/models"

	"github.com/google/uuid"
)

type Store interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	ListGearStates(ctx context.Context) ([]db.GearState, error)
	FindGearByInput(ctx context.Context, input string) (*models.Gear, error)
	FindOpenBorrowing(ctx context.Context, gearID string) (*models.Borrowing, error)
	CommitBorrow(ctx context.Context, in db.BorrowCommit) ([]models.Borrowing, error)
	CommitReturn(ctx context.Context, in db.ReturnCommit) ([]models.Borrowing, error)
}

const (
	DefaultAutoValidate = 60 * time.Second
	DefaultIdleTimeout  = 10 * time.Minute

	// 关闭的会话保留多久，期间访问返回 SESSION_CLOSED 而不是 NOT_FOUND
	DefaultClosedRetention = 2 * time.Minute

	// 自动提交在计时器回调里执行，没有请求上下文
	autoCommitTimeout = 10 * time.Second
)

type Options struct {
	AutoValidate    time.Duration
	IdleTimeout     time.Duration
	ClosedRetention time.Duration // 关闭后保留会话的时长
	Clock           Clock
}

// Manager 持有进行中的借出 / 归还会话（每次在终端上操作一屏对应一个会话）
type Manager struct {
	store        Store
	clock        Clock
	autoValidate time.Duration
	idleTimeout  time.Duration
	retention    time.Duration

	mu       sync.Mutex
	borrows  map[string]*BorrowSession
	returns  map[string]*ReturnSession
	retired  map[string]Timer // 已关闭、等待移除的会话
	shutdown bool
}

func NewManager(store Store, opts Options) *Manager {
	if opts.AutoValidate <= 0 {
		opts.AutoValidate = DefaultAutoValidate
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.ClosedRetention <= 0 {
		opts.ClosedRetention = DefaultClosedRetention
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Manager{
		store:        store,
		clock:        opts.Clock,
		autoValidate: opts.AutoValidate,
		idleTimeout:  opts.IdleTimeout,
		retention:    opts.ClosedRetention,
		borrows:      make(map[string]*BorrowSession),
		returns:      make(map[string]*ReturnSession),
		retired:      make(map[string]Timer),
	}
}

var errShutdown = apperr.New(apperr.CodeSessionClosed, "kiosk is shutting down")

func (m *Manager) StartBorrow(ctx context.Context) (*BorrowSession, error) {
	users, err := m.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	s := newBorrowSession(m, uuid.NewString(), users)

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, errShutdown
	}
	m.borrows[s.id] = s
	m.mu.Unlock()

	s.mu.Lock()
	s.touch()
	// 只有一个用户时开屏即选中
	s.autoSelect()
	s.mu.Unlock()
	return s, nil
}

func (m *Manager) StartReturn(ctx context.Context) (*ReturnSession, error) {
	s := newReturnSession(m, uuid.NewString())

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, errShutdown
	}
	m.returns[s.id] = s
	m.mu.Unlock()

	s.mu.Lock()
	s.touch()
	s.mu.Unlock()
	return s, nil
}

// Borrow 查找借出会话。已关闭的会话返回 SESSION_CLOSED，details 为最后的视图。
func (m *Manager) Borrow(id string) (*BorrowSession, error) {
	m.mu.Lock()
	s, ok := m.borrows[id]
	_, gone := m.retired[id]
	m.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "borrow session %s not found", id)
	}
	if gone {
		// 视图要拿会话锁，必须在 m.mu 之外
		return nil, apperr.WithDetails(apperr.CodeSessionClosed, "borrow session "+id+" is closed", s.View())
	}
	return s, nil
}

func (m *Manager) Return(id string) (*ReturnSession, error) {
	m.mu.Lock()
	s, ok := m.returns[id]
	_, gone := m.retired[id]
	m.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "return session %s not found", id)
	}
	if gone {
		return nil, apperr.WithDetails(apperr.CodeSessionClosed, "return session "+id+" is closed", s.View())
	}
	return s, nil
}

// Open 进行中（未关闭）的会话数
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.borrows) + len(m.returns) - len(m.retired)
}

// retire 会话关闭时调用（持有会话锁）；保留 retention 后移除
func (m *Manager) retire(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.retired[id]; ok {
		return
	}
	m.retired[id] = m.clock.AfterFunc(m.retention, func() { m.forget(id) })
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.borrows, id)
	delete(m.returns, id)
	delete(m.retired, id)
	m.mu.Unlock()
}

// Close 停止所有计时器并丢弃未提交的会话
func (m *Manager) Close() {
	m.mu.Lock()
	m.shutdown = true
	borrows := make([]*BorrowSession, 0, len(m.borrows))
	for id, s := range m.borrows {
		if _, gone := m.retired[id]; !gone {
			borrows = append(borrows, s)
		}
	}
	returns := make([]*ReturnSession, 0, len(m.returns))
	for id, s := range m.returns {
		if _, gone := m.retired[id]; !gone {
			returns = append(returns, s)
		}
	}
	m.mu.Unlock()

	for _, s := range borrows {
		s.Cancel()
	}
	for _, s := range returns {
		s.Cancel()
	}
	if n := len(borrows) + len(returns); n > 0 {
		log.Printf("[kiosk] discarded %d open session(s) on shutdown", n)
	}
}

// lookupGear 扫码输入 → 器材，仓储错误转换为业务错误
func (m *Manager) lookupGear(ctx context.Context, input string) (*models.Gear, error) {
	g, err := m.store.FindGearByInput(ctx, input)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.New(apperr.CodeGearNotFound, "no gear matches %q", input)
	case errors.Is(err, db.ErrAmbiguousGear):
		return nil, apperr.New(apperr.CodeGearAmbiguous, "several gears are named %q, scan the barcode", input)
	case err != nil:
		return nil, err
	}
	return g, nil
}

func (m *Manager) gearInfos(ctx context.Context, skip map[string]bool) ([]GearInfo, error) {
	states, err := m.store.ListGearStates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]GearInfo, 0, len(states))
	for _, st := range states {
		if skip[st.Gear.ID] {
			continue
		}
		out = append(out, GearInfo{
			Gear:      st.Gear,
			Available: !st.Borrowed,
			Borrowed:  st.Borrowed,
			Label:     st.Gear.DisplayName(),
		})
	}
	sortGearInfos(out)
	return out, nil
}

func commitError(err error) error {
	if errors.Is(err, db.ErrGearAlreadyBorrowed) {
		return apperr.New(apperr.CodeGearAlreadyBorrowed, "gear was borrowed from another kiosk meanwhile, remove it or scan it again")
	}
	if errors.Is(err, db.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "%v", err)
	}
	return err
}

func autoCommitContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), autoCommitTimeout)
}
