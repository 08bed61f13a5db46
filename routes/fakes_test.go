package routes

import (
	"context"
	"strings"
	"sync"
	"time"

	"Gin_postgres_redis_gear_kiosk/app"
	"Gin_postgres_redis_gear_kiosk/controllers"
	"Gin_postgres_redis_gear_kiosk/db"
	"Gin_postgres_redis_gear_kiosk/inventory"
	"Gin_postgres_redis_gear_kiosk/kiosk"
	"Gin_postgres_redis_gear_kiosk/models"
	"Gin_postgres_redis_gear_kiosk/notify"
	"Gin_postgres_redis_gear_kiosk/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	userAnna = "11111111-1111-1111-1111-111111111111"
	gearTank = "aaaaaaaa-0000-0000-0000-000000000001"
	gearReg  = "aaaaaaaa-0000-0000-0000-000000000002"
)

// memRepo 内存实现，覆盖 kiosk、inventory 与管理接口用到的仓储方法
type memRepo struct {
	mu      sync.Mutex
	users   []models.User
	gears   []models.Gear
	bs      []models.Borrowing
	applied []db.InventoryChanges
}

func newMemRepo() *memRepo {
	return &memRepo{
		users: []models.User{{ID: userAnna, Name: "Anna"}},
		gears: []models.Gear{
			{ID: gearTank, Type: models.GearTank, Name: "12", BarCode: "T012", Size: "12L"},
			{ID: gearReg, Type: models.GearRegulator, Name: "Apeks", BarCode: "R001"},
		},
	}
}

func (m *memRepo) FindUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memRepo) FindGearByID(_ context.Context, id string) (*models.Gear, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.gears {
		if g.ID == id {
			return &g, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memRepo) ListUsers(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.User(nil), m.users...), nil
}

func (m *memRepo) ListGears(context.Context) ([]models.Gear, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Gear(nil), m.gears...), nil
}

func (m *memRepo) open(gearID string) *models.Borrowing {
	for i := range m.bs {
		if m.bs[i].GearID == gearID && m.bs[i].State == models.BorrowingOpen {
			return &m.bs[i]
		}
	}
	return nil
}

func (m *memRepo) ListGearStates(context.Context) ([]db.GearState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.GearState
	for _, g := range m.gears {
		out = append(out, db.GearState{Gear: g, Borrowed: m.open(g.ID) != nil})
	}
	return out, nil
}

func (m *memRepo) FindGearByInput(_ context.Context, input string) (*models.Gear, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.gears {
		if strings.EqualFold(g.Name, input) || g.BarCode == input {
			return &g, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memRepo) FindOpenBorrowing(_ context.Context, gearID string) (*models.Borrowing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.open(gearID); b != nil {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (m *memRepo) CommitBorrow(_ context.Context, in db.BorrowCommit) ([]models.Borrowing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Borrowing
	for _, gid := range in.GearIDs {
		uid := in.UserID
		b := models.Borrowing{ID: uuid.NewString(), GearID: gid, UserID: &uid, BorrowTime: in.At, Comment: in.Comment, State: models.BorrowingOpen}
		m.bs = append(m.bs, b)
		out = append(out, b)
	}
	return out, nil
}

func (m *memRepo) CommitReturn(_ context.Context, in db.ReturnCommit) ([]models.Borrowing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Borrowing
	for _, l := range in.Lines {
		at := in.At
		if b := m.open(l.GearID); b != nil && b.ID == l.BorrowingID {
			b.State = models.BorrowingReturned
			b.ReturnTime = &at
			out = append(out, *b)
			continue
		}
		b := models.Borrowing{ID: uuid.NewString(), GearID: l.GearID, BorrowTime: at, ReturnTime: &at, State: models.BorrowingReturned, Comment: models.ReturnedUnborrowComment}
		m.bs = append(m.bs, b)
		out = append(out, b)
	}
	return out, nil
}

func (m *memRepo) ApplyInventory(_ context.Context, c db.InventoryChanges) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, c)
	m.users = append(m.users, c.CreateUsers...)
	m.gears = append(m.gears, c.CreateGears...)
	return nil
}

func (m *memRepo) BorrowingsSince(_ context.Context, since time.Time) ([]models.Borrowing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Borrowing
	for _, b := range m.bs {
		if !b.BorrowTime.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memRepo) BorrowingsInPeriod(context.Context, db.PeriodQuery) ([]db.PeriodRow, error) {
	name := "Anna"
	return []db.PeriodRow{{UserName: &name, GearType: models.GearTank, GearName: "12"}}, nil
}

func (m *memRepo) history(match func(models.Borrowing) bool) []models.Borrowing {
	var out []models.Borrowing
	for _, b := range m.bs {
		if match(b) {
			out = append(out, b)
		}
	}
	return out
}

func (m *memRepo) GearHistory(_ context.Context, gearID string) ([]models.Borrowing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history(func(b models.Borrowing) bool { return b.GearID == gearID }), nil
}

func (m *memRepo) UserHistory(_ context.Context, userID string) ([]models.Borrowing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history(func(b models.Borrowing) bool { return b.UserID != nil && *b.UserID == userID }), nil
}

func (m *memRepo) clear(match func(models.Borrowing) bool) int64 {
	kept := m.bs[:0]
	var n int64
	for _, b := range m.bs {
		if match(b) {
			n++
			continue
		}
		kept = append(kept, b)
	}
	m.bs = kept
	return n
}

func (m *memRepo) ClearGearHistory(_ context.Context, gearID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clear(func(b models.Borrowing) bool { return b.GearID == gearID }), nil
}

func (m *memRepo) ClearUserHistory(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clear(func(b models.Borrowing) bool { return b.UserID != nil && *b.UserID == userID }), nil
}

type memSessions struct {
	mu   sync.Mutex
	sess map[string]string
}

func (s *memSessions) Create(_ context.Context, id, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess[id] = addr
	return nil
}

func (s *memSessions) Get(_ context.Context, id string) (*session.AdminSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.sess[id]
	if !ok {
		return nil, session.ErrNoSession
	}
	return &session.AdminSession{RemoteAddr: addr}, nil
}

func (s *memSessions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sess, id)
	return nil
}

func (s *memSessions) RevokeAll(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sess)
	s.sess = map[string]string{}
	return n, nil
}

func (s *memSessions) TTL() time.Duration { return 30 * time.Minute }

func (s *memSessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sess)
}

const testPassword = "open-sesame"

type testEnv struct {
	router *gin.Engine
	repo   *memRepo
	sess   *memSessions
	srv    *controllers.Srv
}

func newTestEnv(t interface{ Cleanup(func()) }) *testEnv {
	gin.SetMode(gin.TestMode)
	repo := newMemRepo()
	sess := &memSessions{sess: map[string]string{}}
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	mgr := kiosk.NewManager(repo, kiosk.Options{})
	t.Cleanup(mgr.Close)

	s := &controllers.Srv{
		Repo:      repo,
		Kiosk:     mgr,
		Inventory: inventory.NewService(repo),
		Hub:       notify.NewHub(),
		AdminSess: sess,
		AdminHash: hash,
		WebOrigin: "http://localhost:3000",
	}
	r := gin.New()
	Mount(r, s, app.AdminRequired(sess))
	return &testEnv{router: r, repo: repo, sess: sess, srv: s}
}
