package kiosk

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"

	"Gin_postgres_redis_gear_kiosk/apperr"
	"Gin_postgres_redis_gear_kiosk/db"
	"Gin_postgres_redis_gear_kiosk/models"
)

type ScanStatus string

const (
	ScanAdded           ScanStatus = "added"
	ScanAlreadyInCart   ScanStatus = "already_in_cart"
	ScanConfirmRequired ScanStatus = "confirm_required"
	ScanDropped         ScanStatus = "dropped"

	ScanClosing         ScanStatus = "closing"
	ScanAlreadyReturned ScanStatus = "already_returned"
	ScanNotBorrowed     ScanStatus = "returned_without_borrow"
)

type ScanResult struct {
	Status    ScanStatus        `json:"status"`
	Gear      models.Gear       `json:"gear"`
	Borrowing *models.Borrowing `json:"borrowing,omitempty"`
	Message   string            `json:"message,omitempty"`
}

type pendingGear struct {
	gear models.Gear
	open models.Borrowing
}

type BorrowSession struct {
	m  *Manager
	id string

	mu         sync.Mutex
	users      []models.User
	userText   string
	user       *models.User
	cart       []models.Gear
	forceClose map[string]string // gear_id → 要强制关闭的 borrowing_id
	pending    *pendingGear
	comment    string
	ticker     *countdown
	idle       *countdown
	closed     bool
}

type BorrowView struct {
	ID          string            `json:"id"`
	UserText    string            `json:"userText"`
	User        *models.User      `json:"user,omitempty"`
	Cart        []models.Gear     `json:"cart"`
	ForceClose  []string          `json:"forceClose"`
	Pending     *models.Borrowing `json:"pending,omitempty"`
	Comment     string            `json:"comment"`
	Remaining   int               `json:"remainingSeconds"`
	CanValidate bool              `json:"canValidate"`
	Closed      bool              `json:"closed"`
}

func newBorrowSession(m *Manager, id string, users []models.User) *BorrowSession {
	sorted := append([]models.User(nil), users...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})
	s := &BorrowSession{
		m:          m,
		id:         id,
		users:      sorted,
		cart:       []models.Gear{},
		forceClose: make(map[string]string),
	}
	s.ticker = newCountdown(m.clock, m.autoValidate, s.onAutoValidate)
	s.idle = newCountdown(m.clock, m.idleTimeout, s.onIdle)
	return s
}

func (s *BorrowSession) ID() string { return s.id }

func (s *BorrowSession) View() BorrowView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *BorrowSession) view() BorrowView {
	v := BorrowView{
		ID:          s.id,
		UserText:    s.userText,
		User:        s.user,
		Cart:        append([]models.Gear{}, s.cart...),
		ForceClose:  []string{},
		Comment:     s.comment,
		Remaining:   s.ticker.remaining(),
		CanValidate: s.canValidate(),
		Closed:      s.closed,
	}
	for _, bid := range s.forceClose {
		v.ForceClose = append(v.ForceClose, bid)
	}
	sort.Strings(v.ForceClose)
	if s.pending != nil {
		open := s.pending.open
		v.Pending = &open
	}
	return v
}

func (s *BorrowSession) canValidate() bool {
	return !s.closed && s.user != nil && len(s.cart) > 0
}

// Users 名字以当前输入开头（不区分大小写）的用户
func (s *BorrowSession) Users() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchingUsers()
}

func (s *BorrowSession) matchingUsers() []models.User {
	prefix := strings.ToLower(s.userText)
	out := []models.User{}
	for _, u := range s.users {
		if strings.HasPrefix(strings.ToLower(u.Name), prefix) {
			out = append(out, u)
		}
	}
	return out
}

// SetUserText 输入过滤；恰好剩一个用户时直接选中并清空输入（空过滤也适用）
func (s *BorrowSession) SetUserText(text string) (BorrowView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return BorrowView{}, s.closedErr()
	}
	s.touch()
	s.userText = text
	s.autoSelect()
	return s.view(), nil
}

func (s *BorrowSession) autoSelect() {
	if matches := s.matchingUsers(); len(matches) == 1 {
		s.selectUser(matches[0])
	}
}

func (s *BorrowSession) SelectUser(userID string) (BorrowView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return BorrowView{}, s.closedErr()
	}
	s.touch()
	for _, u := range s.users {
		if u.ID == userID {
			s.selectUser(u)
			return s.view(), nil
		}
	}
	return BorrowView{}, apperr.New(apperr.CodeNotFound, "user %s not found", userID)
}

func (s *BorrowSession) selectUser(u models.User) {
	s.user = &u
	s.userText = ""
	s.ticker.reset()
}

func (s *BorrowSession) SetComment(text string) (BorrowView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return BorrowView{}, s.closedErr()
	}
	s.touch()
	s.comment = text
	return s.view(), nil
}

func (s *BorrowSession) inCart(gearID string) bool {
	for _, g := range s.cart {
		if g.ID == gearID {
			return true
		}
	}
	return false
}

// Scan 处理扫码或键盘输入的器材名 / 条码
func (s *BorrowSession) Scan(ctx context.Context, input string) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ScanResult{}, s.closedErr()
	}
	s.touch()
	if s.user == nil {
		return ScanResult{}, apperr.New(apperr.CodeNoUserSelected, "select a user before scanning gear")
	}
	if s.pending != nil {
		return ScanResult{}, apperr.New(apperr.CodeConfirmPending, "confirm or reject %s first", s.pending.gear.DisplayName())
	}

	g, err := s.m.lookupGear(ctx, input)
	if err != nil {
		return ScanResult{}, err
	}
	if s.inCart(g.ID) {
		return ScanResult{Status: ScanAlreadyInCart, Gear: *g, Message: "gear already in cart"}, nil
	}

	open, err := s.m.store.FindOpenBorrowing(ctx, g.ID)
	if err != nil {
		return ScanResult{}, err
	}
	if open != nil {
		s.pending = &pendingGear{gear: *g, open: *open}
		s.ticker.reset()
		return ScanResult{
			Status:    ScanConfirmRequired,
			Gear:      *g,
			Borrowing: open,
			Message:   "gear is already recorded as borrowed, the open borrowing will be closed",
		}, nil
	}

	s.cart = append(s.cart, *g)
	s.ticker.reset()
	return ScanResult{Status: ScanAdded, Gear: *g}, nil
}

// Confirm 回答强制关闭确认：yes 加入购物车并记下旧借用，no 丢弃
func (s *BorrowSession) Confirm(gearID string, yes bool) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ScanResult{}, s.closedErr()
	}
	s.touch()
	if s.pending == nil || s.pending.gear.ID != gearID {
		return ScanResult{}, apperr.New(apperr.CodeNoPendingConfirm, "no confirmation pending for gear %s", gearID)
	}
	p := s.pending
	s.pending = nil
	if !yes {
		return ScanResult{Status: ScanDropped, Gear: p.gear}, nil
	}
	s.forceClose[p.gear.ID] = p.open.ID
	s.cart = append(s.cart, p.gear)
	s.ticker.reset()
	return ScanResult{Status: ScanAdded, Gear: p.gear, Borrowing: &p.open}, nil
}

// RemoveGear 从购物车移除（提交冲突后用于排除被别处借走的器材）
func (s *BorrowSession) RemoveGear(gearID string) (BorrowView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return BorrowView{}, s.closedErr()
	}
	s.touch()
	for i, g := range s.cart {
		if g.ID == gearID {
			s.cart = append(s.cart[:i], s.cart[i+1:]...)
			delete(s.forceClose, gearID)
			return s.view(), nil
		}
	}
	return BorrowView{}, apperr.New(apperr.CodeNotFound, "gear %s is not in the cart", gearID)
}

// Gears 全部器材（含是否可借），不含已在购物车中的
func (s *BorrowSession) Gears(ctx context.Context) ([]GearInfo, error) {
	s.mu.Lock()
	skip := make(map[string]bool, len(s.cart))
	for _, g := range s.cart {
		skip[g.ID] = true
	}
	s.mu.Unlock()
	return s.m.gearInfos(ctx, skip)
}

func (s *BorrowSession) Validate(ctx context.Context) ([]models.Borrowing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validate(ctx)
}

func (s *BorrowSession) validate(ctx context.Context) ([]models.Borrowing, error) {
	if s.closed {
		return nil, s.closedErr()
	}
	if s.user == nil {
		return nil, apperr.New(apperr.CodeNoUserSelected, "no user selected")
	}
	if len(s.cart) == 0 {
		return nil, apperr.New(apperr.CodeNothingToValidate, "no gear scanned")
	}

	in := db.BorrowCommit{
		UserID:  s.user.ID,
		Comment: s.comment,
		At:      s.m.clock.Now(),
	}
	for _, g := range s.cart {
		in.GearIDs = append(in.GearIDs, g.ID)
		if bid, ok := s.forceClose[g.ID]; ok {
			in.ForceClose = append(in.ForceClose, bid)
		}
	}
	created, err := s.m.store.CommitBorrow(ctx, in)
	if err != nil {
		return nil, commitError(err)
	}
	log.Printf("[kiosk] %s borrowed %d gear(s), %d force closed", s.user.Name, len(created), len(in.ForceClose))
	s.close()
	return created, nil
}

func (s *BorrowSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.close()
	}
}

func (s *BorrowSession) close() {
	s.closed = true
	s.ticker.stop()
	s.idle.stop()
	s.m.retire(s.id)
}

func (s *BorrowSession) touch() {
	if !s.closed {
		s.idle.reset()
	}
}

func (s *BorrowSession) closedErr() error {
	return apperr.New(apperr.CodeSessionClosed, "borrow session %s is closed", s.id)
}

// onAutoValidate 倒计时结束：有器材则提交，否则放弃会话
func (s *BorrowSession) onAutoValidate(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.ticker.current(gen) {
		return
	}
	if !s.canValidate() {
		s.close()
		return
	}
	ctx, cancel := autoCommitContext()
	defer cancel()
	if _, err := s.validate(ctx); err != nil {
		log.Printf("[kiosk] auto validate of borrow session %s failed: %v", s.id, err)
		s.close()
	}
}

func (s *BorrowSession) onIdle(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.idle.current(gen) {
		return
	}
	log.Printf("[kiosk] borrow session %s abandoned", s.id)
	s.close()
}
