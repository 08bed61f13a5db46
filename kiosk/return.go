package kiosk

import (
	"context"
	"log"
	"sync"

	"Gin_postgres_redis_gear_kiosk/apperr"
	"Gin_postgres_redis_gear_kiosk/db"
	"Gin_postgres_redis_gear_kiosk/models"
)

// ReturnItem 归还列表中的一行。Borrowing 为空表示未借先还。
type ReturnItem struct {
	Gear      models.Gear       `json:"gear"`
	Borrowing *models.Borrowing `json:"borrowing,omitempty"`
	Comment   string            `json:"comment"`
}

type ReturnSession struct {
	m  *Manager
	id string

	mu     sync.Mutex
	items  []ReturnItem
	ticker *countdown
	idle   *countdown
	closed bool
}

type ReturnView struct {
	ID          string       `json:"id"`
	Items       []ReturnItem `json:"items"`
	Remaining   int          `json:"remainingSeconds"`
	CanValidate bool         `json:"canValidate"`
	Closed      bool         `json:"closed"`
}

func newReturnSession(m *Manager, id string) *ReturnSession {
	s := &ReturnSession{m: m, id: id, items: []ReturnItem{}}
	s.ticker = newCountdown(m.clock, m.autoValidate, s.onAutoValidate)
	s.idle = newCountdown(m.clock, m.idleTimeout, s.onIdle)
	return s
}

func (s *ReturnSession) ID() string { return s.id }

func (s *ReturnSession) View() ReturnView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *ReturnSession) view() ReturnView {
	return ReturnView{
		ID:          s.id,
		Items:       append([]ReturnItem{}, s.items...),
		Remaining:   s.ticker.remaining(),
		CanValidate: !s.closed && len(s.items) > 0,
		Closed:      s.closed,
	}
}

func (s *ReturnSession) indexOf(gearID string) int {
	for i, it := range s.items {
		if it.Gear.ID == gearID {
			return i
		}
	}
	return -1
}

func (s *ReturnSession) Scan(ctx context.Context, input string) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ScanResult{}, s.closedErr()
	}
	s.touch()

	g, err := s.m.lookupGear(ctx, input)
	if err != nil {
		return ScanResult{}, err
	}
	if i := s.indexOf(g.ID); i >= 0 {
		return ScanResult{
			Status:    ScanAlreadyReturned,
			Gear:      *g,
			Borrowing: s.items[i].Borrowing,
			Message:   "gear already returned",
		}, nil
	}

	open, err := s.m.store.FindOpenBorrowing(ctx, g.ID)
	if err != nil {
		return ScanResult{}, err
	}
	s.items = append(s.items, ReturnItem{Gear: *g, Borrowing: open})
	s.ticker.reset()
	if open == nil {
		return ScanResult{
			Status:  ScanNotBorrowed,
			Gear:    *g,
			Message: "gear returned without having been borrowed",
		}, nil
	}
	return ScanResult{Status: ScanClosing, Gear: *g, Borrowing: open}, nil
}

func (s *ReturnSession) SetItemComment(gearID, text string) (ReturnView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ReturnView{}, s.closedErr()
	}
	s.touch()
	i := s.indexOf(gearID)
	if i < 0 {
		return ReturnView{}, apperr.New(apperr.CodeNotFound, "gear %s is not in the return list", gearID)
	}
	s.items[i].Comment = text
	return s.view(), nil
}

// Gears 全部器材（含是否借出），不含已在归还列表中的
func (s *ReturnSession) Gears(ctx context.Context) ([]GearInfo, error) {
	s.mu.Lock()
	skip := make(map[string]bool, len(s.items))
	for _, it := range s.items {
		skip[it.Gear.ID] = true
	}
	s.mu.Unlock()
	return s.m.gearInfos(ctx, skip)
}

func (s *ReturnSession) Validate(ctx context.Context) ([]models.Borrowing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validate(ctx)
}

func (s *ReturnSession) validate(ctx context.Context) ([]models.Borrowing, error) {
	if s.closed {
		return nil, s.closedErr()
	}
	if len(s.items) == 0 {
		return nil, apperr.New(apperr.CodeNothingToValidate, "no gear scanned")
	}
	in := db.ReturnCommit{At: s.m.clock.Now()}
	for _, it := range s.items {
		l := db.ReturnLine{GearID: it.Gear.ID, Comment: it.Comment}
		if it.Borrowing != nil {
			l.BorrowingID = it.Borrowing.ID
		}
		in.Lines = append(in.Lines, l)
	}
	touched, err := s.m.store.CommitReturn(ctx, in)
	if err != nil {
		return nil, commitError(err)
	}
	if skipped := len(in.Lines) - len(touched); skipped > 0 {
		log.Printf("[kiosk] return session %s: %d loan(s) already closed elsewhere", s.id, skipped)
	}
	log.Printf("[kiosk] returned %d gear(s)", len(touched))
	s.close()
	return touched, nil
}

func (s *ReturnSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.close()
	}
}

func (s *ReturnSession) close() {
	s.closed = true
	s.ticker.stop()
	s.idle.stop()
	s.m.retire(s.id)
}

func (s *ReturnSession) touch() {
	if !s.closed {
		s.idle.reset()
	}
}

func (s *ReturnSession) closedErr() error {
	return apperr.New(apperr.CodeSessionClosed, "return session %s is closed", s.id)
}

func (s *ReturnSession) onAutoValidate(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.ticker.current(gen) {
		return
	}
	if len(s.items) == 0 {
		s.close()
		return
	}
	ctx, cancel := autoCommitContext()
	defer cancel()
	if _, err := s.validate(ctx); err != nil {
		log.Printf("[kiosk] auto validate of return session %s failed: %v", s.id, err)
		s.close()
	}
}

func (s *ReturnSession) onIdle(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.idle.current(gen) {
		return
	}
	s.close()
}
