package notify

import (
	"context"
	"log"
	"time"

	"Gin_postgres_redis_gear_kiosk/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Source interface {
	ListActiveBorrowings(ctx context.Context) ([]models.Borrowing, error)
}

// Conn 是 *pgx.Conn 中监听需要的部分
type Conn interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type Dialer func(ctx context.Context) (Conn, error)

// PgDialer 建立专用连接并 LISTEN；gorm 连接池里的连接不能用来长时间等待
func PgDialer(dsn, channel string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			_ = conn.Close(ctx)
			return nil, err
		}
		return conn, nil
	}
}

type Listener struct {
	dial    Dialer
	src     Source
	hub     *Hub
	channel string

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewListener(dial Dialer, src Source, hub *Hub) *Listener {
	return &Listener{
		dial:       dial,
		src:        src,
		hub:        hub,
		channel:    models.NotifyChannel,
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Run 连上即刷新一次，之后每条通知刷新一次；断线按指数退避重连。ctx 取消后返回。
func (l *Listener) Run(ctx context.Context) {
	backoff := l.MinBackoff
	for {
		conn, err := l.dial(ctx)
		if err == nil {
			backoff = l.MinBackoff
			err = l.serve(ctx, conn)
			_ = conn.Close(context.Background())
		}
		if ctx.Err() != nil {
			log.Printf("[notify] listener stopped")
			return
		}
		log.Printf("[notify] connection lost: %v (retry in %s)", err, backoff)
		if !sleep(ctx, backoff) {
			log.Printf("[notify] listener stopped")
			return
		}
		backoff *= 2
		if backoff > l.MaxBackoff {
			backoff = l.MaxBackoff
		}
	}
}

func (l *Listener) serve(ctx context.Context, conn Conn) error {
	l.Refresh(ctx)
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Channel != l.channel {
			continue
		}
		l.Refresh(ctx)
	}
}

// Refresh 重新读取 open 借用并广播；读失败时保留旧快照
func (l *Listener) Refresh(ctx context.Context) {
	bs, err := l.src.ListActiveBorrowings(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[notify] refresh failed: %v", err)
		}
		return
	}
	l.hub.Publish(bs)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
