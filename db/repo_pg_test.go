package db

import (
	"context"
	"os"
	"testing"
	"time"

	"Gin_postgres_redis_gear_kiosk/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 需要真实 Postgres：KIOSK_TEST_DSN 为 key=value 形式，例如
// host=127.0.0.1 user=postgres password=postgres dbname=kiosk_test sslmode=disable
const testDSNEnv = "KIOSK_TEST_DSN"

func openPg(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	g, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Discard})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := g.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return g
}

// pgRepo 每个测试一个独立 schema，结束时整体删除
func pgRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	base := os.Getenv(testDSNEnv)
	if base == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	schema := "kiosk_test_" + uuid.NewString()[:8]
	admin := openPg(t, base)
	require.NoError(t, admin.Exec("CREATE SCHEMA "+schema).Error)
	t.Cleanup(func() { admin.Exec("DROP SCHEMA " + schema + " CASCADE") })

	dsn := base + " search_path=" + schema
	g := openPg(t, dsn)
	require.NoError(t, Migrate(g))
	return NewRepo(g), dsn
}

func seedUser(t *testing.T, r *Repo, name string) models.User {
	t.Helper()
	u := models.User{ID: uuid.NewString(), Name: name}
	require.NoError(t, r.DB.Create(&u).Error)
	return u
}

func seedGear(t *testing.T, r *Repo, typ models.GearType, name, barcode string) models.Gear {
	t.Helper()
	g := models.Gear{ID: uuid.NewString(), Type: typ, Name: name, BarCode: barcode}
	require.NoError(t, r.DB.Create(&g).Error)
	return g
}

func seedLoan(t *testing.T, r *Repo, u models.User, g models.Gear, state models.BorrowingState, comment string) models.Borrowing {
	t.Helper()
	b := models.Borrowing{
		ID:         uuid.NewString(),
		GearID:     g.ID,
		UserID:     &u.ID,
		BorrowTime: time.Now().Add(-time.Hour).UTC().Truncate(time.Second),
		Comment:    comment,
		State:      state,
	}
	if state != models.BorrowingOpen {
		rt := b.BorrowTime.Add(10 * time.Minute)
		b.ReturnTime = &rt
	}
	require.NoError(t, r.DB.Create(&b).Error)
	return b
}

func loan(t *testing.T, r *Repo, id string) models.Borrowing {
	t.Helper()
	var b models.Borrowing
	require.NoError(t, r.DB.First(&b, "id = ?", id).Error)
	return b
}

func openCount(t *testing.T, r *Repo, gearID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, r.DB.Model(&models.Borrowing{}).
		Where("gear_id = ? AND state = ?", gearID, models.BorrowingOpen).Count(&n).Error)
	return n
}

func TestCommitBorrowForceClosesPreviousLoan(t *testing.T) {
	r, _ := pgRepo(t)
	ctx := context.Background()
	anna, bruno := seedUser(t, r, "Anna"), seedUser(t, r, "Bruno")
	tank := seedGear(t, r, models.GearTank, "12", "T012")
	old := seedLoan(t, r, anna, tank, models.BorrowingOpen, "club dive")

	at := time.Now().UTC().Truncate(time.Second)
	created, err := r.CommitBorrow(ctx, BorrowCommit{
		UserID: bruno.ID, GearIDs: []string{tank.ID}, ForceClose: []string{old.ID}, At: at,
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, bruno.ID, *created[0].UserID)

	closed := loan(t, r, old.ID)
	assert.Equal(t, models.BorrowingForcedClose, closed.State)
	require.NotNil(t, closed.ReturnTime)
	assert.True(t, at.Equal(*closed.ReturnTime))
	assert.Equal(t, "club dive "+models.ForcedCloseComment, closed.Comment)
	assert.EqualValues(t, 1, openCount(t, r, tank.ID))
}

func TestCommitBorrowLeavesLoanClosedElsewhere(t *testing.T) {
	r, _ := pgRepo(t)
	anna, bruno := seedUser(t, r, "Anna"), seedUser(t, r, "Bruno")
	tank := seedGear(t, r, models.GearTank, "12", "T012")
	// 扫码后另一台终端已经归还
	old := seedLoan(t, r, anna, tank, models.BorrowingReturned, "")

	_, err := r.CommitBorrow(context.Background(), BorrowCommit{
		UserID: bruno.ID, GearIDs: []string{tank.ID}, ForceClose: []string{old.ID}, At: time.Now(),
	})
	require.NoError(t, err)

	after := loan(t, r, old.ID)
	assert.Equal(t, models.BorrowingReturned, after.State)
	assert.Empty(t, after.Comment)
	assert.True(t, old.ReturnTime.Equal(*after.ReturnTime))
	assert.EqualValues(t, 1, openCount(t, r, tank.ID))
}

func TestCommitBorrowRejectsForeignOpenLoan(t *testing.T) {
	r, _ := pgRepo(t)
	anna, bruno := seedUser(t, r, "Anna"), seedUser(t, r, "Bruno")
	tank := seedGear(t, r, models.GearTank, "12", "T012")
	reg := seedGear(t, r, models.GearRegulator, "Apeks", "R001")
	// 扫码之后别的终端借走，本次没有确认强制关闭
	seedLoan(t, r, anna, reg, models.BorrowingOpen, "")

	created, err := r.CommitBorrow(context.Background(), BorrowCommit{
		UserID: bruno.ID, GearIDs: []string{tank.ID, reg.ID}, At: time.Now(),
	})
	require.ErrorIs(t, err, ErrGearAlreadyBorrowed)
	assert.Contains(t, err.Error(), reg.ID)
	assert.Nil(t, created)
	assert.EqualValues(t, 0, openCount(t, r, tank.ID))
	assert.EqualValues(t, 1, openCount(t, r, reg.ID))
}

func TestCommitBorrowUnknownUserOrGear(t *testing.T) {
	r, _ := pgRepo(t)
	anna := seedUser(t, r, "Anna")
	tank := seedGear(t, r, models.GearTank, "12", "T012")

	_, err := r.CommitBorrow(context.Background(), BorrowCommit{
		UserID: uuid.NewString(), GearIDs: []string{tank.ID}, At: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.CommitBorrow(context.Background(), BorrowCommit{
		UserID: anna.ID, GearIDs: []string{tank.ID, uuid.NewString()}, At: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 0, openCount(t, r, tank.ID))
}

func TestCommitReturn(t *testing.T) {
	r, _ := pgRepo(t)
	anna := seedUser(t, r, "Anna")
	tank := seedGear(t, r, models.GearTank, "12", "T012")
	reg := seedGear(t, r, models.GearRegulator, "Apeks", "R001")
	bcd := seedGear(t, r, models.GearBCD, "Blue", "B001")
	open := seedLoan(t, r, anna, tank, models.BorrowingOpen, "first dive")
	gone := seedLoan(t, r, anna, reg, models.BorrowingReturned, "")

	at := time.Now().UTC().Truncate(time.Second)
	touched, err := r.CommitReturn(context.Background(), ReturnCommit{At: at, Lines: []ReturnLine{
		{GearID: tank.ID, BorrowingID: open.ID, Comment: "scratched"},
		{GearID: reg.ID, BorrowingID: gone.ID, Comment: "late"},
		{GearID: bcd.ID, Comment: "found in the van"},
	}})
	require.NoError(t, err)
	require.Len(t, touched, 2)

	assert.Equal(t, open.ID, touched[0].ID)
	assert.Equal(t, models.BorrowingReturned, touched[0].State)
	assert.Equal(t, "first dive scratched", touched[0].Comment)
	assert.True(t, at.Equal(*touched[0].ReturnTime))

	assert.Equal(t, bcd.ID, touched[1].GearID)
	assert.Nil(t, touched[1].UserID)
	assert.Equal(t, models.ReturnedUnborrowComment+" found in the van", touched[1].Comment)
	assert.True(t, touched[1].BorrowTime.Equal(*touched[1].ReturnTime))

	// 已被别处归还的借用保持原样
	after := loan(t, r, gone.ID)
	assert.Empty(t, after.Comment)
	assert.True(t, gone.ReturnTime.Equal(*after.ReturnTime))
}

func TestFindGearByInput(t *testing.T) {
	r, _ := pgRepo(t)
	ctx := context.Background()
	tank := seedGear(t, r, models.GearTank, "12", "T012")
	seedGear(t, r, models.GearRegulator, "12", "R012")
	blue := seedGear(t, r, models.GearBCD, "Blue", "B001")
	namedLikeBarcode := seedGear(t, r, models.GearTank, "B001", "T099")

	g, err := r.FindGearByInput(ctx, "  blue ")
	require.NoError(t, err)
	assert.Equal(t, blue.ID, g.ID)

	// 名字优先于条码
	g, err = r.FindGearByInput(ctx, "b001")
	require.NoError(t, err)
	assert.Equal(t, namedLikeBarcode.ID, g.ID)

	g, err = r.FindGearByInput(ctx, "T012")
	require.NoError(t, err)
	assert.Equal(t, tank.ID, g.ID)

	_, err = r.FindGearByInput(ctx, "t012")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.FindGearByInput(ctx, "12")
	assert.ErrorIs(t, err, ErrAmbiguousGear)

	// 重名时条码精确匹配可以消歧
	red := seedGear(t, r, models.GearBCD, "Red", "12")
	g, err = r.FindGearByInput(ctx, "12")
	require.NoError(t, err)
	assert.Equal(t, red.ID, g.ID)

	_, err = r.FindGearByInput(ctx, "   ")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.FindGearByInput(ctx, "nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyInventory(t *testing.T) {
	r, _ := pgRepo(t)
	ctx := context.Background()
	anna := seedUser(t, r, "Anna")
	tank := seedGear(t, r, models.GearTank, "12", "T012")
	reg := seedGear(t, r, models.GearRegulator, "Apeks", "R001")
	seedLoan(t, r, anna, tank, models.BorrowingReturned, "")

	// 删除 Anna 释放名字，同批新建同名用户
	newAnna := models.User{ID: uuid.NewString(), Name: "Anna", Phone: "0601"}
	tank.Name = "15"
	require.NoError(t, r.ApplyInventory(ctx, InventoryChanges{
		DeleteUserIDs: []string{anna.ID},
		UpdateGears:   []models.Gear{tank},
		CreateUsers:   []models.User{newAnna},
		DeleteGearIDs: []string{reg.ID},
		CreateGears:   []models.Gear{{ID: uuid.NewString(), Type: models.GearRegulator, Name: "Apeks", BarCode: "R001"}},
	}))

	users, err := r.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, newAnna.ID, users[0].ID)

	g, err := r.FindGearByID(ctx, tank.ID)
	require.NoError(t, err)
	assert.Equal(t, "15", g.Name)

	// 借用记录随用户级联删除
	hist, err := r.GearHistory(ctx, tank.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)

	err = r.ApplyInventory(ctx, InventoryChanges{
		CreateGears: []models.Gear{{ID: uuid.NewString(), Type: models.GearBCD, Name: "Blue", BarCode: "T012"}},
	})
	assert.True(t, IsDuplicate(err))

	err = r.ApplyInventory(ctx, InventoryChanges{
		DeleteGearIDs: []string{tank.ID},
		UpdateUsers:   []models.User{{ID: uuid.NewString(), Name: "Ghost"}},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	// 整批回滚
	_, err = r.FindGearByID(ctx, tank.ID)
	assert.NoError(t, err)
}

func TestBorrowingChangesNotify(t *testing.T) {
	r, dsn := pgRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	_, err = conn.Exec(ctx, "LISTEN "+models.NotifyChannel)
	require.NoError(t, err)

	anna := seedUser(t, r, "Anna")
	tank := seedGear(t, r, models.GearTank, "12", "T012")
	seedLoan(t, r, anna, tank, models.BorrowingOpen, "")

	n, err := conn.WaitForNotification(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.NotifyChannel, n.Channel)
}
