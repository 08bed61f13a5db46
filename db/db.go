package db

import (
	"fmt"
	"log"

	"Gin_postgres_redis_gear_kiosk/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func ConnectDB(dsn string) *gorm.DB {
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	if err := Migrate(conn); err != nil {
		log.Fatal("Failed to migrate models: ", err)
	}
	log.Println("Database connected")
	return conn
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Gear{}, &models.Borrowing{}); err != nil {
		return err
	}

	// 查询当前借用更快（“每件最多一条 open”由事务内加锁保证，不建唯一约束）
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_gear
	  ON %s (gear_id, borrow_time DESC)
	  WHERE state = '%s';
	`, models.BorrowingTable, models.BorrowingTable, models.BorrowingOpen)).Error; err != nil {
		return err
	}

	// 借用表任何变动 → NOTIFY，所有 kiosk 据此刷新
	if err := db.Exec(fmt.Sprintf(`
	  CREATE OR REPLACE FUNCTION %[1]s_notify() RETURNS trigger AS $$
	  BEGIN
	    PERFORM pg_notify('%[2]s', '');
	    RETURN NULL;
	  END;
	  $$ LANGUAGE plpgsql;
	`, models.BorrowingTable, models.NotifyChannel)).Error; err != nil {
		return err
	}
	if err := db.Exec(fmt.Sprintf(`DROP TRIGGER IF EXISTS %[1]s_changed ON %[1]s`, models.BorrowingTable)).Error; err != nil {
		return err
	}
	if err := db.Exec(fmt.Sprintf(`
	  CREATE TRIGGER %[1]s_changed
	  AFTER INSERT OR UPDATE OR DELETE ON %[1]s
	  FOR EACH STATEMENT EXECUTE FUNCTION %[1]s_notify();
	`, models.BorrowingTable)).Error; err != nil {
		return err
	}

	return nil
}
