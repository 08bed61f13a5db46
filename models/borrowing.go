package models

import "time"

const BorrowingTable = "lsm_borrowings"

// NotifyChannel 借用表任何变动都会在此频道上 NOTIFY
const NotifyChannel = "borrowing"

type BorrowingState string

const (
	BorrowingOpen        BorrowingState = "open"
	BorrowingReturned    BorrowingState = "returned"
	BorrowingForcedClose BorrowingState = "forced_close"
)

const (
	ForcedCloseComment      = "Force closed because gear was borrowed again"
	ReturnedUnborrowComment = "Returned without having been borrowed"
)

type Borrowing struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	GearID     string         `gorm:"type:uuid;index;not null" json:"gearId"`
	UserID     *string        `gorm:"type:uuid;index" json:"userId,omitempty"`
	BorrowTime time.Time      `gorm:"index;not null" json:"borrowTime"`
	ReturnTime *time.Time     `gorm:"index" json:"returnTime,omitempty"`
	Comment    string         `gorm:"size:500" json:"comment,omitempty"`
	State      BorrowingState `gorm:"size:20;index;not null;default:'open'" json:"state"`

	// 删除用户/器材时连带删除其借用记录
	Gear *Gear `gorm:"foreignKey:GearID;constraint:OnDelete:CASCADE" json:"gear,omitempty"`
	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Borrowing) TableName() string { return BorrowingTable }

// Duration 已归还按归还时间算，未归还按 now 算
func (b Borrowing) Duration(now time.Time) time.Duration {
	end := now
	if b.ReturnTime != nil {
		end = *b.ReturnTime
	}
	return end.Sub(b.BorrowTime)
}

// AppendComment 在原备注后追加，保留原有内容
func AppendComment(existing, extra string) string {
	if existing == "" {
		return extra
	}
	if extra == "" {
		return existing
	}
	return existing + " " + extra
}
