package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/platewise-backend/pkg/types"
)

// ActivityEntry is one user-entered exercise line. Calories stay a string as
// typed by the user; aggregation skips values that do not parse.
type ActivityEntry struct {
	ActivityName string `json:"activity_name"`
	Calories     string `json:"calories"`
}

// ActivityEntries is persisted as a JSONB array.
type ActivityEntries []ActivityEntry

func (a ActivityEntries) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return types.MarshalJSONValue([]ActivityEntry(a))
}

func (a *ActivityEntries) Scan(value interface{}) error {
	var out []ActivityEntry
	if err := types.ScanJSON(value, &out, "activity entries"); err != nil {
		return err
	}
	if out == nil {
		out = []ActivityEntry{}
	}
	*a = out
	return nil
}

// ActivityLog is the calories-burned ledger row for one owner and day.
type ActivityLog struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID      string          `gorm:"column:owner_id;not null;uniqueIndex:ux_activity_logs_owner_date"`
	ActivityDate time.Time       `gorm:"column:activity_date;type:date;not null;uniqueIndex:ux_activity_logs_owner_date"`
	Activities   ActivityEntries `gorm:"column:activities;type:jsonb;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ActivityLog) TableName() string { return "activity_logs" }
