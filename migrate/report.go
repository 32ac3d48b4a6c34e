package migrate

import "github.com/google/uuid"

// Failure 記錄單筆Voter遷移失敗的原因
type Failure struct {
	VoterID uuid.UUID `json:"voterId"`
	Email   string    `json:"email"`
	Reason  string    `json:"reason"`
}

// Report 是一次遷移批次的結果
// 失敗的記錄只會被收集在這裡，不會讓整個批次中斷
type Report struct {
	Scanned  int       `json:"scanned"`
	Migrated int       `json:"migrated"`
	Failures []Failure `json:"failures,omitempty"`
}

// Parity 是新舊表示法的筆數核對結果
type Parity struct {
	MigratedVoters int64 `json:"migratedVoters"`
	Principals     int64 `json:"principals"`
	Profiles       int64 `json:"profiles"`
}
