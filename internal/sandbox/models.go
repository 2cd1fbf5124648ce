package sandbox

import "time"

type Client struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	Email         string    `gorm:"size:255;not null" json:"email"`
	CNPJ          string    `gorm:"size:18;uniqueIndex;not null" json:"cnpj"`
	Active        bool      `json:"active"`
	InclusionDate string    `gorm:"size:32" json:"inclusionDate"`
	CreatedAt     time.Time `json:"createdAt"`

	Backups []Backup `gorm:"foreignKey:ClientID" json:"backups,omitempty"`
}

type Backup struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	ClientID             uint       `gorm:"index;not null" json:"clientId"`
	Status               string     `gorm:"size:32;not null" json:"status"`
	Message              string     `json:"message"`
	VacuumExecuted       bool       `json:"vacuumExecuted"`
	VacuumCompletionTime *time.Time `json:"vacuumCompletionTime,omitempty"`
	StartTime            *time.Time `json:"startTime,omitempty"`
	EndTime              *time.Time `json:"endTime,omitempty"`
	SizeMB               float64    `json:"sizeMb"`
	CreatedAt            time.Time  `json:"createdAt"`
}
