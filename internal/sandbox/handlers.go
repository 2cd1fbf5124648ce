package sandbox

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ClientHandler struct {
	db    *gorm.DB
	log   *zap.Logger
	chaos *chaos
}

type BackupHandler struct {
	db    *gorm.DB
	log   *zap.Logger
	chaos *chaos
}

// chaos fails every nth create request with 503 when n > 0.
type chaos struct {
	n     int64
	count atomic.Int64
}

func (c *chaos) fail() bool {
	if c == nil || c.n <= 0 {
		return false
	}
	return c.count.Add(1)%c.n == 0
}

type CreateClientRequest struct {
	Name          string `json:"name" binding:"required,max=255"`
	Email         string `json:"email" binding:"required,email"`
	CNPJ          string `json:"cnpj" binding:"required,max=18"`
	Active        bool   `json:"active"`
	InclusionDate string `json:"inclusionDate"`
}

type CreateBackupRequest struct {
	ClientID             uint       `json:"clientId" binding:"required"`
	Status               string     `json:"status" binding:"required"`
	Message              string     `json:"message"`
	VacuumExecuted       bool       `json:"vacuumExecuted"`
	VacuumCompletionTime *time.Time `json:"vacuumCompletionTime"`
	StartTime            *time.Time `json:"startTime"`
	EndTime              *time.Time `json:"endTime"`
	SizeMB               float64    `json:"sizeMb" binding:"gte=0"`
}

// GET /api/clients
func (h *ClientHandler) List(c *gin.Context) {
	var clients []Client
	if err := h.db.Order("id").Find(&clients).Error; err != nil {
		InternalError(c, "Failed to fetch clients")
		return
	}
	SuccessWithMeta(c, clients, &Meta{Total: int64(len(clients))})
}

// POST /api/clients
func (h *ClientHandler) Create(c *gin.Context) {
	if h.chaos.fail() {
		Unavailable(c, "Service temporarily unavailable")
		return
	}

	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var existing int64
	if err := h.db.Model(&Client{}).Where("cnpj = ?", req.CNPJ).Count(&existing).Error; err != nil {
		InternalError(c, "Failed to check client")
		return
	}
	if existing > 0 {
		Conflict(c, "A client with this CNPJ already exists")
		return
	}

	client := Client{
		Name:          req.Name,
		Email:         req.Email,
		CNPJ:          req.CNPJ,
		Active:        req.Active,
		InclusionDate: req.InclusionDate,
	}
	if err := h.db.Create(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Conflict(c, "A client with this CNPJ already exists")
			return
		}
		h.log.Error("creating client", zap.Error(err))
		InternalError(c, "Failed to create client")
		return
	}

	Created(c, client)
}

// GET /api/backups?clientId=N
func (h *BackupHandler) List(c *gin.Context) {
	q := h.db.Order("id")
	if raw := c.Query("clientId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			BadRequest(c, "Invalid client ID")
			return
		}
		q = q.Where("client_id = ?", id)
	}

	var backups []Backup
	if err := q.Find(&backups).Error; err != nil {
		InternalError(c, "Failed to fetch backups")
		return
	}
	SuccessWithMeta(c, backups, &Meta{Total: int64(len(backups))})
}

// POST /api/backups
func (h *BackupHandler) Create(c *gin.Context) {
	if h.chaos.fail() {
		Unavailable(c, "Service temporarily unavailable")
		return
	}

	var req CreateBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var client Client
	if err := h.db.First(&client, req.ClientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "Client not found")
			return
		}
		InternalError(c, "Failed to fetch client")
		return
	}

	backup := Backup{
		ClientID:             client.ID,
		Status:               req.Status,
		Message:              req.Message,
		VacuumExecuted:       req.VacuumExecuted,
		VacuumCompletionTime: req.VacuumCompletionTime,
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		SizeMB:               req.SizeMB,
	}
	if err := h.db.Create(&backup).Error; err != nil {
		h.log.Error("creating backup", zap.Error(err))
		InternalError(c, "Failed to create backup")
		return
	}

	Created(c, backup)
}
