package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"restorify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// JobService 修复工程与干燥记录服务
type JobService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewJobService(db *gorm.DB, logger *logrus.Logger) *JobService {
	if logger == nil {
		logger = logrus.New()
	}
	return &JobService{db: db, logger: logger}
}

// JobCreateRequest 创建工程请求
type JobCreateRequest struct {
	Number       string `json:"number" binding:"required"`
	CustomerName string `json:"customer_name" binding:"required"`
	Address      string `json:"address"`
	LossType     string `json:"loss_type"`
	PolicyNumber string `json:"policy_number"`
	Carrier      string `json:"carrier"`
	BoardItemID  *uint  `json:"board_item_id"`
}

// CreateJob 创建修复工程
func (s *JobService) CreateJob(ctx context.Context, req *JobCreateRequest) (*models.Job, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	lossType := req.LossType
	if lossType == "" {
		lossType = "water"
	}
	job := &models.Job{
		Number:       req.Number,
		CustomerName: req.CustomerName,
		Address:      req.Address,
		LossType:     lossType,
		PolicyNumber: req.PolicyNumber,
		Carrier:      req.Carrier,
		BoardItemID:  req.BoardItemID,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs 工程列表（status 为空时返回全部）
func (s *JobService) ListJobs(ctx context.Context, status string) ([]models.Job, error) {
	query := s.db.WithContext(ctx).Order("id DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var jobs []models.Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateJobStatus 更新工程状态
func (s *JobService) UpdateJobStatus(ctx context.Context, id uint, status string) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found")
		}
		return nil, err
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateChamber 为工程添加干燥分区
func (s *JobService) CreateChamber(ctx context.Context, jobID uint, name string, targetGPP float64) (*models.DryingChamber, error) {
	if name == "" {
		return nil, fmt.Errorf("chamber name required")
	}
	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found")
		}
		return nil, err
	}
	chamber := &models.DryingChamber{
		JobID:     jobID,
		Name:      name,
		TargetGPP: targetGPP,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(chamber).Error; err != nil {
		return nil, err
	}
	return chamber, nil
}

// DryingLogRequest 读数记录请求。GPP 为 0 时按温湿度推算
type DryingLogRequest struct {
	TempF     float64    `json:"temp_f" binding:"required"`
	RH        float64    `json:"rh" binding:"required"`
	GPP       float64    `json:"gpp"`
	Note      string     `json:"note"`
	ReadingAt *time.Time `json:"reading_at"`
}

// AddDryingLog 记录一次干湿度读数
func (s *JobService) AddDryingLog(ctx context.Context, chamberID uint, req *DryingLogRequest) (*models.DryingLog, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	var chamber models.DryingChamber
	if err := s.db.WithContext(ctx).First(&chamber, chamberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chamber not found")
		}
		return nil, err
	}

	gpp := req.GPP
	if gpp == 0 {
		gpp = GrainsPerPound(req.TempF, req.RH)
	}
	readingAt := time.Now()
	if req.ReadingAt != nil {
		readingAt = *req.ReadingAt
	}

	log := &models.DryingLog{
		ChamberID: chamberID,
		TempF:     req.TempF,
		RH:        req.RH,
		GPP:       gpp,
		Note:      req.Note,
		ReadingAt: readingAt,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return nil, err
	}
	return log, nil
}

// ListDryingLogs 按时间倒序返回分区读数
func (s *JobService) ListDryingLogs(ctx context.Context, chamberID uint) ([]models.DryingLog, error) {
	var logs []models.DryingLog
	if err := s.db.WithContext(ctx).
		Where("chamber_id = ?", chamberID).
		Order("reading_at DESC").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// GrainsPerPound 由华氏温度和相对湿度推算颗粒水含量（GPP）。
// Magnus 近似求饱和水汽压，再按 ASHRAE 湿度比公式换算
func GrainsPerPound(tempF, rh float64) float64 {
	tempC := (tempF - 32) * 5 / 9
	satHPa := 6.112 * math.Exp(17.62*tempC/(243.12+tempC))
	vaporPsi := (rh / 100) * satHPa * 0.0145038
	ratio := 0.622 * vaporPsi / (14.696 - vaporPsi)
	return math.Round(ratio*7000*10) / 10
}
