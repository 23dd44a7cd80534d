package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"sector-strength-sentry/pkg/types"
)

// Manager 数据库管理器
type Manager struct {
	db *gorm.DB
}

// FixSession 修复会话模型，每个终态会话一条
type FixSession struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	SessionID       string            `gorm:"type:varchar(36);index:idx_session_id" json:"session_id"`
	SectorID        string            `gorm:"type:varchar(32);index:idx_sector" json:"sector_id"`
	SectorName      string            `gorm:"type:varchar(64);index:idx_sector" json:"sector_name"`
	Days            int               `gorm:"not null" json:"days"`
	Overwrite       bool              `gorm:"default:false" json:"overwrite"`
	Success         bool              `gorm:"not null" json:"success"`
	Message         string            `gorm:"type:text" json:"message"`
	SuccessCount    int               `gorm:"default:0" json:"success_count"`
	FailedCount     int               `gorm:"default:0" json:"failed_count"`
	DurationSeconds float64           `json:"duration_seconds"`
	StartedAt       time.Time         `gorm:"index:idx_started_at" json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	Sectors         []FixSectorRecord `gorm:"foreignKey:SessionID" json:"sectors"`
	CreatedAt       time.Time         `json:"created_at"`
}

// FixSectorRecord 会话内单个板块的修复结果
type FixSectorRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  uint      `gorm:"not null;index:idx_session" json:"session_id"`
	SectorID   string    `gorm:"type:varchar(32);not null" json:"sector_id"`
	SectorName string    `gorm:"type:varchar(64)" json:"sector_name"`
	Success    bool      `gorm:"not null" json:"success"`
	Error      string    `gorm:"type:text" json:"error"`
	CreatedAt  time.Time `json:"created_at"`
}

// LevelStat 每日各级别板块数量
type LevelStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      string    `gorm:"type:varchar(10);not null;uniqueIndex:uk_date_level" json:"date"`
	Level     int       `gorm:"not null;uniqueIndex:uk_date_level" json:"level"`
	Count     int       `gorm:"default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewManager 按配置的驱动创建数据库管理器
func NewManager(config types.DatabaseConfig) (*Manager, error) {
	// 配置GORM日志
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 生产环境使用Silent
	}

	var (
		db  *gorm.DB
		err error
	)

	switch config.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			config.MySQL.Username,
			config.MySQL.Password,
			config.MySQL.Host,
			config.MySQL.Port,
			config.MySQL.Database,
		)
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("连接MySQL失败: %w", err)
		}

		// 配置连接池
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("获取数据库实例失败: %w", err)
		}
		sqlDB.SetMaxIdleConns(config.MySQL.MaxIdleConns)
		sqlDB.SetMaxOpenConns(config.MySQL.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Hour)

	case "sqlite":
		if dir := filepath.Dir(config.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("创建数据目录失败: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(config.SQLitePath), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("打开SQLite失败: %w", err)
		}

	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %q", config.Driver)
	}

	manager, err := NewManagerWithDB(db)
	if err != nil {
		return nil, err
	}

	zap.L().Info("✅ 修复历史数据库连接成功", zap.String("driver", config.Driver))
	return manager, nil
}

// NewManagerWithDB 使用已打开的连接创建管理器并迁移表结构
func NewManagerWithDB(db *gorm.DB) (*Manager, error) {
	manager := &Manager{db: db}

	// 自动迁移表结构
	if err := manager.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return manager, nil
}

// AutoMigrate 自动迁移数据库表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(
		&FixSession{},
		&FixSectorRecord{},
		&LevelStat{},
	)
}

// SaveFixReport 在一个事务中保存修复会话及其板块明细
func (m *Manager) SaveFixReport(report *types.FixReport) (*FixSession, error) {
	if report == nil {
		return nil, errors.New("修复报告为空")
	}

	session := &FixSession{
		SessionID:  report.SessionID,
		SectorID:   report.Request.SectorID,
		SectorName: report.Request.SectorName,
		Days:       report.Request.Days,
		Overwrite:  report.Request.Overwrite,
		Success:    report.Success,
		Message:    report.Message,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}

	if report.Outcome != nil {
		session.SuccessCount = report.Outcome.SuccessCount
		session.FailedCount = report.Outcome.FailedCount
		session.DurationSeconds = report.Outcome.DurationSeconds
		for _, sector := range report.Outcome.Sectors {
			session.Sectors = append(session.Sectors, FixSectorRecord{
				SectorID:   sector.SectorID,
				SectorName: sector.SectorName,
				Success:    sector.Success,
				Error:      sector.Error,
			})
		}
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, fmt.Errorf("保存修复会话失败: %w", err)
	}

	zap.L().Debug("💾 修复会话已保存",
		zap.Uint("id", session.ID),
		zap.Int("sectors", len(session.Sectors)))
	return session, nil
}

// GetFixSessions 获取最近的修复会话，按时间倒序
func (m *Manager) GetFixSessions(limit int) ([]FixSession, error) {
	var sessions []FixSession
	query := m.db.Preload("Sectors").Order("started_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("查询修复会话失败: %w", err)
	}
	return sessions, nil
}

// SaveLevelDistribution 保存某日的级别分布，同一天重复保存时覆盖
func (m *Manager) SaveLevelDistribution(date string, distribution [10]int) error {
	stats := make([]LevelStat, 0, 9)
	for level := 1; level <= 9; level++ {
		stats = append(stats, LevelStat{Date: date, Level: level, Count: distribution[level]})
	}

	err := m.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "level"}},
		DoUpdates: clause.AssignmentColumns([]string{"count", "updated_at"}),
	}).Create(&stats).Error
	if err != nil {
		return fmt.Errorf("保存级别分布失败: %w", err)
	}
	return nil
}

// GetLevelDistribution 读取某日的级别分布
func (m *Manager) GetLevelDistribution(date string) ([10]int, error) {
	var distribution [10]int

	var stats []LevelStat
	if err := m.db.Where("date = ?", date).Find(&stats).Error; err != nil {
		return distribution, fmt.Errorf("查询级别分布失败: %w", err)
	}

	for _, stat := range stats {
		if stat.Level >= 1 && stat.Level <= 9 {
			distribution[stat.Level] = stat.Count
		}
	}
	return distribution, nil
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接
func (m *Manager) Health() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
