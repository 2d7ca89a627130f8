package models

import (
	"context"
	"errors"
	"time"

	"github.com/nfce-scan/nfce_backend/config"
	"github.com/nfce-scan/nfce_backend/utils"
	"gorm.io/gorm"
)

// GeminiKey is one API key of the classifier key pool. Reads through the
// HTTP surface never expose ApiKey; rotation inside the standardize service
// is the only consumer of the secret.
type GeminiKey struct {
	ID          int        `gorm:"primary_key" json:"id"`
	Name        string     `gorm:"size:100;not null" json:"name"`
	ApiKey      string     `gorm:"size:255;not null;uniqueIndex" json:"-"`
	IsActive    *bool      `gorm:"not null;default:true" json:"is_active"`
	UsageCount  int        `gorm:"not null;default:0" json:"usage_count"`
	ErrorCount  int        `gorm:"not null;default:0" json:"error_count"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	LastErrorAt *time.Time `json:"last_error_at"`
	Notes       string     `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GeminiKey) TableName() string {
	return "gemini_keys"
}

type NewGeminiKey struct {
	Name   string `json:"name" binding:"required"`
	ApiKey string `json:"apiKey" binding:"required"`
	Notes  string `json:"notes"`
}

type UpdateGeminiKeyInput struct {
	Name     *string `json:"name"`
	ApiKey   *string `json:"apiKey"`
	IsActive *bool   `json:"isActive"`
	Notes    *string `json:"notes"`
}

// GeminiKeyStats is the aggregate view of the pool.
type GeminiKeyStats struct {
	TotalKeys    int64 `json:"totalKeys"`
	ActiveKeys   int64 `json:"activeKeys"`
	InactiveKeys int64 `json:"inactiveKeys"`
	TotalUsage   int64 `json:"totalUsage"`
	TotalErrors  int64 `json:"totalErrors"`
}

func CreateGeminiKey(ctx context.Context, input *NewGeminiKey) (*GeminiKey, error) {
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&GeminiKey{}).Where("api_key = ?", input.ApiKey).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("a key with this api key already exists")
	}

	key := GeminiKey{
		Name:     input.Name,
		ApiKey:   input.ApiKey,
		Notes:    input.Notes,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

func GetGeminiKey(ctx context.Context, id int) (*GeminiKey, error) {
	db := config.GetDB()
	var key GeminiKey
	err := db.WithContext(ctx).First(&key, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &key, nil
}

func ListGeminiKeys(ctx context.Context) ([]GeminiKey, error) {
	db := config.GetDB()
	var keys []GeminiKey
	err := db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// GetActiveGeminiKeys orders the pool so the least used / least recently
// failing keys rotate in first.
func GetActiveGeminiKeys(ctx context.Context) ([]GeminiKey, error) {
	db := config.GetDB()
	var keys []GeminiKey
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("usage_count ASC, last_error_at ASC").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func UpdateGeminiKey(ctx context.Context, id int, input *UpdateGeminiKeyInput) (*GeminiKey, error) {
	db := config.GetDB()
	key, err := GetGeminiKey(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.ApiKey != nil && *input.ApiKey != key.ApiKey {
		var count int64
		if err := db.WithContext(ctx).Model(&GeminiKey{}).
			Where("api_key = ? AND NOT id = ?", *input.ApiKey, id).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, errors.New("another key already uses this api key")
		}
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.ApiKey != nil {
		updates["api_key"] = *input.ApiKey
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}
	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(key).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return key, nil
}

func DeleteGeminiKey(ctx context.Context, id int) error {
	key, err := GetGeminiKey(ctx, id)
	if err != nil {
		return err
	}
	db := config.GetDB()
	return db.WithContext(ctx).Delete(key).Error
}

// BumpGeminiKeyStats records one use of a key, and one error when the call
// failed.
func BumpGeminiKeyStats(ctx context.Context, id int, success bool) error {
	db := config.GetDB()
	now := time.Now()
	updates := map[string]interface{}{
		"usage_count":  gorm.Expr("usage_count + 1"),
		"last_used_at": now,
	}
	if !success {
		updates["error_count"] = gorm.Expr("error_count + 1")
		updates["last_error_at"] = now
	}
	return db.WithContext(ctx).Model(&GeminiKey{}).Where("id = ?", id).Updates(updates).Error
}

func GetGeminiKeyStats(ctx context.Context) (*GeminiKeyStats, error) {
	db := config.GetDB()
	var stats GeminiKeyStats
	if err := db.WithContext(ctx).Model(&GeminiKey{}).Count(&stats.TotalKeys).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&GeminiKey{}).Where("is_active = ?", true).Count(&stats.ActiveKeys).Error; err != nil {
		return nil, err
	}
	stats.InactiveKeys = stats.TotalKeys - stats.ActiveKeys
	if err := db.WithContext(ctx).Model(&GeminiKey{}).Select("COALESCE(SUM(usage_count),0)").Scan(&stats.TotalUsage).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&GeminiKey{}).Select("COALESCE(SUM(error_count),0)").Scan(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}
