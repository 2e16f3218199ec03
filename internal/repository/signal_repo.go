package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"MatchOracle/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSignalNotFound 无对应信号
var ErrSignalNotFound = errors.New("信号不存在")

// supersedes 新上报是否应覆盖已存信号：仅当capturedAt严格更新。
// 相等或更旧都按旧数据忽略（guardedUpdate的 captured_at < ? 谓词与此保持同一语义）
func supersedes(incoming, existing time.Time) bool {
	return incoming.After(existing)
}

// SignalRepository 爬虫信号存取。Upsert按(source, data_type, subject_id)幂等：
// capturedAt更新才覆盖，乱序到达的旧数据直接忽略，绝不回退新鲜度
type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// UpsertSignal 幂等入库。返回值表示本次写入是否生效（false=旧数据被忽略）。
// 整个判断+写入在事务内完成（行锁保证并发POST下不丢更新）
func (r *SignalRepository) UpsertSignal(ctx context.Context, signal *model.ScrapedSignal) (bool, error) {
	if signal.SignalUUID == "" {
		signal.SignalUUID = uuid.NewString()
	}

	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.ScrapedSignal
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("source = ? AND data_type = ? AND subject_id = ?",
				signal.Source, signal.DataType, signal.SubjectID).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			if cerr := tx.Create(signal).Error; cerr != nil {
				// 并发插入撞唯一索引时按旧数据处理重试一次更新
				if strings.Contains(cerr.Error(), "uk_source_type_subject") {
					return r.guardedUpdate(tx, signal, &applied)
				}
				return fmt.Errorf("保存信号失败: %w", cerr)
			}
			applied = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("查询既有信号失败: %w", err)
		}

		// capturedAt不新于已存数据：no-op
		if !supersedes(signal.CapturedAt, existing.CapturedAt) {
			return nil
		}

		updates := map[string]interface{}{
			"payload":     signal.Payload,
			"captured_at": signal.CapturedAt,
			"ttl_seconds": signal.TTLSeconds,
			"updated_at":  gorm.Expr("now()"),
		}
		if uerr := tx.Model(&model.ScrapedSignal{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; uerr != nil {
			return fmt.Errorf("更新信号失败: %w", uerr)
		}
		applied = true
		return nil
	})
	return applied, err
}

// guardedUpdate 唯一索引冲突后的兜底更新（仍带capturedAt回退保护）
func (r *SignalRepository) guardedUpdate(tx *gorm.DB, signal *model.ScrapedSignal, applied *bool) error {
	result := tx.Model(&model.ScrapedSignal{}).
		Where("source = ? AND data_type = ? AND subject_id = ? AND captured_at < ?",
			signal.Source, signal.DataType, signal.SubjectID, signal.CapturedAt).
		Updates(map[string]interface{}{
			"payload":     signal.Payload,
			"captured_at": signal.CapturedAt,
			"ttl_seconds": signal.TTLSeconds,
			"updated_at":  gorm.Expr("now()"),
		})
	if result.Error != nil {
		return fmt.Errorf("冲突后更新信号失败: %w", result.Error)
	}
	*applied = result.RowsAffected > 0
	return nil
}

// LatestSignal 读取某类型+主体的最新信号（跨source取capturedAt最大的一条）
func (r *SignalRepository) LatestSignal(ctx context.Context, dataType, subjectID string) (*model.ScrapedSignal, error) {
	var signal model.ScrapedSignal
	err := r.db.WithContext(ctx).
		Where("data_type = ? AND subject_id = ?", dataType, subjectID).
		Order("captured_at DESC").
		First(&signal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSignalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询最新信号失败: %w", err)
	}
	return &signal, nil
}
