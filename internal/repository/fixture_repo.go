package repository

import (
	"context"
	"errors"
	"fmt"

	"MatchOracle/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrFixtureNotFound 赛程不存在（预测引擎唯一向调用方暴露的硬错误）
var ErrFixtureNotFound = errors.New("赛程不存在")

// ErrTeamNotFound 球队不存在
var ErrTeamNotFound = errors.New("球队不存在")

// FixtureRepository 赛程/球队/历史比赛的通用存取（特征提取的读侧 + 同步服务的写侧）
type FixtureRepository struct {
	db *gorm.DB
}

func NewFixtureRepository(db *gorm.DB) *FixtureRepository {
	return &FixtureRepository{db: db}
}

// GetFixture 按ID查赛程
func (r *FixtureRepository) GetFixture(ctx context.Context, id uint64) (*model.Fixture, error) {
	var fixture model.Fixture
	if err := r.db.WithContext(ctx).First(&fixture, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFixtureNotFound
		}
		return nil, fmt.Errorf("查询赛程失败: %w", err)
	}
	return &fixture, nil
}

// GetTeam 按ID查球队
func (r *FixtureRepository) GetTeam(ctx context.Context, id uint64) (*model.Team, error) {
	var team model.Team
	if err := r.db.WithContext(ctx).First(&team, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("查询球队失败: %w", err)
	}
	return &team, nil
}

// GetRecentMatches 某队最近n场已完赛比赛（按比赛时间倒序）
func (r *FixtureRepository) GetRecentMatches(ctx context.Context, teamID uint64, n int) ([]*model.MatchRecord, error) {
	var records []*model.MatchRecord
	err := r.db.WithContext(ctx).
		Where("home_team_id = ? OR away_team_id = ?", teamID, teamID).
		Order("played_at DESC").
		Limit(n).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询近况比赛失败: %w", err)
	}
	return records, nil
}

// GetHeadToHead 两队历史交锋（双向，最多10场）
func (r *FixtureRepository) GetHeadToHead(ctx context.Context, teamA, teamB uint64) ([]*model.MatchRecord, error) {
	var records []*model.MatchRecord
	err := r.db.WithContext(ctx).
		Where("(home_team_id = ? AND away_team_id = ?) OR (home_team_id = ? AND away_team_id = ?)",
			teamA, teamB, teamB, teamA).
		Order("played_at DESC").
		Limit(10).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询历史交锋失败: %w", err)
	}
	return records, nil
}

// UpsertTeams 球队批量入库（主键冲突则更新）
func (r *FixtureRepository) UpsertTeams(ctx context.Context, teams []*model.Team) error {
	if len(teams) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "league", "country", "venue", "updated_at"}),
		}).
		Create(&teams).Error
	if err != nil {
		return fmt.Errorf("保存球队失败: %w", err)
	}
	return nil
}

// UpsertFixtures 赛程批量入库（主键冲突则更新状态与比分）
func (r *FixtureRepository) UpsertFixtures(ctx context.Context, fixtures []*model.Fixture) error {
	if len(fixtures) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "home_goals", "away_goals", "kickoff_at", "resolved_at", "updated_at"}),
		}).
		Create(&fixtures).Error
	if err != nil {
		return fmt.Errorf("保存赛程失败: %w", err)
	}
	return nil
}

// UpsertMatchRecords 历史比赛批量入库（已完赛数据不可变，冲突忽略）
func (r *FixtureRepository) UpsertMatchRecords(ctx context.Context, records []*model.MatchRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&records).Error
	if err != nil {
		return fmt.Errorf("保存历史比赛失败: %w", err)
	}
	return nil
}
