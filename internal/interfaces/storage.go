package interfaces

import (
	"context"
	"time"

	"MatchOracle/internal/model"
)

// FixtureStore 持久化存储的窄接口（特征提取只需要这四个读操作）
type FixtureStore interface {
	GetFixture(ctx context.Context, id uint64) (*model.Fixture, error)
	GetTeam(ctx context.Context, id uint64) (*model.Team, error)
	GetRecentMatches(ctx context.Context, teamID uint64, n int) ([]*model.MatchRecord, error)
	GetHeadToHead(ctx context.Context, teamA, teamB uint64) ([]*model.MatchRecord, error)
}

// FixtureWriter 同步服务的写侧接口
type FixtureWriter interface {
	UpsertTeams(ctx context.Context, teams []*model.Team) error
	UpsertFixtures(ctx context.Context, fixtures []*model.Fixture) error
	UpsertMatchRecords(ctx context.Context, records []*model.MatchRecord) error
}

// SignalStore 爬虫信号存取接口。Upsert按(source, dataType, subjectID)幂等，
// capturedAt更旧的写入是no-op
type SignalStore interface {
	UpsertSignal(ctx context.Context, signal *model.ScrapedSignal) (bool, error)
	LatestSignal(ctx context.Context, dataType, subjectID string) (*model.ScrapedSignal, error)
}

// Clock 注入式时钟（新鲜度判断与单测共用）
type Clock func() time.Time
