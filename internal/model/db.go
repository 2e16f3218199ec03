package model

import (
	"time"

	"gorm.io/datatypes"
)

type Team struct {
	ID        uint64    `gorm:"column:id;primaryKey;comment:上游API球队ID"`
	Name      string    `gorm:"column:name;type:varchar(128);not null;comment:球队名称"`
	League    string    `gorm:"column:league;type:varchar(64);index;comment:所属联赛"`
	Country   string    `gorm:"column:country;type:varchar(64);comment:国家"`
	Venue     string    `gorm:"column:venue;type:varchar(128);comment:主场"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

type Fixture struct {
	ID         uint64     `gorm:"column:id;primaryKey;comment:上游API赛程ID"`
	League     string     `gorm:"column:league;type:varchar(64);index;not null;comment:联赛标识"`
	Season     string     `gorm:"column:season;type:varchar(16);index;comment:赛季，如2025/2026"`
	HomeTeamID uint64     `gorm:"column:home_team_id;type:bigint;index;not null;comment:主队ID"`
	AwayTeamID uint64     `gorm:"column:away_team_id;type:bigint;index;not null;comment:客队ID"`
	KickoffAt  time.Time  `gorm:"column:kickoff_at;type:timestamp;index;not null;comment:开球时间"`
	Status     string     `gorm:"column:status;type:varchar(16);default:scheduled;comment:状态：scheduled/live/finished"`
	HomeGoals  *int       `gorm:"column:home_goals;type:int;comment:主队进球（未完赛为空）"`
	AwayGoals  *int       `gorm:"column:away_goals;type:int;comment:客队进球（未完赛为空）"`
	ResolvedAt *time.Time `gorm:"column:resolved_at;type:timestamp;comment:完赛时间"`
	CreatedAt  time.Time  `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

// MatchRecord 已完赛的历史比赛（近况与交锋统计的数据来源）
type MatchRecord struct {
	ID         uint64    `gorm:"column:id;primaryKey;comment:上游API比赛ID"`
	League     string    `gorm:"column:league;type:varchar(64);index;comment:联赛标识"`
	Season     string    `gorm:"column:season;type:varchar(16);comment:赛季"`
	HomeTeamID uint64    `gorm:"column:home_team_id;type:bigint;index;not null;comment:主队ID"`
	AwayTeamID uint64    `gorm:"column:away_team_id;type:bigint;index;not null;comment:客队ID"`
	HomeGoals  int       `gorm:"column:home_goals;type:int;not null;comment:主队进球"`
	AwayGoals  int       `gorm:"column:away_goals;type:int;not null;comment:客队进球"`
	HomeXG     float64   `gorm:"column:home_xg;type:numeric(6,3);default:0;comment:主队期望进球"`
	AwayXG     float64   `gorm:"column:away_xg;type:numeric(6,3);default:0;comment:客队期望进球"`
	PlayedAt   time.Time `gorm:"column:played_at;type:timestamp;index;not null;comment:比赛时间"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
}

// ScrapedSignal 爬虫上报信号。同 (source, data_type, subject_id) 仅保留最新一条，
// capturedAt 更旧的上报会被忽略，不允许回退新鲜度
type ScrapedSignal struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	SignalUUID string         `gorm:"column:signal_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一ID"`
	Source     string         `gorm:"column:source;type:varchar(64);not null;uniqueIndex:uk_source_type_subject;comment:爬虫来源标识"`
	DataType   string         `gorm:"column:data_type;type:varchar(16);not null;uniqueIndex:uk_source_type_subject;comment:信号类型：odds/injuries/weather/stats"`
	SubjectID  string         `gorm:"column:subject_id;type:varchar(64);not null;uniqueIndex:uk_source_type_subject;comment:赛程ID或球队ID"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb;not null;comment:信号内容"`
	CapturedAt time.Time      `gorm:"column:captured_at;type:timestamp;not null;comment:采集时间"`
	TTLSeconds int            `gorm:"column:ttl_seconds;type:int;not null;comment:新鲜度TTL（秒）"`
	CreatedAt  time.Time      `gorm:"column:created_at;type:timestamp;default:now();comment:入库时间"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

func (Team) TableName() string          { return "teams" }
func (Fixture) TableName() string       { return "fixtures" }
func (MatchRecord) TableName() string   { return "match_records" }
func (ScrapedSignal) TableName() string { return "scraped_signals" }

// IsFresh 按TTL判断信号是否仍然新鲜
func (s *ScrapedSignal) IsFresh(now time.Time) bool {
	return now.Sub(s.CapturedAt) <= time.Duration(s.TTLSeconds)*time.Second
}

// Age 信号年龄（用于HTTP Age头）
func (s *ScrapedSignal) Age(now time.Time) time.Duration {
	age := now.Sub(s.CapturedAt)
	if age < 0 {
		return 0
	}
	return age
}
