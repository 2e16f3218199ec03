package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"MatchOracle/internal/adapter/apifootball"
	"MatchOracle/internal/interfaces"
	"MatchOracle/internal/model"

	"github.com/sirupsen/logrus"
)

// SyncSummary 单次同步的结果摘要
type SyncSummary struct {
	League     string `json:"league"`
	Season     string `json:"season"`
	Source     string `json:"source"` // api/cache/fallback
	Synthetic  bool   `json:"synthetic"`
	Teams      int    `json:"teams"`
	Fixtures   int    `json:"fixtures"`
	Finished   int    `json:"finished"`
	ParseFails int    `json:"parse_fails"`
}

// SyncService 赛程同步：经弹性客户端拉取上游数据并入库。
// 弹性客户端保证总有包络返回，所以这里只有入库失败才报错
type SyncService struct {
	client *apifootball.Client
	writer interfaces.FixtureWriter
	logger *logrus.Logger
}

func NewSyncService(client *apifootball.Client, writer interfaces.FixtureWriter, logger *logrus.Logger) *SyncService {
	return &SyncService{
		client: client,
		writer: writer,
		logger: logger,
	}
}

// SyncLeague 同步某联赛某赛季的赛程与球队
func (s *SyncService) SyncLeague(ctx context.Context, league, season string) (*SyncSummary, error) {
	env, source := s.client.Fetch(ctx, apifootball.EndpointFixtures, map[string]string{
		"league": league,
		"season": season,
	})

	summary := &SyncSummary{
		League:    league,
		Season:    season,
		Source:    source,
		Synthetic: env.Synthetic,
	}
	if env.Synthetic {
		// 兜底数据不入库（避免污染真实历史），只报告降级事实
		s.logger.WithField("league", league).Warn("同步拿到兜底数据，跳过入库")
		return summary, nil
	}

	teamSet := make(map[uint64]*model.Team)
	var fixtures []*model.Fixture
	var records []*model.MatchRecord

	for _, raw := range env.Response {
		var uf model.UpstreamFixture
		if err := json.Unmarshal(raw, &uf); err != nil {
			summary.ParseFails++
			s.logger.WithError(err).Warn("赛程条目解析失败，跳过")
			continue
		}

		for _, ref := range []model.UpstreamTeamRef{uf.Teams.Home, uf.Teams.Away} {
			if ref.ID == 0 {
				continue
			}
			if _, ok := teamSet[ref.ID]; !ok {
				teamSet[ref.ID] = &model.Team{
					ID:     ref.ID,
					Name:   ref.Name,
					League: league,
				}
			}
		}

		fixture := &model.Fixture{
			ID:         uf.Fixture.ID,
			League:     league,
			Season:     season,
			HomeTeamID: uf.Teams.Home.ID,
			AwayTeamID: uf.Teams.Away.ID,
			KickoffAt:  uf.Fixture.Date,
			Status:     mapFixtureStatus(uf.Fixture.Status.Short),
			HomeGoals:  uf.Goals.Home,
			AwayGoals:  uf.Goals.Away,
		}
		fixtures = append(fixtures, fixture)

		// 已完赛的同时落一条历史比赛（近况/交锋统计的数据源）
		if fixture.Status == "finished" && uf.Goals.Home != nil && uf.Goals.Away != nil {
			records = append(records, &model.MatchRecord{
				ID:         uf.Fixture.ID,
				League:     league,
				Season:     season,
				HomeTeamID: uf.Teams.Home.ID,
				AwayTeamID: uf.Teams.Away.ID,
				HomeGoals:  *uf.Goals.Home,
				AwayGoals:  *uf.Goals.Away,
				PlayedAt:   uf.Fixture.Date,
			})
		}
	}

	teams := make([]*model.Team, 0, len(teamSet))
	for _, t := range teamSet {
		teams = append(teams, t)
	}

	if err := s.writer.UpsertTeams(ctx, teams); err != nil {
		return nil, fmt.Errorf("%s球队入库失败: %w", league, err)
	}
	if err := s.writer.UpsertFixtures(ctx, fixtures); err != nil {
		return nil, fmt.Errorf("%s赛程入库失败: %w", league, err)
	}
	if err := s.writer.UpsertMatchRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("%s历史比赛入库失败: %w", league, err)
	}

	summary.Teams = len(teams)
	summary.Fixtures = len(fixtures)
	summary.Finished = len(records)

	s.logger.WithFields(logrus.Fields{
		"league":   league,
		"season":   season,
		"source":   source,
		"fixtures": summary.Fixtures,
		"finished": summary.Finished,
	}).Info("赛程同步完成")
	return summary, nil
}

// mapFixtureStatus 上游状态码映射为内部状态
func mapFixtureStatus(short string) string {
	switch short {
	case "FT", "AET", "PEN":
		return "finished"
	case "1H", "2H", "HT", "ET", "LIVE", "P":
		return "live"
	case "NS", "TBD", "":
		return "scheduled"
	default:
		return "scheduled"
	}
}

// ParseSeason 赛季参数兜底：空值取当前年份（联赛跨年赛季按起始年记）
func ParseSeason(season string, currentYear int) string {
	if season == "" {
		return strconv.Itoa(currentYear)
	}
	return season
}
