package repository

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/config"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SupabaseRepository 托管后端（PostgREST）上的 health_data 表
// 不做重试：同一读数只写一次，重试策略由调用方决定
type SupabaseRepository struct {
	httpClient *resty.Client
	table      string
	logger     *zap.Logger
}

// NewSupabaseRepository 创建托管后端仓库
func NewSupabaseRepository(cfg *config.SupabaseConfig, logger *zap.Logger) *SupabaseRepository {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	table := cfg.Table
	if table == "" {
		table = "health_data"
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("apikey", cfg.APIKey).
		SetAuthToken(cfg.APIKey)

	return &SupabaseRepository{
		httpClient: client,
		table:      table,
		logger:     logger,
	}
}

func (s *SupabaseRepository) path() string {
	return "/rest/v1/" + s.table
}

// InsertReading 写入一条读数
func (s *SupabaseRepository) InsertReading(ctx context.Context, reading models.VitalReading) error {
	row, err := toRow(reading)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody([]healthDataRow{row}).
		Post(s.path())
	if err != nil {
		return fmt.Errorf("failed to call supabase insert: %w", err)
	}
	if resp.IsError() {
		s.logger.Error("Supabase insert rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return fmt.Errorf("supabase insert failed: status %d", resp.StatusCode())
	}
	return nil
}

// RecentReadings 查询病人最近 n 条读数（按时间倒序）
func (s *SupabaseRepository) RecentReadings(ctx context.Context, patientID string, n int) ([]models.VitalReading, error) {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("patient_id", "eq."+patientID)
	params.Set("order", "recorded_at.desc")
	params.Set("limit", strconv.Itoa(n))
	return s.query(ctx, params)
}

// ReadingsBetween 查询 [from, to) 区间内的读数（按时间倒序）
func (s *SupabaseRepository) ReadingsBetween(ctx context.Context, patientID string, from, to time.Time) ([]models.VitalReading, error) {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("patient_id", "eq."+patientID)
	params.Add("recorded_at", "gte."+from.UTC().Format(time.RFC3339Nano))
	params.Add("recorded_at", "lt."+to.UTC().Format(time.RFC3339Nano))
	params.Set("order", "recorded_at.desc")
	return s.query(ctx, params)
}

func (s *SupabaseRepository) query(ctx context.Context, params url.Values) ([]models.VitalReading, error) {
	var rows []healthDataRow
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		SetResult(&rows).
		Get(s.path())
	if err != nil {
		return nil, fmt.Errorf("failed to call supabase query: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("supabase query failed: status %d", resp.StatusCode())
	}

	out := make([]models.VitalReading, 0, len(rows))
	for _, row := range rows {
		reading, err := row.toReading()
		if err != nil {
			s.logger.Warn("Skipping malformed health data row",
				zap.String("id", row.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, reading)
	}
	return out, nil
}
