package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"go.uber.org/zap"
)

// NotifyChannel 新读数入库时 pg_notify 使用的通道
const NotifyChannel = "health_data_inserted"

// schemaSQL 建表 + 插入触发器（NOTIFY 负载为整行 JSON）
const schemaSQL = `
CREATE TABLE IF NOT EXISTS health_data (
	id              TEXT PRIMARY KEY,
	patient_id      TEXT NOT NULL,
	recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	heart_rate      DOUBLE PRECISION NOT NULL,
	temperature     DOUBLE PRECISION NOT NULL,
	muscle_activity DOUBLE PRECISION,
	ecg_value       DOUBLE PRECISION,
	lead_off        BOOLEAN,
	flex_request    JSONB,
	fall_status     BOOLEAN NOT NULL DEFAULT FALSE,
	fall_severity   TEXT NOT NULL DEFAULT 'none',
	alert_status    TEXT NOT NULL DEFAULT 'normal'
);

CREATE INDEX IF NOT EXISTS idx_health_data_patient_recorded
	ON health_data (patient_id, recorded_at DESC);

CREATE OR REPLACE FUNCTION notify_health_data_inserted() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('health_data_inserted', row_to_json(NEW)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_health_data_inserted ON health_data;
CREATE TRIGGER trg_health_data_inserted
	AFTER INSERT ON health_data
	FOR EACH ROW EXECUTE FUNCTION notify_health_data_inserted();
`

const selectColumns = `id, patient_id, recorded_at, heart_rate, temperature, muscle_activity,
		ecg_value, lead_off, flex_request, fall_status, fall_severity, alert_status`

// HealthDataRepository health_data 表（PostgreSQL）
type HealthDataRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHealthDataRepository 创建 health_data 仓库
func NewHealthDataRepository(db *sql.DB, logger *zap.Logger) *HealthDataRepository {
	return &HealthDataRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema 创建表、索引和 NOTIFY 触发器
func (r *HealthDataRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure health_data schema: %w", err)
	}
	return nil
}

// InsertReading 写入一条读数
func (r *HealthDataRepository) InsertReading(ctx context.Context, reading models.VitalReading) error {
	row, err := toRow(reading)
	if err != nil {
		return err
	}

	var flex interface{}
	if reading.FlexRequests != nil {
		flex = string(row.FlexRequest)
	}

	query := `
		INSERT INTO health_data (
			id, patient_id, recorded_at, heart_rate, temperature, muscle_activity,
			ecg_value, lead_off, flex_request, fall_status, fall_severity, alert_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.ExecContext(ctx, query,
		row.ID,
		row.PatientID,
		row.RecordedAt,
		row.HeartRate,
		row.Temperature,
		nullFloat(row.MuscleActivity),
		nullFloat(row.ECGValue),
		nullBool(row.LeadOff),
		flex,
		row.FallStatus,
		row.FallSeverity,
		row.AlertStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to insert health data: %w", err)
	}
	return nil
}

// RecentReadings 查询病人最近 n 条读数（按时间倒序）
func (r *HealthDataRepository) RecentReadings(ctx context.Context, patientID string, n int) ([]models.VitalReading, error) {
	query := `SELECT ` + selectColumns + `
		FROM health_data
		WHERE patient_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, patientID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent readings: %w", err)
	}
	defer rows.Close()
	return r.scanReadings(rows)
}

// ReadingsBetween 查询 [from, to) 区间内的读数（按时间倒序）
func (r *HealthDataRepository) ReadingsBetween(ctx context.Context, patientID string, from, to time.Time) ([]models.VitalReading, error) {
	query := `SELECT ` + selectColumns + `
		FROM health_data
		WHERE patient_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at DESC`

	rows, err := r.db.QueryContext(ctx, query, patientID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query readings between: %w", err)
	}
	defer rows.Close()
	return r.scanReadings(rows)
}

func (r *HealthDataRepository) scanReadings(rows *sql.Rows) ([]models.VitalReading, error) {
	var out []models.VitalReading
	for rows.Next() {
		var (
			row     healthDataRow
			muscle  sql.NullFloat64
			ecg     sql.NullFloat64
			leadOff sql.NullBool
			flex    []byte
		)
		if err := rows.Scan(
			&row.ID,
			&row.PatientID,
			&row.RecordedAt,
			&row.HeartRate,
			&row.Temperature,
			&muscle,
			&ecg,
			&leadOff,
			&flex,
			&row.FallStatus,
			&row.FallSeverity,
			&row.AlertStatus,
		); err != nil {
			return nil, fmt.Errorf("failed to scan health data: %w", err)
		}
		if muscle.Valid {
			v := muscle.Float64
			row.MuscleActivity = &v
		}
		if ecg.Valid {
			v := ecg.Float64
			row.ECGValue = &v
		}
		if leadOff.Valid {
			v := leadOff.Bool
			row.LeadOff = &v
		}
		row.FlexRequest = flex

		reading, err := row.toReading()
		if err != nil {
			r.logger.Warn("Skipping malformed health data row",
				zap.String("id", row.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate health data: %w", err)
	}
	return out, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
