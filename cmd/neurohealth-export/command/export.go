package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/database"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/logger"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/config"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/evaluator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/export"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportParams = struct {
	PatientID string
	Range     string
	Filter    string
	Out       string
	Source    string
}{}

var exportCmd = &cobra.Command{
	Use:   "export {patientId}",
	Args:  cobra.ExactArgs(1),
	Short: "Export a patient's readings to an xlsx workbook",
	Long:  "Export a patient's readings for the selected range and filter to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		exportParams.PatientID = args[0]
		return runExport(cmd.Context())
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportParams.Range, "range", "7d", "Time range: 24h, 7d, 30d or 90d")
	exportCmd.Flags().StringVar(&exportParams.Filter, "filter", "all", "Record filter: all, temperature, heart, requests or falls")
	exportCmd.Flags().StringVarP(&exportParams.Out, "out", "o", "", "Output file (defaults to health-data-{patient}-{date}.xlsx)")
	exportCmd.Flags().StringVar(&exportParams.Source, "source", config.SinkPostgres, "Reading store: postgres or supabase")

	rootCmd.AddCommand(exportCmd)
}

// readingSource 历史读数查询
type readingSource interface {
	ReadingsBetween(ctx context.Context, patientID string, from, to time.Time) ([]models.VitalReading, error)
}

func runExport(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(cfg.Log.Level, "console", "neurohealth-export")
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	thresholds, err := evaluator.ThresholdsByName(cfg.Alerts.ThresholdProfile)
	if err != nil {
		return err
	}

	var source readingSource
	switch exportParams.Source {
	case config.SinkPostgres:
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		source = repository.NewHealthDataRepository(db, log)
	case config.SinkSupabase:
		source = repository.NewSupabaseRepository(&cfg.Supabase, log)
	default:
		return fmt.Errorf("unsupported source %q", exportParams.Source)
	}

	now := time.Now()
	out := exportParams.Out
	if out == "" {
		out = export.FileName(exportParams.PatientID, now)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer f.Close()

	count, err := exportReadings(ctx, source, exportParams.PatientID, exportParams.Range, exportParams.Filter, thresholds, now, f)
	if err != nil {
		return err
	}

	log.Info("Export written",
		zap.String("patient_id", exportParams.PatientID),
		zap.String("file", out),
		zap.Int("records", count),
	)
	fmt.Printf("wrote %d records to %s\n", count, out)
	return nil
}

// exportReadings 查询、过滤并写出工作簿，返回记录数
func exportReadings(ctx context.Context, source readingSource, patientID, rangeName, kindName string, th evaluator.Thresholds, now time.Time, w io.Writer) (int, error) {
	rng, err := export.ParseRange(rangeName)
	if err != nil {
		return 0, err
	}
	kind, err := export.ParseKind(kindName)
	if err != nil {
		return 0, err
	}

	filter := export.NewFilter(rng, kind, th)
	from, to := filter.Window(now)
	readings, err := source.ReadingsBetween(ctx, patientID, from, to.Add(1))
	if err != nil {
		return 0, fmt.Errorf("failed to query readings: %w", err)
	}
	readings = filter.Apply(readings, now)

	if err := export.WriteXLSX(w, readings, time.Local); err != nil {
		return 0, err
	}
	return len(readings), nil
}
