// Package metrics 导出 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal 模拟数据生成次数
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neurohealth_scheduler_ticks_total",
			Help: "Total number of simulated ticks processed",
		},
	)

	// UpdatesPublished 推送给订阅者的更新
	UpdatesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurohealth_updates_published_total",
			Help: "Total number of stream updates published, by tier and status",
		},
		[]string{"tier", "status"},
	)

	// UpdatesDropped 订阅者缓冲区满而丢弃的更新
	UpdatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neurohealth_updates_dropped_total",
			Help: "Total number of updates dropped because a subscriber buffer was full",
		},
	)

	// ActiveSubjects 正在监测的病人数
	ActiveSubjects = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "neurohealth_active_subjects",
			Help: "Number of monitored subjects, by mode",
		},
		[]string{"mode"},
	)

	// Subscribers 当前订阅数
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neurohealth_subscribers",
			Help: "Number of open stream subscriptions",
		},
	)

	// ReadingsIngested 设备读数入库结果
	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurohealth_readings_ingested_total",
			Help: "Total number of device readings handled by the bridge, by result",
		},
		[]string{"result"},
	)

	// SinkErrors 存储写入失败
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurohealth_sink_errors_total",
			Help: "Total number of storage sink failures",
		},
		[]string{"sink"},
	)

	// MalformedLines 设备链路上无法解析的行
	MalformedLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurohealth_malformed_lines_total",
			Help: "Total number of device lines dropped as malformed",
		},
		[]string{"transport"},
	)

	// AlertsNotified 已发送的告警通知
	AlertsNotified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurohealth_alerts_notified_total",
			Help: "Total number of alert notifications published",
		},
		[]string{"tier"},
	)

	// RequestDuration HTTP 请求耗时
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neurohealth_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"route", "method"},
	)

	// RequestsTotal HTTP 请求数
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurohealth_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
)
