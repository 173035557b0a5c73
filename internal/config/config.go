package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/config"

	"github.com/joho/godotenv"
)

// 存储类型
const (
	SinkPostgres = "postgres"
	SinkSupabase = "supabase"
	SinkStream   = "stream"
	SinkNone     = "none"
)

// 设备链路
const (
	TransportSerial = "serial"
	TransportMQTT   = "mqtt"
)

// Config 监护服务与采集桥配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	Serial   config.SerialConfig
	Supabase config.SupabaseConfig

	// 实时监护
	Monitor struct {
		TickInterval     time.Duration // 模拟数据周期，默认 3s
		WindowCapacity   int           // 每个病人保留的读数数量，默认 30
		StaleAfter       time.Duration // 设备静默超过该时长推送 stale，0 不检测
		PersistSimulated bool          // 模拟读数是否写入存储
		StopWhenIdle     bool          // 无订阅者时停止监测
		SubscriberBuffer int
		Sink             string // postgres | supabase | stream | none（模拟读数和历史查询）
		Feed             string // stream | postgres | none（设备读数来源）

		Mirror struct {
			Enabled   bool
			KeyPrefix string // 如 "neurohealth:patient:"
			TTL       time.Duration
		}
	}

	// Redis Stream（bridge 写入，monitor 消费）
	Stream struct {
		Name          string
		MaxLen        int64
		ConsumerGroup string
		ConsumerName  string
	}

	// 分级与告警
	Alerts struct {
		ThresholdProfile string // default | strict
		Notify           bool   // 是否经 MQTT 发布告警
		TopicPrefix      string
	}

	// 模拟数据
	Simulation struct {
		Sensor               string // emg | ecg
		Seed                 int64  // 0 表示按时间取种子
		WalkClamp            bool
		WalkMaxStep          float64
		ExcursionProbability float64
		FoodProbability      float64
		WaterProbability     float64
		RestroomProbability  float64
		FallProbability      float64
		LeadOffProbability   float64
	}

	// 设备采集桥
	Bridge struct {
		Transport       string // serial | mqtt
		Sink            string // postgres | supabase | stream
		PublishStream   bool   // 写入主存储后同时发布到 Redis Stream
		PatientID       string // 串口设备绑定的病人
		RequireActivity bool
		VitalsTopic     string
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（先读取 .env，不存在则忽略）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "neurohealth")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "neurohealth")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Serial.Port = getEnv("SERIAL_PORT", "/dev/ttyUSB0")
	cfg.Serial.BaudRate = getEnvInt("SERIAL_BAUD_RATE", 115200)

	cfg.Supabase.Table = "health_data"
	cfg.Supabase.Timeout = 10 * time.Second
	cfg.Supabase.LoadFromEnv("SUPABASE")

	cfg.Monitor.TickInterval = getEnvDuration("MONITOR_TICK_INTERVAL", 3*time.Second)
	cfg.Monitor.WindowCapacity = getEnvInt("MONITOR_WINDOW_CAPACITY", 30)
	cfg.Monitor.StaleAfter = getEnvDuration("MONITOR_STALE_AFTER", 30*time.Second)
	cfg.Monitor.PersistSimulated = getEnvBool("MONITOR_PERSIST_SIMULATED", false)
	cfg.Monitor.StopWhenIdle = getEnvBool("MONITOR_STOP_WHEN_IDLE", false)
	cfg.Monitor.SubscriberBuffer = getEnvInt("MONITOR_SUBSCRIBER_BUFFER", 16)
	cfg.Monitor.Sink = strings.ToLower(getEnv("MONITOR_SINK", SinkPostgres))
	cfg.Monitor.Feed = strings.ToLower(getEnv("MONITOR_FEED", "stream"))
	cfg.Monitor.Mirror.Enabled = getEnvBool("MONITOR_MIRROR_ENABLED", true)
	cfg.Monitor.Mirror.KeyPrefix = getEnv("MONITOR_MIRROR_PREFIX", "neurohealth:patient:")
	cfg.Monitor.Mirror.TTL = getEnvDuration("MONITOR_MIRROR_TTL", 10*time.Minute)

	cfg.Stream.Name = getEnv("STREAM_NAME", "neurohealth:readings:stream")
	cfg.Stream.MaxLen = int64(getEnvInt("STREAM_MAX_LEN", 10000))
	cfg.Stream.ConsumerGroup = getEnv("STREAM_CONSUMER_GROUP", "neurohealth-monitor")
	cfg.Stream.ConsumerName = getEnv("STREAM_CONSUMER_NAME", hostnameOr("monitor-1"))

	cfg.Alerts.ThresholdProfile = strings.ToLower(getEnv("THRESHOLD_PROFILE", "default"))
	cfg.Alerts.Notify = getEnvBool("ALERTS_NOTIFY", false)
	cfg.Alerts.TopicPrefix = getEnv("ALERTS_TOPIC_PREFIX", "neurohealth")

	cfg.Simulation.Sensor = strings.ToLower(getEnv("SIM_SENSOR", "emg"))
	cfg.Simulation.Seed = int64(getEnvInt("SIM_SEED", 0))
	cfg.Simulation.WalkClamp = getEnvBool("WALK_CLAMP", true)
	cfg.Simulation.WalkMaxStep = getEnvFloat("WALK_MAX_STEP", 3)
	cfg.Simulation.ExcursionProbability = getEnvFloat("SIM_EXCURSION_PROBABILITY", 0.10)
	cfg.Simulation.FoodProbability = getEnvFloat("SIM_FOOD_PROBABILITY", 0.30)
	cfg.Simulation.WaterProbability = getEnvFloat("SIM_WATER_PROBABILITY", 0.20)
	cfg.Simulation.RestroomProbability = getEnvFloat("SIM_RESTROOM_PROBABILITY", 0.15)
	cfg.Simulation.FallProbability = getEnvFloat("SIM_FALL_PROBABILITY", 0.05)
	cfg.Simulation.LeadOffProbability = getEnvFloat("SIM_LEAD_OFF_PROBABILITY", 0.10)

	cfg.Bridge.Transport = strings.ToLower(getEnv("BRIDGE_TRANSPORT", TransportSerial))
	cfg.Bridge.Sink = strings.ToLower(getEnv("BRIDGE_SINK", SinkPostgres))
	cfg.Bridge.PublishStream = getEnvBool("BRIDGE_PUBLISH_STREAM", true)
	cfg.Bridge.PatientID = getEnv("PATIENT_ID", "")
	cfg.Bridge.RequireActivity = getEnvBool("BRIDGE_REQUIRE_ACTIVITY", false)
	cfg.Bridge.VitalsTopic = getEnv("BRIDGE_VITALS_TOPIC", "neurohealth/+/vitals")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验枚举类配置
func (c *Config) Validate() error {
	switch c.Monitor.Sink {
	case SinkPostgres, SinkSupabase, SinkNone:
	default:
		return fmt.Errorf("invalid MONITOR_SINK %q", c.Monitor.Sink)
	}
	switch c.Monitor.Feed {
	case "stream", "postgres", "none":
	default:
		return fmt.Errorf("invalid MONITOR_FEED %q", c.Monitor.Feed)
	}
	switch c.Bridge.Transport {
	case TransportSerial, TransportMQTT:
	default:
		return fmt.Errorf("invalid BRIDGE_TRANSPORT %q", c.Bridge.Transport)
	}
	switch c.Bridge.Sink {
	case SinkPostgres, SinkSupabase, SinkStream:
	default:
		return fmt.Errorf("invalid BRIDGE_SINK %q", c.Bridge.Sink)
	}
	if c.Monitor.WindowCapacity <= 0 {
		return fmt.Errorf("MONITOR_WINDOW_CAPACITY must be positive, got %d", c.Monitor.WindowCapacity)
	}
	if c.Monitor.TickInterval <= 0 {
		return fmt.Errorf("MONITOR_TICK_INTERVAL must be positive, got %s", c.Monitor.TickInterval)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
