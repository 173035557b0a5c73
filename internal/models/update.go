package models

// StreamStatus 订阅流状态
type StreamStatus string

const (
	StatusLive  StreamStatus = "live"
	StatusStale StreamStatus = "stale" // 存储或设备链路异常，数据可能已过期
	StatusEnded StreamStatus = "ended" // 病人停止监测，只发给全量订阅
)

// StreamUpdate 推送给订阅者的一次更新
type StreamUpdate struct {
	PatientID string         `json:"patient_id"`
	Seq       uint64         `json:"seq"`
	Reading   *VitalReading  `json:"reading,omitempty"`
	Tier      SeverityTier   `json:"tier"`
	Alert     string         `json:"alert,omitempty"`
	Window    []VitalReading `json:"window,omitempty"`
	Status    StreamStatus   `json:"status"`
	Error     string         `json:"error,omitempty"`
}
