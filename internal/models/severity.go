package models

import (
	"fmt"
	"strings"
)

// SeverityTier 生命体征严重级别，normal < warning < critical
type SeverityTier int

const (
	TierNormal SeverityTier = iota
	TierWarning
	TierCritical
)

// String 返回级别名称（与 alert_status 列取值一致）
func (t SeverityTier) String() string {
	switch t {
	case TierNormal:
		return "normal"
	case TierWarning:
		return "warning"
	case TierCritical:
		return "critical"
	default:
		return fmt.Sprintf("SeverityTier(%d)", int(t))
	}
}

// Valid 是否为已定义的级别
func (t SeverityTier) Valid() bool {
	return t >= TierNormal && t <= TierCritical
}

// Max 返回两个级别中较高的一个
func (t SeverityTier) Max(other SeverityTier) SeverityTier {
	if other > t {
		return other
	}
	return t
}

// ParseSeverityTier 解析级别名称（大小写不敏感）
func ParseSeverityTier(s string) (SeverityTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return TierNormal, nil
	case "warning":
		return TierWarning, nil
	case "critical":
		return TierCritical, nil
	default:
		return TierNormal, fmt.Errorf("unknown severity tier %q", s)
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (t SeverityTier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid severity tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (t *SeverityTier) UnmarshalText(text []byte) error {
	v, err := ParseSeverityTier(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
