package stateserver

import "time"

// RateSpec allows Times updates per Per. Zero Times disables the limit.
type RateSpec struct {
	Times uint64        `json:"times" yaml:"times"`
	Per   time.Duration `json:"per" yaml:"per"`
}

type Config struct {
	Port           uint64        `json:"port" yaml:"port"`
	AllowOrigin    string        `json:"allow_origin" yaml:"allow_origin"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	MaxBodyBytes   int64         `json:"max_body_bytes" yaml:"max_body_bytes"`
	UpdateRate     RateSpec      `json:"update_rate" yaml:"update_rate"`
}

func DefaultConfig() Config {
	return Config{
		Port:           13337,
		AllowOrigin:    "*",
		RequestTimeout: 10 * time.Second,
		MaxBodyBytes:   1 << 20,
	}
}
