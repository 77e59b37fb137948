package config

import (
	"time"

	"nyxmeta/internal/meta"
	grpcserver "nyxmeta/internal/server/grpc"
)

// Leader modes select where leadership facts come from.
const (
	LeaderModeSelf   = "self"
	LeaderModeStatic = "static"
	LeaderModeNone   = "none"
)

type ServerConfig struct {
	ClusterID uint64 `yaml:"clusterID" validate:"required"`
	MemberID  uint64 `yaml:"memberID" validate:"required"`
	// AdvertiseAddress is handed to nodes in leader hints; defaults to grpc.address.
	AdvertiseAddress string          `yaml:"advertiseAddress"`
	GRPC             GRPCConfig      `yaml:"grpc"`
	Heartbeat        HeartbeatConfig `yaml:"heartbeat"`
	Registry         RegistryConfig  `yaml:"registry"`
	Leader           LeaderConfig    `yaml:"leader"`
	Mailbox          MailboxConfig   `yaml:"mailbox"`
	Metrics          MetricsConfig   `yaml:"metrics"`
	Tracing          TracingConfig   `yaml:"tracing"`
	Log              LogConfig       `yaml:"log"`
}

type GRPCConfig struct {
	Address         string        `yaml:"address" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gte=0"`
}

type HeartbeatConfig struct {
	DefaultInterval       time.Duration `yaml:"defaultInterval" validate:"gt=0"`
	MaxInterval           time.Duration `yaml:"maxInterval" validate:"gtefield=DefaultInterval"`
	SweepInterval         time.Duration `yaml:"sweepInterval" validate:"gt=0"`
	FlushTimeout          time.Duration `yaml:"flushTimeout" validate:"gte=0"`
	TTLMultiplier         int           `yaml:"ttlMultiplier" validate:"min=2"`
	OutboxSize            int           `yaml:"outboxSize" validate:"min=1"`
	MaxConsecutiveInvalid int           `yaml:"maxConsecutiveInvalid" validate:"min=1"`
	MaxInstructionsPerAck int           `yaml:"maxInstructionsPerAck" validate:"min=0"`
}

type RegistryConfig struct {
	Shards       int `yaml:"shards" validate:"min=1,max=4096"`
	RegionShards int `yaml:"regionShards" validate:"min=1,max=4096"`
}

type LeaderConfig struct {
	Mode string `yaml:"mode" validate:"oneof=self static none"`
	// ID and Address name the fixed leader in static mode.
	ID      uint64 `yaml:"id" validate:"required_if=Mode static"`
	Address string `yaml:"address" validate:"required_if=Mode static"`
	Term    uint64 `yaml:"term"`
}

type MailboxConfig struct {
	// Dir enables the durable mailbox; empty keeps instructions in memory.
	Dir string `yaml:"dir"`
}

type MetricsConfig struct {
	Address        string        `yaml:"address"`
	Namespace      string        `yaml:"namespace"`
	SampleInterval time.Duration `yaml:"sampleInterval" validate:"gt=0"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"serviceName"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sampleRatio" validate:"gte=0,lte=1"`
}

type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Encoding    string `yaml:"encoding" validate:"oneof=json console"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *ServerConfig {
	return &ServerConfig{
		ClusterID: 1,
		MemberID:  1,
		GRPC:      GRPCConfig{Address: "127.0.0.1:2379", ShutdownTimeout: 5 * time.Second},
		Heartbeat: HeartbeatConfig{
			DefaultInterval:       2 * time.Second,
			MaxInterval:           5 * time.Minute,
			SweepInterval:         time.Second,
			FlushTimeout:          time.Second,
			TTLMultiplier:         3,
			OutboxSize:            16,
			MaxConsecutiveInvalid: 8,
			MaxInstructionsPerAck: 64,
		},
		Registry: RegistryConfig{Shards: 64, RegionShards: 64},
		Leader:   LeaderConfig{Mode: LeaderModeSelf},
		Metrics:  MetricsConfig{Namespace: "nyxmeta", SampleInterval: 5 * time.Second},
		Tracing:  TracingConfig{ServiceName: "nyxmeta-server", Insecure: true, SampleRatio: 1},
		Log:      LogConfig{Level: "info", Encoding: "json"},
	}
}

func (c *ServerConfig) Advertise() string {
	if c.AdvertiseAddress != "" {
		return c.AdvertiseAddress
	}
	return c.GRPC.Address
}

// Self is the identity of this meta replica.
func (c *ServerConfig) Self() meta.Peer {
	return meta.Peer{ID: c.MemberID, Addr: c.Advertise()}
}

func (c *ServerConfig) RegistryOptions() meta.RegistryOptions {
	return meta.RegistryOptions{
		Shards:          c.Registry.Shards,
		TTLMultiplier:   c.Heartbeat.TTLMultiplier,
		DefaultInterval: c.Heartbeat.DefaultInterval,
		MaxInterval:     c.Heartbeat.MaxInterval,
	}
}

// ServiceOptions maps the file onto meta.Options. Queue, Recorder, Logger
// and Tracer are left for the caller.
func (c *ServerConfig) ServiceOptions() meta.Options {
	return meta.Options{
		ClusterID:             c.ClusterID,
		Self:                  c.Self(),
		Registry:              c.RegistryOptions(),
		RegionShards:          c.Registry.RegionShards,
		OutboxSize:            c.Heartbeat.OutboxSize,
		MaxConsecutiveInvalid: c.Heartbeat.MaxConsecutiveInvalid,
		FlushTimeout:          c.Heartbeat.FlushTimeout,
		MaxInstructionsPerAck: c.Heartbeat.MaxInstructionsPerAck,
	}
}

// LeaderFact returns the fact implied by the leader mode; ok is false in
// mode none, where facts are pushed at runtime.
func (c *ServerConfig) LeaderFact() (meta.LeaderFact, bool) {
	switch c.Leader.Mode {
	case LeaderModeSelf:
		self := c.Self()
		return meta.LeaderFact{Leader: &self, SelfIsLeader: true, Term: c.Leader.Term}, true
	case LeaderModeStatic:
		leader := meta.Peer{ID: c.Leader.ID, Addr: c.Leader.Address}
		return meta.LeaderFact{Leader: &leader, SelfIsLeader: leader.ID == c.MemberID, Term: c.Leader.Term}, true
	default:
		return meta.LeaderFact{}, false
	}
}

func (c *ServerConfig) GRPCConfig() grpcserver.Config {
	return grpcserver.Config{Address: c.GRPC.Address, ShutdownTimeout: c.GRPC.ShutdownTimeout}
}
