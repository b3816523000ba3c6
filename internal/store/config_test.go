package store

import (
	"testing"
	"time"
)

func TestNewDefaultOlricConfig(t *testing.T) {
	cfg := NewDefaultOlricConfig()

	if cfg.BindAddr != "0.0.0.0" {
		t.Errorf("BindAddr = %s, want 0.0.0.0", cfg.BindAddr)
	}

	if cfg.BindPort != 3320 {
		t.Errorf("BindPort = %d, want 3320", cfg.BindPort)
	}

	if cfg.ReplicationMode != "async" {
		t.Errorf("ReplicationMode = %s, want async", cfg.ReplicationMode)
	}

	if cfg.ReplicationFactor != 1 {
		t.Errorf("ReplicationFactor = %d, want 1", cfg.ReplicationFactor)
	}

	if cfg.PartitionCount != 271 {
		t.Errorf("PartitionCount = %d, want 271", cfg.PartitionCount)
	}

	if cfg.MemberCountQuorum != 1 {
		t.Errorf("MemberCountQuorum = %d, want 1", cfg.MemberCountQuorum)
	}

	if cfg.LogLevel != "WARN" {
		t.Errorf("LogLevel = %s, want WARN", cfg.LogLevel)
	}

	if cfg.DMapName != "unlocked-prs" {
		t.Errorf("DMapName = %s, want unlocked-prs", cfg.DMapName)
	}
}

func TestOlricConfig_Validate(t *testing.T) {
	// valid returns a fully populated single-node config that the
	// individual cases then break in exactly one way.
	valid := func() *OlricConfig {
		return &OlricConfig{
			BindAddr:          "0.0.0.0",
			BindPort:          3320,
			ReplicationMode:   "async",
			ReplicationFactor: 1,
			PartitionCount:    271,
			MemberCountQuorum: 1,
			JoinRetryInterval: 1 * time.Second,
			MaxJoinAttempts:   30,
			LogLevel:          "WARN",
			KeepAlivePeriod:   30 * time.Second,
			RequestTimeout:    5 * time.Second,
			DMapName:          "test",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*OlricConfig)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid default config",
			mutate:  func(c *OlricConfig) {},
			wantErr: false,
		},
		{
			name:    "empty bind address",
			mutate:  func(c *OlricConfig) { c.BindAddr = "" },
			wantErr: true,
			errMsg:  "bind address cannot be empty",
		},
		{
			name:    "hostname as bind address",
			mutate:  func(c *OlricConfig) { c.BindAddr = "not-an-ip" },
			wantErr: true,
			errMsg:  "bind address must be a valid",
		},
		{
			name:    "invalid port - too low",
			mutate:  func(c *OlricConfig) { c.BindPort = 0 },
			wantErr: true,
			errMsg:  "bind port must be between",
		},
		{
			name:    "invalid port - too high",
			mutate:  func(c *OlricConfig) { c.BindPort = 65536 },
			wantErr: true,
			errMsg:  "bind port must be between",
		},
		{
			name:    "invalid replication mode",
			mutate:  func(c *OlricConfig) { c.ReplicationMode = "invalid" },
			wantErr: true,
			errMsg:  "replication mode must be",
		},
		{
			name:    "invalid replication factor",
			mutate:  func(c *OlricConfig) { c.ReplicationFactor = 0 },
			wantErr: true,
			errMsg:  "replication factor must be at least 1",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *OlricConfig) { c.LogLevel = "INVALID" },
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name:    "empty dmap name",
			mutate:  func(c *OlricConfig) { c.DMapName = "" },
			wantErr: true,
			errMsg:  "dmap name cannot be empty",
		},
		{
			name: "multi-node config with low replication factor",
			mutate: func(c *OlricConfig) {
				c.JoinAddrs = []string{"node1:3320", "node2:3320"}
				c.MemberCountQuorum = 1
			},
			wantErr: true,
			errMsg:  "replication factor should be at least 2 in multi-node mode",
		},
		{
			name: "quorum greater than 1 requires join addresses",
			mutate: func(c *OlricConfig) {
				c.MemberCountQuorum = 2
			},
			wantErr: true,
			errMsg:  "member count quorum is 2 but no join addresses provided",
		},
		{
			name: "valid multi-node config",
			mutate: func(c *OlricConfig) {
				c.JoinAddrs = []string{"node1:3320", "node2:3320"}
				c.ReplicationFactor = 2
				c.MemberCountQuorum = 2
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" {
				if len(err.Error()) < len(tt.errMsg) || err.Error()[:len(tt.errMsg)] != tt.errMsg {
					t.Errorf("Validate() error = %v, want error starting with %v", err, tt.errMsg)
				}
			}
		})
	}
}

func TestOlricConfig_IsSingleNode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *OlricConfig
		want bool
	}{
		{
			name: "single node",
			cfg: &OlricConfig{
				JoinAddrs: []string{},
			},
			want: true,
		},
		{
			name: "multi node",
			cfg: &OlricConfig{
				JoinAddrs: []string{"node1:3320"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.IsSingleNode(); got != tt.want {
				t.Errorf("IsSingleNode() = %v, want %v", got, tt.want)
			}
		})
	}
}
