package queuemetrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewPlugin_RequiresRegisterer(t *testing.T) {
	_, err := NewPlugin(PluginConfig{}, nil, nil)
	if !errors.Is(err, ErrNoRegisterer) {
		t.Errorf("NewPlugin() error = %v, want ErrNoRegisterer", err)
	}
}

func TestPluginConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PluginConfig
		wantErr bool
	}{
		{name: "zero", cfg: PluginConfig{}},
		{name: "active queues", cfg: PluginConfig{Discovery: DiscoveryActiveQueues}},
		{name: "bad discovery", cfg: PluginConfig{Discovery: "keys"}, wantErr: true},
		{name: "bad collection", cfg: PluginConfig{Collection: CollectionConfig{Type: "cron"}}, wantErr: true},
		{name: "negative interval", cfg: PluginConfig{Collection: CollectionConfig{Interval: -time.Second}}, wantErr: true},
		{name: "redis without address", cfg: PluginConfig{Redis: []RedisConfig{{Name: "main"}}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNewPlugin_NoStores(t *testing.T) {
	_, err := NewPlugin(PluginConfig{}, prometheus.NewRegistry(), nil)
	if !errors.Is(err, ErrNoStores) {
		t.Errorf("NewPlugin() error = %v, want ErrNoStores", err)
	}
}

func TestPlugin_ManualCollectionAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.HSet("bull:emails:meta", "opts.maxLenEvents", "10000")
	mr.Lpush("bull:emails:wait", "1")
	mr.Lpush("bull:emails:wait", "2")
	mr.Lpush("bull:emails:active", "3")

	reg := prometheus.NewRegistry()
	p, err := NewPlugin(PluginConfig{
		Redis:      []RedisConfig{{Name: "main", Addrs: []string{mr.Addr()}}},
		Collection: CollectionConfig{Type: CollectionManual},
	}, reg, nil)
	if err != nil {
		t.Fatalf("NewPlugin() error = %v", err)
	}
	p.Start(context.Background())

	if err := p.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	expected := `
# HELP bullmq_jobs Number of jobs by status and queue
# TYPE bullmq_jobs gauge
bullmq_jobs{queue="emails",status="active",store="main"} 1
bullmq_jobs{queue="emails",status="delayed",store="main"} 0
bullmq_jobs{queue="emails",status="waiting",store="main"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "bullmq_jobs"); err != nil {
		t.Error(err)
	}

	checks := p.Checks()
	if len(checks) != 1 || checks[0].Name != "redis_main" || checks[0].Mandatory {
		t.Fatalf("Checks() = %+v, want one optional redis_main check", checks)
	}
	if err := checks[0].Checker(context.Background()); err != nil {
		t.Errorf("redis_main check error = %v", err)
	}

	if err := p.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := checks[0].Checker(context.Background()); err == nil {
		t.Error("check should fail once the plugin closed its client")
	}
}

func TestPlugin_IntervalCollection(t *testing.T) {
	conn := newFakeConnector()
	ref := QueueRef{Store: storeA, Queue: "emails"}
	conn.queue(ref.String()).counts[StateWaiting] = 9
	d := &fakeDiscoverer{refs: []QueueRef{ref}}

	reg := prometheus.NewRegistry()
	p, err := NewPlugin(PluginConfig{Collection: CollectionConfig{Interval: 5 * time.Millisecond}}, reg, nil,
		WithDiscoverer(d), WithConnector(conn))
	if err != nil {
		t.Fatalf("NewPlugin() error = %v", err)
	}
	p.Start(context.Background())
	defer p.Close(context.Background())

	waitFor(t, func() bool {
		m := findMetric(t, reg, "bullmq_jobs", map[string]string{"status": "waiting", "queue": "emails"})
		return m != nil && m.GetGauge().GetValue() == 9
	})
	if p.Collector() == nil {
		t.Error("Collector() returned nil")
	}
}

func TestPlugin_WithStoresDoesNotCloseClients(t *testing.T) {
	s, _ := newMiniStore(t, "main")
	p, err := NewPlugin(PluginConfig{Collection: CollectionConfig{Type: CollectionManual}}, prometheus.NewRegistry(), nil,
		WithStores(s))
	if err != nil {
		t.Fatalf("NewPlugin() error = %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Client.Ping(context.Background()).Err(); err != nil {
		t.Errorf("caller-owned client was closed: %v", err)
	}
}
