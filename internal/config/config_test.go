package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/pulse/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have the documented defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Rate, convey.ShouldEqual, 10)
			convey.So(cfg.BufferCapacity, convey.ShouldEqual, 5000)
			convey.So(cfg.BatchCommitDelay(), convey.ShouldEqual, 100*time.Millisecond)
			convey.So(cfg.HeartbeatInterval(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.ReconnectDelay(), convey.ShouldEqual, 3*time.Second)
			convey.So(cfg.MaxReconnectAttempts, convey.ShouldEqual, 10)
			convey.So(cfg.OutboundLimit, convey.ShouldEqual, 1000)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given configs that cannot start a server", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"rate too high", func(c *config.Config) { c.Rate = 1001 }},
			{"rate zero", func(c *config.Config) { c.Rate = 0 }},
			{"no batch", func(c *config.Config) { c.BatchSize = 0 }},
			{"no window", func(c *config.Config) { c.WindowMS = 0 }},
			{"no quota", func(c *config.Config) { c.MaxRequests = 0 }},
			{"unknown sink", func(c *config.Config) { c.SinkDriver = "cassandra" }},
			{"negative outbound limit", func(c *config.Config) { c.OutboundLimit = -1 }},
			{"negative commit delay", func(c *config.Config) { c.BatchCommitDelayMS = -1 }},
			{"zero heartbeat", func(c *config.Config) { c.HeartbeatIntervalMS = 0 }},
			{"negative reconnect delay", func(c *config.Config) { c.ReconnectDelayMS = -5 }},
			{"zero throughput interval", func(c *config.Config) { c.ThroughputIntervalMS = 0 }},
			{"zero sweep interval", func(c *config.Config) { c.SweepIntervalMS = 0 }},
			{"negative hub write timeout", func(c *config.Config) { c.HubWriteTimeoutMS = -1 }},
			{"no hub queue", func(c *config.Config) { c.HubQueueSize = 0 }},
			{"no fanout", func(c *config.Config) { c.HubFanout = 0 }},
			{"no persist workers", func(c *config.Config) { c.PersistWorkers = 0 }},
			{"negative persist timeout", func(c *config.Config) { c.PersistTimeoutMS = -100 }},
		}

		for _, tc := range cases {
			convey.Convey("Then Validate rejects "+tc.name, func() {
				cfg := config.New(context.Background())
				tc.mutate(cfg)
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
