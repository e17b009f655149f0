package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/pulse/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars(t)
		// point the dotenv lookup somewhere empty so a stray .env cannot leak in
		t.Setenv("PULSE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Rate, convey.ShouldEqual, 10)
				convey.So(cfg.BatchSize, convey.ShouldEqual, 10)
				convey.So(cfg.SinkDriver, convey.ShouldEqual, "memory")
				convey.So(cfg.Autostart, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("PULSE_ADDR", ":8080")
			t.Setenv("PULSE_RATE", "250")
			t.Setenv("PULSE_BATCH_SIZE", "25")
			t.Setenv("PULSE_MAX_REQUESTS", "5")
			t.Setenv("PULSE_AUTOSTART", "false")
			t.Setenv("PULSE_SINK_DRIVER", "pebble")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Rate, convey.ShouldEqual, 250)
				convey.So(cfg.BatchSize, convey.ShouldEqual, 25)
				convey.So(cfg.MaxRequests, convey.ShouldEqual, 5)
				convey.So(cfg.Autostart, convey.ShouldBeFalse)
				convey.So(cfg.SinkDriver, convey.ShouldEqual, "pebble")
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			path := writeFile(t, "pulse.yaml", `
# server
addr: ":9090"
rate: 40
window_ms: 1000
reconnect_delay_ms: 500
`)
			t.Setenv("PULSE_CONFIG", path)
			t.Setenv("PULSE_RATE", "60")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins over the file and the file over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Rate, convey.ShouldEqual, 60)
				convey.So(cfg.WindowMS, convey.ShouldEqual, 1000)
				convey.So(cfg.ReconnectDelayMS, convey.ShouldEqual, 500)
				convey.So(cfg.BufferCapacity, convey.ShouldEqual, 5000)
			})
		})

		convey.Convey("When a .env file is present", func() {
			path := writeFile(t, "test.env", "PULSE_HUB_FANOUT=7\nPULSE_ADDR=:7000\n")
			t.Setenv("PULSE_ENV_FILE", path)
			t.Setenv("PULSE_ADDR", ":6000")
			defer func() {
				_ = os.Unsetenv("PULSE_HUB_FANOUT")
			}()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it fills unset variables without overriding set ones", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.HubFanout, convey.ShouldEqual, 7)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6000")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			t.Setenv("PULSE_CONFIG", writeFile(t, "bad.yaml", "addr: [unclosed"))

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			t.Setenv("PULSE_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			t.Setenv("PULSE_RATE", "fast")

			_, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When loading config with an out of range rate", func() {
			t.Setenv("PULSE_RATE", "5000")

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

// clearConfigEnvVars unsets every PULSE_ variable for the duration of the test.
func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "PULSE_") {
			t.Setenv(key, "")
			_ = os.Unsetenv(key)
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
