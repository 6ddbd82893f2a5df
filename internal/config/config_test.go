package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/hackcast/internal/config"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100)
			convey.So(cfg.Scoring.HalfLife, convey.ShouldEqual, 2*time.Minute)
			convey.So(cfg.Scoring.ActivationFloor, convey.ShouldEqual, 20.0)
			convey.So(cfg.Scoring.SwitchCadence, convey.ShouldEqual, 2)
			convey.So(cfg.Thresholds.BetBreakingStake, convey.ShouldEqual, 500.0)
			convey.So(cfg.Timings.BumperIn, convey.ShouldEqual, 2500*time.Millisecond)
			convey.So(cfg.AutoPause.ZeroViewerDebounce, convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.Database.Driver, convey.ShouldEqual, "sqlite")
			convey.So(cfg.Redis.Addr, convey.ShouldBeEmpty)
			convey.So(cfg.LLM.APIKey, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then weights convert to priorities", func() {
			w := cfg.PriorityWeights()
			convey.So(w[model.PriorityBreaking], convey.ShouldEqual, 100.0)
			convey.So(w[model.PriorityBackground], convey.ShouldEqual, 5.0)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("An inverted line range is rejected", func() {
			cfg.Narration.MinLines = 6
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "narration line range 6..5")
		})

		convey.Convey("An unknown driver is rejected", func() {
			cfg.Database.Driver = "mysql"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("An unknown priority weight is rejected", func() {
			cfg.Scoring.Weights["urgent"] = 10
			convey.So(cfg.Validate().Error(), convey.ShouldContainSubstring, `unknown priority "urgent"`)
		})

		convey.Convey("A non-positive weight is rejected", func() {
			cfg.Scoring.Weights["high"] = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("A zero queue size is rejected", func() {
			cfg.EventQueueSize = 0
			convey.So(cfg.Validate().Error(), convey.ShouldContainSubstring, "queue_size must be positive")
		})
	})
}
