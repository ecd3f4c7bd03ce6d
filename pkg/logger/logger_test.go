package logger_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/reel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(logger.Init(), ShouldBeNil)

			Convey("Then Get and Named return usable loggers", func() {
				So(logger.Get(), ShouldNotBeNil)
				So(logger.Named("test"), ShouldNotBeNil)
				So(logger.Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := logger.Init(logger.WithFormat("xml"))

			Convey("Then it fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestJSONOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(logger.Init(logger.WithFormat("json"), logger.WithWriter(&buf)), ShouldBeNil)

		Convey("When logging with fields and a request id", func() {
			ctx := logger.ContextWithRequestID(context.Background(), "req-42")
			logger.Named("api").Info(ctx, "served",
				logger.String("path", "/api/recommendations/6"),
				logger.Int("items", 3),
				logger.Bool("cached", false),
				logger.Duration("took", 15*time.Millisecond),
				logger.Error(errors.New("boom")),
			)

			out := buf.String()
			Convey("Then every attribute is present", func() {
				So(out, ShouldContainSubstring, `"msg":"served"`)
				So(out, ShouldContainSubstring, `"request_id":"req-42"`)
				So(out, ShouldContainSubstring, `"logger":"api"`)
				So(out, ShouldContainSubstring, `"items":3`)
				So(out, ShouldContainSubstring, `"took":"15ms"`)
				So(out, ShouldContainSubstring, `"source":"logger_test.go:`)
			})
		})

		Convey("When the level is raised to warn", func() {
			So(logger.SetLevelString("warn"), ShouldBeNil)
			logger.Get().Info(context.Background(), "hidden")
			logger.Get().Warn(context.Background(), "shown")

			Convey("Then info records are dropped", func() {
				So(buf.String(), ShouldNotContainSubstring, "hidden")
				So(buf.String(), ShouldContainSubstring, "shown")
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level names", t, func() {
		So(logger.Init(), ShouldBeNil)

		for _, lvl := range []string{"debug", "info", "", "warn", "warning", "error", " INFO "} {
			So(logger.SetLevelString(lvl), ShouldBeNil)
		}
		So(logger.SetLevelString("loud"), ShouldNotBeNil)
	})
}

func TestRequestIDFromContext(t *testing.T) {
	Convey("Given contexts with and without a request id", t, func() {
		So(logger.RequestIDFromContext(context.Background()), ShouldEqual, "")
		ctx := logger.ContextWithRequestID(context.Background(), "abc")
		So(logger.RequestIDFromContext(ctx), ShouldEqual, "abc")
	})
}
