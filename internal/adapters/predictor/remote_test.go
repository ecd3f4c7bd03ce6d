package predictor_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/reel/internal/adapters/breaker"
	"github.com/okian/reel/internal/adapters/predictor"
	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRemote(t *testing.T) {
	Convey("Given a remote prediction endpoint", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			body, _ := io.ReadAll(r.Body)
			switch {
			case r.Method != http.MethodPost:
				w.WriteHeader(http.StatusMethodNotAllowed)
			case strings.Contains(string(body), `"userId":"404"`):
				w.WriteHeader(http.StatusNotFound)
			case strings.Contains(string(body), `"userId":"500"`):
				w.WriteHeader(http.StatusInternalServerError)
			case strings.Contains(string(body), `"userId":"bad"`):
				_, _ = w.Write([]byte(`{"modelVersion":"x"}`))
			case strings.Contains(string(body), `"userId":"retrained"`):
				_, _ = w.Write([]byte(`{"score":1,"modelVersion":"mf-2026-10"}`))
			case strings.Contains(string(body), `"movieId":"10"`):
				_, _ = w.Write([]byte(`{"score":2}`))
			default:
				_, _ = w.Write([]byte(`{"score":0}`))
			}
		}))
		defer srv.Close()

		ctx := context.Background()
		p := predictor.NewRemote(srv.URL, predictor.WithTimeout(time.Second), predictor.WithModelVersion("remote-v1"))

		Convey("Then scores are read from the response", func() {
			raw, err := p.Predict(ctx, model.RatingQuery{UserID: "6", MovieID: "10"})
			So(err, ShouldBeNil)
			So(raw, ShouldEqual, 2)
			So(p.ModelVersion(), ShouldEqual, "remote-v1")
		})

		Convey("Then a version sent by the endpoint replaces the configured one", func() {
			raw, err := p.Predict(ctx, model.RatingQuery{UserID: "retrained", MovieID: "1"})
			So(err, ShouldBeNil)
			So(raw, ShouldEqual, 1)
			So(p.ModelVersion(), ShouldEqual, "mf-2026-10")

			Convey("And responses without a version keep it", func() {
				_, err := p.Predict(ctx, model.RatingQuery{UserID: "6", MovieID: "10"})
				So(err, ShouldBeNil)
				So(p.ModelVersion(), ShouldEqual, "mf-2026-10")
			})
		})

		Convey("Then the default version is reported before any response", func() {
			So(predictor.NewRemote(srv.URL).ModelVersion(), ShouldEqual, "remote")
		})

		Convey("Then a 404 means an unknown user", func() {
			_, err := p.Predict(ctx, model.RatingQuery{UserID: "404", MovieID: "10"})
			So(errors.Is(err, scoring.ErrUnknownUser), ShouldBeTrue)
		})

		Convey("Then other statuses are reported", func() {
			_, err := p.Predict(ctx, model.RatingQuery{UserID: "500", MovieID: "10"})
			So(errors.Is(err, predictor.ErrRemoteStatus), ShouldBeTrue)
		})

		Convey("Then a response without a score is rejected", func() {
			_, err := p.Predict(ctx, model.RatingQuery{UserID: "bad", MovieID: "10"})
			So(errors.Is(err, predictor.ErrRemoteDecode), ShouldBeTrue)
		})

		Convey("When calls are paced", func() {
			paced := predictor.NewRemote(srv.URL, predictor.WithRateLimit(1, 1))
			_, err := paced.Predict(ctx, model.RatingQuery{UserID: "6", MovieID: "1"})
			So(err, ShouldBeNil)

			short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			_, err = paced.Predict(short, model.RatingQuery{UserID: "6", MovieID: "1"})

			Convey("Then a call that cannot get a token in time fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "rate limit")
			})
		})

		Convey("When guarded by a breaker", func() {
			_ = logger.Init()
			b := breaker.New[float64](breaker.Settings{
				Name:         "remote-test",
				MaxRequests:  1,
				Timeout:      time.Hour,
				MinRequests:  2,
				FailureRatio: 0.5,
				IsSuccessful: predictor.CountsAsSuccess,
			})
			g := predictor.NewGuarded("remote", p, b)

			Convey("Then unknown users do not trip it", func() {
				for range 3 {
					_, err := g.Predict(ctx, model.RatingQuery{UserID: "404", MovieID: "1"})
					So(errors.Is(err, scoring.ErrUnknownUser), ShouldBeTrue)
				}
				So(g.BreakerState(), ShouldEqual, "closed")
			})

			Convey("Then server failures open it", func() {
				for range 2 {
					_, _ = g.Predict(ctx, model.RatingQuery{UserID: "500", MovieID: "1"})
				}
				before := calls.Load()
				_, err := g.Predict(ctx, model.RatingQuery{UserID: "6", MovieID: "10"})

				So(errors.Is(err, scoring.ErrPredictorUnavailable), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, before)
				So(g.BreakerState(), ShouldEqual, "open")
				So(g.ModelVersion(), ShouldEqual, "remote-v1")
			})
		})
	})
}

func TestErrorKind(t *testing.T) {
	Convey("Given predictor errors", t, func() {
		So(predictor.ErrorKind(context.DeadlineExceeded), ShouldEqual, "timeout")
		So(predictor.ErrorKind(scoring.ErrUnknownUser), ShouldEqual, "unknown_user")
		So(predictor.ErrorKind(breaker.ErrOpen), ShouldEqual, "circuit_open")
		So(predictor.ErrorKind(errors.New("x")), ShouldEqual, "other")
	})
}
