package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/reel/internal/adapters/classifier"
	"github.com/okian/reel/internal/adapters/repository"
	service "github.com/okian/reel/internal/app"
	"github.com/okian/reel/internal/domain/ranking"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/internal/domain/types"
	"github.com/okian/reel/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

const testCatalog = `movieId,title,genres
1,Toy Story (1995),Adventure|Animation
10,GoldenEye (1995),Action|Adventure
32,"Twelve Monkeys (a.k.a. 12 Monkeys) (1995)",Mystery|Sci-Fi
47,Seven (a.k.a. Se7en) (1995),Mystery|Thriller
`

const testProfiles = `[
  {"id": 6, "name": "Ana", "watched": [{"movieId": 47, "rating": 4}, {"movieId": 1, "rating": 3.5}]}
]`

// writeData writes a small catalog and profile set and returns their paths.
func writeData(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	catalog := filepath.Join(dir, "movies.csv")
	profiles := filepath.Join(dir, "profiles.json")
	if err := os.WriteFile(catalog, []byte(testCatalog), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(profiles, []byte(testProfiles), 0o600); err != nil {
		t.Fatal(err)
	}
	return catalog, profiles
}

func newService(t *testing.T, p scoring.Predictor, opts ...service.Option) *service.Service {
	t.Helper()
	catalog, profiles := writeData(t)
	base := []service.Option{
		service.WithCatalogPath(catalog),
		service.WithProfilesPath(profiles),
		service.WithTrendingIDs([]int{32, 1, 10}),
		service.WithPredictor(p, "static-1"),
		service.WithWorkerCount(2),
		service.WithQueueSize(64),
		service.WithCache(false, "", 0),
	}
	return service.New(append(base, opts...)...)
}

func start(svc *service.Service) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return svc.Start(ctx)
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should not be ready", func() {
			So(svc, ShouldNotBeNil)
			So(svc.Ready(), ShouldBeFalse)
			So(svc.ModelVersion(), ShouldEqual, "")
		})

		Convey("And its stats should only describe the configuration", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats, ShouldNotContainKey, "catalogSize")
		})

		Convey("And every operation should refuse to run", func() {
			ctx := context.Background()
			_, err := svc.Recommend(ctx, "6", false)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Movie(ctx, 1)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Classify(ctx, []byte("x"), "image/png")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.Trending(ctx), ShouldBeEmpty)
			So(svc.Profiles(ctx), ShouldBeEmpty)
		})

		Convey("And Stop should be a no-op", func() {
			So(svc.Stop, ShouldNotPanic)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a service over a small catalog", t, func() {
		svc := newService(t, scoring.NewStaticPredictor())
		defer svc.Stop()

		Convey("When starting the service", func() {
			So(start(svc), ShouldBeNil)

			Convey("Then it should be ready", func() {
				So(svc.Ready(), ShouldBeTrue)
				So(svc.ModelVersion(), ShouldEqual, "static-1")
			})

			Convey("And its stats should describe the data sets", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["predictor"], ShouldEqual, "custom")
				So(stats["catalogSize"], ShouldEqual, 4)
				So(stats["trendingSize"], ShouldEqual, 3)
				So(stats["profiles"], ShouldEqual, 1)
				So(stats["indexedMovies"], ShouldEqual, uint64(4))
				So(stats["queueCapacity"], ShouldEqual, 64)
				So(stats["classifier"], ShouldEqual, false)
			})

			Convey("And starting again should be a no-op", func() {
				So(start(svc), ShouldBeNil)
			})

			Convey("And stopping should make it unready", func() {
				svc.Stop()
				So(svc.Ready(), ShouldBeFalse)
			})
		})
	})

	Convey("Given a missing catalog file", t, func() {
		svc := service.New(
			service.WithCatalogPath(filepath.Join(t.TempDir(), "missing.csv")),
			service.WithPredictor(scoring.NewStaticPredictor(), "static-1"),
		)

		Convey("Then Start should fail with a load error", func() {
			err := start(svc)
			So(errors.Is(err, repository.ErrLoadCatalog), ShouldBeTrue)
			So(svc.Ready(), ShouldBeFalse)
		})
	})

	Convey("Given a trending id missing from the catalog", t, func() {
		svc := newService(t, scoring.NewStaticPredictor(), service.WithTrendingIDs([]int{1, 999}))

		Convey("Then Start should fail", func() {
			err := start(svc)
			So(errors.Is(err, repository.ErrMovieNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a missing factor model", t, func() {
		catalog, profiles := writeData(t)
		svc := service.New(
			service.WithCatalogPath(catalog),
			service.WithProfilesPath(profiles),
			service.WithFactorModel(filepath.Join(t.TempDir(), "missing.json"), false),
		)

		Convey("Then Start should fail on the model", func() {
			So(start(svc), ShouldNotBeNil)
			So(svc.Ready(), ShouldBeFalse)
		})
	})
}

func TestService_Recommend(t *testing.T) {
	Convey("Given a started service with a static predictor", t, func() {
		p := scoring.NewStaticPredictor(
			scoring.WithScore("1", 2),
			scoring.WithScore("10", -1),
			scoring.WithScore("32", 0),
		)
		svc := newService(t, p)
		defer svc.Stop()
		So(start(svc), ShouldBeNil)
		ctx := context.Background()

		Convey("When recommending for a known user", func() {
			rec, err := svc.Recommend(ctx, " 6 ", false)

			Convey("Then the items keep catalog order", func() {
				So(err, ShouldBeNil)
				So(rec.UserID, ShouldEqual, "6")
				So(rec.ModelVersion, ShouldEqual, "static-1")
				So(rec.Items, ShouldHaveLength, 3)
				So(rec.Items[0].MovieID, ShouldEqual, 1)
				So(rec.Items[1].MovieID, ShouldEqual, 10)
				So(rec.Items[2].MovieID, ShouldEqual, 32)
			})

			Convey("And the scores are normalized", func() {
				So(rec.Items[0].NormalizedScore, ShouldAlmostEqual, scoring.Normalize(2), 1e-9)
				So(rec.Items[1].NormalizedScore, ShouldAlmostEqual, scoring.Normalize(-1), 1e-9)
				So(rec.Items[2].NormalizedScore, ShouldAlmostEqual, 50, 1e-9)
			})

			Convey("And the trending list and history are attached", func() {
				So(rec.Trending, ShouldHaveLength, 3)
				So(rec.Trending[0].Title, ShouldEqual, "Toy Story (1995)")
				So(rec.Watched, ShouldHaveLength, 2)
				So(rec.Watched[0].MovieID, ShouldEqual, 47)
				So(rec.Watched[0].Rating, ShouldEqual, 4)
				So(rec.Cached, ShouldBeFalse)
			})
		})

		Convey("When recommending for a user without a profile", func() {
			rec, err := svc.Recommend(ctx, "anonymous", false)

			Convey("Then the items are scored and the history is empty", func() {
				So(err, ShouldBeNil)
				So(rec.Items, ShouldHaveLength, 3)
				So(rec.Watched, ShouldBeEmpty)
			})
		})

		Convey("When the user id is blank", func() {
			_, err := svc.Recommend(ctx, "   ", false)

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, ranking.ErrEmptyUser), ShouldBeTrue)
			})
		})

		Convey("When streaming a recommendation", func() {
			var last, total int
			rec, err := svc.RecommendStream(ctx, "6", func(done, n int) {
				last, total = done, n
			})

			Convey("Then progress reaches the candidate count", func() {
				So(err, ShouldBeNil)
				So(rec.Items, ShouldHaveLength, 3)
				So(last, ShouldEqual, 3)
				So(total, ShouldEqual, 3)
			})
		})
	})

	Convey("Given a predictor that fails for one movie", t, func() {
		p := scoring.NewStaticPredictor(scoring.WithFailure("10", scoring.ErrUnknownMovie))
		svc := newService(t, p)
		defer svc.Stop()
		So(start(svc), ShouldBeNil)

		Convey("Then the whole request fails", func() {
			rec, err := svc.Recommend(context.Background(), "6", false)
			So(errors.Is(err, ranking.ErrPredictionFailed), ShouldBeTrue)
			So(errors.Is(err, scoring.ErrUnknownMovie), ShouldBeTrue)
			So(rec.Items, ShouldBeEmpty)
		})
	})

	Convey("Given a sequential service", t, func() {
		p := scoring.NewStaticPredictor(scoring.WithDefaultScore(1))
		svc := newService(t, p, service.WithWorkerCount(0))
		defer svc.Stop()
		So(start(svc), ShouldBeNil)

		Convey("Then recommendations are scored without a pool", func() {
			rec, err := svc.Recommend(context.Background(), "6", false)
			So(err, ShouldBeNil)
			So(rec.Items, ShouldHaveLength, 3)
			So(p.Calls(), ShouldEqual, 3)
			So(svc.GetStats(), ShouldNotContainKey, "queueLength")
		})
	})
}

func TestService_Cache(t *testing.T) {
	Convey("Given a service with the cache enabled", t, func() {
		p := scoring.NewStaticPredictor(scoring.WithDefaultScore(0.5))
		svc := newService(t, p, service.WithCache(true, "", time.Minute))
		defer svc.Stop()
		So(start(svc), ShouldBeNil)
		ctx := context.Background()

		first, err := svc.Recommend(ctx, "6", false)
		So(err, ShouldBeNil)
		So(first.Cached, ShouldBeFalse)
		So(p.Calls(), ShouldEqual, 3)

		Convey("Then a second request is served from the cache", func() {
			second, err := svc.Recommend(ctx, "6", false)
			So(err, ShouldBeNil)
			So(second.Cached, ShouldBeTrue)
			So(second.Items, ShouldResemble, first.Items)
			So(p.Calls(), ShouldEqual, 3)
			So(svc.GetStats()["cacheEntries"], ShouldEqual, 1)
		})

		Convey("Then a refresh bypasses the cache", func() {
			again, err := svc.Recommend(ctx, "6", true)
			So(err, ShouldBeNil)
			So(again.Cached, ShouldBeFalse)
			So(p.Calls(), ShouldEqual, 6)
		})
	})
}

func TestService_Lookups(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newService(t, scoring.NewStaticPredictor())
		defer svc.Stop()
		So(start(svc), ShouldBeNil)
		ctx := context.Background()

		Convey("Then movies can be fetched by id", func() {
			m, err := svc.Movie(ctx, 10)
			So(err, ShouldBeNil)
			So(m.Title, ShouldEqual, "GoldenEye (1995)")

			_, err = svc.Movie(ctx, 999)
			So(errors.Is(err, repository.ErrMovieNotFound), ShouldBeTrue)
		})

		Convey("Then trending keeps catalog order", func() {
			tr := svc.Trending(ctx)
			So(tr, ShouldHaveLength, 3)
			So(tr[0].MovieID, ShouldEqual, 1)
			So(tr[2].MovieID, ShouldEqual, 32)
		})

		Convey("Then titles can be searched", func() {
			res, err := svc.SearchMovies(ctx, "goldeneye", 5)
			So(err, ShouldBeNil)
			So(res.Total, ShouldEqual, 1)
			So(res.Hits[0].MovieID, ShouldEqual, 10)
		})

		Convey("Then profiles and history are listed", func() {
			So(svc.Profiles(ctx), ShouldHaveLength, 1)

			p, err := svc.Profile(ctx, 6)
			So(err, ShouldBeNil)
			So(p.Name, ShouldEqual, "Ana")

			w, err := svc.Watched(ctx, 6)
			So(err, ShouldBeNil)
			So(w, ShouldHaveLength, 2)
			So(w[1].Title, ShouldEqual, "Toy Story (1995)")
			So(w[1].Rating, ShouldEqual, 3.5)

			_, err = svc.Watched(ctx, 7)
			So(errors.Is(err, repository.ErrProfileNotFound), ShouldBeTrue)
		})

		Convey("Then a single pair can be scored", func() {
			pr, err := svc.PredictOne(ctx, "6", 32)
			So(err, ShouldBeNil)
			So(pr.Movie.ID, ShouldEqual, 32)
			So(pr.Raw, ShouldEqual, 0)
			So(pr.Normalized, ShouldEqual, 50)

			_, err = svc.PredictOne(ctx, "6", 999)
			So(errors.Is(err, repository.ErrMovieNotFound), ShouldBeTrue)
		})

		Convey("Then classification is unavailable without a classifier", func() {
			_, err := svc.Classify(ctx, []byte("png"), "image/png")
			So(errors.Is(err, classifier.ErrUnavailable), ShouldBeTrue)
			So(errors.Is(err, service.ErrNoClassifier), ShouldBeTrue)
		})
	})
}

// versionedPredictor is a static predictor whose model version can change.
type versionedPredictor struct {
	*scoring.StaticPredictor

	mu      sync.Mutex
	version string
}

func (v *versionedPredictor) ModelVersion() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

func (v *versionedPredictor) setVersion(version string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.version = version
}

func TestService_QueueSizing(t *testing.T) {
	Convey("Given a queue smaller than the candidate set", t, func() {
		svc := newService(t, scoring.NewStaticPredictor(), service.WithWorkerCount(1), service.WithQueueSize(1))

		Convey("Then Start should refuse it", func() {
			err := start(svc)
			So(errors.Is(err, service.ErrQueueTooSmall), ShouldBeTrue)
			So(svc.Ready(), ShouldBeFalse)
		})
	})

	Convey("Given a queue that holds exactly one batch and a slow predictor", t, func() {
		p := scoring.NewStaticPredictor(scoring.WithLatencyRange(5*time.Millisecond, 6*time.Millisecond))
		svc := newService(t, p, service.WithWorkerCount(1), service.WithQueueSize(3))
		defer svc.Stop()
		So(start(svc), ShouldBeNil)

		Convey("Then serial requests never hit backpressure", func() {
			for range 3 {
				rec, err := svc.Recommend(context.Background(), "6", true)
				So(err, ShouldBeNil)
				So(rec.Items, ShouldHaveLength, 3)
			}
			So(p.Calls(), ShouldEqual, 9)
		})
	})
}

func TestService_Coalescing(t *testing.T) {
	Convey("Given a slow predictor behind the cache", t, func() {
		p := scoring.NewStaticPredictor(scoring.WithLatencyRange(50*time.Millisecond, 60*time.Millisecond))
		svc := newService(t, p, service.WithCache(true, "", time.Minute))
		defer svc.Stop()
		So(start(svc), ShouldBeNil)
		ctx := context.Background()

		Convey("When many misses for one user arrive together", func() {
			const callers = 8
			var (
				wg    sync.WaitGroup
				ready = make(chan struct{})
				errs  = make([]error, callers)
				recs  = make([]types.Recommendation, callers)
			)
			for i := range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-ready
					recs[i], errs[i] = svc.Recommend(ctx, "6", false)
				}()
			}
			close(ready)
			wg.Wait()

			Convey("Then they share one assembly", func() {
				So(p.Calls(), ShouldEqual, 3)
				for i := range callers {
					So(errs[i], ShouldBeNil)
					So(recs[i].Items, ShouldHaveLength, 3)
				}
			})
		})

		Convey("When a refresh arrives with a plain miss", func() {
			var wg sync.WaitGroup
			ready := make(chan struct{})
			for _, refresh := range []bool{false, true} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-ready
					_, _ = svc.Recommend(ctx, "6", refresh)
				}()
			}
			close(ready)
			wg.Wait()

			Convey("Then each runs its own assembly", func() {
				So(p.Calls(), ShouldEqual, 6)
			})
		})
	})
}

func TestService_RefreshInvalidation(t *testing.T) {
	Convey("Given a cached list under one model version", t, func() {
		p := &versionedPredictor{StaticPredictor: scoring.NewStaticPredictor(), version: "v1"}
		svc := newService(t, p, service.WithPredictor(p, ""), service.WithCache(true, "", time.Minute))
		defer svc.Stop()
		So(start(svc), ShouldBeNil)
		ctx := context.Background()

		rec, err := svc.Recommend(ctx, "6", false)
		So(err, ShouldBeNil)
		So(rec.ModelVersion, ShouldEqual, "v1")

		Convey("When the model changes and the user refreshes", func() {
			p.setVersion("v2")
			rec, err := svc.Recommend(ctx, "6", true)

			Convey("Then only the new version stays cached", func() {
				So(err, ShouldBeNil)
				So(rec.ModelVersion, ShouldEqual, "v2")
				So(svc.GetStats()["cacheEntries"], ShouldEqual, 1)

				again, err := svc.Recommend(ctx, "6", false)
				So(err, ShouldBeNil)
				So(again.Cached, ShouldBeTrue)
				So(again.ModelVersion, ShouldEqual, "v2")
			})
		})
	})
}

func TestService_StaticPredictor(t *testing.T) {
	Convey("Given the static demo predictor", t, func() {
		catalog, profiles := writeData(t)
		svc := service.New(
			service.WithCatalogPath(catalog),
			service.WithProfilesPath(profiles),
			service.WithTrendingIDs([]int{1, 10}),
			service.WithStaticPredictor(0.5, time.Millisecond),
			service.WithWorkerCount(0),
		)
		defer svc.Stop()
		So(start(svc), ShouldBeNil)

		Convey("Then every candidate gets the same score", func() {
			rec, err := svc.Recommend(context.Background(), "6", false)
			So(err, ShouldBeNil)
			So(rec.Items, ShouldHaveLength, 2)
			for _, it := range rec.Items {
				So(it.NormalizedScore, ShouldAlmostEqual, scoring.Normalize(0.5), 1e-9)
			}
			So(svc.ModelVersion(), ShouldEqual, "static")
			So(svc.GetStats()["predictor"], ShouldEqual, "static")
		})
	})
}

func TestService_BlankUser(t *testing.T) {
	Convey("Given a started service", t, func() {
		p := scoring.NewStaticPredictor()
		svc := newService(t, p)
		defer svc.Stop()
		So(start(svc), ShouldBeNil)

		Convey("Then a blank user is rejected before any prediction", func() {
			_, err := svc.PredictOne(context.Background(), "  ", 10)
			So(errors.Is(err, ranking.ErrEmptyUser), ShouldBeTrue)
			So(p.Calls(), ShouldEqual, 0)
		})
	})
}

func TestService_StopDuringStream(t *testing.T) {
	Convey("Given a stream in flight", t, func() {
		p := scoring.NewStaticPredictor(scoring.WithLatencyRange(5*time.Millisecond, 6*time.Millisecond))
		svc := newService(t, p, service.WithWorkerCount(1), service.WithCache(true, "", time.Minute))
		So(start(svc), ShouldBeNil)

		Convey("When the service stops once every candidate is scored", func() {
			var (
				rec types.Recommendation
				err error
			)
			So(func() {
				rec, err = svc.RecommendStream(context.Background(), "6", func(done, total int) {
					if done == total {
						svc.Stop()
					}
				})
			}, ShouldNotPanic)

			Convey("Then the stream still completes without the cache", func() {
				So(err, ShouldBeNil)
				So(rec.Items, ShouldHaveLength, 3)
				So(svc.Ready(), ShouldBeFalse)
			})
		})
	})
}
