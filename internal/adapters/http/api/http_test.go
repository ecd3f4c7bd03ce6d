package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/reel/internal/adapters/classifier"
	"github.com/okian/reel/internal/adapters/http/api"
	"github.com/okian/reel/internal/adapters/repository"
	"github.com/okian/reel/internal/domain/ranking"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/internal/domain/types"
	"github.com/okian/reel/pkg/logger"
)

type mockDependencies struct {
	mu sync.Mutex

	rec         types.Recommendation
	recErr      error
	lastUser    string
	lastRefresh bool

	movies    map[int]types.Movie
	trending  []types.Movie
	searchQ   string
	searchLim int

	profiles map[int]types.Profile
	watched  map[int][]types.WatchedMovie

	classification types.Classification
	classifyErr    error
	classifyType   string
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{
		rec: types.Recommendation{
			UserID:       "6",
			ModelVersion: "test",
			Items: []types.RankedCandidate{
				{MovieID: 10, NormalizedScore: 97.5},
				{MovieID: 1, NormalizedScore: 50},
				{MovieID: 32, NormalizedScore: 88.08},
			},
		},
		movies: map[int]types.Movie{
			1:  {MovieID: 1, Title: "Toy Story (1995)"},
			10: {MovieID: 10, Title: "GoldenEye (1995)"},
		},
		trending: []types.Movie{{MovieID: 10, Title: "GoldenEye (1995)"}, {MovieID: 1, Title: "Toy Story (1995)"}},
		profiles: map[int]types.Profile{6: {ID: 6, Name: "Ada"}},
		watched:  map[int][]types.WatchedMovie{6: {{MovieID: 1, Title: "Toy Story (1995)", Rating: 4.5}}},
		classification: types.Classification{
			PredictedLabel: "Comedy",
			Probability:    0.91,
		},
	}
}

func (m *mockDependencies) Recommend(_ context.Context, userID string, refresh bool) (types.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUser = userID
	m.lastRefresh = refresh
	if strings.TrimSpace(userID) == "" {
		return types.Recommendation{}, ranking.ErrEmptyUser
	}
	if m.recErr != nil {
		return types.Recommendation{}, m.recErr
	}
	return m.rec, nil
}

func (m *mockDependencies) RecommendStream(ctx context.Context, userID string, onProgress func(done, total int)) (types.Recommendation, error) {
	rec, err := m.Recommend(ctx, userID, true)
	if err != nil {
		return rec, err
	}
	for i := range rec.Items {
		onProgress(i+1, len(rec.Items))
	}
	return rec, nil
}

func (m *mockDependencies) Movie(_ context.Context, id int) (types.Movie, error) {
	mv, ok := m.movies[id]
	if !ok {
		return types.Movie{}, fmt.Errorf("%w: %d", repository.ErrMovieNotFound, id)
	}
	return mv, nil
}

func (m *mockDependencies) Trending(context.Context) []types.Movie { return m.trending }

func (m *mockDependencies) SearchMovies(_ context.Context, q string, limit int) (types.SearchResult, error) {
	m.mu.Lock()
	m.searchQ, m.searchLim = q, limit
	m.mu.Unlock()
	return types.SearchResult{Query: q, Total: 1, Hits: m.trending[:1]}, nil
}

func (m *mockDependencies) Profiles(context.Context) []types.Profile {
	return []types.Profile{m.profiles[6]}
}

func (m *mockDependencies) Profile(_ context.Context, id int) (types.Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return types.Profile{}, fmt.Errorf("%w: %d", repository.ErrProfileNotFound, id)
	}
	return p, nil
}

func (m *mockDependencies) Watched(_ context.Context, id int) ([]types.WatchedMovie, error) {
	w, ok := m.watched[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", repository.ErrProfileNotFound, id)
	}
	return w, nil
}

func (m *mockDependencies) Classify(_ context.Context, _ []byte, contentType string) (types.Classification, error) {
	m.mu.Lock()
	m.classifyType = contentType
	m.mu.Unlock()
	if m.classifyErr != nil {
		return types.Classification{}, m.classifyErr
	}
	return m.classification, nil
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newMux(deps *mockDependencies, opts ...api.Option) *http.ServeMux {
	_ = logger.Init()
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"workers": 4}}, opts...).
		Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func decodeError(w *httptest.ResponseRecorder) errorBody {
	var body errorBody
	_ = json.NewDecoder(w.Body).Decode(&body)
	return body
}

func pngBytes() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func multipartRequest(field string, data []byte) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile(field, "poster.png")
	_, _ = fw.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("Health serves the metrics registry", func() {
			w := do(mux, http.MethodGet, "/healthz")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Readiness reports ready", func() {
			w := do(mux, http.MethodGet, "/readyz")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ready"`)
		})

		Convey("Stats are passed through", func() {
			w := do(mux, http.MethodGet, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"workers":4`)
		})

		Convey("Unknown paths are not found", func() {
			w := do(mux, http.MethodGet, "/api/nothing")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Wrong methods are rejected", func() {
			w := do(mux, http.MethodPost, "/api/profiles")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	Convey("Given a server that is still starting", t, func() {
		mux := newMux(newMockDependencies(), api.WithReadiness(func() bool { return false }))

		w := do(mux, http.MethodGet, "/readyz")
		So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		So(w.Body.String(), ShouldContainSubstring, `"starting"`)
	})
}

func TestRecommendationHandler(t *testing.T) {
	Convey("Given the recommendations endpoint", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("When the user is known", func() {
			w := do(mux, http.MethodGet, "/api/recommendations/6")

			Convey("Then items come back in service order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var rec types.Recommendation
				So(json.NewDecoder(w.Body).Decode(&rec), ShouldBeNil)
				So(rec.Items, ShouldHaveLength, 3)
				So(rec.Items[0].MovieID, ShouldEqual, 10)
				So(rec.Items[1].MovieID, ShouldEqual, 1)
				So(rec.Items[2].MovieID, ShouldEqual, 32)
				So(deps.lastRefresh, ShouldBeFalse)
			})

			Convey("And the JSON uses the camelCase field names", func() {
				So(w.Body.String(), ShouldContainSubstring, `"movieId":10`)
				So(w.Body.String(), ShouldContainSubstring, `"normalizedScore":97.5`)
			})
		})

		Convey("When refresh is requested", func() {
			w := do(mux, http.MethodGet, "/api/recommendations/6?refresh=true")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastRefresh, ShouldBeTrue)
		})

		Convey("When refresh is not a boolean", func() {
			w := do(mux, http.MethodGet, "/api/recommendations/6?refresh=maybe")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w).Code, ShouldEqual, "bad_request")
		})

		Convey("When the user id is missing", func() {
			w := do(mux, http.MethodGet, "/api/recommendations/")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.lastUser, ShouldEqual, "")
		})

		Convey("When the service fails", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{fmt.Errorf("%w: user 99", scoring.ErrUnknownUser), http.StatusNotFound, "not_found"},
				{ranking.ErrBackpressure, http.StatusTooManyRequests, "backpressure"},
				{errors.Join(scoring.ErrPredictorUnavailable, errors.New("open")), http.StatusServiceUnavailable, "predictor_unavailable"},
				{fmt.Errorf("%w: %w", ranking.ErrPredictionFailed, context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
				{fmt.Errorf("%w: boom", ranking.ErrPredictionFailed), http.StatusBadGateway, "prediction_failed"},
				{errors.New("surprise"), http.StatusInternalServerError, "internal"},
			}
			for _, tc := range cases {
				Convey(fmt.Sprintf("Then %q maps to %d", tc.err, tc.status), func() {
					deps.recErr = tc.err
					w := do(mux, http.MethodGet, "/api/recommendations/6")
					So(w.Code, ShouldEqual, tc.status)
					So(decodeError(w).Code, ShouldEqual, tc.code)
				})
			}
		})
	})
}

func TestRequestID(t *testing.T) {
	Convey("Given an API route", t, func() {
		mux := newMux(newMockDependencies())

		Convey("When the client sends a request id it is echoed", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/profiles", nil)
			req.Header.Set("X-Request-ID", "abc-123")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Header().Get("X-Request-ID"), ShouldEqual, "abc-123")
		})

		Convey("When the client sends none a new one is generated", func() {
			w := do(mux, http.MethodGet, "/api/profiles")
			So(w.Header().Get("X-Request-ID"), ShouldHaveLength, 36)
		})
	})
}

func TestRateLimit(t *testing.T) {
	Convey("Given a server limited to two requests per minute", t, func() {
		mux := newMux(newMockDependencies(), api.WithRateLimit(2, time.Minute))

		So(do(mux, http.MethodGet, "/api/profiles").Code, ShouldEqual, http.StatusOK)
		So(do(mux, http.MethodGet, "/api/profiles").Code, ShouldEqual, http.StatusOK)

		w := do(mux, http.MethodGet, "/api/profiles")
		So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		So(decodeError(w).Code, ShouldEqual, "rate_limited")

		Convey("Health checks are not limited", func() {
			So(do(mux, http.MethodGet, "/readyz").Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestMovieHandler(t *testing.T) {
	Convey("Given the movie endpoints", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps, api.WithMaxSearchLimit(50))

		Convey("A known movie is returned", func() {
			w := do(mux, http.MethodGet, "/api/movies/10")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "GoldenEye")
		})

		Convey("An unknown movie is not found", func() {
			w := do(mux, http.MethodGet, "/api/movies/999")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("A non numeric id is a bad request", func() {
			w := do(mux, http.MethodGet, "/api/movies/abc")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Trending keeps its order", func() {
			w := do(mux, http.MethodGet, "/api/movies/trending")
			So(w.Code, ShouldEqual, http.StatusOK)
			var movies []types.Movie
			So(json.NewDecoder(w.Body).Decode(&movies), ShouldBeNil)
			So(movies, ShouldHaveLength, 2)
			So(movies[0].MovieID, ShouldEqual, 10)
		})

		Convey("Search uses the default limit", func() {
			w := do(mux, http.MethodGet, "/api/movies?q=golden")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.searchQ, ShouldEqual, "golden")
			So(deps.searchLim, ShouldEqual, 20)
		})

		Convey("Search caps the limit", func() {
			w := do(mux, http.MethodGet, "/api/movies?q=golden&limit=500")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.searchLim, ShouldEqual, 50)
		})

		Convey("Search rejects a negative limit", func() {
			w := do(mux, http.MethodGet, "/api/movies?limit=-1")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestProfileHandler(t *testing.T) {
	Convey("Given the profile endpoints", t, func() {
		mux := newMux(newMockDependencies())

		Convey("The list contains the known profile", func() {
			w := do(mux, http.MethodGet, "/api/profiles")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"name":"Ada"`)
		})

		Convey("A single profile is returned", func() {
			w := do(mux, http.MethodGet, "/api/profiles/6")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("An unknown profile is not found", func() {
			w := do(mux, http.MethodGet, "/api/profiles/7")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w).Code, ShouldEqual, "not_found")
		})

		Convey("Watched movies carry ratings", func() {
			w := do(mux, http.MethodGet, "/api/profiles/6/watched")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"rating":4.5`)
		})

		Convey("A zero id is a bad request", func() {
			w := do(mux, http.MethodGet, "/api/profiles/0/watched")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestClassifyHandler(t *testing.T) {
	Convey("Given the classify endpoint", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps, api.WithMaxUploadBytes(1024))

		serve := func(req *http.Request) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			return w
		}

		Convey("A PNG upload is classified", func() {
			w := serve(multipartRequest("imageFile", pngBytes()))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.classifyType, ShouldEqual, "image/png")

			var res types.Classification
			So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
			So(res.PredictedLabel, ShouldEqual, "Comedy")
			So(res.Probability, ShouldAlmostEqual, 0.91)
		})

		Convey("A missing field is a bad request", func() {
			w := serve(multipartRequest("poster", pngBytes()))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("An empty file is a bad request", func() {
			w := serve(multipartRequest("imageFile", nil))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A file that is not an image is rejected", func() {
			w := serve(multipartRequest("imageFile", []byte("definitely not an image")))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w).Code, ShouldEqual, "invalid_image")
		})

		Convey("An oversized upload is rejected", func() {
			big := bytes.Repeat([]byte{0x89}, 200<<10)
			w := serve(multipartRequest("imageFile", big))
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
			So(decodeError(w).Code, ShouldEqual, "too_large")
		})

		Convey("An unavailable classifier is a 503", func() {
			deps.classifyErr = errors.Join(classifier.ErrUnavailable, errors.New("no url"))
			w := serve(multipartRequest("imageFile", pngBytes()))
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeError(w).Code, ShouldEqual, "classifier_unavailable")
		})
	})
}

type frame struct {
	Type    string                  `json:"type"`
	UserID  string                  `json:"userId"`
	Done    int                     `json:"done"`
	Total   int                     `json:"total"`
	Code    string                  `json:"code"`
	Items   []types.RankedCandidate `json:"items"`
	Message string                  `json:"message"`
}

func readFrames(conn *websocket.Conn) []frame {
	var frames []frame
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return frames
		}
		frames = append(frames, f)
	}
}

func TestStreamHandler(t *testing.T) {
	Convey("Given the recommendation stream", t, func() {
		deps := newMockDependencies()
		srv := httptest.NewServer(newMux(deps))
		defer srv.Close()
		base := "ws" + strings.TrimPrefix(srv.URL, "http")

		Convey("When the user is known", func() {
			conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/recommendations/6", nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			frames := readFrames(conn)

			Convey("Then start, progress and recommendations arrive in order", func() {
				So(frames, ShouldHaveLength, 5)
				So(frames[0].Type, ShouldEqual, "start")
				So(frames[0].UserID, ShouldEqual, "6")
				for i := 1; i <= 3; i++ {
					So(frames[i].Type, ShouldEqual, "progress")
					So(frames[i].Done, ShouldEqual, i)
					So(frames[i].Total, ShouldEqual, 3)
				}
				last := frames[4]
				So(last.Type, ShouldEqual, "recommendations")
				So(last.UserID, ShouldEqual, "6")
				So(last.Items, ShouldHaveLength, 3)
				So(last.Items[0].MovieID, ShouldEqual, 10)
			})
		})

		Convey("When scoring fails", func() {
			deps.recErr = fmt.Errorf("%w: user 42", scoring.ErrUnknownUser)
			conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/recommendations/42", nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			frames := readFrames(conn)
			So(frames, ShouldHaveLength, 2)
			So(frames[1].Type, ShouldEqual, "error")
			So(frames[1].Code, ShouldEqual, "not_found")
			So(frames[1].Message, ShouldContainSubstring, "unknown user")
		})

		Convey("When the request is not an upgrade", func() {
			resp, err := http.Get(srv.URL + "/ws/recommendations/6")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}
