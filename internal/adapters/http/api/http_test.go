package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/hackcast/internal/adapters/http/api"
	"github.com/okian/hackcast/internal/domain/gate"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/internal/domain/types"
	"github.com/okian/hackcast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type mockDeps struct {
	mu        sync.Mutex
	state     model.PlaybackState
	content   *model.SegmentContent
	line      types.CurrentLine
	scores    []types.Entry
	gate      gate.State
	presence  int
	streams   []int
	injected  []model.DomainEvent
	injectErr error
	updates   chan types.Frame
}

func newMockDeps() *mockDeps {
	return &mockDeps{
		state:   model.PlaybackState{Phase: model.PhaseBumperIn, Scene: model.SceneAnchor, ActiveHackathonID: "h-a"},
		gate:    gate.State{AutoPauseEnabled: true},
		updates: make(chan types.Frame, 4),
	}
}

func (m *mockDeps) Frame() types.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.Frame{State: m.state, Content: m.content, CurrentLine: m.line}
}

func (m *mockDeps) Subscribe() (<-chan types.Frame, func()) {
	return m.updates, func() {}
}

func (m *mockDeps) SnapshotScores() []types.Entry { return m.scores }

func (m *mockDeps) SetManualPause(p bool) {
	m.gate.ManualPause = p
	m.gate.Paused = p || m.gate.SystemPause
}

func (m *mockDeps) SetAutoPauseEnabled(e bool) { m.gate.AutoPauseEnabled = e }

func (m *mockDeps) GateState() gate.State { return m.gate }

func (m *mockDeps) SetPresenceViewers(n int) { m.presence = n }

func (m *mockDeps) SetStreamClients(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, n)
}

func (m *mockDeps) streamCounts() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.streams...)
}

func (m *mockDeps) InjectEvent(_ context.Context, ev model.DomainEvent) error {
	if m.injectErr != nil {
		return m.injectErr
	}
	m.injected = append(m.injected, ev)
	return nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]any {
	return map[string]any{"processed": 7}
}

func serve(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServerRoutes(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newMockDeps()
		server := api.NewServer(deps, mockStats{})
		mux := http.NewServeMux()
		server.Register(mux)

		Convey("The health endpoint serves metrics", func() {
			w := serve(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("The stats endpoint returns provider stats", func() {
			w := serve(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"processed":7`)
		})

		Convey("The state endpoint omits content until it is loaded", func() {
			w := serve(mux, http.MethodGet, "/state", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var body map[string]json.RawMessage
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			_, hasContent := body["content"]
			So(hasContent, ShouldBeFalse)
			So(string(body["state"]), ShouldContainSubstring, `"phase":"BUMPER_IN"`)

			Convey("And includes content and the current line during delivery", func() {
				deps.content = &model.SegmentContent{Scene: model.SceneAnchor, Title: "Live"}
				deps.line = types.CurrentLine{Text: "Hello", Speaker: "left", Priority: "normal"}
				w := serve(mux, http.MethodGet, "/state", "")
				So(w.Body.String(), ShouldContainSubstring, `"title":"Live"`)
				So(w.Body.String(), ShouldContainSubstring, `"text":"Hello"`)
			})
		})

		Convey("The scores endpoint returns an empty list rather than null", func() {
			w := serve(mux, http.MethodGet, "/scores", "")
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")

			deps.scores = []types.Entry{{Rank: 1, HackathonID: "h-a", EffectiveScore: 42, Active: true}}
			w = serve(mux, http.MethodGet, "/scores", "")
			So(w.Body.String(), ShouldContainSubstring, `"effective_score":42`)
		})

		Convey("Reads reject other methods", func() {
			So(serve(mux, http.MethodPost, "/state", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, http.MethodGet, "/control/pause", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Pause and resume toggle the manual pause", func() {
			w := serve(mux, http.MethodPost, "/control/pause", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gate.ManualPause, ShouldBeTrue)
			So(w.Body.String(), ShouldContainSubstring, `"paused":true`)

			serve(mux, http.MethodPost, "/control/resume", "")
			So(deps.gate.ManualPause, ShouldBeFalse)
		})

		Convey("Auto pause requires an explicit flag", func() {
			So(serve(mux, http.MethodPost, "/control/auto-pause", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodPost, "/control/auto-pause", `{"enabled":"yes"}`).Code, ShouldEqual, http.StatusBadRequest)

			w := serve(mux, http.MethodPost, "/control/auto-pause", `{"enabled":false}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gate.AutoPauseEnabled, ShouldBeFalse)
		})

		Convey("Presence accepts non-negative viewer counts", func() {
			So(serve(mux, http.MethodPost, "/presence", `{"viewers":-1}`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodPost, "/presence", `{"viewers":3}`).Code, ShouldEqual, http.StatusOK)
			So(deps.presence, ShouldEqual, 3)
		})

		Convey("Breaking news is validated and filled in", func() {
			w := serve(mux, http.MethodPost, "/breaking", `{"hackathon_id":"h-b","kind":"breaking_news","priority":"breaking"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.injected, ShouldHaveLength, 1)
			So(deps.injected[0].ID, ShouldNotBeEmpty)
			So(deps.injected[0].Timestamp.IsZero(), ShouldBeFalse)

			Convey("And invalid events are rejected", func() {
				So(serve(mux, http.MethodPost, "/breaking", `{"kind":"breaking_news","priority":"breaking"}`).Code, ShouldEqual, http.StatusBadRequest)
				So(serve(mux, http.MethodPost, "/breaking", `{"hackathon_id":"h-b","kind":"gossip","priority":"breaking"}`).Code, ShouldEqual, http.StatusBadRequest)
				So(serve(mux, http.MethodPost, "/breaking", `not json`).Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And an unavailable injector maps to 503", func() {
				deps.injectErr = api.NewKind("service.inject", api.ErrUnavailable)
				w := serve(mux, http.MethodPost, "/breaking", `{"hackathon_id":"h-b","kind":"breaking_news","priority":"breaking"}`)
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Wrapped errors keep both kind and cause", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("op", api.ErrBadRequest, cause)
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "op: bad request: boom")
		So(api.Wrap("op", nil), ShouldBeNil)
		So(errors.Is(api.NewKind("op", api.ErrUnavailable), api.ErrUnavailable), ShouldBeTrue)
	})
}

func readFrame(conn *websocket.Conn) (map[string]json.RawMessage, error) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var f map[string]json.RawMessage
	return f, json.Unmarshal(data, &f)
}

func TestStream(t *testing.T) {
	Convey("Given a running hub behind a test server", t, func() {
		deps := newMockDeps()
		server := api.NewServer(deps, mockStats{})
		mux := http.NewServeMux()
		server.Register(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go server.Hub().Run(ctx)

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		Convey("The client receives the current snapshot first", func() {
			f, err := readFrame(conn)
			So(err, ShouldBeNil)
			So(string(f["type"]), ShouldEqual, `"state"`)
			So(string(f["state"]), ShouldContainSubstring, `"active_hackathon_id":"h-a"`)
			So(server.Hub().Count(), ShouldEqual, 1)
			So(deps.streamCounts(), ShouldResemble, []int{1})

			Convey("And every published snapshot after that", func() {
				deps.updates <- types.Frame{State: model.PlaybackState{Phase: model.PhaseContentDelivery, Version: 9}}
				f, err := readFrame(conn)
				So(err, ShouldBeNil)
				So(string(f["state"]), ShouldContainSubstring, `"version":9`)
			})

			Convey("And a buffered frame is sent as taken, not mixed with newer content", func() {
				lines := func(scene model.Scene, n int) *model.SegmentContent {
					c := &model.SegmentContent{Scene: scene}
					for i := 0; i < n; i++ {
						c.Commentary = append(c.Commentary, model.CommentaryLine{Text: fmt.Sprintf("%s-%d", scene, i)})
					}
					return c
				}
				deps.mu.Lock()
				deps.state = model.PlaybackState{Phase: model.PhaseContentDelivery, Scene: model.SceneTeam, CommentaryIndex: 1}
				deps.content = lines(model.SceneTeam, 2)
				deps.line = types.CurrentLine{Text: "team-1"}
				deps.mu.Unlock()

				deps.updates <- types.Frame{
					State:       model.PlaybackState{Phase: model.PhaseContentDelivery, Scene: model.SceneAnchor, CommentaryIndex: 4},
					Content:     lines(model.SceneAnchor, 5),
					CurrentLine: types.CurrentLine{Text: "anchor-4"},
				}
				f, err := readFrame(conn)
				So(err, ShouldBeNil)

				var state model.PlaybackState
				var c model.SegmentContent
				var line types.CurrentLine
				So(json.Unmarshal(f["state"], &state), ShouldBeNil)
				So(json.Unmarshal(f["content"], &c), ShouldBeNil)
				So(json.Unmarshal(f["current_line"], &line), ShouldBeNil)
				So(c.Scene, ShouldEqual, state.Scene)
				So(state.CommentaryIndex, ShouldBeLessThan, len(c.Commentary))
				So(line.Text, ShouldEqual, c.Commentary[state.CommentaryIndex].Text)
			})

			Convey("And disconnecting lowers the viewer count", func() {
				So(conn.Close(), ShouldBeNil)
				deadline := time.Now().Add(2 * time.Second)
				for server.Hub().Count() != 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(server.Hub().Count(), ShouldEqual, 0)
				So(deps.streamCounts(), ShouldResemble, []int{1, 0})
			})
		})
	})
}
