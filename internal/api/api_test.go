package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/haveachin/minestat/internal/api"
	"github.com/haveachin/minestat/internal/config"
	"github.com/haveachin/minestat/internal/exporter"
	"github.com/haveachin/minestat/pkg/minestat"
)

func testConfig() config.APIConfig {
	cfg := config.DefaultConfig().API
	cfg.ProbeAllowlist = []string{"*.example.com"}
	return cfg
}

func newServer(t *testing.T, cfg config.APIConfig, e *exporter.Exporter, p api.Prober) http.Handler {
	t.Helper()
	s, err := api.New(cfg, e, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s.Handler()
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestProbe(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mockProber(ctrl)
	p.EXPECT().Query(gomock.Any(), "mc.example.com", minestat.DefaultPort).Times(1).Return(minestat.Result{
		Status:  mockStatus(t, `{"version":{"name":"1.20.2","protocol":764},"players":{"online":3,"max":20},"description":"§aHello"}`),
		Latency: 15 * time.Millisecond,
	}, nil)

	h := newServer(t, testConfig(), nil, p)
	rec := get(h, "/v1/probe?address=mc.example.com")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ProbeID   string           `json:"probeId"`
		Port      int              `json:"port"`
		LatencyMs float64          `json:"latencyMs"`
		Summary   minestat.Summary `json:"summary"`
		Status    map[string]any   `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}

	if resp.ProbeID == "" {
		t.Error("probe id is empty")
	}

	if resp.Port != minestat.DefaultPort {
		t.Errorf("port: got %d", resp.Port)
	}

	if resp.LatencyMs != 15 {
		t.Errorf("latency: got %v", resp.LatencyMs)
	}

	if resp.Summary.Players.Online != 3 || resp.Summary.Players.Max != 20 {
		t.Errorf("players: got %d/%d", resp.Summary.Players.Online, resp.Summary.Players.Max)
	}

	if resp.Summary.Description != "Hello" {
		t.Errorf("description: got %q", resp.Summary.Description)
	}

	if _, ok := resp.Status["players"]; !ok {
		t.Error("raw status should be included")
	}
}

func TestProbe_Rejected(t *testing.T) {
	tt := []struct {
		name   string
		target string
		status int
	}{
		{
			name:   "MissingAddress",
			target: "/v1/probe",
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "InvalidPort",
			target: "/v1/probe?address=mc.example.com&port=70000",
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "PortNotANumber",
			target: "/v1/probe?address=mc.example.com&port=abc",
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "NotAllowed",
			target: "/v1/probe?address=mc.other.org",
			status: http.StatusForbidden,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			h := newServer(t, testConfig(), nil, mockProber(ctrl))

			rec := get(h, tc.target)
			if rec.Code != tc.status {
				t.Errorf("got status %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestProbe_QueryError(t *testing.T) {
	tt := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{
			name: "Timeout",
			err: &minestat.QueryError{
				Stage: minestat.StageResponse,
				Kind:  minestat.ErrTimeout,
				Err:   os.ErrDeadlineExceeded,
			},
			status: http.StatusGatewayTimeout,
			kind:   "timeout",
		},
		{
			name: "UnexpectedPacketID",
			err: &minestat.QueryError{
				Stage: minestat.StageResponse,
				Kind:  minestat.ErrUnexpectedPacketID,
			},
			status: http.StatusBadGateway,
			kind:   "unexpected_packet_id",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			p := mockProber(ctrl)
			p.EXPECT().Query(gomock.Any(), "mc.example.com", 25566).Times(1).Return(minestat.Result{}, tc.err)

			h := newServer(t, testConfig(), nil, p)
			rec := get(h, "/v1/probe?address=mc.example.com&port=25566")
			if rec.Code != tc.status {
				t.Fatalf("got status %d, want %d", rec.Code, tc.status)
			}

			var resp struct {
				Stage string `json:"stage"`
				Kind  string `json:"kind"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}

			if resp.Kind != tc.kind {
				t.Errorf("kind: got %q, want %q", resp.Kind, tc.kind)
			}

			if resp.Stage != string(minestat.StageResponse) {
				t.Errorf("stage: got %q", resp.Stage)
			}
		})
	}
}

func TestProbe_RateLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mockProber(ctrl)
	p.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).Return(minestat.Result{
		Status: mockStatus(t, `{}`),
	}, nil)

	cfg := testConfig()
	cfg.ProbeRateLimit = 0.001
	cfg.ProbeBurst = 1
	h := newServer(t, cfg, nil, p)

	if rec := get(h, "/v1/probe?address=mc.example.com"); rec.Code != http.StatusOK {
		t.Fatalf("first probe: got status %d", rec.Code)
	}

	if rec := get(h, "/v1/probe?address=mc.example.com"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second probe: got status %d", rec.Code)
	}
}

type proberFunc func(ctx context.Context, address string, port int) (minestat.Result, error)

func (fn proberFunc) Query(ctx context.Context, address string, port int) (minestat.Result, error) {
	return fn(ctx, address, port)
}

func TestTargetsAndMetrics(t *testing.T) {
	status := mockStatus(t, `{"players":{"online":1,"max":5}}`)
	e := exporter.New([]exporter.Target{
		{
			Name:    "hub",
			Address: "hub.example.com",
			Port:    25565,
			Prober: proberFunc(func(context.Context, string, int) (minestat.Result, error) {
				return minestat.Result{Status: status}, nil
			}),
		},
	}, nil)

	ctrl := gomock.NewController(t)
	h := newServer(t, testConfig(), e, mockProber(ctrl))

	rec := get(h, "/v1/targets")
	if rec.Code != http.StatusOK {
		t.Fatalf("targets: got status %d", rec.Code)
	}

	var targets []struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		Port    int    `json:"port"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&targets); err != nil {
		t.Fatal(err)
	}

	if len(targets) != 1 || targets[0].Name != "hub" || targets[0].Port != 25565 {
		t.Errorf("got targets %+v", targets)
	}

	rec = get(h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: got status %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`minestat_up{target="hub"} 1`,
		`minestat_players_online{target="hub"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics should contain %q", want)
		}
	}
}

func TestRateLimit_ForwardedFor(t *testing.T) {
	tt := []struct {
		name       string
		trustProxy bool
		allowed    int
	}{
		{
			name:       "Untrusted",
			trustProxy: false,
			allowed:    1,
		},
		{
			name:       "TrustProxy",
			trustProxy: true,
			allowed:    5,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			p := mockProber(ctrl)
			p.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).Times(tc.allowed).Return(minestat.Result{
				Status: mockStatus(t, `{}`),
			}, nil)

			cfg := testConfig()
			cfg.ProbeRateLimit = 0.001
			cfg.ProbeBurst = 1
			cfg.TrustProxy = tc.trustProxy
			h := newServer(t, cfg, nil, p)

			allowed := 0
			for i := 0; i < 5; i++ {
				req := httptest.NewRequest(http.MethodGet, "/v1/probe?address=mc.example.com", nil)
				req.RemoteAddr = "203.0.113.7:50000"
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))

				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				if rec.Code == http.StatusOK {
					allowed++
				}
			}

			if allowed != tc.allowed {
				t.Errorf("got %d allowed requests, want %d", allowed, tc.allowed)
			}
		})
	}
}

func TestServer_Reload(t *testing.T) {
	ctrl := gomock.NewController(t)
	oldProber := mockProber(ctrl)
	newProber := mockProber(ctrl)
	newProber.EXPECT().Query(gomock.Any(), "mc.other.org", minestat.DefaultPort).Times(1).Return(minestat.Result{
		Status: mockStatus(t, `{}`),
	}, nil)

	s, err := api.New(testConfig(), nil, oldProber, nil)
	if err != nil {
		t.Fatal(err)
	}
	h := s.Handler()

	if rec := get(h, "/v1/probe?address=mc.other.org"); rec.Code != http.StatusForbidden {
		t.Fatalf("before reload: got status %d", rec.Code)
	}

	cfg := testConfig()
	cfg.ProbeAllowlist = []string{"*.other.org"}
	s.Reload(cfg, newProber)

	if rec := get(h, "/v1/probe?address=mc.other.org"); rec.Code != http.StatusOK {
		t.Fatalf("after reload: got status %d", rec.Code)
	}
}
