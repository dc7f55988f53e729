package diagnostics

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/consultrelay/consult-relay-go/internal/config"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
)

const (
	RecommendationGood = "Good connection for a video consultation"
	RecommendationWeak = "Weak connection: video may freeze, move closer to your router or switch to audio"
)

type DeviceStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DeviceReport holds the camera and microphone results. The two are
// independent: one may pass while the other fails.
type DeviceReport struct {
	Camera     DeviceStatus `json:"camera"`
	Microphone DeviceStatus `json:"microphone"`
	CheckedAt  time.Time    `json:"checkedAt"`
}

func (r DeviceReport) Passed() bool {
	return r.Camera.OK && r.Microphone.OK
}

// Measurement is what a network probe observed. Score, when present, is
// the prober's own quality estimate and takes precedence.
type Measurement struct {
	Score        *int     `json:"score,omitempty"`
	LatencyMs    *float64 `json:"latencyMs,omitempty"`
	DownloadKbps *float64 `json:"downloadKbps,omitempty"`
	UploadKbps   *float64 `json:"uploadKbps,omitempty"`
}

type NetworkResult struct {
	Score          int       `json:"score"`
	LatencyMs      *float64  `json:"latencyMs,omitempty"`
	DownloadKbps   *float64  `json:"downloadKbps,omitempty"`
	UploadKbps     *float64  `json:"uploadKbps,omitempty"`
	Recommendation string    `json:"recommendation"`
	Error          string    `json:"error,omitempty"`
	CheckedAt      time.Time `json:"checkedAt"`
}

func (r NetworkResult) Passed() bool {
	return r.Error == "" && r.Score >= config.NetworkQualityThreshold
}

type Report struct {
	Devices *DeviceReport  `json:"devices,omitempty"`
	Network *NetworkResult `json:"network,omitempty"`
}

func (r Report) Passed() bool {
	return r.Devices != nil && r.Devices.Passed() && r.Network != nil && r.Network.Passed()
}

type DeviceProber interface {
	ProbeDevices(ctx context.Context) (DeviceReport, error)
}

type NetworkProber interface {
	ProbeNetwork(ctx context.Context) (Measurement, error)
}

// Classify maps a quality score to its recommendation. Scores below the
// threshold are weak; the threshold itself is good.
func Classify(score int) string {
	if score < config.NetworkQualityThreshold {
		return RecommendationWeak
	}
	return RecommendationGood
}

// Reference figures for a full score: one-to-one HD video needs roughly
// 1.5 Mbps each way.
const (
	goodLatencyMs    = 100.0
	worstLatencyMs   = 600.0
	goodDownloadKbps = 2500.0
	goodUploadKbps   = 1500.0
)

// Score derives a 0..100 quality score. Latency carries 40 points and
// each direction of bandwidth 30. Missing figures score zero.
func Score(m Measurement) int {
	if m.Score != nil {
		return clamp(*m.Score)
	}

	var total float64
	if m.LatencyMs != nil {
		switch l := *m.LatencyMs; {
		case l <= goodLatencyMs:
			total += 40
		case l < worstLatencyMs:
			total += 40 * (worstLatencyMs - l) / (worstLatencyMs - goodLatencyMs)
		}
	}
	if m.DownloadKbps != nil {
		total += 30 * math.Min(*m.DownloadKbps/goodDownloadKbps, 1)
	}
	if m.UploadKbps != nil {
		total += 30 * math.Min(*m.UploadKbps/goodUploadKbps, 1)
	}
	return clamp(int(math.Round(total)))
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Runner keeps the latest result of each pre-flight check for one session.
// Checks are user-triggered and repeatable; each run overwrites only its
// own result.
type Runner struct {
	devices DeviceProber
	network NetworkProber
	now     func() time.Time

	mu          sync.RWMutex
	lastDevices *DeviceReport
	lastNetwork *NetworkResult
}

func NewRunner(devices DeviceProber, network NetworkProber) *Runner {
	return &Runner{
		devices: devices,
		network: network,
		now:     time.Now,
	}
}

// CheckDevices probes camera and microphone. A probe failure is recorded
// as both devices failing and is also returned.
func (r *Runner) CheckDevices(ctx context.Context) (DeviceReport, error) {
	report, err := r.devices.ProbeDevices(ctx)
	if err != nil {
		report = DeviceReport{
			Camera:     DeviceStatus{Error: err.Error()},
			Microphone: DeviceStatus{Error: err.Error()},
		}
	}
	if report.CheckedAt.IsZero() {
		report.CheckedAt = r.now()
	}

	r.mu.Lock()
	r.lastDevices = &report
	r.mu.Unlock()

	log.Info().
		Bool("camera", report.Camera.OK).
		Bool("microphone", report.Microphone.OK).
		Msg("device check completed")

	return report, err
}

func (r *Runner) CheckNetwork(ctx context.Context) (NetworkResult, error) {
	m, err := r.network.ProbeNetwork(ctx)

	result := NetworkResult{CheckedAt: r.now()}
	if err != nil {
		result.Error = err.Error()
		result.Recommendation = RecommendationWeak
	} else {
		result.Score = Score(m)
		result.LatencyMs = m.LatencyMs
		result.DownloadKbps = m.DownloadKbps
		result.UploadKbps = m.UploadKbps
		result.Recommendation = Classify(result.Score)
	}

	r.mu.Lock()
	r.lastNetwork = &result
	r.mu.Unlock()

	log.Info().
		Int("score", result.Score).
		Bool("passed", result.Passed()).
		Msg("network check completed")

	return result, err
}

// RunAll runs both checks concurrently. A failure in one check does not
// cancel the other.
func (r *Runner) RunAll(ctx context.Context) (Report, error) {
	var g errgroup.Group
	g.Go(func() error {
		_, err := r.CheckDevices(ctx)
		return err
	})
	g.Go(func() error {
		_, err := r.CheckNetwork(ctx)
		return err
	})
	err := g.Wait()
	return r.Results(), err
}

func (r *Runner) Results() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var report Report
	if r.lastDevices != nil {
		d := *r.lastDevices
		report.Devices = &d
	}
	if r.lastNetwork != nil {
		n := *r.lastNetwork
		report.Network = &n
	}
	return report
}

// Gate returns nil once both checks have passed in this session.
func (r *Runner) Gate() error {
	report := r.Results()
	if report.Passed() {
		return nil
	}

	failing := make([]string, 0, 2)
	if report.Devices == nil || !report.Devices.Passed() {
		failing = append(failing, "devices")
	}
	if report.Network == nil || !report.Network.Passed() {
		failing = append(failing, "network")
	}
	return apperrors.PreflightRequired().WithDetails(map[string]any{"failing": failing})
}
