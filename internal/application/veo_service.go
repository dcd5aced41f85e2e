package application

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/monoklix/mkx-cli/internal/domain"
	"github.com/monoklix/mkx-cli/internal/ports"
)

// Video workflow states. The flow never skips a state; POLLING loops until
// a terminal condition and FAILED is reachable from everywhere.
type VideoState string

const (
	StateUploading   VideoState = "UPLOADING"
	StateGenerating  VideoState = "GENERATING"
	StatePolling     VideoState = "POLLING"
	StateDownloading VideoState = "DOWNLOADING"
	StateDone        VideoState = "DONE"
	StateFailed      VideoState = "FAILED"
)

const (
	defaultPollInterval   = 25 * time.Second
	defaultUpdateInterval = 5 * time.Second
	defaultMaxPolls       = 40
)

const statusFailed = "MEDIA_GENERATION_STATUS_FAILED"

var successStatuses = map[string]bool{
	"MEDIA_GENERATION_STATUS_COMPLETED":  true,
	"MEDIA_GENERATION_STATUS_SUCCESS":    true,
	"MEDIA_GENERATION_STATUS_SUCCESSFUL": true,
}

// Cosmetic reassurance shown between real status checks. These updates run
// on a shorter cadence than the polls and never touch the network.
var processingMessages = []string{
	"Analyzing scene dynamics...",
	"Rendering initial frames...",
	"Calculating motion vectors...",
	"Refining textures and lighting...",
	"Smoothing video transitions...",
	"Processing final render...",
	"Almost there, finalizing output...",
}

// VeoService drives the video workflow: optional reference-image upload,
// generation, a polling loop, and the artifact download, all on the
// (server, credential) pair pinned by the first successful call. Artifact
// URLs are server-affine, so the download must go through the pinned
// server's download proxy.
type VeoService struct {
	exec       *Executor
	sink       ports.ActivitySink
	httpClient *http.Client
	process    ProcessImage
	logger     *slog.Logger

	pollInterval   time.Duration
	updateInterval time.Duration
	maxPolls       int
	sleep          func(ctx context.Context, d time.Duration) error
}

func NewVeoService(exec *Executor, sink ports.ActivitySink, httpClient *http.Client, process ProcessImage, logger *slog.Logger) *VeoService {
	if sink == nil {
		sink = ports.NopSink{}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &VeoService{
		exec:           exec,
		sink:           sink,
		httpClient:     httpClient,
		process:        process,
		logger:         logger,
		pollInterval:   defaultPollInterval,
		updateInterval: defaultUpdateInterval,
		maxPolls:       defaultMaxPolls,
		sleep:          sleepCtx,
	}
}

type VideoRequest struct {
	Prompt         string
	Model          string // "veo-3.1" or "veo-3.1-fast"
	AspectRatio    string // "16:9", "9:16", ...
	NegativePrompt string
	Image          []byte
	ImageMime      string
}

type VideoResult struct {
	Video        []byte
	ThumbnailURL string
}

// Generate runs the full video workflow and returns the downloaded
// artifact.
func (s *VeoService) Generate(
	ctx context.Context,
	session domain.Session,
	req VideoRequest,
	onStatus func(string),
) (VideoResult, error) {
	s.sink.Record(domain.LogEntry{
		UserID: session.UserID,
		Model:  req.Model,
		Prompt: req.Prompt,
		Output: "Attempting video generation...",
		Status: domain.LogSuccess,
	})

	result, err := s.run(ctx, session, req, onStatus)
	if err != nil {
		s.logger.Debug("video workflow terminal state", "state", StateFailed, "error", err)
		return VideoResult{}, err
	}

	s.sink.Record(domain.LogEntry{
		UserID: session.UserID,
		Model:  req.Model,
		Prompt: req.Prompt,
		Output: "Video ready",
		Status: domain.LogSuccess,
	})
	s.logger.Debug("video workflow terminal state", "state", StateDone)

	return result, nil
}

func (s *VeoService) run(
	ctx context.Context,
	session domain.Session,
	req VideoRequest,
	onStatus func(string),
) (VideoResult, error) {
	var pin domain.PinnedContext
	var mediaID string

	if len(req.Image) > 0 {
		s.transition(StateUploading)
		var err error
		mediaID, pin, err = s.uploadReference(ctx, session, req, onStatus)
		if err != nil {
			return VideoResult{}, err
		}
	}

	s.transition(StateGenerating)
	operations, pin, err := s.StartGeneration(ctx, session, req, mediaID, pin, onStatus)
	if err != nil {
		return VideoResult{}, err
	}

	s.transition(StatePolling)
	videoURL, thumbnailURL, err := s.poll(ctx, session, operations, pin, onStatus)
	if err != nil {
		return VideoResult{}, err
	}

	s.transition(StateDownloading)
	notify(onStatus, "Finalizing video download...")
	video, err := s.download(ctx, pin.ServerURL, videoURL)
	if err != nil {
		return VideoResult{}, err
	}

	return VideoResult{Video: video, ThumbnailURL: thumbnailURL}, nil
}

func (s *VeoService) uploadReference(
	ctx context.Context,
	session domain.Session,
	req VideoRequest,
	onStatus func(string),
) (string, domain.PinnedContext, error) {
	notify(onStatus, "Uploading reference image...")

	data := req.Image
	if s.process != nil {
		aspect := req.AspectRatio
		if aspect != "16:9" && aspect != "9:16" {
			aspect = "9:16"
		}
		processed, err := s.process(req.Image, aspect)
		if err != nil {
			s.logger.Warn("reference image processing failed, using original bytes", "error", err)
		} else {
			data = processed
		}
	}

	body := map[string]any{
		"clientContext": clientContext(),
		"imageInput": map[string]any{
			"rawImageBytes": base64.StdEncoding.EncodeToString(data),
			"mimeType":      req.ImageMime,
		},
		"aspectRatio": veoAspect(req.AspectRatio),
	}

	result, err := s.exec.Execute(ctx, "/upload", domain.ServiceVeo, body, session, ExecuteOptions{
		Kind:     domain.KindUpload,
		Label:    "VEO UPLOAD",
		OnStatus: onStatus,
	})
	if err != nil {
		return "", domain.PinnedContext{}, err
	}

	mediaID, ok := firstMatch(result.Data, mediaIDExtractors)
	if !ok {
		return "", domain.PinnedContext{}, fmt.Errorf("upload succeeded but no media id was returned")
	}

	return mediaID, result.Pinned, nil
}

// StartGeneration issues the generate call. When pin is set (an upload
// happened) the call is forced onto that server and credential; for
// text-to-video the pin is established here instead.
func (s *VeoService) StartGeneration(
	ctx context.Context,
	session domain.Session,
	req VideoRequest,
	mediaID string,
	pin domain.PinnedContext,
	onStatus func(string),
) ([]any, domain.PinnedContext, error) {
	notify(onStatus, "Initializing generation...")

	body := map[string]any{
		"clientContext": clientContext(),
		"prompt":        req.Prompt,
		"videoModelKey": veoModelKey(req.Model),
		"aspectRatio":   veoAspect(req.AspectRatio),
		"seed":          seedOrRandom(0),
	}
	if mediaID != "" {
		body["imageMediaId"] = mediaID
	}
	if req.NegativePrompt != "" {
		body["negativePrompt"] = req.NegativePrompt
	}

	result, err := s.exec.Execute(ctx, "/generate", domain.ServiceVeo, body, session, ExecuteOptions{
		Credential: pinnedCredential(pin),
		ServerURL:  pin.ServerURL,
		Kind:       domain.KindGeneration,
		Label:      "VEO GENERATE",
		OnStatus:   onStatus,
	})
	if err != nil {
		return nil, domain.PinnedContext{}, err
	}

	operations, _ := result.Data["operations"].([]any)
	if len(operations) == 0 {
		return nil, domain.PinnedContext{}, fmt.Errorf("video generation failed to start: no operations returned")
	}

	return operations, result.Pinned, nil
}

// poll drives the POLLING self-loop: real status checks every pollInterval,
// cosmetic progress updates every updateInterval in between. Empty or
// malformed poll responses are retried, not fatal.
func (s *VeoService) poll(
	ctx context.Context,
	session domain.Session,
	operations []any,
	pin domain.PinnedContext,
	onStatus func(string),
) (string, string, error) {
	steps := int(s.pollInterval / s.updateInterval)
	if steps < 1 {
		steps = 1
	}

	for check := 0; check < s.maxPolls; check++ {
		for i := 0; i < steps; i++ {
			if err := s.sleep(ctx, s.updateInterval); err != nil {
				return "", "", err
			}
			notify(onStatus, processingMessages[rand.Intn(len(processingMessages))])
		}

		result, err := s.exec.Execute(ctx, "/check-status", domain.ServiceVeo,
			map[string]any{"operations": operations}, session, ExecuteOptions{
				Credential: pinnedCredential(pin),
				ServerURL:  pin.ServerURL,
				Kind:       domain.KindStatus,
				Label:      "VEO STATUS",
			})
		if err != nil {
			return "", "", err
		}

		polled, _ := result.Data["operations"].([]any)
		if len(polled) == 0 {
			s.logger.Warn("empty status response, retrying poll")
			continue
		}

		operations = polled
		op, ok := polled[0].(map[string]any)
		if !ok {
			s.logger.Warn("malformed status response, retrying poll")
			continue
		}

		status, _ := op["status"].(string)
		if status == statusFailed {
			return "", "", fmt.Errorf("video generation failed on the server (%s)", statusFailed)
		}

		done, _ := op["done"].(bool)
		if done || successStatuses[status] {
			videoURL, ok := firstMatch(op, videoURLExtractors)
			if !ok {
				// Finished with nothing playable: almost always a safety block.
				return "", "", fmt.Errorf("video finished but no output URL found (safety block likely)")
			}
			thumbnailURL, _ := firstMatch(op, videoThumbnailExtractors)
			return videoURL, thumbnailURL, nil
		}

		if errObj, ok := op["error"].(map[string]any); ok {
			message, _ := errObj["message"].(string)
			if message == "" {
				message = "unknown error"
			}
			return "", "", fmt.Errorf("video generation failed: %s", message)
		}
	}

	return "", "", fmt.Errorf("video generation did not finish after %d status checks", s.maxPolls)
}

// download fetches the artifact through the pinned server's download
// proxy. The result URL is short-lived and access-controlled by the server
// that produced it, so no other server can serve it.
func (s *VeoService) download(ctx context.Context, serverURL, videoURL string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/veo/download-video?url=%s", serverURL, url.QueryEscape(videoURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading video: %w", err)
	}

	return data, nil
}

func (s *VeoService) transition(state VideoState) {
	s.logger.Debug("video workflow state", "state", state)
}

func veoAspect(aspect string) string {
	if aspect == "9:16" || aspect == "3:4" {
		return "VIDEO_ASPECT_RATIO_PORTRAIT"
	}
	return "VIDEO_ASPECT_RATIO_LANDSCAPE"
}

func veoModelKey(model string) string {
	if model == "" {
		return "veo_3_1"
	}
	if model == "veo-3.1-fast" {
		return "veo_3_1_fast"
	}
	return "veo_3_1"
}
