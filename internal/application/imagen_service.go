package application

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/monoklix/mkx-cli/internal/domain"
	"github.com/monoklix/mkx-cli/internal/ports"
)

var imagenAspectRatios = map[string]string{
	"1:1":  "IMAGE_ASPECT_RATIO_SQUARE",
	"16:9": "IMAGE_ASPECT_RATIO_LANDSCAPE",
	"9:16": "IMAGE_ASPECT_RATIO_PORTRAIT",
}

// ProcessImage pre-processes raw image bytes for upload (crop + downscale).
// Failures are soft: callers fall back to the original bytes.
type ProcessImage func(data []byte, aspect string) ([]byte, error)

// ImagenService drives the image workflows: single text-to-image calls,
// staggered batches, and the compose/recipe flow whose uploads and final
// recipe call must all ride the (server, credential) pair pinned by the
// first upload.
type ImagenService struct {
	exec    *Executor
	sink    ports.ActivitySink
	process ProcessImage
	retry   *RetryPolicy
	logger  *slog.Logger
}

func NewImagenService(exec *Executor, sink ports.ActivitySink, process ProcessImage, logger *slog.Logger) *ImagenService {
	if sink == nil {
		sink = ports.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ImagenService{
		exec:    exec,
		sink:    sink,
		process: process,
		retry:   DefaultRetryPolicy(),
		logger:  logger,
	}
}

type ImagenConfig struct {
	AspectRatio    string
	NegativePrompt string
	Seed           int64
}

type ImageInput struct {
	Data     []byte
	MimeType string
	Category string
	Caption  string
}

type recipeMediaInput struct {
	Caption    string         `json:"caption"`
	MediaInput map[string]any `json:"mediaInput"`
}

// Upload sends one image to the proxy. When pin is already set the call is
// forced onto that server and credential; the returned context is the pin
// every subsequent call of the same workflow must reuse.
func (s *ImagenService) Upload(
	ctx context.Context,
	session domain.Session,
	data []byte,
	mimeType string,
	pin domain.PinnedContext,
	onStatus func(string),
) (string, domain.PinnedContext, error) {
	body := map[string]any{
		"clientContext": clientContext(),
		"imageInput": map[string]any{
			"rawImageBytes": base64.StdEncoding.EncodeToString(data),
			"mimeType":      mimeType,
		},
	}

	result, err := s.exec.Execute(ctx, "/upload", domain.ServiceImagen, body, session, ExecuteOptions{
		Credential: pinnedCredential(pin),
		ServerURL:  pin.ServerURL,
		Kind:       domain.KindUpload,
		Label:      "IMAGEN UPLOAD",
		OnStatus:   onStatus,
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

// Generate runs a text-to-image call.
func (s *ImagenService) Generate(
	ctx context.Context,
	session domain.Session,
	prompt string,
	cfg ImagenConfig,
	pin domain.PinnedContext,
	onStatus func(string),
) (map[string]any, error) {
	fullPrompt := prompt
	if cfg.NegativePrompt != "" {
		fullPrompt = fmt.Sprintf("%s, negative prompt: %s", prompt, cfg.NegativePrompt)
	}

	body := map[string]any{
		"clientContext": clientContext(),
		"imageModelSettings": map[string]any{
			"imageModel":  "IMAGEN_3_5",
			"aspectRatio": imagenAspect(cfg.AspectRatio),
		},
		"prompt":        fullPrompt,
		"mediaCategory": "MEDIA_CATEGORY_SCENE",
		"seed":          seedOrRandom(cfg.Seed),
	}

	result, err := s.exec.Execute(ctx, "/generate", domain.ServiceImagen, body, session, ExecuteOptions{
		Credential: pinnedCredential(pin),
		ServerURL:  pin.ServerURL,
		Kind:       domain.KindGeneration,
		Label:      "IMAGEN GENERATE",
		OnStatus:   onStatus,
	})
	if err != nil {
		return nil, err
	}

	return result.Data, nil
}

// RunRecipe composes previously uploaded media. The pin must be the one
// returned by the uploads: the media IDs only exist on that server under
// that credential.
func (s *ImagenService) RunRecipe(
	ctx context.Context,
	session domain.Session,
	instruction string,
	media []recipeMediaInput,
	cfg ImagenConfig,
	pin domain.PinnedContext,
	onStatus func(string),
) (map[string]any, error) {
	body := map[string]any{
		"clientContext": clientContext(),
		"seed":          seedOrRandom(cfg.Seed),
		"imageModelSettings": map[string]any{
			"imageModel":  "R2I",
			"aspectRatio": imagenAspect(cfg.AspectRatio),
		},
		"userInstruction":   instruction,
		"recipeMediaInputs": media,
	}

	result, err := s.exec.Execute(ctx, "/run-recipe", domain.ServiceImagen, body, session, ExecuteOptions{
		Credential: pinnedCredential(pin),
		ServerURL:  pin.ServerURL,
		Kind:       domain.KindGeneration,
		Label:      "IMAGEN RECIPE",
		OnStatus:   onStatus,
	})
	if err != nil {
		return nil, err
	}

	return result.Data, nil
}

// Compose uploads every input image and runs the recipe over them. The
// first upload pins the (server, credential) pair; every later upload and
// the recipe call are forced onto that exact pair.
func (s *ImagenService) Compose(
	ctx context.Context,
	session domain.Session,
	prompt string,
	images []ImageInput,
	cfg ImagenConfig,
	onStatus func(string),
) (map[string]any, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("compose requires at least one input image")
	}

	var pin domain.PinnedContext
	media := make([]recipeMediaInput, 0, len(images))

	for i, img := range images {
		data := img.Data
		if s.process != nil {
			aspect := cfg.AspectRatio
			if aspect == "" {
				aspect = "1:1"
			}
			processed, err := s.process(img.Data, aspect)
			if err != nil {
				s.logger.Warn("image preprocessing failed, using original bytes", "index", i, "error", err)
			} else {
				data = processed
			}
		}

		mediaID, uploadPin, err := s.Upload(ctx, session, data, img.MimeType, pin, onStatus)
		if err != nil {
			return nil, fmt.Errorf("upload image %d: %w", i+1, err)
		}

		if !pin.Pinned() {
			pin = uploadPin
			s.logger.Debug("pinned workflow context",
				"server", pin.ServerURL, "token", pin.Credential.Redacted())
		}

		media = append(media, recipeMediaInput{
			Caption: img.Caption,
			MediaInput: map[string]any{
				"mediaCategory":     img.Category,
				"mediaGenerationId": mediaID,
			},
		})
	}

	return s.RunRecipe(ctx, session, prompt, media, cfg, pin, onStatus)
}

// BatchResult is one independent job outcome within a batch.
type BatchResult struct {
	Index int
	Data  map[string]any
	Err   error
}

// GenerateBatch launches count independent generation jobs with staggered
// starts (avoiding a thundering herd on the shared admission slot) and
// collects each job's own terminal state. Each job retries transient
// failures under the service retry policy; one job failing neither cancels
// nor blocks its siblings, and cancelling ctx stops jobs that have not
// started their network call yet.
func (s *ImagenService) GenerateBatch(
	ctx context.Context,
	session domain.Session,
	prompt string,
	cfg ImagenConfig,
	count int,
	stagger time.Duration,
	onStatus func(index int, status string),
) []BatchResult {
	results := make([]BatchResult, count)

	var g errgroup.Group
	for i := 0; i < count; i++ {
		index := i
		g.Go(func() error {
			results[index] = BatchResult{Index: index}

			if err := sleepCtx(ctx, time.Duration(index)*stagger); err != nil {
				results[index].Err = err
				return nil
			}

			jobStatus := func(status string) {
				if onStatus != nil {
					onStatus(index, status)
				}
			}

			// A base seed fans out to consecutive per-job seeds; zero keeps
			// every job on its own random seed.
			jobCfg := cfg
			if cfg.Seed != 0 {
				jobCfg.Seed = cfg.Seed + int64(index)
			}

			var data map[string]any
			err := s.retry.Execute(ctx, func() error {
				var genErr error
				data, genErr = s.Generate(ctx, session, prompt, jobCfg, domain.PinnedContext{}, jobStatus)
				return genErr
			})
			results[index].Data = data
			results[index].Err = err
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func imagenAspect(aspect string) string {
	if mapped, ok := imagenAspectRatios[aspect]; ok {
		return mapped
	}
	return imagenAspectRatios["1:1"]
}

func pinnedCredential(pin domain.PinnedContext) *domain.Credential {
	if pin.Credential.Empty() {
		return nil
	}
	credential := pin.Credential
	return &credential
}

func clientContext() map[string]any {
	return map[string]any{
		"tool":      "BACKBONE",
		"sessionId": fmt.Sprintf(";%d", time.Now().UnixMilli()),
	}
}

func seedOrRandom(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return rand.Int63n(2147483647)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
