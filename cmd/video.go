package cmd

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/monoklix/mkx-cli/internal/application"
)

func newVideoCmd(app *app) *cobra.Command {
	var (
		model     string
		aspect    string
		negative  string
		imagePath string
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "video <prompt>",
		Short: "Generate a video from a text prompt",
		Long:  "Runs the full video workflow: optional reference image upload, generation, status polling, and download of the finished clip.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := application.VideoRequest{
				Prompt:         args[0],
				Model:          model,
				AspectRatio:    aspect,
				NegativePrompt: negative,
			}

			if imagePath != "" {
				data, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read %s: %w", imagePath, err)
				}
				req.Image = data
				req.ImageMime = mime.TypeByExtension(filepath.Ext(imagePath))
				if !strings.HasPrefix(req.ImageMime, "image/") {
					req.ImageMime = "image/jpeg"
				}
			}

			result, err := app.veo.Generate(cmd.Context(), app.session, req, printStatus(cmd))
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = fmt.Sprintf("mkx-%s.mp4", time.Now().Format("20060102-150405"))
			}
			if err := os.WriteFile(outPath, result.Video, 0o600); err != nil {
				return fmt.Errorf("write video: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", outPath)
			if result.ThumbnailURL != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Thumbnail: %s\n", result.ThumbnailURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "veo-3.1", "Video model (veo-3.1, veo-3.1-fast)")
	cmd.Flags().StringVar(&aspect, "aspect", "16:9", "Aspect ratio (16:9, 9:16)")
	cmd.Flags().StringVar(&negative, "negative", "", "Negative prompt")
	cmd.Flags().StringVar(&imagePath, "image", "", "Reference image path")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (default mkx-<timestamp>.mp4)")

	return cmd
}
