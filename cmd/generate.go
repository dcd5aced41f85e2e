package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/monoklix/mkx-cli/internal/application"
	"github.com/monoklix/mkx-cli/internal/domain"
)

func newGenerateCmd(app *app) *cobra.Command {
	var (
		aspect   string
		negative string
		seed     int64
		count    int
		stagger  time.Duration
		outDir   string
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate images from a text prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]
			cfg := application.ImagenConfig{
				AspectRatio:    aspect,
				NegativePrompt: negative,
				Seed:           seed,
			}

			if count <= 1 {
				data, err := app.imagen.Generate(cmd.Context(), app.session, prompt, cfg,
					domain.PinnedContext{}, printStatus(cmd))
				if err != nil {
					return err
				}
				return saveImageResult(cmd, data, outDir, 0)
			}

			results := app.imagen.GenerateBatch(cmd.Context(), app.session, prompt, cfg,
				count, stagger, printIndexedStatus(cmd))

			failures := 0
			for _, result := range results {
				if result.Err != nil {
					failures++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[%d] failed: %v\n", result.Index+1, result.Err)
					continue
				}
				if err := saveImageResult(cmd, result.Data, outDir, result.Index); err != nil {
					return err
				}
			}
			if failures == len(results) {
				return fmt.Errorf("all %d generation jobs failed", failures)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d/%d jobs succeeded\n", len(results)-failures, len(results))
			return nil
		},
	}

	cmd.Flags().StringVar(&aspect, "aspect", "1:1", "Aspect ratio (1:1, 16:9, 9:16)")
	cmd.Flags().StringVar(&negative, "negative", "", "Negative prompt")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed (0 picks a random one; batch jobs use seed, seed+1, ...)")
	cmd.Flags().IntVar(&count, "count", 1, "Number of independent generation jobs")
	cmd.Flags().DurationVar(&stagger, "stagger", 2*time.Second, "Delay between batch job starts")
	cmd.Flags().StringVar(&outDir, "out", ".", "Output directory")

	return cmd
}

// saveImageResult decodes the image payload to a file; when the response
// carries no recognizable image it falls back to dumping the raw JSON so
// the output is never silently lost.
func saveImageResult(cmd *cobra.Command, data map[string]any, outDir string, index int) error {
	name := fmt.Sprintf("mkx-%s-%d", time.Now().Format("20060102-150405"), index+1)

	encoded, ok := application.ExtractGeneratedImage(data)
	if !ok {
		path := filepath.Join(outDir, name+".json")
		raw, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No image payload recognized; raw response saved to %s\n", path)
		return nil
	}

	image, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return fmt.Errorf("decode image payload: %w", err)
	}

	path := filepath.Join(outDir, name+".jpg")
	if err := os.WriteFile(path, image, 0o600); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
	return nil
}

func printStatus(cmd *cobra.Command) func(string) {
	return func(status string) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), status)
	}
}

func printIndexedStatus(cmd *cobra.Command) func(int, string) {
	return func(index int, status string) {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "[%d] %s\n", index+1, status)
	}
}
