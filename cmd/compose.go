package cmd

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/monoklix/mkx-cli/internal/application"
)

func newComposeCmd(app *app) *cobra.Command {
	var (
		aspect   string
		category string
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "compose <prompt> <image>...",
		Short: "Compose a new image from reference images",
		Long:  "Uploads the reference images and runs a recipe over them. All uploads and the recipe call use the server and credential of the first upload.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]

			images := make([]application.ImageInput, 0, len(args)-1)
			for _, path := range args[1:] {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				mimeType := mime.TypeByExtension(filepath.Ext(path))
				if !strings.HasPrefix(mimeType, "image/") {
					mimeType = "image/jpeg"
				}

				images = append(images, application.ImageInput{
					Data:     data,
					MimeType: mimeType,
					Category: category,
					Caption:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				})
			}

			data, err := app.imagen.Compose(cmd.Context(), app.session, prompt, images,
				application.ImagenConfig{AspectRatio: aspect, Seed: seed}, printStatus(cmd))
			if err != nil {
				return err
			}

			return saveImageResult(cmd, data, ".", 0)
		},
	}

	cmd.Flags().StringVar(&aspect, "aspect", "1:1", "Aspect ratio (1:1, 16:9, 9:16)")
	cmd.Flags().StringVar(&category, "category", "MEDIA_CATEGORY_SUBJECT", "Media category for the reference images")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed (0 picks a random one)")

	return cmd
}
