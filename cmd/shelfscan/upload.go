package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shelfscan/shelfscan/internal/upload"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <image>",
		Short: "Upload a bookshelf photo for recognition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			ctrl := upload.New(current.gw, current.log)
			if err := ctrl.SelectFile(filepath.Base(args[0]), data); err != nil {
				return err
			}
			result, err := ctrl.Upload(cmd.Context())
			if err != nil {
				return err
			}

			if result.SaveMessage != "" {
				fmt.Println(result.SaveMessage)
			}
			fmt.Println("Detected books:")
			if len(result.DetectedBooks) == 0 {
				fmt.Println("  No books detected yet.")
			} else {
				for _, title := range result.DetectedBooks {
					fmt.Printf("  %s\n", title)
				}
			}
			// An absent recommendations field means the lookup was never
			// attempted; an empty one means it found nothing.
			if result.RecommendationsAttempted() {
				fmt.Println("Recommended books:")
				if len(result.Recommendations) == 0 {
					fmt.Println("  No recommendations available.")
				}
				for _, rec := range result.Recommendations {
					line := "  " + rec.Title
					if len(rec.Authors) > 0 {
						line += " by " + strings.Join(rec.Authors, ", ")
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}
}
