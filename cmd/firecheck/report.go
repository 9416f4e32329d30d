package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var project, out string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write a project's .docx report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.service.RenderReport(cmd.Context(), project)
			if err != nil {
				return err
			}
			if out == "" {
				out = doc.FileName
			}
			if err := os.WriteFile(out, doc.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, %d photos embedded, %d placeholders)\n",
				out, len(doc.Data), doc.PhotosEmbedded, doc.PhotoFallbacks)
			return err
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project name (default project when blank)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default <project>_消防问题清单.docx)")
	return cmd
}
