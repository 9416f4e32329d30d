package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vbonduro/firecheck/internal/service"
)

func newAddCmd(opts *rootOptions) *cobra.Command {
	var (
		in        service.NewFinding
		photoPath string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a finding",
		Example: `  firecheck add --project "1号楼" --category building \
    --location "8楼楼梯间" --description "防火门常开" --photo door.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if photoPath != "" {
				data, err := os.ReadFile(photoPath)
				if err != nil {
					return fmt.Errorf("failed to read photo: %w", err)
				}
				in.Photo = data
			}

			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := a.service.AddFinding(cmd.Context(), in)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added finding %d to %s\n", f.ID, f.Project)
			return err
		},
	}

	cmd.Flags().StringVar(&in.Project, "project", "", "project name (default project when blank)")
	cmd.Flags().StringVar(&in.Category, "category", "building", "category: building or equipment")
	cmd.Flags().StringVar(&in.Location, "location", "", "where the issue was found (required)")
	cmd.Flags().StringVar(&in.Description, "description", "", "what is wrong (required)")
	cmd.Flags().StringVar(&in.Remark, "remark", "", "optional remark, e.g. who fixes it")
	cmd.Flags().StringVar(&photoPath, "photo", "", "photo file to attach")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		project string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List a project's findings, newest first",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			findings, err := a.service.ListFindings(cmd.Context(), project)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(findings)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tCATEGORY\tLOCATION\tDESCRIPTION\tREMARK\tPHOTO")
			for _, f := range findings {
				photo := "-"
				if f.HasPhoto() {
					photo = "yes"
				}
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					f.ID, f.Category.Short(), f.Location, f.Description, f.Remark, photo)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project name (default project when blank)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print findings as JSON")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Short:   "Delete findings by id",
		Aliases: []string{"rm"},
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid finding id %q", arg)
				}
				ids = append(ids, id)
			}

			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range ids {
				if err := a.service.DeleteFinding(cmd.Context(), id); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d finding(s)\n", len(ids))
			return err
		},
	}
}

func newProjectsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects, most recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			projects, err := a.service.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range projects {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
