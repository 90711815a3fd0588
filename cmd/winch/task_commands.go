package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"winch/internal/api"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view api.TaskView
			if err := ctx.doJSON(http.MethodGet, "/api/v1/tasks/"+url.PathEscape(args[0]), nil, &view); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task:        %s\n", view.ID)
			fmt.Fprintf(out, "Video:       %s (%s)\n", view.VideoID, view.VideoURL)
			fmt.Fprintf(out, "Status:      %s\n", view.Status)
			fmt.Fprintf(out, "Wants:       %s\n", wantsLabel(view.WantsAudio, view.WantsTranscript))
			fmt.Fprintf(out, "Retries:     %d\n", view.RetryCount)
			if view.Position > 0 {
				fmt.Fprintf(out, "Position:    %d (est. wait %ds)\n", view.Position, view.EstimatedWait)
			}
			if view.Status == "completed" {
				fmt.Fprintf(out, "Transcript:  %s\n", yesNo(view.HasTranscript))
				fmt.Fprintf(out, "Fallback:    %s\n", yesNo(view.AudioFallback))
			}
			if view.Error != nil {
				fmt.Fprintf(out, "Error:       %s: %s\n", view.Error.Kind, view.Error.Message)
			}
			if view.CallbackStatus != "" {
				fmt.Fprintf(out, "Callback:    %s after %d attempt(s)\n", view.CallbackStatus, view.CallbackAttempts)
			}
			if view.CreatedAt != "" {
				fmt.Fprintf(out, "Created:     %s\n", view.CreatedAt)
			}
			if view.CompletedAt != "" {
				fmt.Fprintf(out, "Completed:   %s\n", view.CompletedAt)
			}
			for _, file := range view.Files {
				fmt.Fprintf(out, "File:        %s %s (%d bytes, expires %s)\n", file.Type, file.ID, file.Size, file.ExpiresAt)
			}
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
				query.Set("status", trimmed)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				query.Set("offset", strconv.Itoa(offset))
			}
			path := "/api/v1/tasks"
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}

			var list api.TaskListResponse
			if err := ctx.doJSON(http.MethodGet, path, nil, &list); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list.Tasks) == 0 {
				fmt.Fprintln(out, "No tasks")
				return nil
			}

			rows := make([][]string, 0, len(list.Tasks))
			for _, task := range list.Tasks {
				rows = append(rows, []string{
					task.ID,
					task.VideoID,
					task.Status,
					wantsLabel(task.WantsAudio, task.WantsTranscript),
					strconv.Itoa(task.RetryCount),
					task.CreatedAt,
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"ID", "VIDEO", "STATUS", "WANTS", "RETRIES", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d of %d task(s)\n", len(list.Tasks), list.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (pending, downloading, completed, failed, cancelled)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tasks to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of tasks to skip")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view api.TaskView
			if err := ctx.doJSON(http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(args[0]), nil, &view); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled task %s\n", view.ID)
			return nil
		},
	}
}

func wantsLabel(audio, transcript bool) string {
	switch {
	case audio && transcript:
		return "audio+transcript"
	case audio:
		return "audio"
	case transcript:
		return "transcript"
	default:
		return "none"
	}
}
