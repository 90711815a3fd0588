package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"winch/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var wantsAudio bool
	var wantsTranscript bool
	var callbackURL string
	var callbackSecret string

	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Submit a video extraction request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.SubmitRequest{
				URL:             args[0],
				WantsAudio:      wantsAudio,
				WantsTranscript: wantsTranscript,
				CallbackURL:     callbackURL,
				CallbackSecret:  callbackSecret,
			}

			var receipt api.SubmitReceipt
			if err := ctx.doJSON(http.MethodPost, "/api/v1/tasks", req, &receipt); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if receipt.CacheHit {
				fmt.Fprintln(out, "Request satisfied from cache; no task enqueued")
				for _, file := range receipt.Files {
					fmt.Fprintf(out, "  %s: %s (%d bytes)\n", file.Type, file.ID, file.Size)
				}
				return nil
			}

			if receipt.Deduplicated {
				fmt.Fprintf(out, "Matched in-flight task %s (%s)\n", receipt.TaskID, receipt.Status)
			} else {
				fmt.Fprintf(out, "Enqueued task %s (%s)\n", receipt.TaskID, receipt.Status)
			}
			if receipt.Position > 0 {
				fmt.Fprintf(out, "Queue position %d, estimated wait %ds\n", receipt.Position, receipt.EstimatedWait)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wantsAudio, "audio", false, "Request the audio track")
	cmd.Flags().BoolVar(&wantsTranscript, "transcript", false, "Request the transcript")
	cmd.Flags().StringVar(&callbackURL, "callback-url", "", "Webhook URL notified when the task finishes")
	cmd.Flags().StringVar(&callbackSecret, "callback-secret", "", "HMAC secret used to sign the webhook payload")
	return cmd
}
