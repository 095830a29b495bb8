package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"spate/internal/wire"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "events [name...]",
		Short: "Stream daemon events until interrupted",
		Long:  "Subscribes to the named events (all job and label events when none are given) and prints each one as it arrives.",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = []string{"job.added", "job.removed", "job.status", "label.changed"}
			}

			events := make(chan *wire.Event, 64)
			conn, err := ctx.connect(cmd.Context(), func(ev *wire.Event) {
				select {
				case events <- ev:
				default:
				}
			})
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := conn.Subscribe(cmd.Context(), names...); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case ev := <-events:
					payload, err := json.Marshal(ev.Payload)
					if err != nil {
						payload = []byte(fmt.Sprintf("%v", ev.Payload))
					}
					fmt.Fprintf(out, "%s %s %s\n", ev.Timestamp.Format("15:04:05"), ev.Name, payload)
				}
			}
		},
	}
}
