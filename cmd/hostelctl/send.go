package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	hostel "github.com/TpaBKa251/Hostel-Internal-Library"
	"github.com/TpaBKa251/Hostel-Internal-Library/callctx"
	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/reliability"
	"github.com/TpaBKa251/Hostel-Internal-Library/serialization"
)

func newSendCommand(a *app) *cobra.Command {
	var (
		userID    string
		roles     []string
		messageID string
		wait      bool
		retries   uint
	)

	cmd := &cobra.Command{
		Use:   "send <type-tag> <json-payload>",
		Short: "Send a message through the transport configured for a type tag",
		Long: `Send publishes the JSON payload once to the transport whose sender name matches
the type tag. With --wait it sends a request and prints the reply.`,
		Example: `  hostelctl send BOOK '{"roomId": 12}'
  hostelctl send GET_BOOKING '{"id": "b-1"}' --wait --user 8f14e45f-ea3e-4c1b-9a4e-0b8b5a0b0e6d --role ADMIN`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := serialization.NewJSONCodec()

			var payload any
			if err := codec.Decode([]byte(args[1]), &payload); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}

			fields := callctx.Fields{Roles: roles}
			if userID != "" {
				id, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
				fields.ActorID = id
			}
			if messageID == "" {
				messageID = uuid.NewString()
			}

			client, err := hostel.NewClientFromFile(cmd.Context(), a.configPath, hostel.WithLogger(a.logger))
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			ctx, _, release := callctx.Begin(cmd.Context(), fields)
			defer release()

			policy := reliability.DefaultPolicy()
			policy.MaxAttempts = retries + 1
			policy.Logger = a.logger

			tag := contracts.MessageType(strings.TrimSpace(args[0]))
			if !wait {
				err := reliability.Retry(ctx, policy, func(ctx context.Context) error {
					return client.Send(ctx, tag, messageID, payload)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %s with message id %s\n", tag, messageID)
				return nil
			}

			var reply any
			err = reliability.Retry(ctx, policy, func(ctx context.Context) error {
				return client.SendAndReceive(ctx, tag, messageID, payload, &reply)
			})
			if err != nil {
				return err
			}
			body, err := codec.Encode(reply)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Actor id sent in the X-User-Id header")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Actor role sent in the X-User-Roles header (repeatable)")
	cmd.Flags().StringVar(&messageID, "message-id", "", "Message id (defaults to a random UUID)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for a reply")
	cmd.Flags().UintVar(&retries, "retries", 0, "Retries when the broker is unavailable")
	return cmd
}
