package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-guardian-notification-service/pkg/notify"
)

// NewProcessor creates the logic that runs one queued bulk job through the
// same resolve -> token lookup -> dispatch sequence as the HTTP function.
//
// Returned errors are retryable (the message is redelivered); domain
// no-ops like an empty audience ack the message and move on.
func NewProcessor(
	resolver notify.Resolver,
	tokenStore notify.TokenStore,
	credentials notify.AccessTokenSource,
	dispatcher notify.Dispatcher,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[BulkJob] {

	return func(ctx context.Context, original messagepipeline.Message, job *BulkJob) error {
		procLogger := logger.With("pubsub_msg_id", original.ID)

		// Already validated by the transformer; a failure here means the
		// job mutated in flight, which cannot happen.
		aud, err := job.Audience()
		if err != nil {
			procLogger.Error("Job failed re-validation", "err", err)
			return err
		}

		recipients, err := resolver.Resolve(ctx, aud)
		if err != nil {
			procLogger.Error("Audience resolution failed", "err", err)
			return err // Retryable
		}
		if len(recipients) == 0 {
			procLogger.Info("No guardians matched the audience; dropping job.")
			return nil
		}

		tokensByUser, err := tokenStore.TokensForUsers(ctx, recipients)
		if err != nil {
			procLogger.Error("Token lookup failed", "err", err)
			return err // Retryable
		}
		var deviceTokens []string
		for _, userTokens := range tokensByUser {
			deviceTokens = append(deviceTokens, userTokens...)
		}
		if len(deviceTokens) == 0 {
			// Retrying cannot conjure a device registration; drop rather
			// than poison the subscription.
			procLogger.Error("Guardians matched but none has a registered device; dropping job.",
				"guardians", len(recipients))
			return nil
		}

		bearer, err := credentials.Token(ctx)
		if err != nil {
			procLogger.Error("Credential exchange failed", "err", err)
			return err // Retryable
		}

		result := dispatcher.Dispatch(ctx, deviceTokens, notify.Payload{Title: job.Titulo, Body: job.Mensaje}, bearer)
		procLogger.Info("Bulk job dispatched",
			"dispatch_id", result.DispatchID,
			"attempted", result.Attempted,
			"delivered", result.Delivered,
			"failed", result.Failed(),
		)
		return nil
	}
}
