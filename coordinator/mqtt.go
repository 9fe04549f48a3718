package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/absmach/fedagg/pkg/errors"
)

const updatesSuffix = "/updates"

func (svc *service) Subscribe(ctx context.Context) error {
	if svc.pubsub == nil {
		return nil
	}

	topic := svc.baseTopic + "/fl/experiments/+" + updatesSuffix
	if err := svc.pubsub.Subscribe(ctx, topic, svc.handleUpdate(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	return nil
}

func (svc *service) handleUpdate(ctx context.Context) func(topic string, msg map[string]any) error {
	prefix := svc.baseTopic + "/fl/experiments/"

	return func(topic string, msg map[string]any) error {
		experimentID, ok := strings.CutPrefix(topic, prefix)
		if !ok {
			return nil
		}
		experimentID, ok = strings.CutSuffix(experimentID, updatesSuffix)
		if !ok || experimentID == "" {
			return nil
		}

		update, err := updateFromMessage(msg)
		if err != nil {
			return err
		}

		status, err := svc.SubmitUpdate(ctx, experimentID, update)
		if err != nil {
			return err
		}

		svc.logger.InfoContext(ctx, "Received update over MQTT",
			slog.String("experiment_id", experimentID),
			slog.String("client_id", update.ClientID),
			slog.Int("num_updates", status.NumUpdates))

		return nil
	}
}

func updateFromMessage(msg map[string]any) (Update, error) {
	clientID, ok := msg["client_id"].(string)
	if !ok || clientID == "" {
		return Update{}, fmt.Errorf("%w: invalid client_id", errors.ErrInvalidData)
	}

	update := Update{
		ClientID: clientID,
		Value:    msg["value"],
	}
	if n, ok := msg["num_samples"].(float64); ok {
		update.NumSamples = int(n)
	}
	if metrics, ok := msg["metrics"].(map[string]any); ok {
		update.Metrics = metrics
	}

	return update, nil
}
