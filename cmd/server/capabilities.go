package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warevault/rules/rules"
)

// Action types understood by this deployment. The set is open: downstream
// systems extend it by registering more handlers, the engine never changes.
const (
	actionSetPriority      = "SET_PRIORITY"
	actionAssignZone       = "ASSIGN_ZONE"
	actionHoldOrder        = "HOLD_ORDER"
	actionReleaseOrder     = "RELEASE_ORDER"
	actionSendNotification = "SEND_NOTIFICATION"
	actionFlagForReview    = "FLAG_FOR_REVIEW"
)

// warehouseCapabilities builds the capability registry for the warehouse
// domain. These reference handlers validate their parameters and emit the
// resulting command as a structured log line; a real deployment swaps in
// handlers that call the WMS services.
func warehouseCapabilities(log *slog.Logger) *rules.Registry {
	reg := rules.NewRegistry()

	reg.Register(actionSetPriority, func(ctx context.Context, params map[string]rules.Value, entity rules.Entity) error {
		value, ok := params["value"]
		if !ok {
			return fmt.Errorf("SET_PRIORITY requires a value parameter")
		}
		n, ok := value.AsNumber()
		if !ok {
			return fmt.Errorf("SET_PRIORITY value must be numeric, got %s", value.Kind())
		}
		log.InfoContext(ctx, "set priority", "entity_id", entity.ID(), "priority", n)
		return nil
	})

	reg.Register(actionAssignZone, func(ctx context.Context, params map[string]rules.Value, entity rules.Entity) error {
		zone, ok := params["zone"]
		if !ok || zone.AsString() == "" {
			return fmt.Errorf("ASSIGN_ZONE requires a zone parameter")
		}
		log.InfoContext(ctx, "assign zone", "entity_id", entity.ID(), "zone", zone.AsString())
		return nil
	})

	reg.Register(actionHoldOrder, func(ctx context.Context, params map[string]rules.Value, entity rules.Entity) error {
		reason := params["reason"].AsString()
		log.InfoContext(ctx, "hold order", "entity_id", entity.ID(), "reason", reason)
		return nil
	})

	reg.Register(actionReleaseOrder, func(ctx context.Context, _ map[string]rules.Value, entity rules.Entity) error {
		log.InfoContext(ctx, "release order", "entity_id", entity.ID())
		return nil
	})

	reg.Register(actionSendNotification, func(ctx context.Context, params map[string]rules.Value, entity rules.Entity) error {
		channel, ok := params["channel"]
		if !ok || channel.AsString() == "" {
			return fmt.Errorf("SEND_NOTIFICATION requires a channel parameter")
		}
		log.InfoContext(ctx, "send notification",
			"entity_id", entity.ID(),
			"channel", channel.AsString(),
			"message", params["message"].AsString())
		return nil
	})

	reg.Register(actionFlagForReview, func(ctx context.Context, params map[string]rules.Value, entity rules.Entity) error {
		log.InfoContext(ctx, "flag for review",
			"entity_id", entity.ID(), "note", params["note"].AsString())
		return nil
	})

	return reg
}
