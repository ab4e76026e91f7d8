package event

import (
	"context"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/event"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SubscriptionService manages the live subscription registry: static
// subscriptions registered in code at startup and dynamic ones persisted
// across restarts with their handlers re-attached by name.
type SubscriptionService struct {
	registry *Registry
	handlers *HandlerRegistry
	store    event.SubscriptionRepository
	logger   *zap.Logger
}

// NewSubscriptionService creates a subscription service.
func NewSubscriptionService(
	registry *Registry,
	handlers *HandlerRegistry,
	store event.SubscriptionRepository,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		registry: registry,
		handlers: handlers,
		store:    store,
		logger:   logger,
	}
}

// RegisterStatic registers a code-defined subscription without persisting
// it. Its handler is also added to the handler registry so persisted
// subscriptions can reference it.
func (s *SubscriptionService) RegisterStatic(sub *event.Subscription) error {
	if err := s.handlers.Register(sub.Handler); err != nil {
		return err
	}
	return s.registry.Add(sub)
}

// Subscribe validates, persists, and activates a dynamic subscription.
// The handler must already be registered by name.
func (s *SubscriptionService) Subscribe(ctx context.Context, sub *event.Subscription, handlerName string) error {
	handler, ok := s.handlers.Lookup(handlerName)
	if !ok {
		return shared.NewDomainError("UNKNOWN_HANDLER", "No handler registered under that name")
	}
	sub.Handler = handler

	if err := sub.Validate(); err != nil {
		return shared.NewDomainError("INVALID_SUBSCRIPTION", err.Error())
	}
	if err := s.store.Save(ctx, sub); err != nil {
		s.logger.Error("failed to persist subscription", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to save subscription")
	}
	if err := s.registry.Add(sub); err != nil {
		return err
	}

	s.logger.Info("subscription registered",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("name", sub.Name),
		zap.String("handler", handlerName),
	)
	return nil
}

// Unsubscribe deactivates and deletes a dynamic subscription.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, id uuid.UUID) error {
	if !s.registry.Remove(id) {
		return shared.NewDomainError("SUBSCRIPTION_NOT_FOUND", "Subscription not found")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete subscription", zap.Error(err), zap.String("subscription_id", id.String()))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to delete subscription")
	}
	return nil
}

// LoadPersisted re-attaches stored subscriptions to their handlers at
// startup. Subscriptions whose handler no longer exists are skipped with a
// warning rather than failing boot.
func (s *SubscriptionService) LoadPersisted(ctx context.Context) error {
	stored, err := s.store.ListEnabled(ctx)
	if err != nil {
		return err
	}

	loaded := 0
	for i := range stored {
		handler, ok := s.handlers.Lookup(stored[i].HandlerName)
		if !ok {
			s.logger.Warn("skipping subscription with unknown handler",
				zap.String("subscription_id", stored[i].ID.String()),
				zap.String("handler", stored[i].HandlerName),
			)
			continue
		}
		sub := stored[i].Subscription
		sub.Handler = handler
		if err := s.registry.Add(&sub); err != nil {
			s.logger.Warn("skipping invalid persisted subscription",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
			continue
		}
		loaded++
	}

	s.logger.Info("persisted subscriptions loaded", zap.Int("count", loaded))
	return nil
}
