package event

import (
	"fmt"
	"time"

	"github.com/astra-cc/orchestrator/pkg/logger"
	"go.uber.org/zap"
)

// LoggingMiddleware provides logging for all events
func LoggingMiddleware(next EventHandler) EventHandler {
	return func(event *SessionEvent) {
		start := time.Now()

		logger.Base().Info("Processing event", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID))
		defer func() {
			duration := time.Since(start)
			if event.IsError() {
				logger.Base().Error("Event handler failed", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Error(event.Error))
			} else {
				logger.Base().Info("Event handler completed", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Duration("duration", duration))
			}
		}()

		next(event)
	}
}

// MetricsMiddleware provides metrics collection for events
func MetricsMiddleware(next EventHandler) EventHandler {
	return func(event *SessionEvent) {
		start := time.Now()

		defer func() {
			duration := time.Since(start)

			logger.Base().Info("Event metrics", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Duration("duration", duration))
			if r := recover(); r != nil {
				logger.Base().Error("Event handler panic", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Any("panic", r))
				panic(r) // Re-panic to maintain the panic behavior
			}
		}()

		next(event)
	}
}

// RecoveryMiddleware provides panic recovery for event handlers
func RecoveryMiddleware(next EventHandler) EventHandler {
	return func(event *SessionEvent) {
		defer func() {
			if r := recover(); r != nil {
				logger.Base().Error("Panic in event handler", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Any("panic", r))
				errorEvent := NewSessionEvent(HandlerPanic, event.CallID).
					WithError(fmt.Errorf("handler panic: %v", r)).
					WithData(map[string]interface{}{
						"original_event_type": event.Type,
						"panic_value":         r,
					})
				logger.Base().Error("Error event for panic built, not published", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID))
				_ = errorEvent // not published: this middleware has no bus, and nothing subscribes to HandlerPanic
			}
		}()

		next(event)
	}
}

// TimeoutMiddleware provides timeout functionality for event handlers
func TimeoutMiddleware(timeout time.Duration) EventMiddleware {
	return func(next EventHandler) EventHandler {
		return func(event *SessionEvent) {
			done := make(chan struct{})

			go func() {
				defer close(done)
				next(event)
			}()

			select {
			case <-done:
			case <-time.After(timeout):
				logger.Base().Info("Event handler timeout", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Duration("timeout", timeout))
			}
		}
	}
}

// ValidationMiddleware validates events before processing
func ValidationMiddleware(next EventHandler) EventHandler {
	return func(event *SessionEvent) {
		if event == nil {
			logger.Base().Error("Received nil event")
			return
		}

		if event.Type == "" {
			logger.Base().Error("Event type is empty", zap.String("call_id", event.CallID))
			return
		}

		if event.CallID == "" {
			logger.Base().Error("Call ID is empty", zap.String("type", string(event.Type)))
			return
		}

		if err := validateEventData(event); err != nil {
			logger.Base().Error("Invalid event data", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Error(err))
			return
		}

		next(event)
	}
}

// RateLimitMiddleware provides rate limiting for events
func RateLimitMiddleware(maxEventsPerSecond int) EventMiddleware {
	ticker := time.NewTicker(time.Second / time.Duration(maxEventsPerSecond))

	return func(next EventHandler) EventHandler {
		return func(event *SessionEvent) {
			select {
			case <-ticker.C:
				next(event)
			default:
				logger.Base().Info("Event dropped due to rate limiting", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID))
			}
		}
	}
}

// DeduplicationMiddleware prevents duplicate events within a time window
func DeduplicationMiddleware(windowSize time.Duration) EventMiddleware {
	eventCache := make(map[string]time.Time)

	return func(next EventHandler) EventHandler {
		return func(event *SessionEvent) {
			key := fmt.Sprintf("%s:%s", event.Type, event.CallID)

			if lastSeen, exists := eventCache[key]; exists {
				if time.Since(lastSeen) < windowSize {
					logger.Base().Info("Duplicate event within window", zap.String("type", string(event.Type)), zap.String("call_id", event.CallID), zap.Duration("window_size", windowSize))
					return
				}
			}

			eventCache[key] = time.Now()

			go func() {
				time.Sleep(windowSize * 2)
				if lastSeen, exists := eventCache[key]; exists && time.Since(lastSeen) > windowSize {
					delete(eventCache, key)
				}
			}()

			next(event)
		}
	}
}

// validateEventData validates event-specific data for the events that carry
// a required payload shape.
func validateEventData(event *SessionEvent) error {
	switch event.Type {
	case TurnUserStarted, TurnUserCompleted, TurnAssistantStarted, TurnAssistantEnded, TurnInterrupted:
		if data, ok := event.GetTurnData(); ok {
			if data.TurnID == "" {
				return fmt.Errorf("turn ID is required for %s", event.Type)
			}
		} else {
			return fmt.Errorf("turn data is required for %s", event.Type)
		}

	case SentimentAlertRaised:
		if data, ok := event.GetSentimentAlertData(); ok {
			if data.Label == "" {
				return fmt.Errorf("sentiment label is required for %s", event.Type)
			}
		} else {
			return fmt.Errorf("sentiment alert data is required for %s", event.Type)
		}
	}

	return nil
}

// CreateDefaultMiddlewareChain creates a default middleware chain with common middleware
func CreateDefaultMiddlewareChain() []EventMiddleware {
	return []EventMiddleware{
		RecoveryMiddleware,
		ValidationMiddleware,
		LoggingMiddleware,
		MetricsMiddleware,
		DeduplicationMiddleware(5 * time.Second),
	}
}

// CreateProductionMiddlewareChain creates a production-ready middleware chain
func CreateProductionMiddlewareChain() []EventMiddleware {
	return []EventMiddleware{
		RecoveryMiddleware,
		ValidationMiddleware,
		TimeoutMiddleware(30 * time.Second),
		RateLimitMiddleware(100),
		DeduplicationMiddleware(5 * time.Second),
		MetricsMiddleware,
		LoggingMiddleware,
	}
}
