package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// LiveQueryAction represents the type of change in a live query update.
type LiveQueryAction string

const (
	ActionCreate LiveQueryAction = "CREATE"
	ActionUpdate LiveQueryAction = "UPDATE"
	ActionDelete LiveQueryAction = "DELETE"
)

// LiveQueryHandler is called when live query data changes.
type LiveQueryHandler func(ctx context.Context, action LiveQueryAction, data interface{})

// LiveQueryFilter defines optional filtering for live queries.
type LiveQueryFilter struct {
	Where  string                 // SurrealQL WHERE clause
	Params map[string]interface{} // Query parameters
	Fields []string               // Specific fields to watch (optional)
}

// Subscription represents an active live query subscription.
type Subscription struct {
	ID     string
	Table  string
	Active bool
}

// LiveQueryService provides real-time data subscriptions via SurrealDB Live Queries.
type LiveQueryService interface {
	// Subscribe to a table with optional WHERE clause.
	Subscribe(ctx context.Context, table string, filter *LiveQueryFilter, handler LiveQueryHandler) (*Subscription, error)

	// Unsubscribe from updates.
	Unsubscribe(subID string) error
}

// SurrealLiveQueryService implements LiveQueryService using SurrealDB.
type SurrealLiveQueryService struct {
	db DBConnection

	subscriptions sync.Map // map[string]*subscriptionState
}

type subscriptionState struct {
	id          string
	table       string
	handler     LiveQueryHandler
	active      bool
	cancel      context.CancelFunc
	query       string
	params      map[string]interface{}
	liveQueryID string // SurrealDB live query ID
}

// NewSurrealLiveQueryService creates a new live query service.
func NewSurrealLiveQueryService(db DBConnection) *SurrealLiveQueryService {
	return &SurrealLiveQueryService{
		db: db,
	}
}

// Subscribe creates a live query subscription for a table.
func (s *SurrealLiveQueryService) Subscribe(ctx context.Context, table string, filter *LiveQueryFilter, handler LiveQueryHandler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	fieldList := "*"
	if filter != nil && len(filter.Fields) > 0 {
		fieldList = strings.Join(filter.Fields, ", ")
	}

	query := fmt.Sprintf("LIVE SELECT %s FROM %s", fieldList, table)
	if filter != nil && filter.Where != "" {
		query = fmt.Sprintf("%s WHERE %s", query, filter.Where)
	}

	var params map[string]interface{}
	if filter != nil && filter.Params != nil {
		params = filter.Params
	} else {
		params = make(map[string]interface{})
	}

	return s.subscribeQuery(ctx, table, query, params, handler)
}

func (s *SurrealLiveQueryService) subscribeQuery(ctx context.Context, table, query string, params map[string]interface{}, handler LiveQueryHandler) (*Subscription, error) {
	subID := uuid.New().String()

	subCtx, cancel := context.WithCancel(context.Background())
	state := &subscriptionState{
		id:      subID,
		table:   table,
		handler: handler,
		active:  true,
		cancel:  cancel,
		query:   query,
		params:  params,
	}

	s.subscriptions.Store(subID, state)

	err := s.db.WithConnection(ctx, func(dbConn *surrealdb.DB) error {
		slog.Debug("Creating live query subscription", "subID", subID, "table", table)

		// Execute the LIVE SELECT query to get the live query UUID.
		results, err := surrealdb.Query[interface{}](ctx, dbConn, query, params)
		if err != nil {
			return fmt.Errorf("failed to execute live query: %w", err)
		}

		if results == nil || len(*results) == 0 {
			return fmt.Errorf("live query returned no results")
		}

		result := (*results)[0]
		if result.Status != "OK" {
			return fmt.Errorf("live query failed with status: %s", result.Status)
		}
		if result.Result == nil {
			return fmt.Errorf("live query returned nil result")
		}

		// The result carries the live query UUID; its concrete type varies
		// by driver version.
		switch v := result.Result.(type) {
		case string:
			state.liveQueryID = v
		case models.UUID:
			state.liveQueryID = v.String()
		case map[string]interface{}:
			if id, ok := v["id"].(string); ok {
				state.liveQueryID = id
			} else if id, ok := v["id"].(models.UUID); ok {
				state.liveQueryID = id.String()
			} else {
				return fmt.Errorf("live query result map does not contain 'id' field: %+v", v)
			}
		default:
			return fmt.Errorf("unexpected live query result type: %T", result.Result)
		}

		if state.liveQueryID == "" {
			return fmt.Errorf("live query returned empty UUID")
		}

		slog.Info("Live query established", "subID", subID, "liveQueryID", state.liveQueryID)

		notificationChan, err := dbConn.LiveNotifications(state.liveQueryID)
		if err != nil {
			return fmt.Errorf("failed to get notification channel: %w", err)
		}

		go s.listenForNotifications(subCtx, state, notificationChan)

		// Cleanup when the subscription is cancelled.
		go func() {
			<-subCtx.Done()
			if state.liveQueryID == "" {
				return
			}
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cleanupCancel()

			if err := dbConn.CloseLiveNotifications(state.liveQueryID); err != nil {
				slog.Warn("Failed to close live notifications", "error", err, "liveQueryID", state.liveQueryID)
			}

			killParams := map[string]interface{}{
				"liveQueryID": state.liveQueryID,
			}
			if _, err := surrealdb.Query[interface{}](cleanupCtx, dbConn, "KILL $liveQueryID", killParams); err != nil {
				slog.Warn("Failed to kill live query", "error", err, "liveQueryID", state.liveQueryID)
			}
		}()

		return nil
	})

	if err != nil {
		cancel()
		s.subscriptions.Delete(subID)
		return nil, fmt.Errorf("failed to start live query: %w", err)
	}

	return &Subscription{
		ID:     subID,
		Table:  table,
		Active: true,
	}, nil
}

// Unsubscribe removes a live query subscription. Unsubscribing twice is a no-op.
func (s *SurrealLiveQueryService) Unsubscribe(subID string) error {
	if state, ok := s.subscriptions.Load(subID); ok {
		subState := state.(*subscriptionState)
		subState.cancel()

		s.subscriptions.Delete(subID)
		slog.Info("Live query subscription removed", "subID", subID)
	}
	return nil
}

// listenForNotifications listens for live query notifications from SurrealDB.
func (s *SurrealLiveQueryService) listenForNotifications(ctx context.Context, state *subscriptionState, notificationChan <-chan connection.Notification) {
	defer func() {
		state.active = false
		s.subscriptions.Delete(state.id)
	}()

	slog.Debug("Live query listener started", "subID", state.id, "liveQueryID", state.liveQueryID)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Live query listener context cancelled", "subID", state.id)
			return

		case notification, ok := <-notificationChan:
			if !ok {
				slog.Debug("Live query notification channel closed", "subID", state.id)
				return
			}

			var action LiveQueryAction
			switch notification.Action {
			case connection.CreateAction:
				action = ActionCreate
			case connection.UpdateAction:
				action = ActionUpdate
			case connection.DeleteAction:
				action = ActionDelete
			default:
				slog.Warn("Unknown notification action", "subID", state.id, "action", notification.Action)
				continue
			}

			// Execute the handler in a goroutine to avoid blocking the
			// notification listener. A panicking handler must not take the
			// subscription down with it.
			go func() {
				defer func() {
					if r := recover(); r != nil {
						slog.Error("Panic in live query handler", "subID", state.id, "panic", r)
					}
				}()

				state.handler(ctx, action, notification.Result)
			}()
		}
	}
}
