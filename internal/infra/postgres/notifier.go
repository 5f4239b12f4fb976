package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-analytics/internal/domain"
)

// ChangeChannel is the LISTEN/NOTIFY channel the table triggers publish on.
const ChangeChannel = "quiz_analytics_changes"

// Notifier publishes with pg_notify and listens on a dedicated connection, so
// writes from any client of the database reach the service.
type Notifier struct {
	pool *pgxpool.Pool
}

func NewNotifier(pool *pgxpool.Pool) *Notifier {
	return &Notifier{pool: pool}
}

func (n *Notifier) Publish(ctx context.Context, event domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if _, err := n.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, ChangeChannel, string(payload)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Subscribe opens a connection outside the pool because a LISTEN session must
// not be handed back to other callers.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, func(), error) {
	conn, err := pgx.ConnectConfig(ctx, n.pool.Config().ConnConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, nil, fmt.Errorf("listen: %w", err)
	}

	listenCtx, stop := context.WithCancel(ctx)
	out := make(chan domain.ChangeEvent, 64)
	go func() {
		defer close(out)
		defer conn.Close(context.Background())
		for {
			notification, err := conn.WaitForNotification(listenCtx)
			if err != nil {
				// cancelled, or the connection is gone; the closed channel tells Run
				return
			}
			var event domain.ChangeEvent
			if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
				continue
			}
			select {
			case out <- event:
			case <-listenCtx.Done():
				return
			}
		}
	}()
	return out, stop, nil
}
