package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"p9e.in/farmops/pkg/metrics"
)

// ConnectionDirectory maps principals to the live connections this process
// holds for them. A principal with at least one local connection has a
// broker subscription on its topic; events published there by any process
// reach every local connection once.
type ConnectionDirectory struct {
	broker Broker
	prefix string
	log    *zap.Logger

	mu         sync.RWMutex
	principals map[uuid.UUID]*principalConns
}

type principalConns struct {
	conns       map[string]Conn
	unsubscribe func()

	// pending is non-nil while the topic subscription is being set up or
	// torn down; it is closed when that finishes.
	pending chan struct{}
}

func NewConnectionDirectory(broker Broker, topicPrefix string, log *zap.Logger) *ConnectionDirectory {
	return &ConnectionDirectory{
		broker:     broker,
		prefix:     topicPrefix,
		log:        log.Named("directory"),
		principals: make(map[uuid.UUID]*principalConns),
	}
}

// Topic is the broker topic carrying events for principalID.
func (d *ConnectionDirectory) Topic(principalID uuid.UUID) string {
	return fmt.Sprintf("%s/principals/%s", d.prefix, principalID)
}

// Register adds conn under principalID. The first connection of a
// principal subscribes its topic. The broker call runs outside the
// directory lock; only registrations for the same principal wait on it.
func (d *ConnectionDirectory) Register(principalID uuid.UUID, conn Conn) error {
	for {
		d.mu.Lock()
		entry, ok := d.principals[principalID]
		if ok && entry.pending != nil {
			pending := entry.pending
			d.mu.Unlock()
			<-pending
			continue
		}
		if ok {
			d.add(principalID, entry, conn)
			d.mu.Unlock()
			return nil
		}

		entry = &principalConns{conns: make(map[string]Conn), pending: make(chan struct{})}
		d.principals[principalID] = entry
		d.mu.Unlock()

		unsubscribe, err := d.broker.Subscribe(d.Topic(principalID), func(_ string, payload []byte) {
			d.dispatch(principalID, payload)
		})

		d.mu.Lock()
		close(entry.pending)
		entry.pending = nil
		if err != nil {
			delete(d.principals, principalID)
			d.mu.Unlock()
			return fmt.Errorf("register connection: %w", err)
		}
		entry.unsubscribe = unsubscribe
		d.add(principalID, entry, conn)
		d.mu.Unlock()
		return nil
	}
}

// add stores conn in entry. d.mu must be held.
func (d *ConnectionDirectory) add(principalID uuid.UUID, entry *principalConns, conn Conn) {
	if _, dup := entry.conns[conn.ID()]; !dup {
		entry.conns[conn.ID()] = conn
		metrics.LiveConnections.Inc()
	}
	d.log.Debug("connection registered",
		zap.String("principal", principalID.String()),
		zap.String("conn", conn.ID()),
		zap.Int("principal_conns", len(entry.conns)))
}

// Deregister removes a connection. Removing the last connection of a
// principal drops the topic subscription. Unknown ids are ignored.
func (d *ConnectionDirectory) Deregister(principalID uuid.UUID, connID string) {
	d.mu.Lock()
	entry, ok := d.principals[principalID]
	if !ok {
		d.mu.Unlock()
		return
	}
	if _, ok := entry.conns[connID]; !ok {
		d.mu.Unlock()
		return
	}
	delete(entry.conns, connID)
	metrics.LiveConnections.Dec()

	if len(entry.conns) > 0 {
		d.mu.Unlock()
		d.logDeregistered(principalID, connID)
		return
	}

	// The entry stays in the map as pending until the broker call returns,
	// so a new registration for the principal subscribes after it.
	entry.pending = make(chan struct{})
	d.mu.Unlock()

	entry.unsubscribe()

	d.mu.Lock()
	delete(d.principals, principalID)
	close(entry.pending)
	entry.pending = nil
	d.mu.Unlock()

	d.logDeregistered(principalID, connID)
}

func (d *ConnectionDirectory) logDeregistered(principalID uuid.UUID, connID string) {
	d.log.Debug("connection deregistered",
		zap.String("principal", principalID.String()),
		zap.String("conn", connID))
}

// Connections returns the number of local connections of principalID.
func (d *ConnectionDirectory) Connections(principalID uuid.UUID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if entry, ok := d.principals[principalID]; ok {
		return len(entry.conns)
	}
	return 0
}

// Deliver publishes ev to every principal in ids. Delivery is
// fire-and-forget: broker failures are logged and counted, never returned.
func (d *ConnectionDirectory) Deliver(ctx context.Context, ids []uuid.UUID, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("failed to encode event", zap.String("event", ev.Name), zap.Error(err))
		return
	}

	for _, id := range ids {
		if err := d.broker.Publish(ctx, d.Topic(id), payload); err != nil {
			metrics.BrokerPublishErrors.Inc()
			d.log.Warn("failed to publish event",
				zap.String("principal", id.String()),
				zap.String("event", ev.Name),
				zap.Error(err))
		}
	}
}

// dispatch writes a broker message to every local connection of the
// principal. Connections that fail to accept it are dropped.
func (d *ConnectionDirectory) dispatch(principalID uuid.UUID, payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		d.log.Warn("discarding malformed event", zap.String("principal", principalID.String()), zap.Error(err))
		return
	}

	d.mu.RLock()
	entry, ok := d.principals[principalID]
	if !ok {
		d.mu.RUnlock()
		return
	}
	conns := make([]Conn, 0, len(entry.conns))
	for _, c := range entry.conns {
		conns = append(conns, c)
	}
	d.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(ev); err != nil {
			d.log.Info("dropping connection after failed send",
				zap.String("principal", principalID.String()),
				zap.String("conn", c.ID()),
				zap.Error(err))
			d.Deregister(principalID, c.ID())
		}
	}
}
