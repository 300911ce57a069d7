package ports

import (
	"context"
	"strconv"
	"time"
)

// Topic helpers. One convention, used by publishers and subscribers.
const (
	TopicCommandPrefix      = "cmd:"
	TopicLocationUpdatesAll = "location_updates:all"
)

func CommandTopic(stationID string) string           { return TopicCommandPrefix + stationID }
func LocationUpdatesTopic(locationID string) string  { return "location_updates:" + locationID }
func LocationStationsTopic(locationID string) string { return "location_stations:" + locationID }
func StationUpdatesTopic(stationID string) string    { return "station_updates:" + stationID }
func ConnectorUpdatesTopic(stationID string, connector int) string {
	return "connector_updates:" + stationID + ":" + strconv.Itoa(connector)
}
func ClientSessionsTopic(clientID string) string   { return "client_sessions:" + clientID }
func StationSessionsTopic(stationID string) string { return "station_sessions:" + stationID }

// PendingSessionKey indexes a just-created session by its target
// connector so the actor can bind the station's StartTransaction.
func PendingSessionKey(stationID string, connector int) string {
	return "pending:" + stationID + ":" + strconv.Itoa(connector)
}

const (
	// OnlineTTL is how long a station stays "online" without a
	// Heartbeat refreshing its presence key.
	OnlineTTL = 300 * time.Second

	// SubscriptionTimeout bounds WaitForSubscription; a publisher
	// proceeds after it even if the actor never subscribed.
	SubscriptionTimeout = 5 * time.Second
)

// Bus is the topic-keyed pub/sub plus the volatile TTL key/value store
// bridging HTTP workers and the per-station OCPP actors.
type Bus interface {
	// Publish is fire-and-forget; delivery ordering holds per topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe yields payloads until ctx is cancelled. The returned
	// cancel func releases the subscription.
	Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error)

	// WaitForSubscription blocks until the topic has at least one
	// subscriber or the timeout elapses. Returns true when subscribed.
	WaitForSubscription(ctx context.Context, topic string, timeout time.Duration) bool

	// Station presence: TTL key per station.
	SetOnline(ctx context.Context, stationID string, ttl time.Duration) error
	RefreshOnline(ctx context.Context, stationID string, ttl time.Duration) error
	SetOffline(ctx context.Context, stationID string) error
	IsOnline(ctx context.Context, stationID string) (bool, error)
	ListOnline(ctx context.Context) ([]string, error)

	// Plain KV with TTL, shared with the synchronous OCPP reply path.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error

	Close() error
}
