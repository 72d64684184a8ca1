// Package metrics exposes prometheus collectors fed from the event bus, the
// lock layer, the command dispatcher and the HTTP router.
package metrics

import (
	"context"
	"strconv"
	"strings"
	"time"

	"rpworld/backend/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModerationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpworld_moderation_actions_total",
			Help: "Moderation actions and report transitions.",
		},
		[]string{"action"},
	)

	AssetTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpworld_asset_transitions_total",
			Help: "Ownership and key transitions per asset class.",
		},
		[]string{"class", "transition"},
	)

	FactionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpworld_faction_events_total",
			Help: "Faction membership, rank and war changes.",
		},
		[]string{"event"},
	)

	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpworld_commands_total",
			Help: "Player commands by verb and outcome.",
		},
		[]string{"verb", "outcome"},
	)

	LockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpworld_lock_wait_seconds",
			Help:    "Time spent waiting for entity locks.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"entity"},
	)

	RuntimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpworld_runtime_connections",
			Help: "Connected game-hosting runtimes.",
		},
	)

	ActorsOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpworld_actors_online",
			Help: "Actors logged in through this process.",
		},
	)

	SalaryPayouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rpworld_salary_payouts_total",
			Help: "Salaries paid by the payroll sweep.",
		},
	)

	SalaryAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rpworld_salary_amount_total",
			Help: "Money paid out as salaries.",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpworld_http_requests_total",
			Help: "HTTP requests.",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpworld_http_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

var moderationTopics = map[string]string{
	events.TopicKick:           "kick",
	events.TopicBan:            "ban",
	events.TopicUnban:          "unban",
	events.TopicMute:           "mute",
	events.TopicUnmute:         "unmute",
	events.TopicWarn:           "warn",
	events.TopicReportCreated:  "report_created",
	events.TopicReportAccepted: "report_accepted",
	events.TopicReportClosed:   "report_closed",
	events.TopicAdminLevel:     "admin_level",
}

var assetTopics = map[string]string{
	events.TopicAssetPurchased: "purchased",
	events.TopicAssetSold:      "sold",
	events.TopicAssetRented:    "rented",
	events.TopicKeyGiven:       "key_given",
	events.TopicKeyRemoved:     "key_removed",
	events.TopicImpounded:      "impounded",
	events.TopicUnimpounded:    "unimpounded",
}

var factionTopics = map[string]string{
	events.TopicFactionCreated: "created",
	events.TopicFactionJoined:  "joined",
	events.TopicFactionLeft:    "left",
	events.TopicFactionRank:    "rank",
	events.TopicFactionDisband: "disbanded",
	events.TopicWarDeclared:    "war_declared",
	events.TopicWarEnded:       "war_ended",
}

// Subscribe counts engine events.
func Subscribe(bus *events.Bus) {
	for topic, action := range moderationTopics {
		bus.Subscribe(topic, func(context.Context, any) error {
			ModerationActions.WithLabelValues(action).Inc()
			return nil
		})
	}
	for topic, transition := range assetTopics {
		bus.Subscribe(topic, func(_ context.Context, payload any) error {
			class := "unknown"
			if p, ok := payload.(events.AssetChanged); ok {
				class = string(p.Class)
			}
			AssetTransitions.WithLabelValues(class, transition).Inc()
			return nil
		})
	}
	for topic, event := range factionTopics {
		bus.Subscribe(topic, func(context.Context, any) error {
			FactionEvents.WithLabelValues(event).Inc()
			return nil
		})
	}
	bus.Subscribe(events.TopicSalaryPaid, func(_ context.Context, payload any) error {
		if p, ok := payload.(events.SalaryPaid); ok {
			SalaryPayouts.Inc()
			SalaryAmount.Add(float64(p.Amount))
		}
		return nil
	})
}

// ObserveCommand is a command dispatcher observer.
func ObserveCommand(verb, outcome string) {
	Commands.WithLabelValues(verb, outcome).Inc()
}

// ObserveLockWait records a lock wait, labelled by the key's entity kind
// ("char:5" is "char") to keep cardinality bounded.
func ObserveLockWait(key string, waited time.Duration) {
	entity, _, _ := strings.Cut(key, ":")
	LockWait.WithLabelValues(entity).Observe(waited.Seconds())
}

// ObserveConnections is a gateway hub observer.
func ObserveConnections(connections, actors int) {
	RuntimeConnections.Set(float64(connections))
	ActorsOnline.Set(float64(actors))
}

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
