package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "match_rooms_active",
		Help: "Rooms currently hosting a live match loop",
	})
	BroadcastsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "room_broadcasts_total",
		Help: "Events fanned out to room members",
	})
	DroppedSends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "room_dropped_sends_total",
		Help: "Sends dropped because a member connection was stale",
	})
	TimeoutsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_timeouts_fired_total",
			Help: "Scheduler-injected timeout actions by slot",
		},
		[]string{"slot"},
	)
	PayoutRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_payout_retries_total",
		Help: "Escrow calls that failed and were left for the retry worker",
	})

	RLRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_requests_total",
			Help: "Total requests seen by the rate limiter",
		},
		[]string{"endpoint"},
	)
	RLBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_blocked_total",
			Help: "Total requests blocked by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		ActiveRooms,
		BroadcastsSent,
		DroppedSends,
		TimeoutsFired,
		PayoutRetries,
		RLRequests,
		RLBlocked,
	)
}
