package main

import (
	"fmt"
	"net/http"

	"tessera.estate/internal/persistence/mirror"
	"tessera.estate/internal/sim/multinet"
)

// metricsHandler serves the minimal Prometheus exposition format:
// clock, queue and market-health gauges per network, plus mirror counters.
func metricsHandler(mgr *multinet.Manager, mir *mirror.Mirror) http.HandlerFunc {
	return func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP tessera_network_month Last completed month.\n")
		fmt.Fprintf(rw, "# TYPE tessera_network_month gauge\n")
		for _, id := range mgr.IDs() {
			fmt.Fprintf(rw, "tessera_network_month{network=%q} %d\n", id, mgr.Runtime(id).Session.Month())
		}

		fmt.Fprintf(rw, "# HELP tessera_clock_remaining_seconds Seconds until the next scheduled tick (-1 under cron).\n")
		fmt.Fprintf(rw, "# TYPE tessera_clock_remaining_seconds gauge\n")
		for _, id := range mgr.IDs() {
			fmt.Fprintf(rw, "tessera_clock_remaining_seconds{network=%q} %d\n", id, mgr.Runtime(id).Clock.Remaining())
		}

		fmt.Fprintf(rw, "# HELP tessera_queue_pending_actions Actions queued for the next month.\n")
		fmt.Fprintf(rw, "# TYPE tessera_queue_pending_actions gauge\n")
		for _, id := range mgr.IDs() {
			fmt.Fprintf(rw, "tessera_queue_pending_actions{network=%q} %d\n", id, mgr.Runtime(id).Session.PendingCount())
		}

		fmt.Fprintf(rw, "# HELP tessera_market_health Market health metrics in basis points (exit queue in entries).\n")
		fmt.Fprintf(rw, "# TYPE tessera_market_health gauge\n")
		for _, id := range mgr.IDs() {
			snap := mgr.Runtime(id).Session.Snapshot()
			h := snap.Health
			fmt.Fprintf(rw, "tessera_market_health{network=%q,metric=%q} %d\n", id, "liquidity_ratio_bps", h.LiquidityRatioBps)
			fmt.Fprintf(rw, "tessera_market_health{network=%q,metric=%q} %d\n", id, "exit_queue_length", h.ExitQueueLength)
			fmt.Fprintf(rw, "tessera_market_health{network=%q,metric=%q} %d\n", id, "trade_failure_bps", h.TradeFailureBps)
			fmt.Fprintf(rw, "tessera_market_health{network=%q,metric=%q} %d\n", id, "occupancy_bps", h.OccupancyBps)
			fmt.Fprintf(rw, "tessera_market_health{network=%q,metric=%q} %d\n", id, "rent_collection_bps", h.RentCollectionBps)
			fmt.Fprintf(rw, "tessera_market_health{network=%q,metric=%q} %d\n", id, "float_bps", h.FloatBps)
		}

		fmt.Fprintf(rw, "# HELP tessera_treasury_cents Foundation treasury balance in cents.\n")
		fmt.Fprintf(rw, "# TYPE tessera_treasury_cents gauge\n")
		for _, id := range mgr.IDs() {
			fmt.Fprintf(rw, "tessera_treasury_cents{network=%q} %d\n", id, mgr.Runtime(id).Session.Snapshot().Treasury)
		}

		if mir != nil {
			s := mir.Stats()
			fmt.Fprintf(rw, "# HELP tessera_mirror_queue_depth Current mirror queue depth.\n")
			fmt.Fprintf(rw, "# TYPE tessera_mirror_queue_depth gauge\n")
			fmt.Fprintf(rw, "tessera_mirror_queue_depth %d\n", s.QueueDepth)

			fmt.Fprintf(rw, "# HELP tessera_mirror_enqueued_total Total mirror enqueue attempts.\n")
			fmt.Fprintf(rw, "# TYPE tessera_mirror_enqueued_total counter\n")
			fmt.Fprintf(rw, "tessera_mirror_enqueued_total %d\n", s.Enqueued)

			fmt.Fprintf(rw, "# HELP tessera_mirror_dropped_total Total mirror files dropped on saturation.\n")
			fmt.Fprintf(rw, "# TYPE tessera_mirror_dropped_total counter\n")
			fmt.Fprintf(rw, "tessera_mirror_dropped_total %d\n", s.Dropped)

			fmt.Fprintf(rw, "# HELP tessera_mirror_upload_success_total Total successful mirror uploads.\n")
			fmt.Fprintf(rw, "# TYPE tessera_mirror_upload_success_total counter\n")
			fmt.Fprintf(rw, "tessera_mirror_upload_success_total %d\n", s.UploadSuccess)

			fmt.Fprintf(rw, "# HELP tessera_mirror_upload_fail_total Total failed mirror uploads.\n")
			fmt.Fprintf(rw, "# TYPE tessera_mirror_upload_fail_total counter\n")
			fmt.Fprintf(rw, "tessera_mirror_upload_fail_total %d\n", s.UploadFail)
		}
	}
}
