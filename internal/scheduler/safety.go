// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taibuivan/yomira-worker/internal/metrics"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
)

// Safety alert severities.
const (
	severityWarning  = "WARNING"
	severityCritical = "CRITICAL"
)

// safetyAlert is one threshold breach found in a queue snapshot.
type safetyAlert struct {
	Severity string
	Message  string
}

// checkSafety snapshots queue depths, refreshes the depth gauges, and logs
// any threshold breaches. It never pages by itself; alerting rules sit on
// the log stream and the exported gauges.
func (scheduler *Scheduler) checkSafety(ctx context.Context) error {
	stats, err := scheduler.jobs.Stats(ctx)
	if err != nil {
		return err
	}

	for _, band := range stats {
		metrics.QueueWaiting.WithLabelValues(band.Band).Set(float64(band.Waiting))
	}

	for _, alert := range evaluateSafety(stats) {
		if alert.Severity == severityCritical {
			scheduler.logger.Error("scheduler_safety_alert", slog.String("message", alert.Message))
		} else {
			scheduler.logger.Warn("scheduler_safety_alert", slog.String("message", alert.Message))
		}
	}
	return nil
}

/*
evaluateSafety applies the safety thresholds to a queue snapshot.

Description: The default band carries free-tier notification delivery, which
is the first thing to drown under a fan-out storm, so it gets the tight
CRITICAL thresholds on depth and oldest-job age. The fleet-wide total gets a
looser WARNING threshold as an early capacity signal.
*/
func evaluateSafety(stats []queue.BandStats) []safetyAlert {
	var alerts []safetyAlert
	total := 0

	for _, band := range stats {
		total += band.Waiting

		if band.Band != queue.BandDefault {
			continue
		}
		if band.Waiting > constants.SafetyFreeQueueCritical {
			alerts = append(alerts, safetyAlert{
				Severity: severityCritical,
				Message:  fmt.Sprintf("free delivery band has %d waiting jobs (limit %d)", band.Waiting, constants.SafetyFreeQueueCritical),
			})
		}
		if band.OldestAge > constants.SafetyOldestJobCritical {
			alerts = append(alerts, safetyAlert{
				Severity: severityCritical,
				Message:  fmt.Sprintf("free delivery band oldest job is %s old (limit %s)", band.OldestAge, constants.SafetyOldestJobCritical),
			})
		}
	}

	if total > constants.SafetyTotalWaitingWarning {
		alerts = append(alerts, safetyAlert{
			Severity: severityWarning,
			Message:  fmt.Sprintf("fleet has %d waiting jobs across all bands (limit %d)", total, constants.SafetyTotalWaitingWarning),
		})
	}

	return alerts
}
