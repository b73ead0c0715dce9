package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/openrota/openrota/core/logger"
	coremetrics "github.com/openrota/openrota/core/metrics"
)

// InfluxSink writes scheduling events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string, log logger.Logger) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      log,
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so a down metrics store never
// blocks scheduling.
func NewInfluxSinkWithFallback(url, token, org, bucket string, log logger.Logger) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if log != nil {
			if err != nil {
				log.Errorf("influx health check error: %v", err)
			} else {
				log.Errorf("influx health status: %s", health.Status)
			}
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) RecordSolve(ev coremetrics.SolveEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_solve").
		AddTag("algorithm", ev.Algorithm).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddTag("complete", strconv.FormatBool(ev.Complete)).
		AddTag("run_id", ev.RunID).
		AddField("assignments", ev.Assignments).
		AddField("unfilled", ev.Unfilled).
		AddField("score", ev.Score).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(eventTime(ev.Time))
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordValidation(ev coremetrics.ValidationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_validation").
		AddTag("valid", strconv.FormatBool(ev.Valid)).
		AddField("hard_violations", ev.HardViolations).
		AddField("soft_violations", ev.SoftViolations).
		AddField("acknowledged", ev.Acknowledged).
		AddField("coverage_rate", ev.CoverageRate).
		SetTime(eventTime(ev.Time))
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordConflicts(ev coremetrics.ConflictEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_conflicts").
		AddField("total", ev.Conflicts).
		SetTime(eventTime(ev.Time))
	for kind, n := range ev.ByKind {
		p.AddField("kind_"+kind, n)
	}
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordSwap(ev coremetrics.SwapEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_swap").
		AddTag("action", ev.Action).
		AddTag("outcome", ev.Outcome).
		AddTag("swap_id", ev.SwapID).
		AddField("count", 1).
		SetTime(eventTime(ev.Time))
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
