package tasks

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"cloud.google.com/go/logging/logadmin"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/types/known/structpb"
)

// LogEntry is one structured pipeline log line pulled from Cloud Logging.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Pipeline  string    `json:"pipeline"`
	Step      string    `json:"step,omitempty"`
	Message   string    `json:"message"`
	Duration  float64   `json:"duration,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// StepResult is one step within a reconstructed pipeline run.
type StepResult struct {
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	Duration float64 `json:"duration,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// PipelineRun is one pipeline execution reconstructed from its log lines.
type PipelineRun struct {
	Pipeline  string       `json:"pipeline"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time,omitempty"`
	Duration  float64      `json:"duration,omitempty"`
	Success   bool         `json:"success"`
	Error     string       `json:"error,omitempty"`
	Steps     []StepResult `json:"steps"`
	LogsURL   string       `json:"logs_url"`
}

// FetchLogs pulls structured pipeline logs for the Cloud Run service going
// back the given duration.
func FetchLogs(ctx context.Context, projectID, serviceName string, since time.Duration) ([]LogEntry, error) {
	client, err := logadmin.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating logadmin client: %w", err)
	}
	defer client.Close()

	filter := fmt.Sprintf(
		`resource.type="cloud_run_revision" AND resource.labels.service_name="%s" AND timestamp>="%s" AND jsonPayload.pipeline:*`,
		serviceName,
		time.Now().Add(-since).Format(time.RFC3339),
	)

	var entries []LogEntry
	iter := client.Entries(ctx, logadmin.Filter(filter), logadmin.NewestFirst())
	for {
		entry, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading log entries: %w", err)
		}

		payload, ok := entry.Payload.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := payload.GetFields()

		entries = append(entries, LogEntry{
			Timestamp: entry.Timestamp,
			Pipeline:  fields["pipeline"].GetStringValue(),
			Step:      fields["step"].GetStringValue(),
			Message:   fields["msg"].GetStringValue(),
			Duration:  fields["duration"].GetNumberValue(),
			Error:     fields["error"].GetStringValue(),
		})
	}
	return entries, nil
}

// GroupByRun reconstructs pipeline runs from individual log lines. A "flow
// started" line opens a run; step lines attach to the open run for their
// pipeline; "flow completed" closes it. Steps seen without a start line get
// an implicit run. Runs come back newest first.
func GroupByRun(entries []LogEntry, projectID, serviceName string) []PipelineRun {
	if len(entries) == 0 {
		return nil
	}

	sorted := make([]LogEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var runs []*PipelineRun
	open := make(map[string]*PipelineRun)

	startRun := func(entry LogEntry) *PipelineRun {
		run := &PipelineRun{
			Pipeline:  entry.Pipeline,
			StartTime: entry.Timestamp,
			LogsURL:   buildLogsURL(projectID, serviceName, entry.Timestamp),
		}
		runs = append(runs, run)
		open[entry.Pipeline] = run
		return run
	}

	for _, entry := range sorted {
		switch entry.Message {
		case "flow started":
			startRun(entry)
		case "flow completed":
			run := open[entry.Pipeline]
			if run == nil {
				run = startRun(entry)
			}
			run.EndTime = entry.Timestamp
			run.Duration = entry.Duration
			run.Success = run.Error == ""
			delete(open, entry.Pipeline)
		case "step completed":
			run := open[entry.Pipeline]
			if run == nil {
				run = startRun(entry)
			}
			run.Steps = append(run.Steps, StepResult{
				Name:     entry.Step,
				Status:   "completed",
				Duration: entry.Duration,
			})
		case "step failed":
			run := open[entry.Pipeline]
			if run == nil {
				run = startRun(entry)
			}
			run.Steps = append(run.Steps, StepResult{
				Name:   entry.Step,
				Status: "failed",
				Error:  entry.Error,
			})
			run.Error = entry.Error
		}
	}

	result := make([]PipelineRun, len(runs))
	for i, run := range runs {
		result[i] = *run
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	return result
}

// buildLogsURL points at the Cloud Logging console positioned at the run's
// start time.
func buildLogsURL(projectID, serviceName string, start time.Time) string {
	query := fmt.Sprintf(`resource.type="cloud_run_revision" resource.labels.service_name="%s"`, serviceName)
	return fmt.Sprintf(
		"https://console.cloud.google.com/logs/query;query=%s;cursorTimestamp=%s?project=%s",
		url.PathEscape(query),
		start.UTC().Format(time.RFC3339Nano),
		projectID,
	)
}
