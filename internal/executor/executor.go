// Package executor runs a single job's payload and, on success, hands
// the result to delivery. A full {status, summary, output, error}
// outcome is returned rather than a bare error, so a partial output
// from a failed agent turn still round-trips to the caller instead of
// being discarded.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/cronjob"
	"github.com/nextlevelbuilder/goclaw/internal/delivery"
)

// AgentTurnRequest is what the executor hands the agent-turn callback.
type AgentTurnRequest struct {
	Message        string
	SessionKey     string
	Model          string
	TimeoutSeconds int
}

// AgentTurnResult is what the callback returns.
type AgentTurnResult struct {
	Success bool
	Output  string
	Error   string
}

// AgentTurnFunc performs a model turn. A returned error becomes a
// {status:error} outcome rather than a failed AgentTurnResult.
type AgentTurnFunc func(ctx context.Context, req AgentTurnRequest) (AgentTurnResult, error)

// Outcome is executeJob's result.
type Outcome struct {
	Status     string
	Summary    string
	OutputText string
	Error      string
}

const maxSummaryChars = 200

// Executor dispatches a job's payload by kind and delivers the
// result when the payload asks for it.
type Executor struct {
	agentTurn AgentTurnFunc
	delivery  *delivery.Service
	channels  *channels.Registry
}

func New(agentTurn AgentTurnFunc, deliverySvc *delivery.Service, registry *channels.Registry) *Executor {
	return &Executor{agentTurn: agentTurn, delivery: deliverySvc, channels: registry}
}

// ExecuteJob runs job.Payload and, for a successful agentTurn payload
// that asks to deliver, best-effort-delivers the output. Delivery
// outcome never changes the returned Outcome's status: delivery is
// not on the critical path of the job's own success.
func (e *Executor) ExecuteJob(ctx context.Context, job cronjob.Job) Outcome {
	switch job.Payload.Kind {
	case cronjob.PayloadSystemEvent:
		slog.Info("cron: system event executed", "job", job.ID, "message", job.Payload.Message)
		return Outcome{Status: cronjob.StatusOK, Summary: "System event executed"}

	case cronjob.PayloadAgentTurn:
		return e.executeAgentTurn(ctx, job)

	default:
		return Outcome{Status: cronjob.StatusError, Error: fmt.Sprintf("Unknown payload kind: %s", job.Payload.Kind)}
	}
}

func (e *Executor) executeAgentTurn(ctx context.Context, job cronjob.Job) Outcome {
	if e.agentTurn == nil {
		return Outcome{Status: cronjob.StatusSkipped, Summary: "No agent executor configured"}
	}

	result, err := e.agentTurn(ctx, AgentTurnRequest{
		Message:        job.Payload.Message,
		SessionKey:     "cron:" + job.ID,
		Model:          job.Payload.Model,
		TimeoutSeconds: job.Payload.TimeoutSeconds,
	})
	if err != nil {
		return Outcome{Status: cronjob.StatusError, Error: err.Error()}
	}
	if !result.Success {
		return Outcome{Status: cronjob.StatusError, Error: result.Error, OutputText: result.Output}
	}

	if job.Payload.Deliver && job.Payload.To != "" {
		e.maybeDeliver(ctx, job, result.Output)
	}

	return Outcome{Status: cronjob.StatusOK, Summary: truncate(result.Output, maxSummaryChars), OutputText: result.Output}
}

func (e *Executor) maybeDeliver(ctx context.Context, job cronjob.Job, output string) {
	channelID := job.Payload.Channel
	if channelID == "" || channelID == channels.IDLast {
		ch, err := e.channels.Get(channels.IDLast)
		if err != nil {
			slog.Info("cron: delivery skipped, no default channel for \"last\"", "job", job.ID)
			return
		}
		channelID = ch.ID()
	}
	if !e.channels.IsAvailable(channelID) {
		slog.Info("cron: delivery skipped, channel unavailable", "job", job.ID, "channel", channelID)
		return
	}

	target := delivery.Target{Channel: channelID, To: job.Payload.To}
	if _, err := e.delivery.DeliverOne(ctx, target, delivery.Payload{Text: output}, delivery.Options{BestEffort: true}); err != nil {
		slog.Warn("cron: delivery failed", "job", job.ID, "channel", channelID, "error", err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
