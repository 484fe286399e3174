package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/cron"
	"github.com/nextlevelbuilder/goclaw/internal/cronjob"
	"github.com/nextlevelbuilder/goclaw/internal/schedule"
)

// everyUnitFactors converts the tool facade's ergonomic everyUnit +
// everyValue shorthand into everyMs.
var everyUnitFactors = map[string]int64{
	"seconds": 1_000,
	"minutes": 60_000,
	"hours":   3_600_000,
	"days":    86_400_000,
}

// CronService is the subset of *cron.Service the tool facade needs.
// Defined as an interface so this package doesn't force every caller
// to construct a full scheduler just to exercise the tools in tests.
type CronService interface {
	Add(create cronjob.Create) (cronjob.Job, error)
	Remove(id string) (bool, error)
	Update(id string, patch cronjob.Patch) (*cronjob.Job, error)
	List(includeDisabled bool) []cronjob.Job
	Get(id string) (cronjob.Job, bool)
	Run(ctx context.Context, id string, force bool) (cron.RunResult, error)
}

func argString(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func argBool(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key].(bool)
	return v, ok
}

func argNumber(args map[string]interface{}, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// errResult renders a validation failure as isError=true with the
// text prefixed "错误: ", matching the rest of this package's tools.
func errResult(err error) *Result {
	return ErrorResult(fmt.Sprintf("错误: %s", err.Error()))
}

// --- cron_list ---

type CronListTool struct {
	svc CronService
}

func NewCronListTool(svc CronService) *CronListTool { return &CronListTool{svc: svc} }

func (t *CronListTool) Name() string { return "cron_list" }

func (t *CronListTool) Description() string {
	return "List scheduled cron jobs, optionally including disabled ones."
}

func (t *CronListTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"includeDisabled": map[string]interface{}{
				"type":        "boolean",
				"description": "Include disabled jobs in the listing (default false).",
			},
		},
	}
}

func (t *CronListTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	includeDisabled, _ := argBool(args, "includeDisabled")
	jobs := t.svc.List(includeDisabled)
	if len(jobs) == 0 {
		return NewResult("No cron jobs configured.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d cron job(s):\n", len(jobs))
	for _, j := range jobs {
		fmt.Fprintf(&b, "- %s (%s) [%s] enabled=%v %s\n", j.ID, j.Name, j.Schedule.Kind, j.Enabled, renderJobState(j))
	}
	return NewResult(b.String())
}

// --- cron_add ---

type CronAddTool struct {
	svc CronService
}

func NewCronAddTool(svc CronService) *CronAddTool { return &CronAddTool{svc: svc} }

func (t *CronAddTool) Name() string { return "cron_add" }

func (t *CronAddTool) Description() string {
	return "Create a new scheduled cron job firing a system event or an agent turn."
}

func (t *CronAddTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":           map[string]interface{}{"type": "string", "description": "Human-readable job label."},
			"scheduleType":   map[string]interface{}{"type": "string", "enum": []string{"at", "every", "cron"}},
			"atMs":           map[string]interface{}{"type": "number", "description": "Absolute fire instant in epoch ms, for scheduleType=at."},
			"everyUnit":      map[string]interface{}{"type": "string", "enum": []string{"seconds", "minutes", "hours", "days"}},
			"everyValue":     map[string]interface{}{"type": "number", "description": "Interval magnitude paired with everyUnit, for scheduleType=every."},
			"expr":           map[string]interface{}{"type": "string", "description": "5- or 6-field cron expression, for scheduleType=cron."},
			"tz":             map[string]interface{}{"type": "string", "description": "IANA timezone for the cron expression (default process local)."},
			"payloadKind":    map[string]interface{}{"type": "string", "enum": []string{"systemEvent", "agentTurn"}},
			"message":        map[string]interface{}{"type": "string", "description": "Event message or agent-turn prompt."},
			"model":          map[string]interface{}{"type": "string", "description": "Model override for agentTurn payloads."},
			"timeoutSeconds": map[string]interface{}{"type": "number", "description": "Agent-turn timeout in [1,600]."},
			"deliver":        map[string]interface{}{"type": "boolean", "description": "Deliver the agent turn's output to a channel."},
			"channel":        map[string]interface{}{"type": "string", "description": "Channel id (dingtalk, feishu, qq, wecom, webchat, or last)."},
			"to":             map[string]interface{}{"type": "string", "description": "Recipient id within channel."},
			"enabled":        map[string]interface{}{"type": "boolean", "description": "Whether the job starts enabled (default true)."},
		},
		"required": []string{"name", "scheduleType", "payloadKind", "message"},
	}
}

func (t *CronAddTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	create, err := buildCreate(args)
	if err != nil {
		return errResult(err)
	}

	job, err := t.svc.Add(create)
	if err != nil {
		return errResult(err)
	}
	return NewResult(fmt.Sprintf("Created cron job %s (%s): %s", job.ID, job.Name, renderJobState(job)))
}

func buildCreate(args map[string]interface{}) (cronjob.Create, error) {
	name := argString(args, "name")
	sched, err := buildSchedule(args)
	if err != nil {
		return cronjob.Create{}, err
	}
	payload, err := buildPayload(args)
	if err != nil {
		return cronjob.Create{}, err
	}

	create := cronjob.Create{Name: name, Schedule: sched, Payload: payload}
	if v, ok := argBool(args, "enabled"); ok {
		create.Enabled = &v
	}
	return create, nil
}

func buildSchedule(args map[string]interface{}) (schedule.Schedule, error) {
	switch argString(args, "scheduleType") {
	case schedule.KindAt:
		ms, ok := argNumber(args, "atMs")
		if !ok {
			return schedule.Schedule{}, fmt.Errorf("scheduleType=at requires atMs")
		}
		return schedule.Schedule{Kind: schedule.KindAt, AtMS: &ms}, nil

	case schedule.KindEvery:
		unit := argString(args, "everyUnit")
		factor, ok := everyUnitFactors[unit]
		if !ok {
			return schedule.Schedule{}, fmt.Errorf("scheduleType=every requires everyUnit in seconds|minutes|hours|days")
		}
		value, ok := argNumber(args, "everyValue")
		if !ok || value <= 0 {
			return schedule.Schedule{}, fmt.Errorf("scheduleType=every requires a positive everyValue")
		}
		everyMS := value * factor
		return schedule.Schedule{Kind: schedule.KindEvery, EveryMS: &everyMS}, nil

	case schedule.KindCron:
		expr := argString(args, "expr")
		if expr == "" {
			return schedule.Schedule{}, fmt.Errorf("scheduleType=cron requires expr")
		}
		sched := schedule.Schedule{Kind: schedule.KindCron, Expr: expr, TZ: argString(args, "tz")}
		if err := schedule.Validate(sched); err != nil {
			return schedule.Schedule{}, err
		}
		return sched, nil

	default:
		return schedule.Schedule{}, fmt.Errorf("scheduleType must be one of at|every|cron")
	}
}

func buildPayload(args map[string]interface{}) (cronjob.Payload, error) {
	kind := argString(args, "payloadKind")
	message := argString(args, "message")
	if message == "" {
		return cronjob.Payload{}, fmt.Errorf("message is required")
	}

	p := cronjob.Payload{Kind: kind, Message: message}
	if kind != cronjob.PayloadAgentTurn {
		return p, nil
	}

	p.Model = argString(args, "model")
	p.Channel = argString(args, "channel")
	p.To = argString(args, "to")
	if deliver, ok := argBool(args, "deliver"); ok {
		p.Deliver = deliver
	}
	if timeout, ok := argNumber(args, "timeoutSeconds"); ok {
		p.TimeoutSeconds = int(timeout)
	}
	if err := cronjob.ValidatePayload(p); err != nil {
		return cronjob.Payload{}, err
	}
	return p, nil
}

// --- cron_remove ---

type CronRemoveTool struct {
	svc CronService
}

func NewCronRemoveTool(svc CronService) *CronRemoveTool { return &CronRemoveTool{svc: svc} }

func (t *CronRemoveTool) Name() string { return "cron_remove" }

func (t *CronRemoveTool) Description() string { return "Delete a scheduled cron job by id." }

func (t *CronRemoveTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"jobId": map[string]interface{}{"type": "string"}},
		"required":   []string{"jobId"},
	}
}

func (t *CronRemoveTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	jobID := argString(args, "jobId")
	if jobID == "" {
		return errResult(fmt.Errorf("jobId is required"))
	}
	ok, err := t.svc.Remove(jobID)
	if err != nil {
		return errResult(err)
	}
	if !ok {
		return errResult(fmt.Errorf("job not found: %s", jobID))
	}
	return NewResult(fmt.Sprintf("Removed cron job %s", jobID))
}

// --- cron_update ---

type CronUpdateTool struct {
	svc CronService
}

func NewCronUpdateTool(svc CronService) *CronUpdateTool { return &CronUpdateTool{svc: svc} }

func (t *CronUpdateTool) Name() string { return "cron_update" }

func (t *CronUpdateTool) Description() string {
	return "Update a scheduled cron job's name, enabled state, schedule, or payload."
}

func (t *CronUpdateTool) Parameters() map[string]interface{} {
	params := t.paramsWithoutRequired()
	params["required"] = []string{"jobId"}
	return params
}

func (t *CronUpdateTool) paramsWithoutRequired() map[string]interface{} {
	add := (&CronAddTool{}).Parameters()
	props := add["properties"].(map[string]interface{})
	props["jobId"] = map[string]interface{}{"type": "string"}
	return map[string]interface{}{"type": "object", "properties": props}
}

func (t *CronUpdateTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	jobID := argString(args, "jobId")
	if jobID == "" {
		return errResult(fmt.Errorf("jobId is required"))
	}

	patch := cronjob.Patch{}
	if name := argString(args, "name"); name != "" {
		patch.Name = &name
	}
	if v, ok := argBool(args, "enabled"); ok {
		patch.Enabled = &v
	}
	if argString(args, "scheduleType") != "" {
		sched, err := buildSchedule(args)
		if err != nil {
			return errResult(err)
		}
		patch.Schedule = &sched
	}
	if argString(args, "payloadKind") != "" {
		payload, err := buildPayload(args)
		if err != nil {
			return errResult(err)
		}
		patch.Payload = &payload
	}

	job, err := t.svc.Update(jobID, patch)
	if err != nil {
		return errResult(err)
	}
	if job == nil {
		return errResult(fmt.Errorf("job not found: %s", jobID))
	}
	return NewResult(fmt.Sprintf("Updated cron job %s: %s", job.ID, renderJobState(*job)))
}

// --- cron_run ---

type CronRunTool struct {
	svc CronService
}

func NewCronRunTool(svc CronService) *CronRunTool { return &CronRunTool{svc: svc} }

func (t *CronRunTool) Name() string { return "cron_run" }

func (t *CronRunTool) Description() string {
	return "Force an immediate run of a cron job outside its regular schedule."
}

func (t *CronRunTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"jobId": map[string]interface{}{"type": "string"},
			"force": map[string]interface{}{"type": "boolean", "description": "Run even if not currently due (default true)."},
		},
		"required": []string{"jobId"},
	}
}

func (t *CronRunTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	jobID := argString(args, "jobId")
	if jobID == "" {
		return errResult(fmt.Errorf("jobId is required"))
	}
	force := true
	if v, ok := argBool(args, "force"); ok {
		force = v
	}

	result, err := t.svc.Run(ctx, jobID, force)
	if err != nil {
		return errResult(err)
	}
	if result.Error != "" {
		return NewResult(fmt.Sprintf("Job %s ran with status=%s error=%s", jobID, result.Status, result.Error))
	}
	return NewResult(fmt.Sprintf("Job %s ran with status=%s summary=%s", jobID, result.Status, result.Summary))
}

// --- shared rendering ---

func renderJobState(j cronjob.Job) string {
	next := "none"
	if j.State.NextRunAtMS != nil {
		next = time.UnixMilli(*j.State.NextRunAtMS).UTC().Format(time.RFC3339)
	}
	last := "never"
	if j.State.LastRunAtMS != nil {
		last = time.UnixMilli(*j.State.LastRunAtMS).UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("nextRun=%s lastRun=%s runCount=%d lastStatus=%s", next, last, j.State.RunCount, j.State.LastStatus)
}
