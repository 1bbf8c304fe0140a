package sendscoredigest

import (
	"context"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "relationship-metrics/internal/common/errors"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/common/metrics"
	"relationship-metrics/internal/common/observability"
	"relationship-metrics/internal/common/validation"
	"relationship-metrics/internal/models"
)

const (
	TaskType = "send-score-digest"
)

//go:embed schema.json
var inputSchemaJSON []byte

var inputSchema = validation.MustCompile(TaskType, inputSchemaJSON)

type ResultReader interface {
	Get(ctx context.Context, key string) (*models.Result, error)
}

type EmailSender interface {
	Send(ctx context.Context, to []string, subject, body string) (string, error)
}

type SMSSender interface {
	Send(ctx context.Context, phone, message string) (string, error)
}

// Dependencies lists collaborators. Email and SMS may be nil when the
// channel is disabled.
type Dependencies struct {
	Results       ResultReader
	Email         EmailSender
	SMS           SMSSender
	Observability *observability.Observability
}

type Handler struct {
	config       *Config
	deps         Dependencies
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, deps Dependencies, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		deps:         deps,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput([]byte(job.Variables))
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func parseInput(variables []byte) (*Input, error) {
	result := inputSchema.Validate(variables)
	if !result.Valid {
		return nil, apperrors.NewInvalidInputError(result.Error())
	}
	var input Input
	if err := json.Unmarshal(variables, &input); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInvalidInputError("input cannot be nil")
	}
	if len(input.Recipients) == 0 && len(input.Phones) == 0 {
		return nil, apperrors.NewInvalidInputError("at least one recipient or phone is required")
	}
	if len(input.Recipients) > 0 && h.deps.Email == nil {
		return nil, apperrors.NewInvalidInputError("email channel is disabled")
	}
	if len(input.Phones) > 0 && h.deps.SMS == nil {
		return nil, apperrors.NewInvalidInputError("sms channel is disabled")
	}

	res, err := h.deps.Results.Get(ctx, input.CacheKey)
	if err != nil {
		return nil, err
	}

	topN := input.TopN
	if topN <= 0 {
		topN = h.config.DefaultTopN
	}
	d := buildDigest(res, topN)

	out := &Output{RunID: res.RunID, ProvidersSent: len(d.Top) + len(d.Bottom)}

	if len(input.Recipients) > 0 {
		body, err := renderEmail(d)
		if err != nil {
			return nil, apperrors.NewNotificationSendFailedError("email", err)
		}
		subject := input.Subject
		if subject == "" {
			subject = h.config.Subject + " " + d.Cutoff
		}
		id, err := h.deps.Email.Send(ctx, input.Recipients, subject, body)
		if err != nil {
			return nil, apperrors.NewNotificationSendFailedError("email", err)
		}
		out.EmailID = id
	}

	if len(input.Phones) > 0 {
		msg := renderSMS(d)
		for _, phone := range input.Phones {
			id, err := h.deps.SMS.Send(ctx, phone, msg)
			if err != nil {
				return nil, apperrors.NewNotificationSendFailedError("sms", err).WithMetadata("phone", phone)
			}
			out.SMSIDs = append(out.SMSIDs, id)
		}
	}

	out.SentAt = time.Now().UTC()
	h.logger.Info("score digest sent", map[string]interface{}{
		"runId":      out.RunID,
		"recipients": len(input.Recipients),
		"phones":     len(input.Phones),
	})
	return out, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.deps.Observability.RecordJobProcessed(ctx, TaskType, "completed")
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	code := string(apperrors.Normalize(err).Code)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, code).Inc()
	h.deps.Observability.RecordJobProcessed(ctx, TaskType, "failed")
	h.errorHandler.HandleJobError(ctx, client, job, err)
}
