package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cesilk/comfy-nodes/internal/db/models"
	"github.com/cesilk/comfy-nodes/internal/db/repository"
	"github.com/cesilk/comfy-nodes/internal/mq"
	"github.com/cesilk/comfy-nodes/internal/utils/hashutil"
	"github.com/cesilk/comfy-nodes/internal/workflow/executor"
)

// Submission is a prompt as posted by a client.
type Submission struct {
	Prompt       json.RawMessage
	ExtraPNGInfo json.RawMessage
	ClientID     string
}

// PromptQueue validates and records submitted prompts, publishes them on the
// queue and executes them one at a time in submission order.
type PromptQueue struct {
	mq       mq.MQ
	topic    string
	prompts  repository.IPromptRepository
	executor *executor.WorkflowExecutor
	logger   *zap.Logger

	pool    *workerpool.WorkerPool
	numbers sync.Mutex
}

func NewPromptQueue(queue mq.MQ, topic string, prompts repository.IPromptRepository, exec *executor.WorkflowExecutor, logger *zap.Logger) *PromptQueue {
	return &PromptQueue{
		mq:       queue,
		topic:    topic,
		prompts:  prompts,
		executor: exec,
		logger:   logger,
		// One worker: nodes share output folders and counters.
		pool: workerpool.New(1),
	}
}

// Submit validates the prompt, stores it as queued and publishes it. A prompt
// that fails validation is neither stored nor queued; the returned error is an
// executor.NodeErrors in that case.
func (q *PromptQueue) Submit(ctx context.Context, sub Submission) (*models.Prompt, error) {
	graph, err := executor.Parse(sub.Prompt)
	if err != nil {
		return nil, err
	}
	if err := q.executor.Validate(graph); err != nil {
		return nil, err
	}

	q.numbers.Lock()
	defer q.numbers.Unlock()

	number, err := q.prompts.NextNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate prompt number: %w", err)
	}

	record := &models.Prompt{
		ID:           uuid.New(),
		Number:       number,
		ClientID:     sub.ClientID,
		Status:       models.PromptStatusQueued,
		Prompt:       sub.Prompt,
		ExtraPNGInfo: sub.ExtraPNGInfo,
		Digest:       hashutil.Blake3Hash(sub.Prompt),
	}
	if _, err := q.prompts.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store prompt: %w", err)
	}

	message, err := mq.EncodePrompt(&mq.PromptMessage{
		ID:           record.ID.String(),
		Number:       record.Number,
		ClientID:     record.ClientID,
		Prompt:       sub.Prompt,
		ExtraPNGInfo: sub.ExtraPNGInfo,
	})
	if err != nil {
		return nil, err
	}

	if err := q.mq.Publish(ctx, q.topic, message); err != nil {
		if failErr := q.prompts.MarkFailed(ctx, record.ID.String(), nil, err.Error()); failErr != nil {
			q.logger.Error("failed to mark prompt as failed", zap.String("prompt_id", record.ID.String()), zap.Error(failErr))
		}
		return nil, fmt.Errorf("failed to publish prompt: %w", err)
	}

	q.logger.Info("prompt queued", zap.String("prompt_id", record.ID.String()), zap.Int64("number", record.Number))
	return record, nil
}

// Run receives queued prompts until ctx is done or the queue is closed. A
// prompt is received only once the previous one has finished, so prompts that
// are waiting stay in the message queue.
func (q *PromptQueue) Run(ctx context.Context) error {
	for {
		message, err := q.mq.Receive(ctx, q.topic)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, mq.ErrQueueClosed) || errors.Is(err, mq.ErrTopicClosed) {
				return nil
			}
			return fmt.Errorf("failed to receive prompt: %w", err)
		}

		prompt, err := mq.DecodePrompt(message.Payload())
		if err != nil {
			q.logger.Error("dropping undecodable message", zap.Error(err))
			q.ack(message)
			continue
		}

		q.pool.SubmitWait(func() {
			q.handle(ctx, message, prompt)
		})
	}
}

func (q *PromptQueue) handle(ctx context.Context, message mq.Message, prompt *mq.PromptMessage) {
	if ctx.Err() != nil {
		// Unacked so a broker redelivers it after restart.
		q.logger.Warn("prompt not started before shutdown", zap.String("prompt_id", prompt.ID))
		return
	}

	if err := q.Process(ctx, prompt); err != nil {
		q.logger.Error("prompt failed", zap.String("prompt_id", prompt.ID), zap.Error(err))
	}
	q.ack(message)
}

// Process executes one prompt and records its outcome. Status writes outlive
// ctx, so a prompt interrupted by shutdown is still recorded as failed.
func (q *PromptQueue) Process(ctx context.Context, message *mq.PromptMessage) error {
	store := context.WithoutCancel(ctx)

	if err := q.prompts.MarkRunning(store, message.ID); err != nil {
		return fmt.Errorf("failed to mark prompt running: %w", err)
	}

	outputs, runErr := q.run(ctx, message)
	if outputs == nil {
		outputs = executor.Outputs{}
	}

	encoded, err := json.Marshal(outputs)
	if err != nil {
		return err
	}

	if runErr != nil {
		if err := q.prompts.MarkFailed(store, message.ID, encoded, runErr.Error()); err != nil {
			return errors.Join(runErr, err)
		}
		return runErr
	}

	q.logger.Info("prompt executed", zap.String("prompt_id", message.ID), zap.Int("outputs", len(outputs)))
	return q.prompts.MarkCompleted(store, message.ID, encoded)
}

func (q *PromptQueue) run(ctx context.Context, message *mq.PromptMessage) (executor.Outputs, error) {
	graph, err := executor.Parse(message.Prompt)
	if err != nil {
		return nil, err
	}

	var extra executor.ExtraData
	if len(message.ExtraPNGInfo) > 0 {
		if err := json.Unmarshal(message.ExtraPNGInfo, &extra.ExtraPNGInfo); err != nil {
			return nil, fmt.Errorf("invalid extra_pnginfo: %w", err)
		}
	}

	return q.executor.Execute(ctx, graph, extra)
}

func (q *PromptQueue) ack(message mq.Message) {
	if err := q.mq.Ack(q.topic, message); err != nil {
		q.logger.Warn("failed to ack message", zap.Error(err))
	}
}

// Stop waits for the prompt being executed.
func (q *PromptQueue) Stop() {
	q.pool.StopWait()
}
