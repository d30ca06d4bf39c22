package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"KOL-Agent/internal/agent"
	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/observability/alerting"
	"KOL-Agent/internal/observability/metrics"
	"KOL-Agent/pkg/logger"
)

// SourceTask tags invocations issued by the task processor.
const SourceTask = "task"

// Executor 定义了处理器所需的 Agent 能力。
type Executor interface {
	Execute(ctx context.Context, req agent.ToolRequest) (*agent.ToolResult, error)
}

// sideEffects 由能够判断调用是否修改外部状态的执行器实现。
type sideEffects interface {
	SideEffecting(tool string, args agent.Arguments) bool
}

// Processor 负责从队列消费任务并交给 Agent 执行。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	now         func() time.Time
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("task"),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，阻塞直到 ctx 结束或消费者出错。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	p.logger.Info("任务处理器已启动", slog.Int("workers", p.workerCount))
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) || stdErrors.Is(err, ErrTaskExhausted) || stdErrors.Is(err, ErrTaskConflict) {
			p.logger.Debug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskProcessing, err, "claim")
		return err
	}
	metrics.ObserveTaskTransition(string(StatusRunning))

	result, execErr := p.executor.Execute(ctx, agent.ToolRequest{
		Tool:      task.Tool,
		Arguments: agent.Arguments(task.Arguments),
		Source:    SourceTask,
	})
	if execErr != nil {
		return p.handleExecutionFailure(ctx, task, execErr)
	}

	if err := p.store.MarkSucceeded(ctx, task.ID, result.Output); err != nil {
		p.logger.Error("标记任务成功状态失败", slog.Any("error", err), slog.String("task_id", task.ID))
		// 工具已执行完成，结果写入失败时不再重投。
		if storeErr := p.store.MarkFailed(ctx, task.ID, xerrors.CodeStorageFailure, err.Error(), true); storeErr != nil {
			return storeErr
		}
		metrics.ObserveTaskTransition(string(StatusFailed))
		p.emitAlert(ctx, task, xerrors.CodeStorageFailure, err, "persist_result")
		return nil
	}
	metrics.ObserveTaskTransition(string(StatusSucceeded))
	logger.Audit().Info("任务执行成功",
		slog.String("task_id", task.ID),
		slog.String("tool", task.Tool),
		slog.Int("attempts", task.Attempts),
		slog.Int64("duration_ms", result.DurationMS),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, task *Task, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	// 有副作用的调用失败时无法确认外部状态，重投可能重复铸币或发帖。
	held := retryable && p.sideEffecting(task)
	if held {
		retryable = false
	}
	terminal := task.Attempts >= task.MaxRetries || !retryable
	message := xerrors.MessageOf(execErr)

	if storeErr := p.store.MarkFailed(ctx, task.ID, code, message, terminal); storeErr != nil {
		p.logger.Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("task_id", task.ID))
		return storeErr
	}
	metrics.ObserveTaskTransition(string(StatusFailed))
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", task.ID),
		slog.String("tool", task.Tool),
		slog.Bool("terminal", terminal),
		slog.String("error", message),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	stage := "retry"
	switch {
	case held:
		stage = "side_effect"
	case !retryable:
		stage = "non_retryable"
	case terminal:
		stage = "terminal"
	}
	if terminal {
		p.emitAlert(ctx, task, code, execErr, stage)
	}

	if !terminal {
		if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
			return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", task.ID))
		}
		p.logger.Debug("任务已重新排队", slog.String("task_id", task.ID), slog.Int("attempts", task.Attempts))
	}
	return nil
}

func (p *Processor) sideEffecting(task *Task) bool {
	checker, ok := p.executor.(sideEffects)
	return ok && checker.SideEffecting(task.Tool, agent.Arguments(task.Arguments))
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	metadata := map[string]string{}
	maps.Copy(metadata, xerrors.MetadataOf(cause))
	metadata["stage"] = stage
	if cause != nil {
		message = xerrors.MessageOf(cause)
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		TaskID:     task.ID,
		Tool:       task.Tool,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   metadata,
		OccurredAt: p.now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
			slog.String("stage", stage),
		)
	}
}
