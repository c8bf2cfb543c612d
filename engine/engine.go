package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/flow"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/memory"
	"github.com/hupe1980/recallgraph/model"
	"github.com/hupe1980/recallgraph/tool"
)

// DefaultMaxModelCalls caps the chatbot hops of a single turn.
const DefaultMaxModelCalls = 25

// Options configures an Engine using the functional options pattern.
//
// Model, Tools, Checkpoints and Memories are required; New fails with
// core.ErrConfiguration when one is missing. Everything else has a default.
//
// Example:
//
//	eng, err := engine.New(func(o *engine.Options) {
//	    o.Model = openai.NewModel()
//	    o.Tools = registry
//	    o.Checkpoints = session.NewInMemoryStore()
//	    o.Memories = memory.NewInMemoryStore()
//	})
type Options struct {
	// Model answers turns and writes summaries.
	Model model.Model

	// Tools is the registry the model may call into. An empty registry is
	// valid; a nil one is not.
	Tools *tool.Registry

	// Checkpoints persists the session after every state-changing stage.
	Checkpoints core.CheckpointStore

	// Memories stores tool results for later retrieval.
	Memories core.MemoryStore

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// MaxModelCalls bounds chatbot hops per turn. 0 selects
	// DefaultMaxModelCalls; a negative value disables the limit.
	MaxModelCalls int

	// ToolParallelism bounds concurrent tool calls of one batch. 0 runs a
	// whole batch at once.
	ToolParallelism int

	// Persona opens the system instruction.
	Persona string

	// Callbacks observe and may veto lifecycle steps.
	Callbacks *CallbackManager

	// OnPartial receives streamed response chunks. Setting it enables
	// streaming requests.
	OnPartial func(model.Response)
}

// Engine drives conversations through the turn state machine:
//
//	entry -> summarize | chatbot
//	chatbot -> tools | done
//	tools -> save_tool_result -> chatbot
//
// The session is checkpointed after every stage that changes it, so a
// failure or crash resumes at the last committed stage. Turns of one
// thread are serialized; different threads run in parallel and share only
// the stores.
type Engine struct {
	model       model.Model
	checkpoints core.CheckpointStore
	logger      logging.Logger
	callbacks   *CallbackManager
	maxCalls    int

	summarizer *flow.Summarizer
	responder  *flow.Responder
	dispatcher *flow.Dispatcher

	locks *threadLocks
}

// New creates an Engine. It refuses to start without its collaborators.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		MaxModelCalls: DefaultMaxModelCalls,
		Persona:       flow.DefaultPersona,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var missing []string
	if opts.Model == nil {
		missing = append(missing, "model")
	}
	if opts.Tools == nil {
		missing = append(missing, "tool registry")
	}
	if opts.Checkpoints == nil {
		missing = append(missing, "checkpoint store")
	}
	if opts.Memories == nil {
		missing = append(missing, "memory store")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: engine requires %s", core.ErrConfiguration, strings.Join(missing, ", "))
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.MaxModelCalls == 0 {
		opts.MaxModelCalls = DefaultMaxModelCalls
	}
	if opts.MaxModelCalls < 0 {
		opts.MaxModelCalls = 0
	}

	gateway := memory.NewGateway(opts.Memories)

	return &Engine{
		model:       opts.Model,
		checkpoints: opts.Checkpoints,
		logger:      opts.Logger,
		callbacks:   opts.Callbacks,
		maxCalls:    opts.MaxModelCalls,
		summarizer:  flow.NewSummarizer(opts.Model, opts.Logger),
		responder: flow.NewResponder(opts.Model, gateway, opts.Tools, func(o *flow.ResponderOptions) {
			o.Persona = opts.Persona
			o.Logger = opts.Logger
			o.OnPartial = opts.OnPartial
		}),
		dispatcher: flow.NewDispatcher(opts.Tools, gateway, func(o *flow.DispatcherOptions) {
			o.MaxParallel = opts.ToolParallelism
			o.Logger = opts.Logger
		}),
		locks: newThreadLocks(),
	}, nil
}

// SubmitTurn appends a user message to the thread and drives the state
// machine until the model gives a final answer, which is returned.
//
// If the thread's last turn did not finish, that turn is completed first.
// When the unfinished turn carries the same text, the call is treated as
// the caller's retry and the recovered answer is returned instead of
// appending a duplicate turn.
//
// A second call for the same thread waits until the first returns or ctx
// ends.
func (e *Engine) SubmitTurn(ctx context.Context, threadID, userID, text string) (string, error) {
	if strings.TrimSpace(threadID) == "" || strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: thread id and user id are required", core.ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty message", core.ErrInvalidInput)
	}

	release, err := e.locks.acquire(ctx, threadID)
	if err != nil {
		return "", err
	}
	defer release()

	sess, err := e.checkpoints.Load(ctx, threadID)
	switch {
	case errors.Is(err, core.ErrCheckpointNotFound):
		sess = core.NewSession(threadID, userID)
	case err != nil:
		return "", fmt.Errorf("load checkpoint: %w", err)
	}

	if sess.Resumable() {
		retry := sess.LatestUserText() == text
		e.logger.Info("engine.turn.resume", "thread_id", threadID, "stage", string(sess.Stage), "retry", retry)

		answer, err := e.drive(ctx, sess)
		if err != nil {
			return "", err
		}
		if retry {
			return answer, nil
		}
	}

	sess.UserID = userID
	sess.AppendTurn(core.NewUserTurn(text))
	sess.Stage = core.StageEntry
	if err := e.commit(ctx, sess, core.StageDone, core.StageEntry); err != nil {
		return "", e.fail(ctx, sess, err)
	}

	return e.drive(ctx, sess)
}

// Resume drives an unfinished turn of threadID to completion and returns
// its answer. For a finished thread it returns the last answer.
func (e *Engine) Resume(ctx context.Context, threadID string) (string, error) {
	release, err := e.locks.acquire(ctx, threadID)
	if err != nil {
		return "", err
	}
	defer release()

	sess, err := e.checkpoints.Load(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("load checkpoint: %w", err)
	}
	if !sess.Resumable() {
		return lastAnswer(sess), nil
	}
	return e.drive(ctx, sess)
}

// Session returns the latest checkpoint of threadID.
func (e *Engine) Session(ctx context.Context, threadID string) (*core.Session, error) {
	return e.checkpoints.Load(ctx, threadID)
}

// drive runs stages until done. sess is owned by the caller and mutated in
// place; every stage ends with a checkpoint.
func (e *Engine) drive(ctx context.Context, sess *core.Session) (string, error) {
	limiter := core.NewModelLimiter(e.maxCalls)

	for sess.Stage != core.StageDone {
		if err := ctx.Err(); err != nil {
			return "", e.fail(ctx, sess, err)
		}

		var err error
		switch sess.Stage {
		case core.StageEntry:
			err = e.route(sess)
		case core.StageSummarize:
			err = e.summarize(ctx, sess)
		case core.StageChatbot:
			err = e.chatbot(ctx, sess, limiter)
		case core.StageTools:
			err = e.tools(ctx, sess)
		case core.StageSaveToolResult:
			err = e.saveToolResults(ctx, sess)
		default:
			err = fmt.Errorf("%w: unknown stage %q in checkpoint", core.ErrConfiguration, sess.Stage)
		}
		if err != nil {
			return "", e.fail(ctx, sess, err)
		}
	}

	return lastAnswer(sess), nil
}

// route picks the first hop. Routing changes neither turns nor summary, so
// it is not checkpointed; resuming at entry routes again.
func (e *Engine) route(sess *core.Session) error {
	next := core.StageChatbot
	if flow.Decide(len(sess.Turns)) == flow.RouteSummarize {
		next = core.StageSummarize
	}
	e.logger.Debug("engine.route", "thread_id", sess.ThreadID, "turns", len(sess.Turns), "next", string(next))
	sess.Stage = next
	return nil
}

func (e *Engine) summarize(ctx context.Context, sess *core.Session) error {
	c, err := e.summarizer.Summarize(ctx, sess.Turns, sess.Summary)
	if err != nil {
		return err
	}

	next := c.Apply(sess)
	next.Stage = core.StageChatbot
	if err := e.commit(ctx, next, core.StageSummarize, core.StageChatbot); err != nil {
		return err
	}
	*sess = *next
	return nil
}

func (e *Engine) chatbot(ctx context.Context, sess *core.Session, limiter *core.ModelLimiter) error {
	if err := limiter.Increment(); err != nil {
		return err
	}

	cc := e.callbackCtx(sess)
	cc.Metadata = map[string]any{"model": e.model.Info().Name}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, cc); err != nil {
		return err
	}

	start := time.Now()
	resp, err := e.responder.Generate(ctx, sess.Clone())
	cc.Response, cc.Duration, cc.Err = resp, time.Since(start), err
	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterModel, cc); cbErr != nil && err == nil {
		err = cbErr
	}
	if err != nil {
		return err
	}

	sess.AppendTurn(resp.Turn())
	next := core.StageDone
	if resp.HasToolCalls() {
		next = core.StageTools
	}
	sess.Stage = next
	return e.commit(ctx, sess, core.StageChatbot, next)
}

func (e *Engine) tools(ctx context.Context, sess *core.Session) error {
	last, ok := sess.LastTurn()
	calls := last.ToolCalls()
	if !ok || len(calls) == 0 {
		return fmt.Errorf("%w: tools stage without pending tool calls", core.ErrConfiguration)
	}

	cc := e.callbackCtx(sess)
	cc.ToolCalls = calls
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTools, cc); err != nil {
		return err
	}

	start := time.Now()
	results, err := e.dispatcher.Dispatch(ctx, flow.Scope{ThreadID: sess.ThreadID, UserID: sess.UserID}, calls)
	if err != nil {
		return err
	}
	cc.Results, cc.Duration = results, time.Since(start)
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterTools, cc); err != nil {
		return err
	}

	for _, r := range results {
		sess.AppendTurn(core.NewToolTurn(r))
	}
	sess.PendingResults = results
	sess.Stage = core.StageSaveToolResult
	return e.commit(ctx, sess, core.StageTools, core.StageSaveToolResult)
}

func (e *Engine) saveToolResults(ctx context.Context, sess *core.Session) error {
	if err := e.dispatcher.Record(ctx, sess.UserID, sess.PendingResults); err != nil {
		return err
	}

	sess.PendingResults = nil
	sess.Stage = core.StageChatbot
	return e.commit(ctx, sess, core.StageSaveToolResult, core.StageChatbot)
}

// commit bumps the version and writes the checkpoint. Transition callbacks
// run first and may veto.
func (e *Engine) commit(ctx context.Context, sess *core.Session, from, to core.Stage) error {
	sess.Version++
	sess.Updated = time.Now().UTC()

	cc := e.callbackCtx(sess)
	cc.From, cc.To = from, to
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackOnTransition, cc); err != nil {
		sess.Version--
		return err
	}

	if err := e.checkpoints.Save(ctx, sess); err != nil {
		sess.Version--
		return fmt.Errorf("save checkpoint: %w", err)
	}

	e.logger.Debug("engine.transition",
		"thread_id", sess.ThreadID,
		"from", string(from),
		"to", string(to),
		"version", sess.Version,
	)
	return nil
}

func (e *Engine) fail(ctx context.Context, sess *core.Session, err error) error {
	cc := e.callbackCtx(sess)
	cc.From, cc.Err = sess.Stage, err
	_ = e.callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackOnError, cc)

	e.logger.Warn("engine.turn.failed",
		"thread_id", sess.ThreadID,
		"stage", string(sess.Stage),
		"error", err.Error(),
	)
	return err
}

func (e *Engine) callbackCtx(sess *core.Session) *CallbackContext {
	return &CallbackContext{
		ThreadID: sess.ThreadID,
		UserID:   sess.UserID,
		Session:  sess.Clone(),
	}
}

func lastAnswer(sess *core.Session) string {
	for i := len(sess.Turns) - 1; i >= 0; i-- {
		if sess.Turns[i].IsFinal() {
			return sess.Turns[i].Text()
		}
	}
	return ""
}
