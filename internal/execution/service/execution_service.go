// Package service orchestrates one execution: validate, materialize, build,
// run, normalize and release.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"codeexec/internal/execution"
	"codeexec/internal/execution/adapter"
	"codeexec/internal/execution/materializer"
	"codeexec/internal/execution/normalizer"
	"codeexec/internal/execution/observer"
	"codeexec/internal/execution/sandbox/result"
	"codeexec/internal/execution/sandbox/runner"
	appErr "codeexec/pkg/errors"
	"codeexec/pkg/utils/contextkey"
	"codeexec/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTimeout           = 3 * time.Second
	DefaultBuildTimeout      = 10 * time.Second
	DefaultMaxOutputBytes    = 1 << 20
	DefaultMaxCodeBytes      = 64 << 10
	DefaultMaxTestInputBytes = 8 << 10

	stageBuild = "build"
	stageRun   = "run"
)

// LanguageLookup resolves language ids to adapters.
type LanguageLookup interface {
	Get(id string) (*adapter.Adapter, bool)
	List() []*adapter.Adapter
}

// Materializer acquires and releases scratch files.
type Materializer interface {
	Materialize(ctx context.Context, sourceText, extension string) (*materializer.ScratchFile, error)
	Release(ctx context.Context, sf *materializer.ScratchFile)
}

// Config holds service dependencies and limits.
type Config struct {
	Languages    LanguageLookup
	Materializer Materializer
	Runner       runner.Runner
	Observer     observer.ExecutionObserver

	Timeout           time.Duration
	BuildTimeout      time.Duration
	MaxOutputBytes    int64
	MaxCodeBytes      int
	MaxTestInputBytes int
}

// ExecutionService implements execution.Service. It keeps no per-request
// state, so concurrent calls only share the read-only registry.
type ExecutionService struct {
	languages    LanguageLookup
	materializer Materializer
	runner       runner.Runner
	observer     observer.ExecutionObserver

	timeout           time.Duration
	buildTimeout      time.Duration
	maxOutputBytes    int64
	maxCodeBytes      int
	maxTestInputBytes int
}

var _ execution.Service = (*ExecutionService)(nil)

// NewExecutionService creates a service, applying defaults to unset limits.
func NewExecutionService(cfg Config) (*ExecutionService, error) {
	if cfg.Languages == nil {
		return nil, fmt.Errorf("language registry is required")
	}
	if cfg.Materializer == nil {
		return nil, fmt.Errorf("materializer is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	s := &ExecutionService{
		languages:         cfg.Languages,
		materializer:      cfg.Materializer,
		runner:            cfg.Runner,
		observer:          cfg.Observer,
		timeout:           cfg.Timeout,
		buildTimeout:      cfg.BuildTimeout,
		maxOutputBytes:    cfg.MaxOutputBytes,
		maxCodeBytes:      cfg.MaxCodeBytes,
		maxTestInputBytes: cfg.MaxTestInputBytes,
	}
	if s.observer == nil {
		s.observer = observer.Noop{}
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.buildTimeout <= 0 {
		s.buildTimeout = DefaultBuildTimeout
	}
	if s.maxOutputBytes <= 0 {
		s.maxOutputBytes = DefaultMaxOutputBytes
	}
	if s.maxCodeBytes <= 0 {
		s.maxCodeBytes = DefaultMaxCodeBytes
	}
	if s.maxTestInputBytes <= 0 {
		s.maxTestInputBytes = DefaultMaxTestInputBytes
	}
	return s, nil
}

// Timeout returns the run timeout applied to every execution.
func (s *ExecutionService) Timeout() time.Duration {
	return s.timeout
}

// Languages lists every registered language.
func (s *ExecutionService) Languages() []execution.LanguageInfo {
	adapters := s.languages.List()
	out := make([]execution.LanguageInfo, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, execution.LanguageInfo{
			ID:             a.ID(),
			Name:           a.Name(),
			Mode:           string(a.Mode()),
			FileExtension:  a.FileExtension(),
			TestInvocation: a.SupportsTestInvocation(),
			Aliases:        a.Aliases(),
		})
	}
	return out
}

// Execute runs one submission. Only requests rejected during validation return
// an error; every other path, panics included, yields a response.
func (s *ExecutionService) Execute(ctx context.Context, req execution.ExecutionRequest) (resp execution.ExecutionResponse, err error) {
	lang, err := s.validate(req)
	if err != nil {
		return execution.ExecutionResponse{}, err
	}

	executionID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.ExecutionID, executionID)
	start := time.Now()
	rec := observer.Record{
		ExecutionID:  executionID,
		Language:     lang.ID(),
		Mode:         string(lang.Mode()),
		HasTestInput: req.TestInput != nil,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "execution panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			resp = execution.ErrorResponse(appErr.ExecutionSystemError.Message())
			err = nil
			rec.Verdict = result.VerdictSE
			rec.Code = appErr.ExecutionSystemError
		}
		rec.Duration = time.Since(start)
		rec.FinishedAt = time.Now()
		s.observer.ObserveExecution(ctx, rec)
		logger.Info(ctx, "execution finished",
			zap.String("language", rec.Language),
			zap.String("verdict", string(rec.Verdict)),
			zap.Int("code", int(rec.Code)),
			zap.Int64("duration_ms", rec.Duration.Milliseconds()),
			zap.Int64("build_ms", rec.BuildDuration.Milliseconds()),
			zap.Int64("run_wall_ms", rec.RunWallTimeMs),
			zap.Int64("output_bytes", rec.OutputBytes),
		)
	}()

	if lang.Mode() == adapter.ModeUnsupported {
		outcome := result.Unsupported(lang.Notice())
		rec.Verdict, rec.Code = outcome.Verdict, normalizer.Code(outcome)
		return normalizer.Normalize(outcome), nil
	}

	outcome, diagnostics := s.run(ctx, executionID, lang, req, &rec)
	rec.Verdict = outcome.Verdict
	rec.Code = normalizer.Code(outcome)
	rec.RunWallTimeMs = outcome.WallTimeMs
	rec.RunTimeMs = outcome.TimeMs
	rec.MemoryKB = outcome.MemoryKB
	rec.OutputBytes = outcome.OutputBytes
	return normalizer.AttachDiagnostics(normalizer.Normalize(outcome), diagnostics), nil
}

func (s *ExecutionService) validate(req execution.ExecutionRequest) (*adapter.Adapter, error) {
	if req.Language == "" {
		return nil, appErr.New(appErr.RequiredFieldEmpty).
			WithMessage("language is required").
			WithDetail("field", "language")
	}
	lang, ok := s.languages.Get(req.Language)
	if !ok {
		return nil, appErr.UnsupportedLanguage(req.Language)
	}
	if len(req.Code) > s.maxCodeBytes {
		return nil, appErr.New(appErr.CodeTooLarge).
			WithDetail("size", len(req.Code)).
			WithDetail("limit", s.maxCodeBytes)
	}
	if req.TestInput != nil && len(*req.TestInput) > s.maxTestInputBytes {
		return nil, appErr.New(appErr.TestInputTooLarge).
			WithDetail("size", len(*req.TestInput)).
			WithDetail("limit", s.maxTestInputBytes)
	}
	return lang, nil
}

// run materializes, builds and runs the program. The scratch directory is
// released before it returns, whatever the outcome.
func (s *ExecutionService) run(ctx context.Context, executionID string, lang *adapter.Adapter, req execution.ExecutionRequest, rec *observer.Record) (result.Outcome, string) {
	program, err := lang.Wrap(req.Code, req.TestInput, s.maxOutputBytes)
	if err != nil {
		logger.Error(ctx, "wrap source failed", zap.Error(err))
		return result.SpawnFailure(appErr.ExecutionSystemError.Message()), ""
	}

	sf, err := s.materializer.Materialize(ctx, program.Source, lang.FileExtension())
	if err != nil {
		logger.Error(ctx, "materialize source failed", zap.Error(err))
		return result.SpawnFailure(appErr.ExecutionSystemError.Message()), ""
	}
	defer s.materializer.Release(context.WithoutCancel(ctx), sf)

	files := lang.Layout(sf.Dir, sf.ID)
	if program.Harness != "" {
		if _, err := sf.Attach(filepath.Base(files.Harness), program.Harness); err != nil {
			logger.Error(ctx, "write harness failed", zap.Error(err))
			return result.SpawnFailure(appErr.ExecutionSystemError.Message()), ""
		}
	}
	procFiles := files.Map(func(p string) string { return s.runner.Path(sf.Dir, p) })

	// The run deadline is the only cancellation trigger; a caller hanging up
	// does not cut an execution short.
	runCtx := context.WithoutCancel(ctx)

	var diagnostics string
	if argv := lang.BuildCommand(procFiles); argv != nil {
		buildStart := time.Now()
		built := s.runner.Run(runCtx, runner.Request{
			ExecutionID:    executionID,
			Stage:          stageBuild,
			Argv:           argv,
			Dir:            sf.Dir,
			Env:            lang.Env(),
			Timeout:        s.buildTimeout,
			MaxOutputBytes: s.maxOutputBytes,
		})
		rec.BuildDuration = time.Since(buildStart)

		switch built.Verdict {
		case result.VerdictOK, result.VerdictRE:
		default:
			// Spawn failures, timeouts and limits are reported as they are.
			return built, ""
		}
		diagnostics = buildDiagnostics(built)
		if !fileExists(files.Artifact) {
			logger.Debug(ctx, "build produced no artifact", zap.String("artifact", files.Artifact))
			return result.BuildFailure(diagnostics), ""
		}
		if built.Verdict == result.VerdictOK {
			diagnostics = ""
		}
	}

	outcome := s.runner.Run(runCtx, runner.Request{
		ExecutionID:    executionID,
		Stage:          stageRun,
		Argv:           lang.RunCommand(procFiles),
		Dir:            sf.Dir,
		Env:            lang.Env(),
		Timeout:        s.timeout,
		MaxOutputBytes: s.maxOutputBytes,
	})
	return outcome, diagnostics
}

// buildDiagnostics joins what the compiler printed; tsc reports on stdout.
func buildDiagnostics(o result.Outcome) string {
	switch {
	case o.Stdout != "" && o.Stderr != "":
		return o.Stdout + "\n" + o.Stderr
	case o.Stdout != "":
		return o.Stdout
	default:
		return o.Stderr
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
