package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/tatamiapp/tatami-backend/internal/clients/redis"
	"github.com/tatamiapp/tatami-backend/internal/compiler"
	"github.com/tatamiapp/tatami-backend/internal/domain"
	"github.com/tatamiapp/tatami-backend/internal/knowledge"
	"github.com/tatamiapp/tatami-backend/internal/platform/envutil"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
	"github.com/tatamiapp/tatami-backend/internal/repos"
	"github.com/tatamiapp/tatami-backend/internal/sse"
)

// CompileRequest is one lesson compilation ask. A nil UserID compiles an
// anonymous lesson: no kit, no profile, no personalization.
type CompileRequest struct {
	DescriptorID string     `json:"descriptor_id"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	MaxRepairs   *int       `json:"max_repairs,omitempty"`
}

// LessonCompileService owns the compile-run lifecycle: run rows, background
// execution, persistence, and progress fanout.
type LessonCompileService interface {
	StartCompile(ctx context.Context, req CompileRequest) (*domain.LessonCompileRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*domain.LessonCompileRun, error)
	GetLesson(ctx context.Context, id uuid.UUID) (*domain.Lesson, error)
	GetLatestLesson(ctx context.Context, descriptorID string, userID *uuid.UUID) (*domain.Lesson, error)
	RegenerateArtifact(ctx context.Context, lessonID uuid.UUID, stage, artifact string) (*domain.Lesson, error)
	// Wait blocks until every background compilation has finished; used for
	// graceful shutdown.
	Wait()
}

type lessonCompileService struct {
	log       *logger.Logger
	provider  compiler.Provider
	knowledge knowledge.Store
	lessons   repos.LessonRepo
	runs      repos.CompileRunRepo
	profiles  repos.ProfileRepo
	callLogs  repos.LLMCallLogRepo
	hub       *sse.Hub
	bus       redis.ProgressBus
	model     string

	wg sync.WaitGroup
}

func NewLessonCompileService(
	baseLog *logger.Logger,
	provider compiler.Provider,
	store knowledge.Store,
	lessons repos.LessonRepo,
	runs repos.CompileRunRepo,
	profiles repos.ProfileRepo,
	callLogs repos.LLMCallLogRepo,
	hub *sse.Hub,
	bus redis.ProgressBus,
) LessonCompileService {
	return &lessonCompileService{
		log:       baseLog.With("service", "LessonCompileService"),
		provider:  provider,
		knowledge: store,
		lessons:   lessons,
		runs:      runs,
		profiles:  profiles,
		callLogs:  callLogs,
		hub:       hub,
		bus:       bus,
		model:     envutil.Str("OPENAI_MODEL", ""),
	}
}

func (s *lessonCompileService) StartCompile(ctx context.Context, req CompileRequest) (*domain.LessonCompileRun, error) {
	if req.DescriptorID == "" {
		return nil, errors.New("descriptor_id required")
	}
	// Reject unknown descriptors before a run row exists, so callers get a
	// synchronous 404 instead of a run that fails in the background.
	if _, err := s.knowledge.FetchDescriptor(ctx, req.DescriptorID); err != nil {
		return nil, err
	}

	params, _ := json.Marshal(req)
	run, err := s.runs.Create(ctx, nil, &domain.LessonCompileRun{
		UserID:       req.UserID,
		DescriptorID: req.DescriptorID,
		Status:       domain.RunStatusQueued,
		Params:       datatypes.JSON(params),
	})
	if err != nil {
		return nil, fmt.Errorf("create compile run: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the request: the run outlives the HTTP call.
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		s.execute(runCtx, run, req)
	}()

	return run, nil
}

func (s *lessonCompileService) execute(ctx context.Context, run *domain.LessonCompileRun, req CompileRequest) {
	reporter := newProgressReporter(s.log, s.runs, s.hub, s.bus, run.ID)

	if err := s.runs.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
		"status": domain.RunStatusRunning,
		"stage":  "plan",
	}); err != nil {
		s.log.Warn("run status update failed", "runID", run.ID, "error", err)
	}

	gc, err := s.composeContext(ctx, req)
	if err != nil {
		s.fail(ctx, reporter, run.ID, "", "", err)
		return
	}

	params := compiler.DefaultParams()
	if req.MaxRepairs != nil && *req.MaxRepairs >= 0 {
		params.MaxRepairs = *req.MaxRepairs
	}

	// One compiler per run so the call observer can tag audit rows with the
	// run id.
	comp := compiler.New(s.provider, s.log, s.callObserver(run.ID))
	doc, err := comp.Compile(ctx, gc, params, reporter.sink(ctx))
	if err != nil {
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			s.fail(ctx, reporter, run.ID, ce.Stage, ce.Artifact, err)
		} else {
			s.fail(ctx, reporter, run.ID, "", "", err)
		}
		return
	}

	lesson, err := s.persist(ctx, req.DescriptorID, req.UserID, doc)
	if err != nil {
		s.fail(ctx, reporter, run.ID, "assemble", "", err)
		return
	}

	if err := s.runs.MarkSucceeded(ctx, nil, run.ID, lesson.ID); err != nil {
		s.log.Warn("run success update failed", "runID", run.ID, "error", err)
	}
	reporter.done(ctx, map[string]any{
		"lesson_id": lesson.ID,
		"version":   lesson.Version,
	})
	s.log.Info("compile run finished", "runID", run.ID, "lessonID", lesson.ID, "version", lesson.Version)
}

// composeContext fetches the descriptor, kit, and profile. A missing
// descriptor is fatal; kit and profile failures degrade to empty fragments.
func (s *lessonCompileService) composeContext(ctx context.Context, req CompileRequest) (compiler.GenerationContext, error) {
	descriptor, err := s.knowledge.FetchDescriptor(ctx, req.DescriptorID)
	if err != nil {
		return compiler.GenerationContext{}, fmt.Errorf("fetch descriptor: %w", err)
	}

	var kit *domain.Kit
	var profile *domain.Profile
	if req.UserID != nil {
		kit, err = s.knowledge.FetchKit(ctx, *req.UserID, req.DescriptorID)
		if err != nil {
			s.log.Warn("kit context unavailable, compiling without it", "descriptorID", req.DescriptorID, "error", err)
			kit = nil
		}
		row, err := s.profiles.GetByUserID(ctx, nil, *req.UserID)
		if err != nil {
			s.log.Warn("profile unavailable, compiling without it", "userID", *req.UserID, "error", err)
		} else {
			profile = row.ToProfile()
		}
	}

	return compiler.ComposeContext(*descriptor, kit, profile), nil
}

func (s *lessonCompileService) persist(ctx context.Context, descriptorID string, userID *uuid.UUID, doc *compiler.LessonDocument) (*domain.Lesson, error) {
	version, err := s.lessons.NextVersion(ctx, nil, descriptorID, userID)
	if err != nil {
		return nil, fmt.Errorf("next version: %w", err)
	}
	doc.Metadata.Version = version

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	lesson, err := s.lessons.Create(ctx, nil, &domain.Lesson{
		UserID:       userID,
		DescriptorID: descriptorID,
		Level:        doc.Descriptor.Level,
		Topic:        doc.Descriptor.Topic,
		Version:      version,
		Document:     datatypes.JSON(raw),
	})
	if err != nil {
		return nil, fmt.Errorf("store lesson: %w", err)
	}
	return lesson, nil
}

func (s *lessonCompileService) fail(ctx context.Context, reporter *progressReporter, runID uuid.UUID, stage, artifact string, cause error) {
	s.log.Error("compile run failed", "runID", runID, "stage", stage, "artifact", artifact, "error", cause)
	if err := s.runs.MarkFailed(ctx, nil, runID, cause.Error()); err != nil {
		s.log.Warn("run failure update failed", "runID", runID, "error", err)
	}
	reporter.failed(ctx, map[string]any{
		"stage":    stage,
		"artifact": artifact,
		"error":    cause.Error(),
	})
}

func (s *lessonCompileService) GetRun(ctx context.Context, id uuid.UUID) (*domain.LessonCompileRun, error) {
	return s.runs.GetByID(ctx, nil, id)
}

func (s *lessonCompileService) GetLesson(ctx context.Context, id uuid.UUID) (*domain.Lesson, error) {
	return s.lessons.GetByID(ctx, nil, id)
}

func (s *lessonCompileService) GetLatestLesson(ctx context.Context, descriptorID string, userID *uuid.UUID) (*domain.Lesson, error) {
	return s.lessons.GetLatestByDescriptor(ctx, nil, descriptorID, userID)
}

// RegenerateArtifact re-runs one artifact of a stored lesson and saves the
// result as a new lesson version. Used to fill missing markers without paying
// for a full recompilation.
func (s *lessonCompileService) RegenerateArtifact(ctx context.Context, lessonID uuid.UUID, stage, artifact string) (*domain.Lesson, error) {
	lesson, err := s.lessons.GetByID(ctx, nil, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson == nil {
		return nil, fmt.Errorf("lesson %s not found", lessonID)
	}

	var doc compiler.LessonDocument
	if err := json.Unmarshal(lesson.Document, &doc); err != nil {
		return nil, fmt.Errorf("decode lesson document: %w", err)
	}

	gc, err := s.composeContext(ctx, CompileRequest{DescriptorID: lesson.DescriptorID, UserID: lesson.UserID})
	if err != nil {
		return nil, err
	}

	comp := compiler.New(s.provider, s.log, s.callObserver(uuid.Nil))
	if err := comp.RegenerateArtifact(ctx, &doc, gc, stage, artifact, compiler.DefaultParams()); err != nil {
		return nil, err
	}

	return s.persist(ctx, lesson.DescriptorID, lesson.UserID, &doc)
}

// callObserver persists one audit row per provider call, tagged with the run
// it belongs to when there is one.
func (s *lessonCompileService) callObserver(runID uuid.UUID) compiler.CallObserver {
	return func(ctx context.Context, obs compiler.CallObservation) {
		var id *uuid.UUID
		if runID != uuid.Nil {
			rid := runID
			id = &rid
		}
		s.callLogs.Record(ctx, &domain.LLMCallLog{
			RunID:      id,
			PromptName: obs.Prompt,
			Attempt:    obs.Attempt,
			Model:      s.model,
			DurationMS: obs.DurationMS,
			Success:    obs.Success,
			Cause:      obs.Cause,
			Error:      obs.Err,
		})
	}
}

func (s *lessonCompileService) Wait() {
	s.wg.Wait()
}
