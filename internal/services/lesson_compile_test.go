package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tatamiapp/tatami-backend/internal/compiler"
	"github.com/tatamiapp/tatami-backend/internal/compiler/cards"
	"github.com/tatamiapp/tatami-backend/internal/domain"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
	"github.com/tatamiapp/tatami-backend/internal/sse"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// schemaPayload fabricates a valid payload for any card schema.
func schemaPayload(schema cards.CardSchema) map[string]any {
	out := map[string]any{}
	for name, spec := range schema.Fields {
		out[name] = fieldValue(spec)
	}
	return out
}

func fieldValue(spec cards.FieldSpec) any {
	switch spec.Kind {
	case cards.KindString:
		return "sample text"
	case cards.KindEnum:
		return spec.Enum[0]
	case cards.KindInt:
		return 1
	case cards.KindStringList:
		return []any{"sample entry"}
	case cards.KindObjectList:
		item := map[string]any{}
		for sub, kind := range spec.ItemFields {
			item[sub] = fieldValue(cards.FieldSpec{Kind: kind})
		}
		return []any{item}
	}
	return "sample text"
}

type scriptedProvider struct {
	mu       sync.Mutex
	calls    int
	failures map[string]bool // schema names that always fail validation
}

func (p *scriptedProvider) GenerateJSON(_ context.Context, _, _, schemaName string, _ map[string]any) (map[string]any, error) {
	p.mu.Lock()
	p.calls++
	fail := p.failures[schemaName]
	p.mu.Unlock()

	if fail {
		return map[string]any{"metalanguage": "only leaked output"}, nil
	}
	schema, ok := cards.SchemaFor(schemaName)
	if !ok {
		return nil, nil
	}
	return schemaPayload(schema), nil
}

type fakeKnowledge struct {
	descriptor domain.CanDoDescriptor
	kit        *domain.Kit
}

func (f *fakeKnowledge) FetchDescriptor(_ context.Context, id string) (*domain.CanDoDescriptor, error) {
	d := f.descriptor
	d.ID = id
	return &d, nil
}

func (f *fakeKnowledge) FetchKit(context.Context, uuid.UUID, string) (*domain.Kit, error) {
	return f.kit, nil
}

type memLessonRepo struct {
	mu      sync.Mutex
	lessons []*domain.Lesson
}

func (r *memLessonRepo) Create(_ context.Context, _ *gorm.DB, lesson *domain.Lesson) (*domain.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lesson.ID == uuid.Nil {
		lesson.ID = uuid.New()
	}
	r.lessons = append(r.lessons, lesson)
	return lesson, nil
}

func (r *memLessonRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*domain.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lessons {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func (r *memLessonRepo) GetLatestByDescriptor(_ context.Context, _ *gorm.DB, descriptorID string, userID *uuid.UUID) (*domain.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Lesson
	for _, l := range r.lessons {
		if l.DescriptorID != descriptorID {
			continue
		}
		if (l.UserID == nil) != (userID == nil) {
			continue
		}
		if userID != nil && *l.UserID != *userID {
			continue
		}
		if latest == nil || l.Version > latest.Version {
			latest = l
		}
	}
	return latest, nil
}

func (r *memLessonRepo) NextVersion(ctx context.Context, tx *gorm.DB, descriptorID string, userID *uuid.UUID) (int, error) {
	latest, err := r.GetLatestByDescriptor(ctx, tx, descriptorID, userID)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 1, nil
	}
	return latest.Version + 1, nil
}

type memRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.LessonCompileRun
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: map[uuid.UUID]*domain.LessonCompileRun{}}
}

func (r *memRunRepo) Create(_ context.Context, _ *gorm.DB, run *domain.LessonCompileRun) (*domain.LessonCompileRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusQueued
	}
	r.runs[run.ID] = run
	return run, nil
}

func (r *memRunRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*domain.LessonCompileRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id], nil
}

func (r *memRunRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil
	}
	for key, val := range updates {
		switch key {
		case "status":
			run.Status = val.(string)
		case "stage":
			run.Stage = val.(string)
		case "progress":
			run.Progress = val.(int)
		case "progress_message":
			run.ProgressMessage = val.(string)
		case "error":
			run.Error = val.(string)
		case "lesson_id":
			lid := val.(uuid.UUID)
			run.LessonID = &lid
		}
	}
	return nil
}

func (r *memRunRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause string) error {
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{
		"status": domain.RunStatusFailed,
		"error":  cause,
	})
}

func (r *memRunRepo) MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID, lessonID uuid.UUID) error {
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{
		"status":    domain.RunStatusSucceeded,
		"lesson_id": lessonID,
		"progress":  100,
	})
}

type memProfileRepo struct {
	profiles map[uuid.UUID]*domain.LearnerProfile
}

func (r *memProfileRepo) GetByUserID(_ context.Context, _ *gorm.DB, userID uuid.UUID) (*domain.LearnerProfile, error) {
	if r.profiles == nil {
		return nil, nil
	}
	return r.profiles[userID], nil
}

func (r *memProfileRepo) Upsert(_ context.Context, _ *gorm.DB, profile *domain.LearnerProfile) (*domain.LearnerProfile, error) {
	if r.profiles == nil {
		r.profiles = map[uuid.UUID]*domain.LearnerProfile{}
	}
	r.profiles[profile.UserID] = profile
	return profile, nil
}

type memCallLog struct {
	mu      sync.Mutex
	entries []*domain.LLMCallLog
}

func (r *memCallLog) Record(_ context.Context, entry *domain.LLMCallLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *memCallLog) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newTestService(t *testing.T, provider compiler.Provider) (LessonCompileService, *memLessonRepo, *memRunRepo, *memCallLog) {
	t.Helper()
	lessons := &memLessonRepo{}
	runs := newMemRunRepo()
	callLog := &memCallLog{}
	store := &fakeKnowledge{
		descriptor: domain.CanDoDescriptor{
			Level:       "A2",
			Topic:       "directions",
			Statement:   "駅で道を尋ねることができる",
			StatementEN: "Can ask for directions at a station",
		},
	}
	svc := NewLessonCompileService(
		testLogger(t), provider, store,
		lessons, runs, &memProfileRepo{}, callLog,
		sse.NewHub(testLogger(t)), nil,
	)
	return svc, lessons, runs, callLog
}

func TestStartCompileSucceedsAndPersists(t *testing.T) {
	provider := &scriptedProvider{}
	svc, lessons, runs, callLog := newTestService(t, provider)

	run, err := svc.StartCompile(context.Background(), CompileRequest{DescriptorID: "cando-1"})
	if err != nil {
		t.Fatalf("StartCompile: %v", err)
	}
	if run.Status != domain.RunStatusQueued {
		t.Fatalf("new run status = %q, want queued", run.Status)
	}
	svc.Wait()

	final, _ := runs.GetByID(context.Background(), nil, run.ID)
	if final.Status != domain.RunStatusSucceeded {
		t.Fatalf("run status = %q (error=%q), want succeeded", final.Status, final.Error)
	}
	if final.Progress != 100 {
		t.Fatalf("final progress = %d, want 100", final.Progress)
	}
	if final.LessonID == nil {
		t.Fatalf("succeeded run has no lesson id")
	}

	lesson, _ := lessons.GetByID(context.Background(), nil, *final.LessonID)
	if lesson == nil {
		t.Fatalf("lesson row not stored")
	}
	if lesson.Version != 1 {
		t.Fatalf("first lesson version = %d, want 1", lesson.Version)
	}
	if lesson.Level != "A2" || lesson.Topic != "directions" {
		t.Fatalf("lesson denormalized fields wrong: %q %q", lesson.Level, lesson.Topic)
	}

	var doc compiler.LessonDocument
	if err := json.Unmarshal(lesson.Document, &doc); err != nil {
		t.Fatalf("stored document does not decode: %v", err)
	}
	if len(doc.Stages) != 4 {
		t.Fatalf("stored document has %d stages, want 4", len(doc.Stages))
	}
	if doc.Metadata.Version != 1 {
		t.Fatalf("document version = %d, want 1", doc.Metadata.Version)
	}
	if doc.Metadata.PrelessonKitAvailable {
		t.Fatalf("anonymous compile should have no kit")
	}

	// One audit row per provider call: plan + 15 artifacts.
	if callLog.count() != 16 {
		t.Fatalf("call log has %d entries, want 16", callLog.count())
	}
	provider.mu.Lock()
	calls := provider.calls
	provider.mu.Unlock()
	if calls != 16 {
		t.Fatalf("provider calls = %d, want 16", calls)
	}
}

func TestStartCompileVersionsIncrement(t *testing.T) {
	svc, lessons, _, _ := newTestService(t, &scriptedProvider{})

	for i := 0; i < 2; i++ {
		if _, err := svc.StartCompile(context.Background(), CompileRequest{DescriptorID: "cando-1"}); err != nil {
			t.Fatalf("StartCompile: %v", err)
		}
		svc.Wait()
	}

	latest, _ := lessons.GetLatestByDescriptor(context.Background(), nil, "cando-1", nil)
	if latest == nil || latest.Version != 2 {
		t.Fatalf("latest version = %v, want 2", latest)
	}
}

func TestStartCompileCriticalFailureMarksRunFailed(t *testing.T) {
	provider := &scriptedProvider{failures: map[string]bool{cards.ArtifactObjective: true}}
	svc, lessons, runs, _ := newTestService(t, provider)

	run, err := svc.StartCompile(context.Background(), CompileRequest{DescriptorID: "cando-1"})
	if err != nil {
		t.Fatalf("StartCompile: %v", err)
	}
	svc.Wait()

	final, _ := runs.GetByID(context.Background(), nil, run.ID)
	if final.Status != domain.RunStatusFailed {
		t.Fatalf("run status = %q, want failed", final.Status)
	}
	if final.Error == "" {
		t.Fatalf("failed run has no error")
	}
	if final.LessonID != nil {
		t.Fatalf("failed run should not reference a lesson")
	}

	latest, _ := lessons.GetLatestByDescriptor(context.Background(), nil, "cando-1", nil)
	if latest != nil {
		t.Fatalf("no lesson should be stored on failure")
	}
}

func TestStartCompileRequiresDescriptor(t *testing.T) {
	svc, _, _, _ := newTestService(t, &scriptedProvider{})
	if _, err := svc.StartCompile(context.Background(), CompileRequest{}); err == nil {
		t.Fatalf("StartCompile accepted an empty descriptor id")
	}
}

func TestRegenerateArtifactBumpsVersion(t *testing.T) {
	provider := &scriptedProvider{}
	svc, lessons, runs, _ := newTestService(t, provider)

	run, err := svc.StartCompile(context.Background(), CompileRequest{DescriptorID: "cando-1"})
	if err != nil {
		t.Fatalf("StartCompile: %v", err)
	}
	svc.Wait()
	final, _ := runs.GetByID(context.Background(), nil, run.ID)

	lesson, err := svc.RegenerateArtifact(context.Background(), *final.LessonID, compiler.StageContent, cards.ArtifactCulture)
	if err != nil {
		t.Fatalf("RegenerateArtifact: %v", err)
	}
	if lesson.Version != 2 {
		t.Fatalf("regenerated lesson version = %d, want 2", lesson.Version)
	}

	latest, _ := lessons.GetLatestByDescriptor(context.Background(), nil, "cando-1", nil)
	if latest.ID != lesson.ID {
		t.Fatalf("regenerated lesson is not the latest")
	}
}
