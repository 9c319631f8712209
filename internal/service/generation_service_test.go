package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionary-ai/storyboard-server/internal/genai"
	"github.com/visionary-ai/storyboard-server/internal/models"
	"github.com/visionary-ai/storyboard-server/pkg/logger"
)

type fakeScripts struct {
	err   error
	calls int
}

func (f *fakeScripts) GenerateScript(_ context.Context, _ string, panelCount int) ([]models.Panel, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	panels := make([]models.Panel, panelCount)
	for i := range panels {
		panels[i] = models.Panel{
			SceneNumber:  i + 1,
			ShotType:     "wide shot",
			Description:  fmt.Sprintf("scene %d", i+1),
			VisualPrompt: fmt.Sprintf("visual %d", i+1),
		}
	}
	return panels, nil
}

type fakeImages struct {
	mu      sync.Mutex
	failFor map[string]bool // keyed by visual prompt
	calls   int
}

func (f *fakeImages) GenerateImage(_ context.Context, visualPrompt, _, _, _ string) (*genai.Image, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failFor[visualPrompt]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("model overloaded")
	}
	return &genai.Image{Bytes: []byte("png-bytes"), Mime: "image/png"}, nil
}

type fakeImageStore struct {
	mu       sync.Mutex
	uploaded []string
}

func (f *fakeImageStore) UploadPanelImage(_ context.Context, panelID string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, panelID)
	return "https://cdn.example.com/panels/" + panelID + ".png", nil
}

type fakeGenerationLogs struct {
	entries []*models.GenerationLog
}

func (f *fakeGenerationLogs) Log(_ context.Context, entry *models.GenerationLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

type generationFixture struct {
	svc     *GenerationService
	store   *fakeAccountStore
	scripts *fakeScripts
	images  *fakeImages
	uploads *fakeImageStore
	logs    *fakeGenerationLogs
}

func newGenerationFixture(account *models.Account) *generationFixture {
	store := newFakeAccountStore(account)
	ledger := newTestLedger(store, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	scripts := &fakeScripts{}
	images := &fakeImages{failFor: map[string]bool{}}
	uploads := &fakeImageStore{}
	logs := &fakeGenerationLogs{}
	svc := NewGenerationService(testConfig(), logger.New(), ledger, scripts, images, uploads, logs)
	return &generationFixture{svc: svc, store: store, scripts: scripts, images: images, uploads: uploads, logs: logs}
}

func TestGenerateDebitsPanelCountUpFront(t *testing.T) {
	t.Parallel()

	account := &models.Account{ID: "a1", Credits: 10}
	fx := newGenerationFixture(account)

	project, err := fx.svc.Generate(context.Background(), account, "a heist gone wrong", "noir", 4)
	require.NoError(t, err)

	assert.Equal(t, 6, account.Credits)
	assert.Equal(t, 6, fx.store.credits("a1"))
	assert.Equal(t, models.ProjectStatusComplete, project.Status)
	require.Len(t, project.Panels, 4)
	for _, p := range project.Panels {
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.ImageURL)
		assert.False(t, p.ImageFailed)
	}

	require.Len(t, fx.logs.entries, 1)
	assert.Equal(t, 4, fx.logs.entries[0].CreditsSpent)
	assert.Equal(t, 0, fx.logs.entries[0].FailedPanels)
}

func TestGenerateInsufficientCreditsSkipsModelCalls(t *testing.T) {
	t.Parallel()

	account := &models.Account{ID: "a1", Credits: 3}
	fx := newGenerationFixture(account)

	_, err := fx.svc.Generate(context.Background(), account, "prompt", "anime", 4)
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Zero(t, fx.scripts.calls, "no debit, no model call")
	assert.Equal(t, 3, fx.store.credits("a1"))
}

func TestGenerateScriptFailureKeepsDebit(t *testing.T) {
	t.Parallel()

	account := &models.Account{ID: "a1", Credits: 10}
	fx := newGenerationFixture(account)
	fx.scripts.err = errors.New("upstream 500")

	_, err := fx.svc.Generate(context.Background(), account, "prompt", "anime", 4)
	require.Error(t, err)
	assert.Equal(t, 6, fx.store.credits("a1"), "credits stay spent when the script fails")
}

func TestGeneratePartialImageFailure(t *testing.T) {
	t.Parallel()

	account := &models.Account{ID: "a1", Credits: 10}
	fx := newGenerationFixture(account)
	fx.images.failFor["visual 2"] = true

	project, err := fx.svc.Generate(context.Background(), account, "prompt", "sketch", 3)
	require.NoError(t, err, "one dead panel does not fail the job")

	assert.Equal(t, models.ProjectStatusPartial, project.Status)
	failed := 0
	for _, p := range project.Panels {
		if p.ImageFailed {
			failed++
			assert.Empty(t, p.ImageURL)
		} else {
			assert.NotEmpty(t, p.ImageURL)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 7, fx.store.credits("a1"), "partial failure does not refund")

	require.Len(t, fx.logs.entries, 1)
	assert.Equal(t, 1, fx.logs.entries[0].FailedPanels)
}

func TestGenerateValidatesPanelCount(t *testing.T) {
	t.Parallel()

	account := &models.Account{ID: "a1", Credits: 100}
	fx := newGenerationFixture(account)

	_, err := fx.svc.Generate(context.Background(), account, "prompt", "anime", 1)
	require.ErrorIs(t, err, ErrInvalidPanelCount)
	_, err = fx.svc.Generate(context.Background(), account, "prompt", "anime", 21)
	require.ErrorIs(t, err, ErrInvalidPanelCount)
	assert.Equal(t, 100, fx.store.credits("a1"))
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()

	account := &models.Account{ID: "a1", Credits: 100}
	fx := newGenerationFixture(account)

	_, err := fx.svc.Generate(context.Background(), account, "", "anime", 4)
	require.Error(t, err)
	assert.Equal(t, 100, fx.store.credits("a1"))
}

func TestGenerateUnmeteredAccountKeepsBalance(t *testing.T) {
	t.Parallel()

	account := &models.Account{ID: "a1", Credits: 1, IsUnmetered: true}
	fx := newGenerationFixture(account)

	project, err := fx.svc.Generate(context.Background(), account, "prompt", "anime", 8)
	require.NoError(t, err)
	assert.Len(t, project.Panels, 8)
	assert.Equal(t, 1, fx.store.credits("a1"))
	require.Len(t, fx.logs.entries, 1)
	assert.Zero(t, fx.logs.entries[0].CreditsSpent)
}

func TestRegenerateCostsOneCredit(t *testing.T) {
	t.Parallel()

	account := &models.Account{ID: "a1", Credits: 5}
	fx := newGenerationFixture(account)

	panel, err := fx.svc.Regenerate(context.Background(), account, models.Panel{ID: "p1", VisualPrompt: "visual 1"}, "anime")
	require.NoError(t, err)
	assert.NotEmpty(t, panel.ImageURL)
	assert.Equal(t, 4, fx.store.credits("a1"))
}

func TestRegenerateFailureIsContainedAndUnrefunded(t *testing.T) {
	t.Parallel()

	account := &models.Account{ID: "a1", Credits: 5}
	fx := newGenerationFixture(account)
	fx.images.failFor["visual 1"] = true

	panel, err := fx.svc.Regenerate(context.Background(), account, models.Panel{ID: "p1", VisualPrompt: "visual 1"}, "anime")
	require.NoError(t, err)
	assert.True(t, panel.ImageFailed)
	assert.Empty(t, panel.ImageURL)
	assert.Equal(t, 4, fx.store.credits("a1"))
}

func TestRegenerateWithoutCredits(t *testing.T) {
	t.Parallel()

	account := &models.Account{ID: "a1", Credits: 0}
	fx := newGenerationFixture(account)

	_, err := fx.svc.Regenerate(context.Background(), account, models.Panel{ID: "p1", VisualPrompt: "visual 1"}, "anime")
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Zero(t, fx.images.calls)
}
