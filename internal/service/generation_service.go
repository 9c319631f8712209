package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/visionary-ai/storyboard-server/internal/config"
	"github.com/visionary-ai/storyboard-server/internal/genai"
	"github.com/visionary-ai/storyboard-server/internal/models"
)

// refundOnGenerationFailure is the product's current policy: credits are
// debited before the script request and stay spent when the script or an
// individual image fails. Flipping this needs product sign-off, not a code
// review comment.
const refundOnGenerationFailure = false

var ErrInvalidPanelCount = errors.New("panel count out of range")

type ScriptGenerator interface {
	GenerateScript(ctx context.Context, prompt string, panelCount int) ([]models.Panel, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, visualPrompt, style, styleContext, shotType string) (*genai.Image, error)
}

type ImageStore interface {
	UploadPanelImage(ctx context.Context, panelID string, data []byte, contentType string) (string, error)
}

type GenerationLogStore interface {
	Log(ctx context.Context, entry *models.GenerationLog) error
}

// GenerationService sequences one storyboard job: reserve credits, request
// the script, then render every panel's image. Panel renders are independent;
// one failing leaves the rest of the job intact.
type GenerationService struct {
	cfg     config.Config
	log     *slog.Logger
	ledger  *LedgerService
	scripts ScriptGenerator
	images  ImageGenerator
	store   ImageStore
	logs    GenerationLogStore
}

func NewGenerationService(cfg config.Config, log *slog.Logger, ledger *LedgerService, scripts ScriptGenerator, images ImageGenerator, store ImageStore, logs GenerationLogStore) *GenerationService {
	return &GenerationService{
		cfg:     cfg,
		log:     log,
		ledger:  ledger,
		scripts: scripts,
		images:  images,
		store:   store,
		logs:    logs,
	}
}

// Generate runs a full storyboard job. Cost equals the panel count; the
// debit strictly precedes the script request, which strictly precedes the
// image batch.
func (s *GenerationService) Generate(ctx context.Context, account *models.Account, prompt, styleID string, panelCount int) (*models.Project, error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	if panelCount < s.cfg.MinPanels || panelCount > s.cfg.MaxPanels {
		return nil, fmt.Errorf("%w: %d (allowed %d..%d)", ErrInvalidPanelCount, panelCount, s.cfg.MinPanels, s.cfg.MaxPanels)
	}

	spent, err := s.ledger.Reserve(ctx, account, panelCount)
	if err != nil {
		return nil, err
	}

	style := models.ArtStyleName(styleID)
	panels, err := s.scripts.GenerateScript(ctx, prompt, panelCount)
	if err != nil {
		if refundOnGenerationFailure && spent > 0 {
			if refundErr := s.ledger.Grant(ctx, account.ID, spent); refundErr != nil {
				s.log.Error("refund after script failure", "account", account.ID, "err", refundErr)
			}
		}
		return nil, fmt.Errorf("generate script: %w", err)
	}

	for i := range panels {
		panels[i].ID = uuid.NewString()
		if panels[i].SceneNumber == 0 {
			panels[i].SceneNumber = i + 1
		}
	}

	s.renderPanels(ctx, panels, style)

	failed := 0
	for i := range panels {
		if panels[i].ImageFailed {
			failed++
		}
	}
	status := models.ProjectStatusComplete
	if failed > 0 {
		status = models.ProjectStatusPartial
	}

	if err := s.logs.Log(ctx, &models.GenerationLog{
		AccountID:    account.ID,
		Prompt:       prompt,
		Style:        style,
		PanelCount:   len(panels),
		CreditsSpent: spent,
		FailedPanels: failed,
	}); err != nil {
		s.log.Error("log generation", "account", account.ID, "err", err)
	}

	return &models.Project{
		ID:             "project-" + uuid.NewString(),
		Title:          "New storyboard project",
		OriginalPrompt: prompt,
		Style:          style,
		Panels:         panels,
		Status:         status,
		AccountID:      account.ID,
	}, nil
}

// renderPanels fans out one image request per panel. Each gets its own
// timeout; a timeout or error just flags the panel.
func (s *GenerationService) renderPanels(ctx context.Context, panels []models.Panel, style string) {
	var wg sync.WaitGroup
	for i := range panels {
		wg.Add(1)
		go func(p *models.Panel) {
			defer wg.Done()
			s.renderPanel(ctx, p, style)
		}(&panels[i])
	}
	wg.Wait()
}

func (s *GenerationService) renderPanel(ctx context.Context, panel *models.Panel, style string) {
	imgCtx, cancel := context.WithTimeout(ctx, s.cfg.ImageTimeout)
	defer cancel()

	image, err := s.images.GenerateImage(imgCtx, panel.VisualPrompt, style, "", panel.ShotType)
	if err != nil {
		s.log.Warn("panel image failed", "panel", panel.ID, "err", err)
		panel.ImageFailed = true
		return
	}

	url, err := s.store.UploadPanelImage(imgCtx, panel.ID, image.Bytes, image.Mime)
	if err != nil {
		s.log.Warn("panel image upload failed", "panel", panel.ID, "err", err)
		panel.ImageFailed = true
		return
	}
	panel.ImageURL = url
	panel.ImageFailed = false
}

// Regenerate re-renders a single panel for one credit under the same
// reserve-then-call, no-refund rules as a full job.
func (s *GenerationService) Regenerate(ctx context.Context, account *models.Account, panel models.Panel, styleID string) (*models.Panel, error) {
	if panel.VisualPrompt == "" {
		return nil, fmt.Errorf("panel has no visual prompt")
	}
	if panel.ID == "" {
		panel.ID = uuid.NewString()
	}

	if _, err := s.ledger.Reserve(ctx, account, 1); err != nil {
		return nil, err
	}

	panel.ImageURL = ""
	s.renderPanel(ctx, &panel, models.ArtStyleName(styleID))
	return &panel, nil
}
