package service

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/promptlab/promptlab/internal/i18n"
	"github.com/promptlab/promptlab/internal/markdown"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
	"golang.org/x/text/language"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type PromptFilter struct {
	Query       string
	Tag         string
	PremiumOnly bool
}

// CatalogService serves the curated prompts under CONTENT_PATH/prompts.
// Each file carries its metadata and prompt text in frontmatter; the markdown
// body holds usage notes.
type CatalogService struct {
	parser      *markdown.Parser
	contentPath string
	ledger      *LedgerService
	unlocks     repository.UnlockRepository
	favorites   repository.FavoriteRepository
}

func NewCatalogService(contentPath string, ledger *LedgerService, unlocks repository.UnlockRepository, favorites repository.FavoriteRepository) *CatalogService {
	return &CatalogService{
		parser:      markdown.NewParser(),
		contentPath: contentPath,
		ledger:      ledger,
		unlocks:     unlocks,
		favorites:   favorites,
	}
}

// Prompts lists the catalog newest first. Premium text is redacted unless
// userID has unlocked it; notes are omitted from listings.
func (s *CatalogService) Prompts(filter PromptFilter, userID string) ([]*model.Prompt, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}

	unlocked, err := s.unlockedSet(userID)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	var prompts []*model.Prompt
	for _, p := range all {
		if filter.PremiumOnly && !p.Premium {
			continue
		}
		if filter.Tag != "" && !hasTag(p, filter.Tag) {
			continue
		}
		if query != "" && !matches(p, query) {
			continue
		}
		p.NotesHTML = ""
		redact(p, unlocked[p.Slug])
		prompts = append(prompts, p)
	}

	return prompts, nil
}

func (s *CatalogService) Prompt(slug, userID string) (*model.Prompt, error) {
	p, err := s.load(slug)
	if err != nil {
		return nil, err
	}

	unlocked := false
	if p.Premium && userID != "" {
		unlocked, err = s.unlocks.Exists(userID, slug)
		if err != nil {
			return nil, internal("failed to check unlock: %w", err)
		}
	}
	redact(p, unlocked)

	return p, nil
}

// Tags returns every tag with its usage count, sorted by name.
func (s *CatalogService) Tags(locale language.Tag) ([]*model.PromptTag, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, p := range all {
		for _, tag := range p.Tags {
			counts[strings.ToLower(tag)]++
		}
	}

	tags := make([]*model.PromptTag, 0, len(counts))
	for name, count := range counts {
		tags = append(tags, &model.PromptTag{Name: name, Title: i18n.Title(locale, name), Count: count})
	}
	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Name < tags[j].Name
	})

	return tags, nil
}

// Copy returns the prompt text, charging the price of a premium prompt the
// first time the user copies it.
func (s *CatalogService) Copy(userID, slug string) (string, error) {
	p, err := s.load(slug)
	if err != nil {
		return "", err
	}

	if !p.Premium || p.Price <= 0 {
		return p.Text, nil
	}

	unlocked, err := s.unlocks.Exists(userID, slug)
	if err != nil {
		return "", internal("failed to check unlock: %w", err)
	}
	if unlocked {
		return p.Text, nil
	}

	reference := "prompt:" + slug
	err = s.ledger.Reserve(userID, p.Price, model.LedgerKindUnlock, reference)
	if err != nil {
		return "", err
	}

	err = s.unlocks.Create(&model.PromptUnlock{
		UserID:    userID,
		Slug:      slug,
		Price:     p.Price,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		// A concurrent copy won the unlock, or recording failed. The user
		// must not pay twice, and must not pay for nothing.
		if refundErr := s.ledger.Refund(userID, p.Price, reference); refundErr != nil {
			slog.Error("failed to refund prompt unlock", "error", refundErr, "user_id", userID, "slug", slug)
		}
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return p.Text, nil
		}
		return "", internal("failed to record unlock: %w", err)
	}

	slog.Info("prompt unlocked", "user_id", userID, "slug", slug, "price", p.Price)
	return p.Text, nil
}

func (s *CatalogService) AddFavorite(userID, slug string) error {
	if _, err := s.load(slug); err != nil {
		return err
	}
	if err := s.favorites.Add(userID, slug); err != nil {
		return internal("failed to add favorite: %w", err)
	}
	return nil
}

func (s *CatalogService) RemoveFavorite(userID, slug string) error {
	if !slugPattern.MatchString(slug) {
		return newError(KindNotFound, fmt.Errorf("prompt not found: %s", slug))
	}
	if err := s.favorites.Remove(userID, slug); err != nil {
		return internal("failed to remove favorite: %w", err)
	}
	return nil
}

// Favorites returns the user's favorited prompts, most recent first. Entries
// whose prompt was removed from the catalog are skipped.
func (s *CatalogService) Favorites(userID string) ([]*model.Prompt, error) {
	favorites, err := s.favorites.ByUserID(userID)
	if err != nil {
		return nil, internal("failed to list favorites: %w", err)
	}

	unlocked, err := s.unlockedSet(userID)
	if err != nil {
		return nil, err
	}

	var prompts []*model.Prompt
	for _, f := range favorites {
		p, err := s.load(f.Slug)
		if err != nil {
			continue
		}
		p.NotesHTML = ""
		redact(p, unlocked[p.Slug])
		prompts = append(prompts, p)
	}

	return prompts, nil
}

func (s *CatalogService) all() ([]*model.Prompt, error) {
	pattern := filepath.Join(s.contentPath, "prompts", "*.md")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, internal("failed to list prompts: %w", err)
	}

	var prompts []*model.Prompt
	for _, file := range files {
		p, err := s.load(strings.TrimSuffix(filepath.Base(file), ".md"))
		if err != nil {
			slog.Warn("skipping invalid prompt", "file", file, "error", err)
			continue
		}
		prompts = append(prompts, p)
	}

	sort.SliceStable(prompts, func(i, j int) bool {
		if prompts[i].Date.Equal(prompts[j].Date) {
			return prompts[i].Slug < prompts[j].Slug
		}
		return prompts[i].Date.After(prompts[j].Date)
	})

	return prompts, nil
}

func (s *CatalogService) load(slug string) (*model.Prompt, error) {
	if !slugPattern.MatchString(slug) {
		return nil, newError(KindNotFound, fmt.Errorf("prompt not found: %s", slug))
	}

	path := filepath.Join(s.contentPath, "prompts", slug+".md")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(KindNotFound, fmt.Errorf("prompt not found: %s", slug))
	}

	htmlContent, meta, err := s.parser.ParseWithFrontmatter(content)
	if err != nil {
		return nil, internal("failed to parse prompt %s: %w", slug, err)
	}

	p := &model.Prompt{
		Slug:      slug,
		NotesHTML: strings.TrimSpace(string(htmlContent)),
	}

	p.Title, _ = meta["title"].(string)
	p.Description, _ = meta["description"].(string)
	p.Model, _ = meta["model"].(string)
	p.AspectRatio, _ = meta["aspect_ratio"].(string)
	p.PreviewImage, _ = meta["preview_image"].(string)
	p.Premium, _ = meta["premium"].(bool)

	text, _ := meta["prompt"].(string)
	p.Text = strings.TrimSpace(text)
	if p.Text == "" {
		return nil, fmt.Errorf("prompt %s has no prompt text", slug)
	}

	switch price := meta["price"].(type) {
	case int:
		p.Price = int64(price)
	case uint64:
		p.Price = int64(price)
	case int64:
		p.Price = price
	case float64:
		p.Price = int64(price)
	}

	switch date := meta["date"].(type) {
	case string:
		parsed, err := time.Parse("2006-01-02", date)
		if err == nil {
			p.Date = parsed
		}
	case time.Time:
		p.Date = date
	}

	tags, ok := meta["tags"].([]any)
	if ok {
		for _, tag := range tags {
			tagStr, ok := tag.(string)
			if ok {
				p.Tags = append(p.Tags, tagStr)
			}
		}
	}

	return p, nil
}

func (s *CatalogService) unlockedSet(userID string) (map[string]bool, error) {
	set := make(map[string]bool)
	if userID == "" {
		return set, nil
	}

	slugs, err := s.unlocks.Slugs(userID)
	if err != nil {
		return nil, internal("failed to list unlocks: %w", err)
	}
	for _, slug := range slugs {
		set[slug] = true
	}
	return set, nil
}

func redact(p *model.Prompt, unlocked bool) {
	if p.Premium && p.Price > 0 && !unlocked {
		p.Text = ""
		p.Locked = true
	}
}

func hasTag(p *model.Prompt, tag string) bool {
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func matches(p *model.Prompt, query string) bool {
	if strings.Contains(strings.ToLower(p.Title), query) || strings.Contains(strings.ToLower(p.Description), query) {
		return true
	}
	for _, t := range p.Tags {
		if strings.Contains(strings.ToLower(t), query) {
			return true
		}
	}
	return false
}
