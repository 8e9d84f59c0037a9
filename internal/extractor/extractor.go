// Package extractor turns raw crawled HTML into structured product data by
// composing the skill store with an LLM runner.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pickgear/backend/internal/crawler"
	"github.com/pickgear/backend/internal/llm"
	"github.com/pickgear/backend/internal/skill"
	"github.com/pickgear/backend/internal/storage/models"
)

// Character budgets keep prompts inside model context windows. The bounded
// prefix can miss specs buried deep in very large pages; that is an accepted
// trade-off, not a bug to silently work around.
const (
	maxSpecHTMLChars   = 50_000
	maxReviewHTMLChars = 10_000
)

const (
	specSkill     = "extract-product-specs"
	validateSkill = "validate-product-specs"
	reviewsSkill  = "extract-web-reviews"
)

type Extractor struct {
	runner llm.Runner
	skills skill.Store
}

func New(runner llm.Runner, skills skill.Store) *Extractor {
	return &Extractor{runner: runner, skills: skills}
}

// specPayload mirrors the JSON the extraction skill asks for. Pointer fields
// distinguish "missing" from zero so defaults apply only to absent values.
type specPayload struct {
	Maker       *string  `json:"maker"`
	Model       *string  `json:"model"`
	CPU         *string  `json:"cpu"`
	RAM         *float64 `json:"ram"`
	Storage     *string  `json:"storage"`
	GPU         *string  `json:"gpu"`
	DisplaySize *float64 `json:"display_size"`
	Weight      *float64 `json:"weight"`
	OS          *string  `json:"os"`
	Price       *float64 `json:"price"`
}

func (p specPayload) toSpecs() models.ProductSpecs {
	return models.ProductSpecs{
		Maker:       orUnknown(p.Maker),
		Model:       orUnknown(p.Model),
		CPU:         orUnknown(p.CPU),
		RAM:         orZero(p.RAM),
		Storage:     orUnknown(p.Storage),
		GPU:         orUnknown(p.GPU),
		DisplaySize: orZero(p.DisplaySize),
		Weight:      orZero(p.Weight),
		OS:          orUnknown(p.OS),
		Price:       orZero(p.Price),
	}
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "Unknown"
	}
	return *s
}

func orZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// ExtractSpecs runs the spec-extraction skill over a bounded, cleaned
// prefix of the page HTML. Missing numeric fields come back as 0 and
// missing strings as "Unknown" so one absent field never blocks saving a
// partial product.
func (e *Extractor) ExtractSpecs(ctx context.Context, page crawler.Page) (models.ProductSpecs, error) {
	sk, err := skill.Require(e.skills, specSkill)
	if err != nil {
		return models.ProductSpecs{}, err
	}

	prompt := skill.InjectContext(sk.UserPrompt, map[string]string{
		"html": Truncate(CleanHTML(page.HTML), maxSpecHTMLChars),
	})

	resp, err := e.runner.Run(ctx, prompt, llm.Options{
		System:      sk.SystemPrompt,
		Model:       sk.Model,
		Temperature: sk.Temperature,
	})
	if err != nil {
		return models.ProductSpecs{}, fmt.Errorf("extract specs from %s: %w", page.URL, err)
	}

	var payload specPayload
	if err := DecodeObject(resp, &payload); err != nil {
		return models.ProductSpecs{}, fmt.Errorf("extract specs from %s: %w", page.URL, err)
	}
	return payload.toSpecs(), nil
}

// ValidationResult reports whether extracted specs match their source HTML.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

func (e *Extractor) ValidateSpecs(ctx context.Context, specs models.ProductSpecs, page crawler.Page) (ValidationResult, error) {
	sk, err := skill.Require(e.skills, validateSkill)
	if err != nil {
		return ValidationResult{}, err
	}

	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("marshal specs: %w", err)
	}

	prompt := skill.InjectContext(sk.UserPrompt, map[string]string{
		"specs": string(specsJSON),
		"html":  Truncate(CleanHTML(page.HTML), maxSpecHTMLChars),
	})

	resp, err := e.runner.Run(ctx, prompt, llm.Options{
		System:      sk.SystemPrompt,
		Model:       sk.Model,
		Temperature: sk.Temperature,
	})
	if err != nil {
		return ValidationResult{}, fmt.Errorf("validate specs: %w", err)
	}

	var result ValidationResult
	if err := DecodeObject(resp, &result); err != nil {
		return ValidationResult{}, fmt.Errorf("validate specs: %w", err)
	}
	return result, nil
}

type webReviewPayload struct {
	Source      string `json:"source"`
	URL         string `json:"url"`
	SummaryText string `json:"summaryText"`
	Sentiment   string `json:"sentiment"`
}

// ExtractWebReviews condenses third-party review pages into reference
// snapshots. An empty input returns an empty result without an LLM call.
func (e *Extractor) ExtractWebReviews(ctx context.Context, pages []crawler.Page) ([]models.WebReviewReference, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	sk, err := skill.Require(e.skills, reviewsSkill)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for i, page := range pages {
		fmt.Fprintf(&b, "Page %d (%s):\n%s\n\n", i+1, page.URL, Truncate(CleanHTML(page.HTML), maxReviewHTMLChars))
	}

	prompt := skill.InjectContext(sk.UserPrompt, map[string]string{
		"pages": b.String(),
	})

	resp, err := e.runner.Run(ctx, prompt, llm.Options{
		System:      sk.SystemPrompt,
		Model:       sk.Model,
		Temperature: sk.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("extract web reviews: %w", err)
	}

	var payload struct {
		Reviews []webReviewPayload `json:"reviews"`
	}
	if err := DecodeObject(resp, &payload); err != nil {
		return nil, fmt.Errorf("extract web reviews: %w", err)
	}

	refs := make([]models.WebReviewReference, 0, len(payload.Reviews))
	for _, r := range payload.Reviews {
		refs = append(refs, models.WebReviewReference{
			Source:      r.Source,
			URL:         r.URL,
			SummaryText: r.SummaryText,
			Sentiment:   models.NormalizeSentiment(r.Sentiment),
		})
	}
	return refs, nil
}

// CleanHTML strips script, style and other non-content nodes so the
// character budget is spent on markup that can actually contain specs.
// Falls back to the raw input when the document does not parse.
func CleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript, iframe, svg").Remove()
	cleaned, err := doc.Html()
	if err != nil {
		return html
	}
	return cleaned
}

// Truncate bounds s to at most n runes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
