package imagegen

import (
	"sort"
	"sync"
)

type Variant string

const (
	VariantGemini Variant = "gemini"
	VariantDalle  Variant = "dalle"
	VariantImagen Variant = "imagen"
)

// DefaultCost is charged for models without an explicit price.
const DefaultCost int64 = 1

// PremiumCost is charged for premium models.
const PremiumCost int64 = 5

type Model struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Variant Variant `json:"variant"`
	Cost    int64   `json:"cost"`
	Premium bool    `json:"premium"`
}

// DefaultModels is the pricing table. Providers are attached at startup for
// the variants that have credentials.
var DefaultModels = []Model{
	{ID: "gemini-2.5-flash-image", Name: "Gemini Flash Image", Variant: VariantGemini, Cost: DefaultCost},
	{ID: "gemini-3-pro-image-preview", Name: "Gemini Pro Image", Variant: VariantGemini, Cost: PremiumCost, Premium: true},
	{ID: "dall-e-3", Name: "DALL-E 3", Variant: VariantDalle, Cost: DefaultCost},
	{ID: "imagen-4.0-ultra-generate-001", Name: "Imagen Ultra", Variant: VariantImagen, Cost: PremiumCost, Premium: true},
}

type registration struct {
	model    Model
	provider Provider
}

// Registry maps model identifiers to their price and provider.
type Registry struct {
	mu     sync.RWMutex
	models map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]registration)}
}

func (r *Registry) Register(m Model, p Provider) {
	if m.Cost <= 0 {
		m.Cost = DefaultCost
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.ID] = registration{model: m, provider: p}
}

// Lookup resolves a registered model id. There is no fallback model.
func (r *Registry) Lookup(id string) (Model, Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.models[id]
	if !ok {
		return Model{}, nil, false
	}
	return reg.model, reg.provider, true
}

// Models lists registered models, cheapest first.
func (r *Registry) Models() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]Model, 0, len(r.models))
	for _, reg := range r.models {
		models = append(models, reg.model)
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].Cost != models[j].Cost {
			return models[i].Cost < models[j].Cost
		}
		return models[i].ID < models[j].ID
	})
	return models
}
