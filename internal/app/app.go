// Package app owns orchestration: it wires the listing generator, the
// stores and the price fetcher to the view-reconciliation state machine
// in response to user actions.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/llm"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/pricing"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/storage"
)

// Generator issues one listing generation call. Implemented by
// llm.Generator; faked in tests.
type Generator interface {
	Generate(ctx context.Context, req llm.Request, apiKey string) (*listing.GeneratedListing, error)
}

// App is the application core shared by all handlers.
type App struct {
	store   storage.Store
	gen     Generator
	fetcher *pricing.Fetcher
	session *Session
	metrics *Metrics
}

// New creates the application core.
func New(store storage.Store, gen Generator, fetcher *pricing.Fetcher, metrics *Metrics) *App {
	return &App{
		store:   store,
		gen:     gen,
		fetcher: fetcher,
		session: NewSession(),
		metrics: metrics,
	}
}

// Session exposes the view state machine.
func (a *App) Session() *Session {
	return a.session
}

// Store exposes the persistence layer.
func (a *App) Store() storage.Store {
	return a.store
}

// Generate runs the full primary flow: validate inputs, call the
// generator, persist the result to history, install it as the live
// listing and kick off the best-effort price fetch. Failures are
// terminal for the call; retrying is a new user action.
func (a *App) Generate(ctx context.Context, marketplace listing.Marketplace, freeText string, image *listing.EncodedImage) (*listing.GeneratedListing, error) {
	if strings.TrimSpace(freeText) == "" && image == nil {
		return nil, fmt.Errorf("provide a photo or a description of the item")
	}

	keys, err := a.store.GetKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to load api keys: %w", err)
	}

	seq, err := a.session.BeginGenerate()
	if err != nil {
		return nil, err
	}
	defer a.session.EndGenerate(seq)

	req := llm.Request{Marketplace: marketplace, FreeText: freeText, Image: image}
	start := time.Now()
	result, err := a.gen.Generate(ctx, req, keys.Gemini)
	elapsed := time.Since(start)
	if err != nil {
		classified := llm.Classify(err)
		a.metrics.observeGeneration(string(marketplace), classified.Kind.String(), elapsed)
		log.Error().Err(err).Str("marketplace", string(marketplace)).Str("kind", classified.Kind.String()).Msg("generation failed")
		return nil, classified
	}
	a.metrics.observeGeneration(string(marketplace), "success", elapsed)

	item := &listing.HistoryItem{
		Marketplace: marketplace,
		Input:       listing.Inputs{FreeText: freeText, Image: image},
		ListingData: *result,
	}
	if err := a.store.AppendHistory(item); err != nil {
		// The user still gets their listing; history is best-effort here.
		log.Error().Err(err).Msg("failed to append history")
	}

	priceState := PriceStateMissingKey
	if keys.EBay != "" {
		priceState = PriceStateLoading
	}
	a.session.ApplyResult(seq, result, priceState)

	if keys.EBay != "" {
		// Fire-and-forget: no cancellation is threaded through; a stale
		// result is discarded by the sequence check.
		go a.fetchPrice(seq, result.ItemName, keys.EBay)
	}

	return result, nil
}

func (a *App) fetchPrice(seq uint64, itemName, pricingKey string) {
	points, err := a.fetcher.Fetch(context.Background(), itemName, pricingKey)
	switch {
	case err != nil:
		a.metrics.observePriceFetch("error")
	case points == nil:
		a.metrics.observePriceFetch("skipped")
	default:
		a.metrics.observePriceFetch("success")
	}
	a.session.ApplyPriceSeries(seq, points)
}

// SelectHistory makes a history entry the active display.
func (a *App) SelectHistory(id int64) error {
	item, err := a.store.GetHistoryItem(id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("history entry %d not found", id)
	}
	a.session.SelectHistory(item)
	return nil
}

// SelectSaved makes a saved entry the active display.
func (a *App) SelectSaved(id int64) error {
	item, err := a.store.GetSavedItem(id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("saved entry %d not found", id)
	}
	a.session.SelectSaved(item)
	return nil
}

// DeleteHistory removes a history entry, resetting the view if that
// entry was on display.
func (a *App) DeleteHistory(id int64) error {
	if err := a.store.DeleteHistory(id); err != nil {
		return err
	}
	a.session.DropSelection(ModeViewingHistory, id)
	return nil
}

// DeleteSaved removes a saved entry, resetting the view if that entry
// was on display.
func (a *App) DeleteSaved(id int64) error {
	if err := a.store.DeleteSaved(id); err != nil {
		return err
	}
	a.session.DropSelection(ModeViewingSaved, id)
	return nil
}

// SaveCurrent promotes the currently displayed listing into the saved
// collection.
func (a *App) SaveCurrent(customTitle string) (*listing.SavedItem, error) {
	view, err := a.View()
	if err != nil {
		return nil, err
	}
	if view.Active == nil {
		return nil, fmt.Errorf("nothing to save")
	}
	item := &listing.SavedItem{
		Marketplace: view.Inputs.Marketplace,
		Input:       listing.Inputs{FreeText: view.Inputs.FreeText, Image: view.Inputs.Image},
		ListingData: *view.Active,
		CustomTitle: customTitle,
	}
	if err := a.store.AddSaved(item); err != nil {
		return nil, err
	}
	return item, nil
}

// ViewInputs is the composition input state exposed to the UI.
type ViewInputs struct {
	Marketplace listing.Marketplace   `json:"marketplace"`
	FreeText    string                `json:"freeText"`
	Image       *listing.EncodedImage `json:"image,omitempty"`
}

// View is the fully resolved "what to display" answer.
type View struct {
	Mode         string                    `json:"mode"`
	SelectedID   int64                     `json:"selectedId,omitempty"`
	Inputs       ViewInputs                `json:"inputs"`
	Active       *listing.GeneratedListing `json:"active,omitempty"`
	ActiveSource string                    `json:"activeSource"` // history | saved | live | none
	ActivePrice  *listing.PriceAnalysis    `json:"activePrice,omitempty"`
	PriceState   PriceState                `json:"priceState"`
	PricePoints  []pricing.PricePoint      `json:"pricePoints,omitempty"`
	PriceSummary *pricing.Summary          `json:"priceSummary,omitempty"`
	Generating   bool                      `json:"generating"`
}

// View resolves the display: an explicit selection wins over the live
// listing, which wins over the empty state.
func (a *App) View() (*View, error) {
	snap := a.session.Snapshot()

	view := &View{
		Mode:       snap.Mode.String(),
		SelectedID: snap.SelectedID,
		Inputs: ViewInputs{
			Marketplace: snap.Marketplace,
			FreeText:    snap.FreeText,
			Image:       snap.Image,
		},
		ActiveSource: "none",
		PriceState:   snap.PriceState,
		PricePoints:  snap.PricePoints,
		Generating:   snap.Generating,
	}

	switch snap.Mode {
	case ModeViewingHistory:
		item, err := a.store.GetHistoryItem(snap.SelectedID)
		if err != nil {
			return nil, err
		}
		if item != nil {
			view.Active = &item.ListingData
			view.ActiveSource = "history"
		}
	case ModeViewingSaved:
		item, err := a.store.GetSavedItem(snap.SelectedID)
		if err != nil {
			return nil, err
		}
		if item != nil {
			view.Active = &item.ListingData
			view.ActiveSource = "saved"
		}
	default:
		if snap.Live != nil {
			view.Active = snap.Live
			view.ActiveSource = "live"
		}
	}

	if view.Active != nil {
		// Single normalization point for the legacy price shape.
		normalized := view.Active.SuggestedPrice.Normalize()
		view.ActivePrice = &normalized
	}
	if len(snap.PricePoints) > 0 {
		summary := pricing.Summarize(snap.PricePoints)
		view.PriceSummary = &summary
	}

	return view, nil
}
