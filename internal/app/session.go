package app

import (
	"fmt"
	"sync"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/pricing"
)

// ViewMode tracks which of the mutually exclusive view states is active.
type ViewMode int

const (
	ModeComposing ViewMode = iota
	ModeViewingHistory
	ModeViewingSaved
)

// String returns a human-readable name for the ViewMode.
func (m ViewMode) String() string {
	switch m {
	case ModeComposing:
		return "composing"
	case ModeViewingHistory:
		return "viewing_history"
	case ModeViewingSaved:
		return "viewing_saved"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// PriceState describes what the price-history panel should show.
type PriceState string

const (
	PriceStateIdle       PriceState = "idle"
	PriceStateMissingKey PriceState = "missing_key" // show the "add a pricing key" hint
	PriceStateLoading    PriceState = "loading"
	PriceStateReady      PriceState = "ready"
)

// InputPatch is a partial update of the composition inputs. Nil fields
// are left as-is; ClearImage removes the image outright.
type InputPatch struct {
	Marketplace *listing.Marketplace
	FreeText    *string
	Image       *listing.EncodedImage
	ClearImage  bool
}

// Session is the single-user view-reconciliation state machine. Exactly
// one of {live listing, selected history item, selected saved item} feeds
// the display at any time; selecting one clears the other two. All
// mutation happens on behalf of one UI, guarded by a single mutex.
type Session struct {
	mu sync.Mutex

	mode       ViewMode
	selectedID int64

	marketplace listing.Marketplace
	freeText    string
	image       *listing.EncodedImage

	live *listing.GeneratedListing

	priceState  PriceState
	pricePoints []pricing.PricePoint

	generating bool
	genSeq     uint64
}

// NewSession starts in Composing with the first marketplace preselected.
func NewSession() *Session {
	return &Session{
		marketplace: listing.MarketplaceEBay,
		priceState:  PriceStateIdle,
	}
}

// UpdateInputs applies an input edit. Editing any input while viewing a
// history or saved entry discards the selection and returns to Composing,
// keeping the values the user just entered. A live result, if any,
// remains on display.
func (s *Session) UpdateInputs(patch InputPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.Marketplace != nil {
		s.marketplace = *patch.Marketplace
	}
	if patch.FreeText != nil {
		s.freeText = *patch.FreeText
	}
	if patch.ClearImage {
		s.image = nil
	} else if patch.Image != nil {
		s.image = patch.Image
	}
	s.mode = ModeComposing
	s.selectedID = 0
}

// SelectHistory moves to ViewingHistory and replaces the composition
// inputs with the entry's stored input. This is a deliberate restore, not
// a merge.
func (s *Session) SelectHistory(item *listing.HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = ModeViewingHistory
	s.selectedID = item.ID
	s.marketplace = item.Marketplace
	s.freeText = item.Input.FreeText
	s.image = item.Input.Image
}

// SelectSaved moves to ViewingSaved, restoring the entry's inputs.
func (s *Session) SelectSaved(item *listing.SavedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = ModeViewingSaved
	s.selectedID = item.ID
	s.marketplace = item.Marketplace
	s.freeText = item.Input.FreeText
	s.image = item.Input.Image
}

// DropSelection returns to Composing if the given entry is currently
// being viewed, clearing the live listing as well. Called after a delete.
func (s *Session) DropSelection(mode ViewMode, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == mode && s.selectedID == id {
		s.mode = ModeComposing
		s.selectedID = 0
		s.live = nil
		s.priceState = PriceStateIdle
		s.pricePoints = nil
	}
}

// BeginGenerate marks a generation call as outstanding. It fails while a
// prior call is still in flight; this is the only guard against the same
// action firing twice.
func (s *Session) BeginGenerate() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generating {
		return 0, fmt.Errorf("a generation call is already in progress")
	}
	s.generating = true
	s.genSeq++
	return s.genSeq, nil
}

// EndGenerate clears the in-flight flag for the given call.
func (s *Session) EndGenerate(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq == s.genSeq {
		s.generating = false
	}
}

// ApplyResult installs a fresh generation result: always transitions to
// Composing with the result as the live listing, clearing any selection.
func (s *Session) ApplyResult(seq uint64, result *listing.GeneratedListing, priceState PriceState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.genSeq {
		// A newer action superseded this call; discard its result.
		return
	}
	s.mode = ModeComposing
	s.selectedID = 0
	s.live = result
	s.priceState = priceState
	s.pricePoints = nil
}

// ApplyPriceSeries installs a completed price fetch. Stale results (an
// action has moved the view on since the fetch started) are dropped.
func (s *Session) ApplyPriceSeries(seq uint64, points []pricing.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.genSeq {
		return
	}
	if points == nil {
		// Fetch failed or was skipped; never an error state for the user.
		s.priceState = PriceStateIdle
		return
	}
	s.priceState = PriceStateReady
	s.pricePoints = points
}

// Snapshot is an immutable copy of the session for display resolution.
type Snapshot struct {
	Mode        ViewMode
	SelectedID  int64
	Marketplace listing.Marketplace
	FreeText    string
	Image       *listing.EncodedImage
	Live        *listing.GeneratedListing
	PriceState  PriceState
	PricePoints []pricing.PricePoint
	Generating  bool
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Mode:        s.mode,
		SelectedID:  s.selectedID,
		Marketplace: s.marketplace,
		FreeText:    s.freeText,
		Image:       s.image,
		Live:        s.live,
		PriceState:  s.priceState,
		PricePoints: s.pricePoints,
		Generating:  s.generating,
	}
}
