package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/app"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/export"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/imaging"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/llm"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/provider"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/storage"
)

// Server owns the HTTP surface. The API is consumed by the local browser
// UI only, so there is no auth layer.
type Server struct {
	app      *app.App
	verifier *provider.Verifier
	fiber    *fiber.App
}

func New(application *app.App, verifier *provider.Verifier) *Server {
	s := &Server{
		app:      application,
		verifier: verifier,
	}

	f := fiber.New(fiber.Config{
		AppName:               "Marketplace Listing Generator",
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024, // photos arrive base64-encoded
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          errorHandler,
	})

	f.Use(recover.New())
	f.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} - ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	f.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	f.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := f.Group("/api")

	api.Post("/listings/generate", s.handleGenerate)

	api.Get("/view", s.handleGetView)
	api.Put("/view/inputs", s.handleUpdateInputs)
	api.Post("/view/select", s.handleSelect)

	api.Get("/history", s.handleListHistory)
	api.Get("/history/:id", s.handleGetHistory)
	api.Delete("/history/:id", s.handleDeleteHistory)

	api.Get("/saved", s.handleListSaved)
	api.Post("/saved", s.handleSaveCurrent)
	api.Post("/saved/import", s.handleImportSaved)
	api.Get("/saved/:id", s.handleGetSaved)
	api.Patch("/saved/:id", s.handleUpdateSaved)
	api.Delete("/saved/:id", s.handleDeleteSaved)

	api.Get("/keys", s.handleGetKeys)
	api.Put("/keys", s.handleSaveKeys)
	api.Post("/keys/:provider/verify", s.handleVerifyKey)

	api.Get("/providers", s.handleListProviders)
	api.Get("/marketplaces", s.handleListMarketplaces)
	api.Get("/price-history", s.handlePriceHistory)

	api.Get("/export/:source/:id/:format", s.handleExport)

	s.fiber = f
	return s
}

// Listen blocks serving HTTP until Shutdown is called.
func (s *Server) Listen(addr string) error {
	log.Info().Str("addr", addr).Msg("listening")
	return s.fiber.Listen(addr)
}

func (s *Server) ShutdownWithTimeout(d time.Duration) error {
	return s.fiber.ShutdownWithTimeout(d)
}

// errorHandler translates classified generation failures into HTTP
// statuses and keeps raw provider errors out of response bodies.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := err.Error()

	var genErr *llm.Error
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &genErr):
		code = statusForFailure(genErr.Kind)
		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"kind":    genErr.Kind.String(),
			"message": genErr.Kind.UserMessage(),
		})
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
		msg = fiberErr.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": msg,
	})
}

func statusForFailure(kind llm.FailureKind) int {
	switch kind {
	case llm.MissingCredential:
		return fiber.StatusBadRequest
	case llm.InvalidCredential:
		return fiber.StatusUnauthorized
	case llm.QuotaExceeded:
		return fiber.StatusTooManyRequests
	case llm.ContentBlocked:
		return fiber.StatusUnprocessableEntity
	case llm.NetworkFailure, llm.MalformedResponse:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

type generateRequest struct {
	Marketplace string `json:"marketplace"`
	FreeText    string `json:"freeText"`
	Image       string `json:"image"`     // base64 or data URL, optional
	ImageName   string `json:"imageName"` // original filename, optional
}

func (s *Server) handleGenerate(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	marketplace := listing.Marketplace(req.Marketplace)
	if !marketplace.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown marketplace %q", req.Marketplace))
	}

	var image *listing.EncodedImage
	if req.Image != "" {
		img, err := imaging.Decode(req.Image, req.ImageName)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		image = img
	}

	result, err := s.app.Generate(c.UserContext(), marketplace, strings.TrimSpace(req.FreeText), image)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (s *Server) handleGetView(c *fiber.Ctx) error {
	view, err := s.app.View()
	if err != nil {
		return err
	}
	return c.JSON(view)
}

type inputsRequest struct {
	Marketplace *string `json:"marketplace"`
	FreeText    *string `json:"freeText"`
	Image       *string `json:"image"`
	ImageName   string  `json:"imageName"`
	ClearImage  bool    `json:"clearImage"`
}

func (s *Server) handleUpdateInputs(c *fiber.Ctx) error {
	var req inputsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var patch app.InputPatch
	if req.Marketplace != nil {
		m := listing.Marketplace(*req.Marketplace)
		if !m.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown marketplace %q", *req.Marketplace))
		}
		patch.Marketplace = &m
	}
	patch.FreeText = req.FreeText
	patch.ClearImage = req.ClearImage
	if req.Image != nil && *req.Image != "" {
		img, err := imaging.Decode(*req.Image, req.ImageName)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		patch.Image = img
	}

	s.app.Session().UpdateInputs(patch)
	return s.handleGetView(c)
}

type selectRequest struct {
	Source string `json:"source"` // history | saved
	ID     int64  `json:"id"`
}

func (s *Server) handleSelect(c *fiber.Ctx) error {
	var req selectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var err error
	switch req.Source {
	case "history":
		err = s.app.SelectHistory(req.ID)
	case "saved":
		err = s.app.SelectSaved(req.ID)
	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown source %q", req.Source))
	}
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return s.handleGetView(c)
}

func (s *Server) handleListHistory(c *fiber.Ctx) error {
	items, err := s.app.Store().GetHistory()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": items})
}

func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	item, err := s.app.Store().GetHistoryItem(int64(id))
	if err != nil {
		return err
	}
	if item == nil {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("history entry %d not found", id))
	}
	return c.JSON(item)
}

func (s *Server) handleDeleteHistory(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	if err := s.app.DeleteHistory(int64(id)); err != nil {
		return err
	}
	return s.handleGetView(c)
}

func (s *Server) handleListSaved(c *fiber.Ctx) error {
	items, err := s.app.Store().GetSaved()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": items})
}

type saveRequest struct {
	CustomTitle string `json:"customTitle"`
}

func (s *Server) handleSaveCurrent(c *fiber.Ctx) error {
	var req saveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	item, err := s.app.SaveCurrent(strings.TrimSpace(req.CustomTitle))
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// handleImportSaved accepts a previously exported JSON snapshot and adds
// it to the saved collection under a fresh id.
func (s *Server) handleImportSaved(c *fiber.Ctx) error {
	rec, err := export.ParseSnapshot(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	item := &listing.SavedItem{
		Marketplace: rec.Marketplace,
		Input:       rec.Input,
		ListingData: rec.ListingData,
		CustomTitle: rec.CustomTitle,
		CreatedAt:   rec.CreatedAt,
	}
	if err := s.app.Store().AddSaved(item); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

func (s *Server) handleGetSaved(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	item, err := s.app.Store().GetSavedItem(int64(id))
	if err != nil {
		return err
	}
	if item == nil {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("saved entry %d not found", id))
	}
	return c.JSON(item)
}

func (s *Server) handleUpdateSaved(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	var edit storage.SavedEdit
	if err := c.BodyParser(&edit); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.app.Store().UpdateSaved(int64(id), edit); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	item, err := s.app.Store().GetSavedItem(int64(id))
	if err != nil {
		return err
	}
	return c.JSON(item)
}

func (s *Server) handleDeleteSaved(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	if err := s.app.DeleteSaved(int64(id)); err != nil {
		return err
	}
	return s.handleGetView(c)
}

type keyStatus struct {
	Provider  provider.ID `json:"provider"`
	Name      string      `json:"name"`
	Masked    string      `json:"masked,omitempty"`
	Present   bool        `json:"present"`
	Simulated bool        `json:"simulated"`
}

// handleGetKeys reports which keys are stored without ever returning the
// key material itself.
func (s *Server) handleGetKeys(c *fiber.Ctx) error {
	keys, err := s.app.Store().GetKeys()
	if err != nil {
		return err
	}
	byID := map[provider.ID]string{
		provider.Gemini:    keys.Gemini,
		provider.OpenAI:    keys.OpenAI,
		provider.Anthropic: keys.Anthropic,
		provider.EBay:      keys.EBay,
	}
	out := make([]keyStatus, 0, len(provider.All()))
	for _, p := range provider.All() {
		key := byID[p.ID]
		out = append(out, keyStatus{
			Provider:  p.ID,
			Name:      p.Name,
			Masked:    maskKey(key),
			Present:   key != "",
			Simulated: p.Simulated,
		})
	}
	return c.JSON(fiber.Map{"keys": out})
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 4) + key[len(key)-4:]
}

type saveKeysRequest struct {
	Gemini    *string `json:"gemini"`
	OpenAI    *string `json:"openai"`
	Anthropic *string `json:"anthropic"`
	EBay      *string `json:"ebay"`
}

// handleSaveKeys updates only the keys the request names; omitted
// providers keep their stored value, empty strings clear it.
func (s *Server) handleSaveKeys(c *fiber.Ctx) error {
	var req saveKeysRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	keys, err := s.app.Store().GetKeys()
	if err != nil {
		return err
	}
	if req.Gemini != nil {
		keys.Gemini = strings.TrimSpace(*req.Gemini)
	}
	if req.OpenAI != nil {
		keys.OpenAI = strings.TrimSpace(*req.OpenAI)
	}
	if req.Anthropic != nil {
		keys.Anthropic = strings.TrimSpace(*req.Anthropic)
	}
	if req.EBay != nil {
		keys.EBay = strings.TrimSpace(*req.EBay)
	}
	if err := s.app.Store().SaveKeys(keys); err != nil {
		return err
	}
	return s.handleGetKeys(c)
}

type verifyRequest struct {
	Key string `json:"key"`
}

// handleVerifyKey checks a candidate key against the provider's API. The
// key comes from the request body when the user is testing an unsaved
// value, otherwise the stored key is used.
func (s *Server) handleVerifyKey(c *fiber.Ctx) error {
	id := provider.ID(c.Params("provider"))
	if _, ok := provider.Lookup(id); !ok {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("unknown provider %q", c.Params("provider")))
	}

	var req verifyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		keys, err := s.app.Store().GetKeys()
		if err != nil {
			return err
		}
		switch id {
		case provider.Gemini:
			key = keys.Gemini
		case provider.OpenAI:
			key = keys.OpenAI
		case provider.Anthropic:
			key = keys.Anthropic
		case provider.EBay:
			key = keys.EBay
		}
	}

	result := s.verifier.Verify(c.UserContext(), id, key)
	return c.JSON(result)
}

func (s *Server) handleListProviders(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"providers": provider.All()})
}

type marketplaceInfo struct {
	ID   listing.Marketplace `json:"id"`
	Name string              `json:"name"`
}

func (s *Server) handleListMarketplaces(c *fiber.Ctx) error {
	out := make([]marketplaceInfo, 0, len(listing.Marketplaces))
	for _, m := range listing.Marketplaces {
		out = append(out, marketplaceInfo{ID: m, Name: m.DisplayName()})
	}
	return c.JSON(fiber.Map{"marketplaces": out})
}

func (s *Server) handlePriceHistory(c *fiber.Ctx) error {
	view, err := s.app.View()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"state":   view.PriceState,
		"points":  view.PricePoints,
		"summary": view.PriceSummary,
	})
}

// handleExport renders a stored listing in the requested format and
// returns it as a download.
func (s *Server) handleExport(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	format := export.Format(c.Params("format"))

	var rec export.Record
	switch c.Params("source") {
	case "history":
		item, err := s.app.Store().GetHistoryItem(int64(id))
		if err != nil {
			return err
		}
		if item == nil {
			return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("history entry %d not found", id))
		}
		rec = export.FromHistory(item)
	case "saved":
		item, err := s.app.Store().GetSavedItem(int64(id))
		if err != nil {
			return err
		}
		if item == nil {
			return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("saved entry %d not found", id))
		}
		rec = export.FromSaved(item)
	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown source %q", c.Params("source")))
	}

	var file *export.File
	if format == export.FormatPNG {
		file, err = export.Capture(c.UserContext(), rec)
	} else {
		file, err = export.Render(format, rec)
	}
	if err != nil {
		if format == export.FormatPNG {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Name))
	return c.Send(file.Data)
}
