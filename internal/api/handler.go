package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fall-guy/volquery/internal/ingest/store"
	"github.com/fall-guy/volquery/internal/ledger"
)

// CommandResetIngest drops all derived state and re-ingests every block from
// the locally stored bodies.
const CommandResetIngest = "RESET_INGEST"

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnauthorized   = errors.New("bad or missing admin key")
)

// ConsensusClient is the slice of the ledger client the API needs.
type ConsensusClient interface {
	GetConsensus(ctx context.Context) (*ledger.Consensus, error)
}

type QueryStore interface {
	GetOffer(ctx context.Context, offerID string) (*store.Offer, error)
	GetOffers(ctx context.Context, search store.OfferSearch) (*store.OfferSearchResult, error)
	GetStamps(ctx context.Context, search store.StampSearch) (*store.StampSearchResult, error)
	ResetIngest(ctx context.Context) error
}

type Handler struct {
	consensus ConsensusClient
	store     QueryStore
	logger    *slog.Logger
	adminKey  string
}

func WithAdminKey(key string) func(*Handler) {
	return func(h *Handler) {
		h.adminKey = key
	}
}

func NewHandler(logger *slog.Logger, queryStore QueryStore, consensus ConsensusClient, opts ...func(*Handler)) *Handler {
	h := &Handler{
		consensus: consensus,
		store:     queryStore,
		logger:    logger.With(slog.String("module", "api")),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.GetRoot)
	e.GET("/consensus", h.GetConsensus)
	e.GET("/offers", h.GetOffers)
	e.GET("/offers/:offerID", h.GetOffer)
	e.GET("/stamps", h.GetStamps)
	e.POST("/commands/:command", h.PostCommand)
}

func (h *Handler) GetRoot(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"type": "VOL_QUERY"})
}

func (h *Handler) GetConsensus(ctx echo.Context) error {
	consensus, err := h.consensus.GetConsensus(ctx.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return ctx.JSON(http.StatusOK, consensus)
}

type offersResponse struct {
	Offers []*store.Offer `json:"offers"`
	Token  string         `json:"token"`
	Count  *int64         `json:"count,omitempty"`
}

func (h *Handler) GetOffers(ctx echo.Context) error {
	search := store.OfferSearch{
		All:           parseFlag(ctx, "all"),
		Base:          parseInt(ctx, "base", 0),
		Count:         parseInt(ctx, "count", 0),
		ExcludeSeller: parseInt64Ptr(ctx, "exclude_seller"),
		MatchSeller:   parseInt64Ptr(ctx, "match_seller"),
	}

	if encoded := ctx.QueryParam("token"); encoded != "" {
		token, err := store.DecodeSearchToken(encoded)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		search.Token = &token
	}

	result, err := h.store.GetOffers(ctx.Request().Context(), search)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ctx.JSON(http.StatusOK, offersResponse{
		Offers: result.Offers,
		Token:  result.Token.Encode(),
		Count:  result.Total,
	})
}

func (h *Handler) GetOffer(ctx echo.Context) error {
	offer, err := h.store.GetOffer(ctx.Request().Context(), ctx.Param("offerID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "offer not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ctx.JSON(http.StatusOK, map[string]*store.Offer{"offer": offer})
}

type stampsResponse struct {
	Stamps []*store.Asset `json:"stamps"`
	Token  string         `json:"token"`
	Count  *int64         `json:"count,omitempty"`
}

func (h *Handler) GetStamps(ctx echo.Context) error {
	search := store.StampSearch{
		Base:         parseInt(ctx, "base", 0),
		Count:        parseInt(ctx, "count", 0),
		ExcludeOwner: parseInt64Ptr(ctx, "exclude_seller"),
		MatchOwner:   parseInt64Ptr(ctx, "match_seller"),
	}

	if encoded := ctx.QueryParam("token"); encoded != "" {
		token, err := store.DecodeStampToken(encoded)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		search.Token = &token
	}

	result, err := h.store.GetStamps(ctx.Request().Context(), search)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ctx.JSON(http.StatusOK, stampsResponse{
		Stamps: result.Stamps,
		Token:  result.Token.Encode(),
		Count:  result.Total,
	})
}

func (h *Handler) PostCommand(ctx echo.Context) error {
	if h.adminKey == "" || ctx.QueryParam("key") != h.adminKey {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrUnauthorized.Error())
	}

	command := ctx.Param("command")
	if command != CommandResetIngest {
		return echo.NewHTTPError(http.StatusBadRequest, ErrUnknownCommand.Error())
	}

	h.logger.Warn("resetting ingest state on admin command")

	err := h.store.ResetIngest(ctx.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ctx.JSON(http.StatusOK, map[string]string{"command": command})
}

func parseFlag(ctx echo.Context, name string) bool {
	value := ctx.QueryParam(name)
	if value == "" {
		// bare ?all counts as set
		_, present := ctx.QueryParams()[name]
		return present
	}

	flag, err := strconv.ParseBool(value)
	return err == nil && flag
}

func parseInt(ctx echo.Context, name string, fallback int) int {
	value, err := strconv.Atoi(ctx.QueryParam(name))
	if err != nil {
		return fallback
	}

	return value
}

func parseInt64Ptr(ctx echo.Context, name string) *int64 {
	value, err := strconv.ParseInt(ctx.QueryParam(name), 10, 64)
	if err != nil {
		return nil
	}

	return &value
}
