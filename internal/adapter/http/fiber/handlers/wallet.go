package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/adapter/http/fiber/middleware"
	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

const defaultLedgerLimit = 50

type WalletHandler struct {
	wallet  ports.WalletRepository
	clients ports.ClientRepository
	log     *zap.Logger
}

func NewWalletHandler(wallet ports.WalletRepository, clients ports.ClientRepository, log *zap.Logger) *WalletHandler {
	return &WalletHandler{
		wallet:  wallet,
		clients: clients,
		log:     log,
	}
}

func (h *WalletHandler) Balance(c *fiber.Ctx) error {
	client, err := h.clients.FindByID(c.Context(), middleware.ClientID(c))
	if err != nil {
		return err
	}
	if client == nil {
		return domain.ErrClientNotFound
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"balance":  client.Balance.Som(),
		"currency": domain.Currency,
	})
}

type TopupRequest struct {
	AmountSom float64 `json:"amount_som"`
}

func (h *WalletHandler) Topup(c *fiber.Ctx) error {
	var req TopupRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrInvalidRequest.WithMessage("invalid request body")
	}
	if req.AmountSom <= 0 {
		return domain.ErrInvalidRequest.WithMessage("amount_som must be positive")
	}

	clientID := middleware.ClientID(c)
	balance, err := h.wallet.Topup(c.Context(), clientID, domain.AmountFromSom(req.AmountSom), "balance topup")
	if err != nil {
		return err
	}

	h.log.Info("Balance topped up",
		zap.String("client_id", clientID),
		zap.Float64("amount_som", req.AmountSom))

	return c.JSON(fiber.Map{
		"success":  true,
		"balance":  balance.Som(),
		"currency": domain.Currency,
	})
}

func (h *WalletHandler) Ledger(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultLedgerLimit)
	rows, err := h.wallet.FindLedger(c.Context(), middleware.ClientID(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"transactions": rows,
	})
}
