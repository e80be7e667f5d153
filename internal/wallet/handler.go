package wallet

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lotto-pay/lotto_wallet/internal/ledger"
	"github.com/lotto-pay/lotto_wallet/internal/money"
)

// Handler exposes wallet ledger HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type operationRequest struct {
	Amount      string            `json:"amount"`
	Description string            `json:"description"`
	Reference   string            `json:"reference"`
	Metadata    map[string]string `json:"metadata"`
}

type transactionResponse struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Subtype     string            `json:"subtype"`
	Amount      int64             `json:"amount"`
	Description string            `json:"description,omitempty"`
	Reference   string            `json:"reference"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type walletResponse struct {
	OwnerID           string     `json:"owner_id"`
	Currency          string     `json:"currency"`
	Balance           int64      `json:"balance"`
	TotalDeposited    int64      `json:"total_deposited"`
	TotalWithdrawn    int64      `json:"total_withdrawn"`
	TransactionCount  int64      `json:"transaction_count"`
	LastTransactionAt *time.Time `json:"last_transaction_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type operationResponse struct {
	Wallet      walletResponse      `json:"wallet"`
	Transaction transactionResponse `json:"transaction"`
	CompletedAt time.Time           `json:"completed_at"`
}

// Deposit credits funds into the owner's wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.operation(c, h.service.Deposit)
}

// Withdraw debits funds from the owner's wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.operation(c, h.service.Withdraw)
}

// Payment debits funds for a purchase.
func (h *Handler) Payment(c *fiber.Ctx) error {
	return h.operation(c, h.service.Payment)
}

// Bonus credits promotional funds.
func (h *Handler) Bonus(c *fiber.Ctx) error {
	return h.operation(c, h.service.Bonus)
}

// Refund credits funds back to the owner's wallet.
func (h *Handler) Refund(c *fiber.Ctx) error {
	return h.operation(c, h.service.Refund)
}

func (h *Handler) operation(c *fiber.Ctx, op func(context.Context, OperationInput) (OperationResult, error)) error {
	ownerID := c.Params("ownerId")
	var req operationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	amount, err := money.Parse(req.Amount, money.Exponent(h.service.Currency()))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := op(c.UserContext(), OperationInput{
		OwnerID:     ownerID,
		Amount:      amount,
		Description: req.Description,
		Reference:   req.Reference,
		Metadata:    req.Metadata,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			// The reference was already processed; replay the original outcome.
			return c.Status(http.StatusOK).JSON(toOperationResponse(result))
		}
		return mapError(err)
	}

	return c.Status(http.StatusCreated).JSON(toOperationResponse(result))
}

// Summary returns the wallet snapshot for the owner.
func (h *Handler) Summary(c *fiber.Ctx) error {
	w, err := h.service.Summary(c.UserContext(), c.Params("ownerId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toWalletResponse(w))
}

// Transactions lists one page of the owner's ledger history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	filter := ledger.Filter{
		Kind:     ledger.Kind(c.Query("kind")),
		Subtype:  ledger.Subtype(c.Query("subtype")),
		Status:   c.Query("status"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 0),
	}

	page, err := h.service.ListTransactions(c.UserContext(), c.Params("ownerId"), filter)
	if err != nil {
		return mapError(err)
	}

	items := make([]transactionResponse, len(page.Items))
	for i, txn := range page.Items {
		items[i] = toTransactionResponse(txn)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"items":     items,
		"total":     page.Total,
		"page":      page.Page,
		"page_size": page.PageSize,
		"has_next":  page.HasNext,
		"has_prev":  page.HasPrev,
	})
}

// Monthly returns this month's and last month's activity counts.
func (h *Handler) Monthly(c *fiber.Ctx) error {
	stats, err := h.service.MonthlyStats(c.UserContext(), c.Params("ownerId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"this_month": toBucketResponse(stats.ThisMonth),
		"last_month": toBucketResponse(stats.LastMonth),
	})
}

func toBucketResponse(b ledger.MonthBucket) fiber.Map {
	return fiber.Map{"count": b.Count, "credited": b.Credited, "debited": b.Debited}
}

func toOperationResponse(result OperationResult) operationResponse {
	return operationResponse{
		Wallet:      toWalletResponse(result.Wallet),
		Transaction: toTransactionResponse(result.Transaction),
		CompletedAt: result.CompletedAt,
	}
}

func toWalletResponse(w ledger.Wallet) walletResponse {
	resp := walletResponse{
		OwnerID:          w.OwnerID,
		Currency:         w.Currency,
		Balance:          w.Balance,
		TotalDeposited:   w.TotalDeposited,
		TotalWithdrawn:   w.TotalWithdrawn,
		TransactionCount: w.TransactionCount,
		CreatedAt:        w.CreatedAt,
	}
	if !w.LastTransactionAt.IsZero() {
		last := w.LastTransactionAt
		resp.LastTransactionAt = &last
	}
	return resp
}

func toTransactionResponse(txn ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:          txn.ID,
		Kind:        string(txn.Kind),
		Subtype:     string(txn.Subtype),
		Amount:      txn.Amount,
		Description: txn.Description,
		Reference:   txn.Reference,
		Status:      txn.Status,
		Metadata:    txn.Metadata,
		CreatedAt:   txn.CreatedAt,
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrDescriptionRequired):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	case errors.Is(err, ledger.ErrConflict):
		return fiber.NewError(http.StatusConflict, "concurrent update, retry")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
