package ledger

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mbongo/internal/account"
	"github.com/congo-pay/mbongo/internal/middleware"
)

// defaultPageLength bounds history queries that omit an explicit length.
const defaultPageLength = 100

// Metadata describes the token the ledger accounts for.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Handler exposes ledger endpoints.
type Handler struct {
	ledger *Ledger
	meta   Metadata
}

// NewHandler constructs a ledger handler.
func NewHandler(l *Ledger, meta Metadata) *Handler {
	return &Handler{ledger: l, meta: meta}
}

type transferRequest struct {
	From      account.Account `json:"from"`
	To        account.Account `json:"to"`
	Amount    uint64          `json:"amount"`
	Fee       *uint64         `json:"fee"`
	Memo      string          `json:"memo"`
	CreatedAt *time.Time      `json:"created_at"`
}

// args stages the request for the ledger. A missing From falls back to the
// caller's default account.
func (r transferRequest) args(caller string) (TransferArgs, error) {
	args := TransferArgs{
		From:   r.From,
		To:     r.To,
		Amount: r.Amount,
		Fee:    r.Fee,
	}
	if r.Memo != "" {
		args.Memo = []byte(r.Memo)
	}
	if r.CreatedAt != nil {
		args.CreatedAt = *r.CreatedAt
	}
	if args.From.IsZero() && caller != "" {
		from, err := account.FromOwner(caller)
		if err != nil {
			return TransferArgs{}, err
		}
		args.From = from
	}
	return args, nil
}

// Transfer commits a transfer signed by the authenticated principal.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	req, caller, err := h.writeRequest(c)
	if err != nil {
		return err
	}
	args, err := req.args(caller)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	index, err := h.ledger.Transfer(c.UserContext(), caller, args)
	if err != nil {
		return h.rejection(c, err)
	}
	kind := classifyKind(h.ledger.MintingAccount(), args.From, args.To)
	return committed(c, index, kind)
}

// Mint credits new tokens to the target account. Only the minting account
// owner passes validation.
func (h *Handler) Mint(c *fiber.Ctx) error {
	req, caller, err := h.writeRequest(c)
	if err != nil {
		return err
	}
	args, err := req.args(caller)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	index, err := h.ledger.Mint(c.UserContext(), caller, args)
	if err != nil {
		return h.rejection(c, err)
	}
	return committed(c, index, KindMint)
}

// Burn retires tokens from the source account, the caller's default account
// when the request names none.
func (h *Handler) Burn(c *fiber.Ctx) error {
	req, caller, err := h.writeRequest(c)
	if err != nil {
		return err
	}
	args, err := req.args(caller)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	index, err := h.ledger.Burn(c.UserContext(), caller, args)
	if err != nil {
		return h.rejection(c, err)
	}
	return committed(c, index, KindBurn)
}

func (h *Handler) writeRequest(c *fiber.Ctx) (transferRequest, string, error) {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return req, "", fiber.NewError(http.StatusBadRequest, err.Error())
	}
	caller := middleware.CallerPrincipal(c)
	if caller == "" {
		return req, "", fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	return req, caller, nil
}

func committed(c *fiber.Ctx, index uint64, kind Kind) error {
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"index": index,
		"kind":  kind,
	})
}

func (h *Handler) rejection(c *fiber.Ctx, err error) error {
	var (
		duplicate    DuplicateError
		insufficient InsufficientBalanceError
		badFee       BadFeeError
		badBurn      BadBurnError
		generic      GenericError
	)
	switch {
	case errors.As(err, &duplicate):
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"error":        err.Error(),
			"duplicate_of": duplicate.DuplicateOf,
		})
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.As(err, &insufficient),
		errors.As(err, &badFee),
		errors.As(err, &badBurn),
		errors.As(err, &generic),
		errors.Is(err, ErrTooOld),
		errors.Is(err, ErrCreatedInFuture):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

// Balance reports the live balance of one account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	acct, err := account.Decode(c.Params("account"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{
		"account": acct,
		"balance": h.ledger.BalanceOf(acct),
	})
}

// Supply reports circulating supply and its mint/burn components.
func (h *Handler) Supply(c *fiber.Ctx) error {
	stats := h.ledger.Stats()
	return c.JSON(fiber.Map{
		"total_supply": stats.TotalSupply,
		"minted":       stats.Minted,
		"burned":       stats.Burned,
	})
}

// Metadata reports the token descriptors and the ledger's fixed parameters.
func (h *Handler) Metadata(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":            h.meta.Name,
		"symbol":          h.meta.Symbol,
		"decimals":        h.meta.Decimals,
		"transfer_fee":    h.ledger.TransferFee(),
		"min_burn_amount": h.ledger.MinBurnAmount(),
		"max_supply":      h.ledger.MaxSupply(),
		"minting_account": h.ledger.MintingAccount(),
	})
}

// Stats reports the ledger counters, plus archive usage once one is bound.
func (h *Handler) Stats(c *fiber.Ctx) error {
	stats := h.ledger.Stats()
	body := fiber.Map{
		"total_supply":       stats.TotalSupply,
		"minted":             stats.Minted,
		"burned":             stats.Burned,
		"total_transactions": stats.TotalTransactions,
		"log_size":           stats.LogSize,
		"archived_txs":       stats.ArchivedTxs,
		"migrating":          stats.Migrating,
	}
	if usage, ok, err := h.ledger.ArchiveUsage(c.UserContext()); ok && err == nil {
		body["archive"] = usage
	}
	return c.JSON(body)
}

// Transactions serves a history window. The live portion is inlined; the
// archived portion comes back as range descriptors for the archive endpoint.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	start, err := queryUint(c, "start", 0)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	length, err := queryUint(c, "length", defaultPageLength)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	resp := h.ledger.Transactions(start, length)
	body := fiber.Map{
		"length":       resp.Length,
		"log_length":   resp.LogLength,
		"transactions": resp.Transactions,
		"archived":     resp.Archived,
	}
	if resp.FirstIndex != NoFirstIndex {
		body["first_index"] = resp.FirstIndex
	}
	return c.JSON(body)
}

// TransactionByIndex looks up one committed transaction.
func (h *Handler) TransactionByIndex(c *fiber.Ctx) error {
	index, err := strconv.ParseUint(c.Params("index"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "index must be a non-negative integer")
	}
	tx, err := h.ledger.Transaction(c.UserContext(), index)
	if err != nil {
		if errors.Is(err, ErrTxNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusServiceUnavailable, "archive lookup failed")
	}
	return c.JSON(tx)
}

// ArchivedTransactions resolves a range descriptor against the archive.
func (h *Handler) ArchivedTransactions(c *fiber.Ctx) error {
	start, err := queryUint(c, "start", 0)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	length, err := queryUint(c, "length", defaultPageLength)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txs, err := h.ledger.Archived(c.UserContext(), Range{Start: start, Length: length})
	if err != nil {
		return fiber.NewError(http.StatusServiceUnavailable, "archive lookup failed")
	}
	return c.JSON(fiber.Map{
		"length":       len(txs),
		"transactions": txs,
	})
}

func queryUint(c *fiber.Ctx, key string, def uint64) (uint64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", key, err)
	}
	return v, nil
}
