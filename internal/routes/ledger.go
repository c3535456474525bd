package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mbongo/internal/ledger"
)

// RegisterLedgerRoutes wires the token ledger endpoints. Reads are public;
// write handlers sit behind the supplied middleware chain.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler, write ...fiber.Handler) {
	r.Get("/metadata", h.Metadata)
	r.Get("/supply", h.Supply)
	r.Get("/stats", h.Stats)
	r.Get("/balances/:account", h.Balance)
	r.Get("/transactions", h.Transactions)
	r.Get("/transactions/:index", h.TransactionByIndex)
	r.Get("/archive/transactions", h.ArchivedTransactions)

	w := r.Group("", write...)
	w.Post("/transfer", h.Transfer)
	w.Post("/mint", h.Mint)
	w.Post("/burn", h.Burn)
}
