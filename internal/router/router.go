// Package router wires the HTTP surface. Interactive routes sit behind JWT
// auth; the point-of-sale redemption route sits behind API-key auth.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pointmart/backend/internal/auth"
	"github.com/pointmart/backend/internal/chainsync"
	"github.com/pointmart/backend/internal/dashboard"
	"github.com/pointmart/backend/internal/market"
	"github.com/pointmart/backend/internal/middleware"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/redeem"
	"github.com/pointmart/backend/internal/rights"
)

type Deps struct {
	Auth      *auth.Handler
	Rights    *rights.Handler
	Market    *market.Handler
	Redeem    *redeem.Handler
	Dashboard *dashboard.Handler
	Chain     *chainsync.Handler

	TokenValidator middleware.TokenValidator
	APIKeys        middleware.APIKeyRepo
}

// New returns the http.Handler serving the API under /api/v1.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", d.Auth.Register)
		r.Post("/auth/login", d.Auth.Login)

		// Interactive routes: bearer JWT.
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(d.TokenValidator))

			r.Get("/account/me", d.Dashboard.GetMe)
			r.Get("/account/entries", d.Dashboard.ListEntries)
			r.Get("/account/escrow", d.Dashboard.GetEscrow)

			r.Get("/api-keys", d.Dashboard.ListAPIKeys)
			r.Post("/api-keys", d.Dashboard.CreateAPIKey)
			r.Delete("/api-keys/{id}", d.Dashboard.DeactivateAPIKey)

			r.Get("/permits", d.Rights.BrowsePermits)
			r.Get("/permits/{id}", d.Rights.GetPermit)
			r.With(middleware.RequireRole(models.RoleSupplier)).Post("/permits", d.Rights.ListPermit)
			r.With(middleware.RequireRole(models.RoleSupplier)).Post("/permits/{id}/cancel", d.Rights.CancelPermit)
			r.With(middleware.RequireRole(models.RoleIssuer)).Post("/permits/{id}/buy", d.Rights.BuyPermit)
			r.With(middleware.RequireRole(models.RoleIssuer)).Post("/permits/{id}/redeem", d.Rights.RedeemPermit)

			r.Get("/caps", d.Rights.ListCaps)
			r.Get("/caps/{id}", d.Rights.GetCap)
			r.With(middleware.RequireRole(models.RoleIssuer)).Post("/caps/{id}/mint", d.Rights.Mint)
			r.Post("/caps/{id}/freeze", d.Rights.FreezeCap)

			r.Get("/objects", d.Market.Browse)
			r.Get("/objects/mine", d.Market.Inventory)
			r.Get("/objects/{objectID}", d.Market.GetObject)
			r.Get("/objects/{objectID}/trades", d.Market.TradeHistory)
			r.Post("/objects/{objectID}/list", d.Market.ListForSale)
			r.Post("/objects/{objectID}/buy", d.Market.Buy)
			r.Post("/objects/{objectID}/token", d.Redeem.GenerateToken)

			r.With(middleware.RequireRole(models.RoleAdmin)).Post("/chain/observations", d.Chain.Observe)
		})

		// Point-of-sale terminals authenticate with supplier API keys.
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(d.APIKeys))
			r.Post("/redeem", d.Redeem.Redeem)
		})
	})

	return r
}
