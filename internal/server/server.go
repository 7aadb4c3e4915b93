package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/savory/internal/handler"
	"github.com/dukerupert/savory/internal/middleware"
	"github.com/dukerupert/savory/internal/search"
	"github.com/dukerupert/savory/internal/store"
	ws "github.com/dukerupert/savory/internal/websocket"
)

// Options carries the runtime settings the router needs.
type Options struct {
	Cache          search.Cache
	CacheTTL       time.Duration
	Retry          store.RetryPolicy
	SessionTTL     time.Duration
	SecureCookie   bool
	LoginAttempts  int
	LoginWindow    time.Duration
	AllowedOrigins []string
}

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	engine         *search.Engine
	authH          *handler.AuthHandler
	ingredientH    *handler.IngredientHandler
	recipeH        *handler.RecipeHandler
	pantryH        *handler.PantryHandler
	shoppingH      *handler.ShoppingHandler
	collectionH    *handler.CollectionHandler
	adminH         *handler.AdminHandler
	sessionStore   *store.SessionStore
	userStore      *store.UserStore
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	logger         *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger)

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	recipeStore := store.NewRecipeStore(db)
	ingredientStore := store.NewIngredientStore(db)
	pantryStore := store.NewPantryStore(db, opts.Retry)
	shoppingStore := store.NewShoppingStore(db)
	collectionStore := store.NewCollectionStore(db)

	engine := search.NewEngine(recipeStore, opts.Cache, opts.CacheTTL, logger)

	if opts.LoginAttempts <= 0 {
		opts.LoginAttempts = 10
	}
	if opts.LoginWindow <= 0 {
		opts.LoginWindow = time.Minute
	}

	return &Server{
		db:             db,
		hub:            hub,
		engine:         engine,
		authH:          handler.NewAuthHandler(userStore, sessionStore, opts.SessionTTL, opts.SecureCookie, logger.With("component", "auth")),
		ingredientH:    handler.NewIngredientHandler(ingredientStore, logger.With("component", "ingredient")),
		recipeH:        handler.NewRecipeHandler(recipeStore, pantryStore, engine, logger.With("component", "recipe")),
		pantryH:        handler.NewPantryHandler(pantryStore, engine, hub, logger.With("component", "pantry")),
		shoppingH:      handler.NewShoppingHandler(shoppingStore, engine, hub, logger.With("component", "shopping")),
		collectionH:    handler.NewCollectionHandler(collectionStore, logger.With("component", "collection")),
		adminH:         handler.NewAdminHandler(engine, hub, recipeStore, logger.With("component", "admin")),
		sessionStore:   sessionStore,
		userStore:      userStore,
		rateLimiter:    middleware.NewRateLimiter(opts.LoginAttempts, opts.LoginWindow),
		allowedOrigins: opts.AllowedOrigins,
		logger:         logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Engine() *search.Engine {
	return s.engine
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	required := middleware.RequireAuth(s.sessionStore, s.userStore)
	optional := middleware.OptionalAuth(s.sessionStore, s.userStore)
	authed := func(h http.HandlerFunc) http.Handler { return required(h) }
	maybe := func(h http.HandlerFunc) http.Handler { return optional(h) }

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.Handle("POST /api/login", s.rateLimitedHandler(s.authH.Login))
	mux.Handle("POST /api/logout", authed(s.authH.Logout))
	mux.Handle("GET /api/me", authed(s.authH.Me))

	mux.HandleFunc("GET /api/ingredients/search", s.ingredientH.Search)
	mux.Handle("POST /api/ingredients", authed(s.ingredientH.Create))

	mux.Handle("GET /api/recipes", maybe(s.recipeH.List))
	mux.HandleFunc("GET /api/recipes/categories", s.recipeH.Categories)
	mux.Handle("GET /api/recipes/{id}", maybe(s.recipeH.Detail))
	mux.Handle("GET /api/recipes/{id}/missing", authed(s.recipeH.Missing))

	mux.Handle("GET /api/pantry", authed(s.pantryH.List))
	mux.Handle("POST /api/pantry/{ingredient_id}", authed(s.pantryH.Add))
	mux.Handle("DELETE /api/pantry/{ingredient_id}", authed(s.pantryH.Remove))
	mux.Handle("GET /api/pantry/{ingredient_id}/related", authed(s.pantryH.Related))
	mux.Handle("PUT /api/pantry/{ingredient_id}/related", authed(s.pantryH.SaveRelated))

	mux.Handle("GET /api/shopping", authed(s.shoppingH.List))
	mux.Handle("POST /api/shopping/complete", authed(s.shoppingH.Complete))
	mux.Handle("POST /api/shopping/{ingredient_id}", authed(s.shoppingH.Add))
	mux.Handle("DELETE /api/shopping/{ingredient_id}", authed(s.shoppingH.Remove))
	mux.Handle("POST /api/shopping/{ingredient_id}/toggle", authed(s.shoppingH.Toggle))

	mux.Handle("GET /api/collections", authed(s.collectionH.List))
	mux.Handle("POST /api/collections/{recipe_id}", authed(s.collectionH.Save))
	mux.Handle("DELETE /api/collections/{recipe_id}", authed(s.collectionH.Remove))

	mux.Handle("POST /api/admin/cache/clear", required(middleware.RequireSuperuser(http.HandlerFunc(s.adminH.ClearCache))))
	mux.Handle("GET /api/admin/stats", required(middleware.RequireSuperuser(http.HandlerFunc(s.adminH.Stats))))

	mux.Handle("GET /ws", authed(ws.HandleWebSocket(s.hub, s.allowedOrigins)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"success":false,"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"success":true,"status":"ok"}`))
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.LoginKey)(h)
}
