package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/debulol/dota2-inhouse/internal/constants"
	"github.com/debulol/dota2-inhouse/internal/ws"
)

type API struct {
	rooms  Rooms
	broker ws.Broker
	log    *zap.Logger
}

func New(rooms Rooms, broker ws.Broker, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{rooms: rooms, broker: broker, log: log.Named("http")}
}

// Routes builds the router. origins lists the browser origins allowed by
// CORS and the websocket handshake; "*" allows any.
func (a *API) Routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", participantHeader},
		MaxAge:         300,
	}).Handler)

	r.Get("/healthz", healthz)
	r.Get("/ws", ws.Handler(a.rooms, a.broker, ws.Options{OriginPatterns: origins}, a.log))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(constants.RequestTimeout))

		r.Post("/participants", a.createParticipant)
		r.Get("/participants/{id}", a.getParticipant)
		r.Patch("/participants/{id}", a.updateParticipant)
		r.Delete("/participants/{id}", a.deleteParticipant)

		r.Post("/rooms", a.createRoom)
		r.Get("/rooms", a.listRooms)
		r.Post("/rooms/join", a.joinRoom)
		r.Get("/rooms/code/{code}", a.getRoomByCode)

		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Get("/", a.getRoom)
			r.Post("/leave", a.roomAction(a.leave))
			r.Post("/kick", a.roomAction(a.kick))
			r.Post("/roll", a.roll)
			r.Post("/reroll", a.roomAction(a.reroll))
			r.Post("/captains", a.roomAction(a.assignCaptains))
			r.Post("/draft", a.roomAction(a.startDraft))
			r.Post("/picks", a.roomAction(a.pick))
			r.Put("/preference", a.roomAction(a.setPreference))
			r.Post("/match", a.roomAction(a.startMatch))
			r.Post("/match/finish", a.finishMatch)
		})

		r.Get("/matches/{matchID}", a.getMatch)
	})
	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
		)
	})
}
