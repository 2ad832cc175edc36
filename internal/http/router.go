package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Plans      *PlanHandler
	Exceptions *ExceptionHandler
	Queue      *QueueHandler
	Tokens     *TokenHandler
	Events     *EventHandler
	Ring       *RingHandler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Plans != nil {
		mux.HandleFunc("/plans", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Plans.List(w, r)
			case http.MethodPost:
				cfg.Plans.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/plans/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/plans/")
			if rest == "" {
				http.NotFound(w, r)
				return
			}

			id, sub, _ := strings.Cut(rest, "/")
			ctx := ContextWithPlanID(r.Context(), id)
			r = r.WithContext(ctx)

			if sub == "enabled" {
				if r.Method != http.MethodPut {
					methodNotAllowed(w, http.MethodPut)
					return
				}
				cfg.Plans.SetEnabled(w, r)
				return
			}
			if sub != "" {
				http.NotFound(w, r)
				return
			}

			switch r.Method {
			case http.MethodGet:
				cfg.Plans.Get(w, r)
			case http.MethodPut:
				cfg.Plans.Update(w, r)
			case http.MethodDelete:
				cfg.Plans.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
			}
		})
	}

	if cfg.Exceptions != nil {
		mux.HandleFunc("/exceptions", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Exceptions.List(w, r)
			case http.MethodPost:
				cfg.Exceptions.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/exceptions/", func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimPrefix(r.URL.Path, "/exceptions/")
			if id == "" {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithExceptionID(r.Context(), id)
			r = r.WithContext(ctx)
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Exceptions.Delete(w, r)
		})
	}

	if cfg.Queue != nil {
		mux.HandleFunc("/queue", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Queue.List(w, r)
		})
	}

	if cfg.Tokens != nil {
		mux.HandleFunc("/tokens", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Tokens.List(w, r)
		})
	}

	if cfg.Events != nil {
		mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Events.Post(w, r)
		})
	}

	if cfg.Ring != nil {
		mux.HandleFunc("/ring", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Ring.Status(w, r)
		})
		mux.HandleFunc("/ring/stop", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Ring.Stop(w, r)
		})
		mux.HandleFunc("/ring/snooze", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Ring.Snooze(w, r)
		})
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
