package httpkit

import (
	"net/http"
	"strconv"
	"strings"
)

type CORSOptions struct {
	// AllowedOrigins lists exact origins; "*" allows any origin.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	// Last-Event-ID lets EventSource clients resume a status stream.
	defaultCORSHeaders = []string{"Content-Type", "Accept", "Last-Event-ID", "X-Request-ID"}
)

type corsPolicy struct {
	anyOrigin bool
	origins   map[string]struct{}
	headers   map[string]string
}

func newCORSPolicy(opt CORSOptions) *corsPolicy {
	methods := opt.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := opt.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	maxAge := opt.MaxAgeSeconds
	if maxAge == 0 {
		maxAge = 600
	}

	p := &corsPolicy{
		origins: make(map[string]struct{}),
		headers: map[string]string{
			"Access-Control-Allow-Methods": strings.Join(methods, ", "),
			"Access-Control-Allow-Headers": strings.Join(headers, ", "),
			"Access-Control-Max-Age":       strconv.Itoa(maxAge),
		},
	}
	if len(opt.ExposedHeaders) > 0 {
		p.headers["Access-Control-Expose-Headers"] = strings.Join(opt.ExposedHeaders, ", ")
	}
	if opt.AllowCredentials {
		p.headers["Access-Control-Allow-Credentials"] = "true"
	}
	for _, o := range opt.AllowedOrigins {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			p.anyOrigin = true
		default:
			p.origins[o] = struct{}{}
		}
	}
	return p
}

func (p *corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// CORS decorates responses for allowed origins and answers preflight
// requests with 204 without reaching the router.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	p := newCORSPolicy(opt)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); p.allows(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				for k, v := range p.headers {
					h.Set(k, v)
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
