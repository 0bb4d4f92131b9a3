package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ProbeHandler делает исходящий GET через аудирующий клиент.
// Удобно для проверки, что исходящие вызовы попадают в datastream.
// Ходит только на хосты из allowedHosts: пустой список запрещает все.
type ProbeHandler struct {
	client       *http.Client
	allowedHosts map[string]struct{}
	logger       *zap.Logger
}

func NewProbeHandler(client *http.Client, allowedHosts []string, logger *zap.Logger) *ProbeHandler {
	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = struct{}{}
		}
	}
	return &ProbeHandler{client: client, allowedHosts: allowed, logger: logger.Named("probe")}
}

// AllowedHosts — для логов при старте.
func (h *ProbeHandler) AllowedHosts() []string {
	hosts := make([]string, 0, len(h.allowedHosts))
	for host := range h.allowedHosts {
		hosts = append(hosts, host)
	}
	return hosts
}

func (h *ProbeHandler) allowed(u *url.URL) bool {
	_, ok := h.allowedHosts[strings.ToLower(u.Hostname())]
	return ok
}

// Probe
// GET /v1/probe?url=https://...
func (h *ProbeHandler) Probe(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		http.Error(w, "url query param must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}
	if !h.allowed(u) {
		h.logger.Warn("probe target not allowed", zap.String("host", u.Hostname()))
		http.Error(w, "probe target host is not allowed", http.StatusForbidden)
		return
	}

	// Контекст запроса несет CallContext из callctx.Middleware
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		http.Error(w, "Failed to build request", http.StatusBadRequest)
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("probe call failed", zap.String("url", u.String()), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"url": u.String(), "status": resp.StatusCode})
}
