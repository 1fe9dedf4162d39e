package handlers

import "net/http"

// Connectivity reports whether the remote generation API accepts the
// configured credentials. The probe never fails the request; an unreachable
// upstream is a valid answer.
func (a *App) Connectivity(w http.ResponseWriter, r *http.Request) {
	result := a.Prober.ProbeConnectivity(r.Context())
	a.json(w, http.StatusOK, map[string]any{"ok": result.OK, "message": result.Message})
}
