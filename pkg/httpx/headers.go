package httpx

import "net/http"

// NoCache marks an outbound request so that no intermediary or the ESB
// answers it from a cache.
func NoCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
}

// Bearer sets the Authorization header. An empty token leaves the header
// unset.
func Bearer(h http.Header, token string) {
	if token == "" {
		return
	}
	h.Set("Authorization", "Bearer "+token)
}

// CloseRequestBody closes req's body if it has one. RoundTrippers must do
// this on every path, including errors.
func CloseRequestBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
