package routes

import (
	"net/http"

	"usdacore/native/crosschain"
)

// crossChainReceive accepts a signed envelope from the peer deployment. The
// signature is the authentication; no bearer token is required.
func (a *api) crossChainReceive(w http.ResponseWriter, r *http.Request) {
	var msg crosschain.Message
	if err := decodeRequest(r, &msg); err != nil {
		writeBadRequest(w, err)
		return
	}
	applied, err := a.node.Receive(r.Context(), msg)
	if err != nil {
		a.logger.Warn("crosschain: rejected message", "id", msg.ID, "src", msg.SrcChain, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       msg.ID,
		"sequence": msg.Sequence,
		"applied":  applied,
	})
}
