package memory

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/platform"
)

const paramID = "id"

// Routes serves the fake over the same HTTP surface as the real platform, so
// platform.Client can be pointed at it. publicURL is the externally visible
// base URL used to build upload URLs; when empty the request host is used.
func Routes(p *Platform, publicURL string) http.Handler {
	publicURL = strings.TrimRight(publicURL, "/")
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/media/transcode/audio/uploadUrl", func(w http.ResponseWriter, req *http.Request) {
		slot, err := p.RequestUploadSlot(req.Context(), bearer(req))
		if err != nil {
			writeError(w, err)
			return
		}
		base := publicURL
		if base == "" {
			base = "http://" + req.Host
		}
		slot.UploadURL = base + "/uploads/" + slot.UploadID
		writeJSON(w, http.StatusOK, map[string]any{"upload": slot})
	})

	r.Put("/uploads/{"+paramID+"}", func(w http.ResponseWriter, req *http.Request) {
		audio, err := io.ReadAll(io.LimitReader(req.Body, maxDemoAudioSize+1))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if err := p.PutAudio(req.Context(), UploadScheme+chi.URLParam(req, paramID), audio); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/media/upload/{"+paramID+"}/transcoded", func(w http.ResponseWriter, req *http.Request) {
		status, err := p.TranscodeStatus(req.Context(), chi.URLParam(req, paramID), bearer(req))
		if err != nil {
			writeError(w, err)
			return
		}
		transcode := map[string]any{}
		if status.Ready {
			transcode["transcodedSha256"] = status.Result.ContentHash
			transcode["transcodedInfo"] = map[string]any{
				"duration": status.Result.Duration,
				"fileSize": status.Result.FileSizeBytes,
				"channels": status.Result.ChannelLayout,
				"format":   status.Result.Format,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"transcode": transcode})
	})

	r.Get("/content/mine", func(w http.ResponseWriter, req *http.Request) {
		cards, err := p.ListContent(req.Context(), bearer(req))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
	})

	r.Get("/content/{"+paramID+"}", func(w http.ResponseWriter, req *http.Request) {
		card, err := p.GetContent(req.Context(), chi.URLParam(req, paramID), bearer(req))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"card": card})
	})

	r.Post("/content", func(w http.ResponseWriter, req *http.Request) {
		var card model.Card
		if err := json.NewDecoder(req.Body).Decode(&card); err != nil {
			http.Error(w, "invalid card document", http.StatusBadRequest)
			return
		}
		written, err := p.WriteContent(req.Context(), card, bearer(req))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"card": written})
	})

	return r
}

func bearer(req *http.Request) string {
	token, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeError(w http.ResponseWriter, err error) {
	var serr *platform.StatusError
	if errors.As(err, &serr) {
		http.Error(w, serr.Body, serr.Status)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
