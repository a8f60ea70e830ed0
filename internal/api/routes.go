package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-fetch/internal/config"
	"github.com/heimdex/heimdex-fetch/internal/files"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/", rootHandler())
	r.Get("/health", healthHandler(cfg))
	r.Get("/download/{filename}", serveFileHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		r.Use(CORSMiddleware(cfg.CORSOrigins))

		r.Get("/video_info/{videoID}", videoInfoHandler(cfg))
		r.Post("/download_video", downloadVideoHandler(cfg))
		r.Post("/download_audio", downloadAudioHandler(cfg))
		r.Get("/download_status/{requestID}", downloadStatusHandler(cfg))
		r.Get("/status", allStatusHandler(cfg))
		r.Post("/delete_file", deleteFileHandler(cfg))
	})

	return r
}

func rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, RootResponse{
			Service: "fetchd",
			Status:  "running",
			Version: config.Version,
			Endpoints: map[string]string{
				"health":         "/health",
				"video_info":     "/api/video_info/<video_id> (GET)",
				"download_video": "/api/download_video (POST)",
				"download_audio": "/api/download_audio (POST)",
				"status_single":  "/api/download_status/<request_id> (GET)",
				"status_all":     "/api/status (GET)",
				"serve_file":     "/download/<filename> (GET)",
				"delete_file":    "/api/delete_file (POST)",
			},
		})
	}
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().Format(time.RFC3339),
			UptimeS:   int64(time.Since(cfg.StartTime).Seconds()),
		}
		if cfg.Version != nil {
			if v, err := cfg.Version.Get(r.Context()); err == nil {
				resp.EngineVersion = v
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func videoInfoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "videoID")
		if !ValidSourceID(id) {
			WriteError(w, http.StatusBadRequest, "Invalid videoId format", "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusOK, cfg.Estimator.Estimate(r.Context(), id))
	}
}

func downloadVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DownloadVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "No JSON data provided", "BAD_REQUEST")
			return
		}
		if req.VideoID == "" {
			WriteError(w, http.StatusBadRequest, "videoId is required", "BAD_REQUEST")
			return
		}
		if !ValidSourceID(req.VideoID) {
			WriteError(w, http.StatusBadRequest, "Invalid videoId format", "BAD_REQUEST")
			return
		}
		resolution, ok := parseChoice(req.Resolution, 720, videoResolutions)
		if !ok {
			WriteError(w, http.StatusBadRequest, "Invalid resolution", "BAD_REQUEST")
			return
		}

		id, err := cfg.Dispatcher.StartVideo(req.VideoID, resolution, titleOr(req.Title, "Unknown Video"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, DispatchResponse{Success: true, Message: "Download started", RequestID: id})
	}
}

func downloadAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DownloadAudioRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "No JSON data provided", "BAD_REQUEST")
			return
		}
		if req.VideoID == "" {
			WriteError(w, http.StatusBadRequest, "videoId is required", "BAD_REQUEST")
			return
		}
		if !ValidSourceID(req.VideoID) {
			WriteError(w, http.StatusBadRequest, "Invalid videoId format", "BAD_REQUEST")
			return
		}
		quality, ok := parseChoice(req.Quality, 128, audioQualities)
		if !ok {
			WriteError(w, http.StatusBadRequest, "Invalid audio quality", "BAD_REQUEST")
			return
		}

		id, err := cfg.Dispatcher.StartAudio(req.VideoID, quality, titleOr(req.Title, "Unknown Audio"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, DispatchResponse{Success: true, Message: "Audio download started", RequestID: id})
	}
}

func downloadStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := cfg.Jobs.Get(chi.URLParam(r, "requestID"))
		if !ok {
			WriteError(w, http.StatusNotFound, "Request ID not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func allStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, AllStatusResponse{Downloads: cfg.Jobs.List()})
	}
}

func serveFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")

		err := files.ServeAttachment(w, r, cfg.DownloadsDir, name)
		switch {
		case err == nil:
		case errors.Is(err, files.ErrNotFound), errors.Is(err, files.ErrInvalidName):
			WriteError(w, http.StatusNotFound, "File not found or is not a file", "NOT_FOUND")
		default:
			cfg.Logger.Error("serve file failed", "file", name, "error", err)
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		}
	}
}

func deleteFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeleteFileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == nil {
			WriteError(w, http.StatusBadRequest, "Filename not provided", "BAD_REQUEST")
			return
		}

		name, err := files.BaseName(*req.Filename)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid filename component provided", "BAD_REQUEST")
			return
		}

		err = files.Delete(cfg.DownloadsDir, name)
		switch {
		case err == nil:
			cfg.Logger.Info("file deleted", "file", name)
			WriteJSON(w, http.StatusOK, DeleteFileResponse{
				Success: true,
				Message: fmt.Sprintf("File %s deleted successfully.", name),
			})
		case errors.Is(err, files.ErrNotFound):
			WriteError(w, http.StatusNotFound, "File not found or is not a file.", "NOT_FOUND")
		default:
			WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Could not delete file: %v", err), "INTERNAL_ERROR")
		}
	}
}
