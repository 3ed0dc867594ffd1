package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tmeras/resellmart/internal/service"
)

// StatsHandler обрабатывает запрос GET /api/stats?year=YYYY&month=M.
// Без параметров берётся текущий месяц (UTC).
func StatsHandler(log *slog.Logger, statsService service.StatsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.StatsHandler"
		logger := log.With(slog.String("op", op))

		now := time.Now().UTC()
		year := now.Year()
		month := now.Month()

		if v := r.URL.Query().Get("year"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				logger.Error("invalid year parameter", slog.String("year", v))
				http.Error(w, "invalid year", http.StatusBadRequest)
				return
			}
			year = parsed
		}
		if v := r.URL.Query().Get("month"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 || parsed > 12 {
				logger.Error("invalid month parameter", slog.String("month", v))
				http.Error(w, "invalid month", http.StatusBadRequest)
				return
			}
			month = time.Month(parsed)
		}

		stats, err := statsService.GetMonthlyStats(r.Context(), year, month)
		if err != nil {
			logger.Error("failed to get stats", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}
}
