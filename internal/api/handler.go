package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/df-mc/atomic"
	"github.com/gertd/wild"
	"github.com/go-chi/render"
	"github.com/gofrs/uuid"
	"github.com/gorilla/schema"
	"github.com/haveachin/minestat/internal/exporter"
	"github.com/haveachin/minestat/pkg/minestat"
	"go.uber.org/zap"
)

type errorDTO struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func getTargetsHandler(e *exporter.Exporter) http.HandlerFunc {
	type targetDTO struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		Port    int    `json:"port"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		dtos := []targetDTO{}
		if e != nil {
			for _, t := range e.Targets() {
				dtos = append(dtos, targetDTO{
					Name:    t.Name,
					Address: t.Address,
					Port:    t.Port,
				})
			}
		}

		render.JSON(w, r, dtos)
	}
}

func isAllowed(allowlist []string, address string) bool {
	for _, pattern := range allowlist {
		if wild.Match(pattern, address, true) {
			return true
		}
	}
	return false
}

func getProbeHandler(settings *atomic.Value[probeSettings], logger *zap.Logger) http.HandlerFunc {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	type probeDTO struct {
		ProbeID     string                `json:"probeId"`
		Address     string                `json:"address"`
		Port        int                   `json:"port"`
		LatencyMs   float64               `json:"latencyMs,omitempty"`
		FaviconHash string                `json:"faviconHash,omitempty"`
		Summary     minestat.Summary      `json:"summary"`
		Status      minestat.ServerStatus `json:"status"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		reqDTO := &struct {
			Address string `schema:"address,required"`
			Port    int    `schema:"port"`
		}{}

		if err := decoder.Decode(reqDTO, r.URL.Query()); err != nil {
			renderError(w, r, http.StatusUnprocessableEntity, errorDTO{Error: err.Error()})
			return
		}

		if reqDTO.Port == 0 {
			reqDTO.Port = minestat.DefaultPort
		}

		if reqDTO.Port < 1 || reqDTO.Port > 65535 {
			renderError(w, r, http.StatusUnprocessableEntity, errorDTO{Error: minestat.ErrInvalidPort.Error()})
			return
		}

		ps := settings.Load()
		if !isAllowed(ps.allowlist, reqDTO.Address) {
			renderError(w, r, http.StatusForbidden, errorDTO{Error: "address is not allowed"})
			return
		}

		probeID, _ := uuid.NewV4()
		logger := logger.With(
			zap.Stringer("probeId", probeID),
			zap.String("address", reqDTO.Address),
			zap.Int("port", reqDTO.Port),
		)

		res, err := ps.prober.Query(r.Context(), reqDTO.Address, reqDTO.Port)
		if err != nil {
			logger.Debug("probe failed", zap.Error(err))
			dto := errorDTO{
				Error: err.Error(),
				Kind:  exporter.ErrorKind(err),
			}

			var qErr *minestat.QueryError
			if errors.As(err, &qErr) {
				dto.Stage = string(qErr.Stage)
			}

			renderError(w, r, statusCode(err), dto)
			return
		}

		summary, err := res.Status.Summary()
		if err != nil {
			logger.Debug("failed to summarize status", zap.Error(err))
		}

		respDTO := probeDTO{
			ProbeID: probeID.String(),
			Address: reqDTO.Address,
			Port:    reqDTO.Port,
			Summary: summary,
			Status:  res.Status,
		}

		if res.Latency > 0 {
			respDTO.LatencyMs = float64(res.Latency.Microseconds()) / 1000
		}

		if res.Status.Favicon() != "" {
			respDTO.FaviconHash = strconv.FormatUint(res.Status.FaviconHash(), 16)
		}

		render.JSON(w, r, respDTO)
	}
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, minestat.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, minestat.ErrInvalidPort):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func renderError(w http.ResponseWriter, r *http.Request, status int, dto errorDTO) {
	render.Status(r, status)
	render.JSON(w, r, dto)
}
