package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/threshold-alerts/internal/pkg/application"
	"github.com/diwise/threshold-alerts/internal/pkg/application/alerts"
	"github.com/diwise/threshold-alerts/internal/pkg/presentation/api/auth"
	"github.com/diwise/threshold-alerts/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("threshold-alerts/api")

// RegisterHandlers mounts the api on router. When stream is not nil it is
// served to administrators as a live feed of alert events.
func RegisterHandlers(ctx context.Context, router *chi.Mux, authn *auth.Authenticator, authz auth.Authorizer, app application.App, stream http.Handler) *chi.Mux {
	log := logging.GetFromContext(ctx)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Use(authn.Middleware())

		r.Route("/admin", func(r chi.Router) {
			r.Route("/thresholds", func(r chi.Router) {
				r.With(authz.RequireAccess(auth.ListThresholds)).Get("/", listThresholdsHandler(log, app))
				r.With(authz.RequireAccess(auth.CreateThreshold)).Post("/", createThresholdHandler(log, app))
				r.With(authz.RequireAccess(auth.GetThreshold)).Get("/{thresholdID}", getThresholdHandler(log, app))
				r.With(authz.RequireAccess(auth.UpdateThreshold)).Put("/{thresholdID}", updateThresholdHandler(log, app))
				r.With(authz.RequireAccess(auth.DeleteThreshold)).Delete("/{thresholdID}", deleteThresholdHandler(log, app))
			})

			r.With(authz.RequireAccess(auth.ListAllAlerts)).Get("/alerts", listAlertsHandler(log, app))
			r.With(authz.RequireAccess(auth.ResolveAlert)).Post("/alerts/{alertID}/resolve", resolveAlertHandler(log, app))
			r.With(authz.RequireAccess(auth.ListAllValues)).Get("/values", listValuesHandler(log, app))

			if stream != nil {
				r.With(authz.RequireAccess(auth.StreamAlerts)).Get("/events", stream.ServeHTTP)
			}
		})

		r.Route("/operator", func(r chi.Router) {
			r.With(authz.RequireAccess(auth.SubmitValue)).Post("/values", submitValueHandler(log, app))
			r.With(authz.RequireAccess(auth.ListOwnValues)).Get("/values", listValuesHandler(log, app))
			r.With(authz.RequireAccess(auth.ListOwnAlerts)).Get("/alerts", listAlertsHandler(log, app))
		})
	})

	return router
}

func listThresholdsHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "list-thresholds")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		offset, limit, err := paging(r)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		thresholds, err := app.ListThresholds(ctx, offset, limit)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		writeJSON(w, requestLogger, http.StatusOK, thresholds)
	}
}

func getThresholdHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-threshold")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		thresholdID, err := idParam(r, "thresholdID")
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}
		requestLogger = requestLogger.With().Uint("threshold_id", thresholdID).Logger()

		threshold, err := app.GetThreshold(ctx, thresholdID)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		writeJSON(w, requestLogger, http.StatusOK, threshold)
	}
}

func createThresholdHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "create-threshold")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		req := types.CreateThresholdRequest{}
		if err = decode(r, &req); err != nil {
			writeError(w, requestLogger, err)
			return
		}

		threshold, err := app.CreateThreshold(ctx, req)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		w.Header().Set("Location", fmt.Sprintf("/api/admin/thresholds/%d", threshold.ID))
		writeJSON(w, requestLogger, http.StatusCreated, threshold)
	}
}

func updateThresholdHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "update-threshold")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		thresholdID, err := idParam(r, "thresholdID")
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}
		requestLogger = requestLogger.With().Uint("threshold_id", thresholdID).Logger()

		req := types.UpdateThresholdRequest{}
		if err = decode(r, &req); err != nil {
			writeError(w, requestLogger, err)
			return
		}

		threshold, err := app.UpdateThreshold(ctx, thresholdID, req)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		writeJSON(w, requestLogger, http.StatusOK, threshold)
	}
}

func deleteThresholdHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "delete-threshold")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		thresholdID, err := idParam(r, "thresholdID")
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}
		requestLogger = requestLogger.With().Uint("threshold_id", thresholdID).Logger()

		err = app.DeleteThreshold(ctx, thresholdID)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func submitValueHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "submit-value")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		principal, _ := auth.PrincipalFromContext(ctx)

		req := types.SubmitValueRequest{}
		if err = decode(r, &req); err != nil {
			writeError(w, requestLogger, err)
			return
		}
		if req.Value == nil {
			err = fmt.Errorf("%w: value must be a finite number", types.ErrValidation)
			writeError(w, requestLogger, err)
			return
		}

		submission, err := app.SubmitValue(ctx, principal, *req.Value)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		writeJSON(w, requestLogger, http.StatusCreated, submission)
	}
}

// listValuesHandler serves both the administrative and the personal listing,
// the role of the principal decides the scope.
func listValuesHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "list-values")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		principal, _ := auth.PrincipalFromContext(ctx)

		offset, limit, err := paging(r)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		values, err := app.ListValues(ctx, principal, offset, limit)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		writeJSON(w, requestLogger, http.StatusOK, values)
	}
}

func listAlertsHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "list-alerts")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		principal, _ := auth.PrincipalFromContext(ctx)

		filter := alerts.Filter{}
		filter.Offset, filter.Limit, err = paging(r)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		if resolved := r.URL.Query().Get("resolved"); resolved != "" {
			var b bool
			b, err = strconv.ParseBool(resolved)
			if err != nil {
				err = fmt.Errorf("%w: resolved must be true or false", types.ErrValidation)
				writeError(w, requestLogger, err)
				return
			}
			filter.Resolved = &b
		}

		result, err := app.ListAlerts(ctx, principal, filter)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		writeJSON(w, requestLogger, http.StatusOK, result)
	}
}

func resolveAlertHandler(log zerolog.Logger, app application.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "resolve-alert")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		principal, _ := auth.PrincipalFromContext(ctx)

		alertID, err := idParam(r, "alertID")
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}
		requestLogger = requestLogger.With().Uint("alert_id", alertID).Logger()

		alert, err := app.ResolveAlert(ctx, principal, alertID)
		if err != nil {
			writeError(w, requestLogger, err)
			return
		}

		writeJSON(w, requestLogger, http.StatusOK, alert)
	}
}

func idParam(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", types.ErrValidation, name)
	}
	return uint(id), nil
}

func paging(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()

	if s := q.Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: offset must be a non-negative integer", types.ErrValidation)
		}
	}

	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("%w: limit must be a non-negative integer", types.ErrValidation)
		}
	}

	return offset, limit, nil
}

func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		return fmt.Errorf("%w: unable to decode request body: %s", types.ErrValidation, err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("unable to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrReferentialIntegrity):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := statusFor(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		message = http.StatusText(status)
		if errors.Is(err, types.ErrPersistence) {
			message = types.ErrPersistence.Error()
		}
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	writeJSON(w, log, status, map[string]string{"message": message})
}
