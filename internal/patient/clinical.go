/*
Package patient exposes the reconciliation engine to the mobile clients:
clinical parameter sync, history segmentation and the refresh socket.
*/
package patient

import (
	"context"
	"net/http"

	"MediSync_V1.0/internal/clinical"
	"MediSync_V1.0/internal/utility"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Engine is the slice of the reconciler the handlers consume.
type Engine interface {
	Sync(ctx context.Context, patientID string, draft *clinical.ParameterRecord) (clinical.Snapshot, error)
	History(ctx context.Context, patientID string) ([]clinical.HistoryEntry, error)
	AppendHistory(ctx context.Context, patientID, text string) ([]clinical.HistoryEntry, error)
}

var engine Engine

// Init wires the package to the engine shell. Call once at startup.
func Init(e Engine) {
	engine = e
}

// DraftRequest is the clinical parameter draft as the app submits it.
// Every measurement is optional; only non-nil fields reach the record.
type DraftRequest struct {
	Systolic         *string `json:"systolic"`
	Diastolic        *string `json:"diastolic"`
	Pulse            *string `json:"pulse"`
	Temperature      *string `json:"temperature"`
	RespiratoryRate  *string `json:"respiratory_rate"`
	OxygenSaturation *string `json:"oxygen_saturation"`
	Weight           *string `json:"weight"`
	Height           *string `json:"height"`
	BMI              *string `json:"bmi"`
	BloodGlucose     *string `json:"blood_glucose"`
	HbA1c            *string `json:"hba1c"`
	Cholesterol      *string `json:"cholesterol"`
	Hemoglobin       *string `json:"hemoglobin"`
	Creatinine       *string `json:"creatinine"`

	// Date is optional; an empty or missing value means "now".
	Date *string `json:"date"`

	// PendingNote is free text the user typed on the parameters screen; it
	// is appended to the history blob, never stored on the record.
	PendingNote *string `json:"pending_note"`
}

// toRecord maps the request onto a ParameterRecord draft.
func (req *DraftRequest) toRecord() *clinical.ParameterRecord {
	rec := &clinical.ParameterRecord{}

	if req.Systolic != nil {
		rec.Systolic = *req.Systolic
	}
	if req.Diastolic != nil {
		rec.Diastolic = *req.Diastolic
	}
	if req.Pulse != nil {
		rec.Pulse = *req.Pulse
	}
	if req.Temperature != nil {
		rec.Temperature = *req.Temperature
	}
	if req.RespiratoryRate != nil {
		rec.RespiratoryRate = *req.RespiratoryRate
	}
	if req.OxygenSaturation != nil {
		rec.OxygenSaturation = *req.OxygenSaturation
	}
	if req.Weight != nil {
		rec.Weight = *req.Weight
	}
	if req.Height != nil {
		rec.Height = *req.Height
	}
	if req.BMI != nil {
		rec.BMI = *req.BMI
	}
	if req.BloodGlucose != nil {
		rec.BloodGlucose = *req.BloodGlucose
	}
	if req.HbA1c != nil {
		rec.HbA1c = *req.HbA1c
	}
	if req.Cholesterol != nil {
		rec.Cholesterol = *req.Cholesterol
	}
	if req.Hemoglobin != nil {
		rec.Hemoglobin = *req.Hemoglobin
	}
	if req.Creatinine != nil {
		rec.Creatinine = *req.Creatinine
	}
	if req.Date != nil && *req.Date != "" {
		rec.Date = clinical.ParseFlexibleDate(*req.Date)
	}

	return rec
}

// GetClinicalParametersHandler handles GET /patients/clinical.
// It reconciles without a draft and returns the ordered snapshot; the
// "stale" flag tells the app the remote store was unreachable.
func GetClinicalParametersHandler(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := utility.GetUserIDFromContext(c)
	if err != nil {
		return err
	}

	snapshot, err := engine.Sync(ctx, userID, nil)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to sync clinical parameters")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load clinical parameters"})
	}

	return c.JSON(http.StatusOK, snapshot)
}

// SaveClinicalParametersHandler handles PUT /patients/clinical.
// The submitted draft becomes the reconciliation seed; a pending note, if
// present, goes to the history blob through the single appender.
func SaveClinicalParametersHandler(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := utility.GetUserIDFromContext(c)
	if err != nil {
		return err
	}

	var req DraftRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	snapshot, err := engine.Sync(ctx, userID, req.toRecord())
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to save clinical parameters")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save clinical parameters"})
	}

	if req.PendingNote != nil && *req.PendingNote != "" {
		if _, err := engine.AppendHistory(ctx, userID, *req.PendingNote); err != nil {
			// The parameter sync already succeeded; report the note failure
			// without discarding the snapshot.
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to append pending note to history")
		}
	}

	utility.TriggerClinicalRefresh(userID)
	return c.JSON(http.StatusOK, snapshot)
}

// GetClinicalHistoryHandler handles GET /patients/history, returning the
// segmented, ordered entries derived from the free-text blob.
func GetClinicalHistoryHandler(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := utility.GetUserIDFromContext(c)
	if err != nil {
		return err
	}

	entries, err := engine.History(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load clinical history")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load history"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"entries": entries})
}

// AppendHistoryRequest is the body of POST /patients/history.
type AppendHistoryRequest struct {
	Note string `json:"note" validate:"required"`
}

// AppendClinicalHistoryHandler handles POST /patients/history.
func AppendClinicalHistoryHandler(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := utility.GetUserIDFromContext(c)
	if err != nil {
		return err
	}

	var req AppendHistoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Note == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Note text is required"})
	}

	entries, err := engine.AppendHistory(ctx, userID, req.Note)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to append history entry")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to append history entry"})
	}

	utility.TriggerClinicalRefresh(userID)
	return c.JSON(http.StatusCreated, map[string]interface{}{"entries": entries})
}

// ClinicalSocketHandler upgrades the connection and keeps it registered so
// the server can push refresh hints after reconciliations.
func ClinicalSocketHandler(c echo.Context) error {
	userID, err := utility.GetUserIDFromContext(c)
	if err != nil {
		return err
	}

	conn, err := utility.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return err
	}

	utility.RegisterClient(userID, conn)
	defer utility.UnregisterClient(userID)

	// Drain the connection until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
