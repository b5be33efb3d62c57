package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-course-api/internal/service"
	appErrors "github.com/noah-isme/edu-course-api/pkg/errors"
	"github.com/noah-isme/edu-course-api/pkg/response"
)

// TuitionHandler exposes tuition and payment endpoints.
type TuitionHandler struct {
	tuitions *service.TuitionService
	exports  *service.ExportService
}

// NewTuitionHandler constructs TuitionHandler.
func NewTuitionHandler(tuitions *service.TuitionService, exports *service.ExportService) *TuitionHandler {
	return &TuitionHandler{tuitions: tuitions, exports: exports}
}

// My godoc
// @Summary List my tuitions
// @Description Lists tuition bills for the current student, generating missing ones
// @Tags Tuitions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/tuitions [get]
func (h *TuitionHandler) My(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	tuitions, err := h.tuitions.MyTuitions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tuitions, nil)
}

// Get godoc
// @Summary Get tuition detail
// @Tags Tuitions
// @Produce json
// @Param id path string true "Tuition ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /me/tuitions/{id} [get]
func (h *TuitionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	tuition, err := h.tuitions.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tuition, nil)
}

// Pay godoc
// @Summary Submit a tuition payment
// @Tags Tuitions
// @Accept json
// @Produce json
// @Param id path string true "Tuition ID"
// @Param payload body service.PaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /me/tuitions/{id}/pay [post]
func (h *TuitionHandler) Pay(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	payment, err := h.tuitions.Pay(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// Receipt godoc
// @Summary Download tuition receipt
// @Description Renders a PDF receipt for a paid tuition
// @Tags Tuitions
// @Produce application/pdf
// @Param id path string true "Tuition ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /me/tuitions/{id}/receipt [get]
func (h *TuitionHandler) Receipt(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, fileName, err := h.exports.Receipt(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Data(http.StatusOK, "application/pdf", data)
}
