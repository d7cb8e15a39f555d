// Package api exposes the connectivity layer over HTTP with gin. Every
// response uses the Response envelope; failures are classified before they
// are written.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vitwit/walletlink/apperror"
)

// Response is the envelope shared by every endpoint.
type Response struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

// NewPagination computes page metadata for total items.
func NewPagination(page, limit, total int) *Pagination {
	pages := (total + limit - 1) / limit
	if pages < 1 {
		pages = 1
	}
	return &Pagination{
		Page:    page,
		Limit:   limit,
		Total:   total,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}

func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Fail classifies err and returns the envelope with the HTTP status to send.
func Fail(err error) (Response, int) {
	ae := apperror.Classify(err)
	return Response{
		Success: false,
		Error:   ae.Code(),
		Message: ae.Message(),
	}, ae.StatusCode()
}

func writeOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, OK(data))
}
