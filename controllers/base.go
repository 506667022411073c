package controllers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/qaforum/config"
	"github.com/cppla/qaforum/middleware"
	"github.com/cppla/qaforum/utils"
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	Prev       int   `json:"-"`
	Next       int   `json:"-"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if pages == 0 {
		pages = 1
	}
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages, Prev: page - 1, Next: page + 1}
}

// render writes an HTML page, adding the site title and the caller's identity to data.
func render(ctx *gin.Context, status int, page, title string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Title"] = title
	data["SiteTitle"] = config.Get().SiteTitle
	data["Identity"] = middleware.CurrentIdentity(ctx)
	ctx.HTML(status, page, data)
}

func renderError(ctx *gin.Context, status int, message string) {
	render(ctx, status, "error.html", http.StatusText(status), gin.H{"Message": message})
	ctx.Abort()
}

func notFound(ctx *gin.Context, what string) {
	renderError(ctx, http.StatusNotFound, "No "+what+" matches the given query.")
}

func forbidden(ctx *gin.Context) {
	renderError(ctx, http.StatusForbidden, "You do not have permission to perform this action.")
}

// serverError logs a store failure and answers 500.
func serverError(ctx *gin.Context, msg string, err error) {
	utils.Sugar.Errorw(msg, "path", ctx.Request.URL.Path, "err", err)
	renderError(ctx, http.StatusInternalServerError, "Something went wrong. Please try again later.")
}

// pathID parses a positive integer route parameter. Anything else resolves to Not-Found.
func pathID(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// postValues returns the submitted form body.
func postValues(ctx *gin.Context) (url.Values, error) {
	if err := ctx.Request.ParseForm(); err != nil {
		return nil, err
	}
	return ctx.Request.PostForm, nil
}

func parsePagination(pageStr, sizeStr string, defaultSize int) (int, int) {
	page := 1
	pageSize := defaultSize
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// NotFound renders the generic 404 page for unmatched routes.
func NotFound(ctx *gin.Context) {
	renderError(ctx, http.StatusNotFound, "The requested page was not found.")
}
