// Package handler exposes the document coordination engine over HTTP.
package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/contentstore"
	"github.com/gogotex/gogotex/backend/notary-service/internal/document"
	"github.com/gogotex/gogotex/backend/notary-service/internal/document/service"
	"github.com/gogotex/gogotex/backend/notary-service/internal/fingerprint"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/middleware"
)

// MaxBatch bounds one batch verification request.
const MaxBatch = 100

// RegisterDocumentRoutes mounts the document API on rg. Routes that slash or
// drop cache records are only mounted when operator is non-nil and run behind it.
func RegisterDocumentRoutes(rg gin.IRouter, svc *service.Service, operator gin.HandlerFunc) {
	rg.POST("/documents", func(c *gin.Context) {
		req, err := readRegistration(c)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		d, err := svc.Register(c.Request.Context(), req.Fingerprint, req.Content, req.Name, req.Owner)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	})

	rg.GET("/documents", func(c *gin.Context) {
		ctx := c.Request.Context()
		var (
			list []*document.Document
			err  error
		)
		switch {
		case c.Query("owner") != "":
			list, err = svc.ListByOwner(ctx, c.Query("owner"))
		case c.Query("notary") != "":
			list, err = svc.ListByNotary(ctx, c.Query("notary"))
		case c.Query("notarized") != "":
			notarized, perr := strconv.ParseBool(c.Query("notarized"))
			if perr != nil {
				middleware.WriteError(c, apperr.Wrap(apperr.ErrInvalidInput, "notarized must be a boolean"))
				return
			}
			list, err = svc.ListByNotarized(ctx, notarized)
		default:
			list, err = svc.List(ctx)
		}
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.GET("/documents/:fingerprint", func(c *gin.Context) {
		d, err := svc.Get(c.Request.Context(), c.Param("fingerprint"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	rg.GET("/documents/:fingerprint/content", func(c *gin.Context) {
		b, d, err := svc.Content(c.Request.Context(), c.Param("fingerprint"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(d.Name, `"`, "")+`"`)
		c.Header("X-Content-Address", d.ContentAddress)
		c.Data(http.StatusOK, "application/octet-stream", b)
	})

	rg.PATCH("/documents/:fingerprint", func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.WriteError(c, apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
			return
		}
		d, err := svc.Rename(c.Request.Context(), c.Param("fingerprint"), req.Name)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	rg.POST("/documents/:fingerprint/notarize", func(c *gin.Context) {
		var req struct {
			Notary  string `json:"notary"`
			Content []byte `json:"content,omitempty"`
		}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				middleware.WriteError(c, apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
				return
			}
		}
		if req.Notary == "" {
			req.Notary = c.GetHeader(middleware.NotaryHeader)
		}
		d, err := svc.Notarize(c.Request.Context(), c.Param("fingerprint"), req.Notary, req.Content)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	rg.GET("/documents/:fingerprint/verification", func(c *gin.Context) {
		st, err := svc.Verify(c.Request.Context(), c.Param("fingerprint"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": st, "verified": st.Verified(), "partial": st.Partial()})
	})

	rg.POST("/documents/:fingerprint/verify", func(c *gin.Context) {
		res, err := svc.ManualVerify(c.Request.Context(), c.Param("fingerprint"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	rg.POST("/verifications", func(c *gin.Context) {
		var req struct {
			Fingerprints []string `json:"fingerprints"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.WriteError(c, apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
			return
		}
		if len(req.Fingerprints) == 0 || len(req.Fingerprints) > MaxBatch {
			middleware.WriteError(c, apperr.Wrap(apperr.ErrInvalidInput, "between 1 and %d fingerprints required", MaxBatch))
			return
		}
		c.JSON(http.StatusOK, svc.BatchVerify(c.Request.Context(), req.Fingerprints))
	})

	rg.GET("/verifications/due", func(c *gin.Context) {
		list, err := svc.DocumentsNeedingVerification(c.Request.Context())
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.GET("/content/:cid/document", func(c *gin.Context) {
		d, err := svc.GetByContentAddress(c.Request.Context(), c.Param("cid"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	rg.GET("/owners/:owner/documents", func(c *gin.Context) {
		list, err := svc.OwnerDocuments(c.Request.Context(), c.Param("owner"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	if operator == nil {
		logger.Warnf("document routes: no operator auth configured, delete and audit routes disabled")
		return
	}

	rg.DELETE("/documents/:fingerprint", operator, func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("fingerprint")); err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	rg.POST("/documents/:fingerprint/audit", operator, func(c *gin.Context) {
		res, slashed, err := svc.AuditIntegrity(c.Request.Context(), c.Param("fingerprint"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		if slashed == nil {
			slashed = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"result": res, "slashed": slashed})
	})
}

type registration struct {
	Fingerprint string `json:"fingerprint"`
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	Content     []byte `json:"content"`
}

// readRegistration accepts either a multipart upload (file, name, owner,
// fingerprint) or JSON with base64 content. A missing fingerprint is derived
// from the content.
func readRegistration(c *gin.Context) (*registration, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, contentstore.MaxContentBytes+1<<20)
	var req registration
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "file: %v", err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "file: %v", err)
		}
		defer f.Close()
		if req.Content, err = io.ReadAll(f); err != nil {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "file: %v", err)
		}
		req.Fingerprint = c.PostForm("fingerprint")
		req.Name = c.PostForm("name")
		if req.Name == "" {
			req.Name = fh.Filename
		}
		req.Owner = c.PostForm("owner")
	} else if err := c.ShouldBindJSON(&req); err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "%v", err)
	}
	if len(req.Content) == 0 {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "content required")
	}
	if req.Owner == "" {
		req.Owner = middleware.Subject(c)
	}
	if req.Fingerprint == "" {
		req.Fingerprint = string(fingerprint.Of(req.Content))
	}
	return &req, nil
}
