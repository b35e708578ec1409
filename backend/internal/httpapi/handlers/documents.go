package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"syncServer/backend/internal/collab"
)

type Documents struct {
	svc *collab.Service
}

func NewDocuments(svc *collab.Service) *Documents {
	return &Documents{svc: svc}
}

type createDocReq struct {
	Title string `json:"title" binding:"required,max=200"`
}

// Create POST /v1/docs
func (h *Documents) Create(c *gin.Context) {
	// 从gin.Context获取用户信息；门卫中间件已写入
	userID := c.GetUint64("userId")

	var req createDocReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	doc, err := h.svc.CreateDocument(c.Request.Context(), userID, req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create document failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"docId":     doc.ID,
		"ownerId":   doc.CreatedBy,
		"title":     doc.Title,
		"version":   doc.Version,
		"createdAt": time.Now().Format(time.RFC3339),
	})
}

// Get GET /v1/docs/:docID 当前状态，与订阅同一套鉴权
func (h *Documents) Get(c *gin.Context) {
	userID := c.GetUint64("userId")
	docID := c.Param("docID")

	doc, err := h.svc.GetDocument(c.Request.Context(), userID, docID)
	if err != nil {
		if errors.Is(err, collab.ErrNotFound) || errors.Is(err, collab.ErrForbidden) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found or access denied"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load document failed"})
		return
	}

	collaborators := make([]gin.H, 0, len(doc.Collaborators))
	for _, col := range doc.Collaborators {
		collaborators = append(collaborators, gin.H{"user": col.UserID, "role": col.Role})
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             doc.ID,
		"title":          doc.Title,
		"content":        doc.Content,
		"version":        doc.Version,
		"createdBy":      doc.CreatedBy,
		"lastModifiedBy": doc.LastModifiedBy,
		"isPublic":       doc.IsPublic,
		"collaborators":  collaborators,
		"createdAt":      doc.CreatedAt,
		"updatedAt":      doc.UpdatedAt,
	})
}
