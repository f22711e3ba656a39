package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"personnage-gallery/internal/app"
)

const notFoundMessage = "Ce personnage n'existe pas."

type PageHandler struct {
	imageService *app.ImageService
}

func NewPageHandler(imageService *app.ImageService) *PageHandler {
	return &PageHandler{imageService: imageService}
}

func (h *PageHandler) Home(c *gin.Context) {
	images, err := h.imageService.ListImages(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("list images for home failed")
		renderError(c, http.StatusInternalServerError, "Impossible de charger les personnages.")
		return
	}
	c.HTML(http.StatusOK, "home.html", gin.H{
		"Title": "Accueil",
		"Count": len(images),
	})
}

func (h *PageHandler) Import(c *gin.Context) {
	c.HTML(http.StatusOK, "import.html", gin.H{"Title": "Nouveau personnage"})
}

func (h *PageHandler) Gallery(c *gin.Context) {
	images, err := h.imageService.ListImages(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("list images for gallery failed")
		renderError(c, http.StatusInternalServerError, "Impossible de charger la galerie.")
		return
	}
	c.HTML(http.StatusOK, "galerie.html", gin.H{
		"Title":  "Galerie",
		"Images": images,
	})
}

func (h *PageHandler) Card(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		renderError(c, http.StatusNotFound, notFoundMessage)
		return
	}

	image, err := h.imageService.GetImage(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, app.ErrImageNotFound) {
			renderError(c, http.StatusNotFound, notFoundMessage)
			return
		}
		log.WithError(err).WithField("id", id).Error("get image for card failed")
		renderError(c, http.StatusInternalServerError, "Impossible de charger ce personnage.")
		return
	}
	c.HTML(http.StatusOK, "carte.html", gin.H{
		"Title": image.Name,
		"Image": image,
	})
}

func (h *PageHandler) NotFound(c *gin.Context) {
	renderError(c, http.StatusNotFound, "Page introuvable.")
}

func renderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error.html", gin.H{
		"Title":   http.StatusText(status),
		"Status":  status,
		"Message": message,
	})
}

// parseID reads a positive numeric :id path parameter.
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
