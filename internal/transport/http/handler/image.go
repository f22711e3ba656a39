package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"personnage-gallery/internal/app"
	"personnage-gallery/internal/transport/http/response"
)

type ImageHandler struct {
	imageService *app.ImageService
}

func NewImageHandler(imageService *app.ImageService) *ImageHandler {
	return &ImageHandler{imageService: imageService}
}

func (h *ImageHandler) List(c *gin.Context) {
	images, err := h.imageService.ListImages(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("list images failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list images failed")
		return
	}
	response.OK(c, images)
}

func (h *ImageHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		response.Error(c, http.StatusNotFound, response.CodeImageNotFound, app.ErrImageNotFound.Error())
		return
	}

	image, err := h.imageService.GetImage(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrImageNotFound):
			response.Error(c, http.StatusNotFound, response.CodeImageNotFound, err.Error())
		default:
			log.WithError(err).WithField("id", id).Error("get image failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get image failed")
		}
		return
	}
	response.OK(c, image)
}

func (h *ImageHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		response.Error(c, http.StatusNotFound, response.CodeImageNotFound, app.ErrImageNotFound.Error())
		return
	}

	image, err := h.imageService.DeleteImage(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrImageNotFound):
			response.Error(c, http.StatusNotFound, response.CodeImageNotFound, err.Error())
		case errors.Is(err, app.ErrStorage):
			log.WithError(err).WithField("id", id).Error("remove image file failed")
			response.Error(c, http.StatusInternalServerError, response.CodeStorage, "remove image file failed")
		default:
			log.WithError(err).WithField("id", id).Error("delete image failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete image failed")
		}
		return
	}
	response.OK(c, image)
}
