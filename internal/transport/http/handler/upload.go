package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"personnage-gallery/internal/ai"
	"personnage-gallery/internal/app"
	"personnage-gallery/internal/upload"
)

const (
	uploadField = "image"

	// Optional name kept when the model does not come up with one.
	nameField = "nom"

	// Room for multipart boundaries and headers on top of the file itself.
	multipartOverhead = 1 << 20
)

type UploadHandler struct {
	imageService *app.ImageService
	maxBytes     int64
	debug        bool
}

func NewUploadHandler(imageService *app.ImageService, maxBytes int64, debug bool) *UploadHandler {
	return &UploadHandler{
		imageService: imageService,
		maxBytes:     maxBytes,
		debug:        debug,
	}
}

// Upload stores the image, asks the model for a character and redirects to
// its card. Every failure re-renders the upload form.
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	header, err := h.formFile(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.renderForm(c, http.StatusRequestEntityTooLarge, h.failureMessage(upload.ErrFileTooLarge), "")
			return
		}
		log.WithError(err).Warn("read multipart form failed")
		h.renderForm(c, http.StatusBadRequest, h.failureMessage(upload.ErrNoFile), "")
		return
	}

	image, err := h.imageService.Upload(c.Request.Context(), header, c.PostForm(nameField))
	if err != nil {
		raw := ""
		var uploadErr *app.UploadError
		if h.debug && errors.As(err, &uploadErr) {
			raw = uploadErr.Raw
		}
		h.renderForm(c, failureStatus(err), h.failureMessage(err), raw)
		return
	}

	c.Redirect(http.StatusSeeOther, fmt.Sprintf("/carte/%d", image.ID))
}

// formFile returns a nil header when no image part was sent, and an empty
// one when the part carried no filename.
func (h *UploadHandler) formFile(c *gin.Context) (*multipart.FileHeader, error) {
	header, err := c.FormFile(uploadField)
	if err == nil {
		return header, nil
	}
	if errors.Is(err, http.ErrMissingFile) {
		if form := c.Request.MultipartForm; form != nil {
			if _, ok := form.Value[uploadField]; ok {
				return &multipart.FileHeader{}, nil
			}
		}
		return nil, nil
	}
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	return nil, err
}

func (h *UploadHandler) renderForm(c *gin.Context, status int, message, raw string) {
	c.HTML(status, "import.html", gin.H{
		"Title": "Nouveau personnage",
		"Error": message,
		"Raw":   raw,
	})
}

func failureStatus(err error) int {
	switch {
	case errors.Is(err, upload.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrNoFile),
		errors.Is(err, upload.ErrEmptyFilename),
		errors.Is(err, upload.ErrFileTypeNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrInference),
		errors.Is(err, ai.ErrNoJSONFound),
		errors.Is(err, ai.ErrMalformedJSON):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *UploadHandler) failureMessage(err error) string {
	switch {
	case errors.Is(err, upload.ErrNoFile):
		return "Aucun fichier envoyé"
	case errors.Is(err, upload.ErrEmptyFilename):
		return "Aucun fichier sélectionné"
	case errors.Is(err, upload.ErrFileTypeNotAllowed):
		return "Format de fichier non autorisé (png, jpg, jpeg, gif)"
	case errors.Is(err, upload.ErrFileTooLarge):
		if h.maxBytes >= 1<<20 {
			return fmt.Sprintf("Fichier trop volumineux (%d Mo max)", h.maxBytes>>20)
		}
		return "Fichier trop volumineux"
	case errors.Is(err, app.ErrStorage):
		return "Erreur lors de la sauvegarde du fichier"
	case errors.Is(err, app.ErrInference):
		return "Le service d'IA ne répond pas, réessayez plus tard"
	case errors.Is(err, ai.ErrNoJSONFound):
		return "Impossible de lire la réponse de l'IA"
	case errors.Is(err, ai.ErrMalformedJSON):
		return "La réponse de l'IA est mal formée"
	case errors.Is(err, app.ErrPersistence):
		return "Erreur lors de l'enregistrement du personnage"
	default:
		return "Une erreur inattendue est survenue"
	}
}
