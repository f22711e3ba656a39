package http

import (
	"html/template"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appsvc "personnage-gallery/internal/app"
	"personnage-gallery/internal/bootstrap"
	"personnage-gallery/internal/cache"
	"personnage-gallery/internal/repository"
	"personnage-gallery/internal/transport/http/handler"
	"personnage-gallery/internal/transport/http/middleware"
	"personnage-gallery/internal/upload"
	"personnage-gallery/web"
)

const uploadedImagesPath = "/uploaded_images"

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedExtensions([]string{".png", ".jpg", ".jpeg", ".gif"})))
	if len(app.Config.CORS.AllowOrigins) > 0 {
		router.Use(corsMiddleware(app.Config.CORS.AllowOrigins))
	}

	router.MaxMultipartMemory = app.Config.Upload.MaxBytes
	router.SetHTMLTemplate(mustParseTemplates())
	router.Static(uploadedImagesPath, app.Store.Dir())

	imageRepo := repository.NewImageRepository(app.DB)
	var galleryCache appsvc.GalleryCache
	if app.Redis != nil {
		galleryCache = cache.NewGalleryCache(app.Redis, app.Config.GalleryTTL())
	}
	imageService := appsvc.NewImageService(
		imageRepo,
		upload.NewValidator(app.Config.Upload.MaxBytes),
		app.Store,
		app.Inference,
		galleryCache,
		app.Metrics,
	)

	pageHandler := handler.NewPageHandler(imageService)
	uploadHandler := handler.NewUploadHandler(imageService, app.Config.Upload.MaxBytes, app.Config.App.Debug)
	imageHandler := handler.NewImageHandler(imageService)
	healthHandler := handler.NewHealthHandler(app)

	router.GET("/", pageHandler.Home)
	router.GET("/import", pageHandler.Import)
	router.GET("/galerie", pageHandler.Gallery)
	router.GET("/carte/:id", pageHandler.Card)
	router.POST("/upload_personnage", uploadHandler.Upload)
	router.DELETE("/delete_image/:id", imageHandler.Delete)
	router.NoRoute(pageHandler.NotFound)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Metrics.Registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	imageGroup := v1.Group("/images")
	imageGroup.GET("", imageHandler.List)
	imageGroup.GET("/:id", imageHandler.Get)
	imageGroup.DELETE("/:id", imageHandler.Delete)

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	})
}

func mustParseTemplates() *template.Template {
	funcs := template.FuncMap{
		"imageURL": func(filename string) string {
			return uploadedImagesPath + "/" + url.PathEscape(filename)
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(web.Templates, "templates/*.html"))
}
