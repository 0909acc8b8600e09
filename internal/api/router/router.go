package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tranvd/jobflow-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "jobflow-api",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		resources := v1.Group("/resources/:resource_id")
		{
			// POST /api/v1/resources/:resource_id/jobs - Submit a job
			resources.POST("/jobs", jobHandler.SubmitJob)

			// GET /api/v1/resources/:resource_id/jobs/latest - Latest job status
			resources.GET("/jobs/latest", jobHandler.GetJobStatus)
		}

		// GET /api/v1/jobs - Job history with filtering and pagination
		v1.GET("/jobs", jobHandler.ListJobs)
	}

	return r
}
