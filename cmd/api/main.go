package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"dev.veil.experiment/internal/database"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.Parse()

	log := logrus.New()

	if *databaseURL == "" {
		log.Fatal("missing -database-url (or DATABASE_URL)")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *databaseURL)
	if err != nil {
		log.WithError(err).Fatal("Database connection failed")
	}
	defer pool.Close()

	repo := database.NewExperimentRepository(pool, log)
	if err := repo.CreateTable(ctx); err != nil {
		log.WithError(err).Fatal("Schema setup failed")
	}

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r.GET("/v1/experiments", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		summaries, err := repo.ListRecent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summaries)
	})

	r.GET("/v1/experiments/:id", func(c *gin.Context) {
		results, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, results)
	})

	if err := r.Run(*addr); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}
