// Package api serves the stored records read-only over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"pkg.mon.icu/oracle/internal/redis"
	"pkg.mon.icu/oracle/internal/storage"
)

type Config struct {
	Port uint16
}

func NewConfig(port uint16) *Config {
	return &Config{Port: port}
}

// DeadLetterSource lists recent dead letters.
type DeadLetterSource interface {
	DeadLetters(ctx context.Context, n int64) ([]redis.DeadLetter, error)
}

type API struct {
	ctx         context.Context
	logger      *zap.SugaredLogger
	repos       storage.Repositories
	deadLetters DeadLetterSource
	router      *gin.Engine
	serv        *http.Server
}

func NewAPI(ctx context.Context, logger *zap.SugaredLogger, repos storage.Repositories, config *Config) *API {
	a := &API{
		ctx:    ctx,
		logger: logger,
		repos:  repos,
		router: gin.New(),
	}
	a.router.Use(gin.Recovery())
	a.serv = &http.Server{Addr: fmt.Sprintf(":%d", config.Port), Handler: a.router}
	a.register()
	return a
}

// WithDeadLetters exposes GET /deadletters.
func (a *API) WithDeadLetters(src DeadLetterSource) *API {
	a.deadLetters = src
	return a
}

func (a *API) register() {
	a.registerGetHealth()
	registerGetRecord(a, "/users/:id", a.repos.Users, newUserModel)
	registerGetRecord(a, "/guilds/:id", a.repos.Guilds, newGuildModel)
	registerGetRecord(a, "/channels/:id", a.repos.Channels, newChannelModel)
	registerGetRecord(a, "/messages/:id", a.repos.Messages, newMessageModel)
	registerGetRecord(a, "/roles/:id", a.repos.Roles, newRoleModel)
	a.registerGetDeadLetters()
}

func (a *API) Listen() {
	go func() {
		a.logger.Infof("Serving API on %s.", a.serv.Addr)
		if err := a.serv.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				a.logger.Errorf("Server returned with error: %s.", err)
			}
		}
	}()
}

func (a *API) Close() error {
	return a.serv.Close()
}
