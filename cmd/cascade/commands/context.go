package commands

import (
	"context"

	"go.uber.org/zap"

	"github.com/carebridge/shift-cascade/internal/config"
	"github.com/carebridge/shift-cascade/pkg/core/cascade"
	"github.com/carebridge/shift-cascade/pkg/core/sweeper"
	"github.com/carebridge/shift-cascade/pkg/db"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg      *config.Config
	Database db.Database
	Engine   *cascade.Engine
	Sweeper  *sweeper.Sweeper
	Logger   *zap.Logger
	Ctx      context.Context
}
