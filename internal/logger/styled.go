package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/kestrelworks/aviary/internal/core/domain"
	"github.com/kestrelworks/aviary/theme"
)

// StyledLogger wraps slog.Logger with Theme-aware formatting
type StyledLogger struct {
	logger *slog.Logger
	Theme  *theme.Theme
}

func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		Theme:  theme,
	}
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithAccount(msg string, account string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Account}.Sprint(account))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithAccount(msg string, account string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Account}.Sprint(account))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) ErrorWithAccount(msg string, account string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Account}.Sprint(account))
	sl.logger.Error(styledMsg, args...)
}

// InfoAccountStatus logs a health-status transition with the status colour
// taken from the theme.
func (sl *StyledLogger) InfoAccountStatus(msg string, account string, status domain.AccountStatus, args ...any) {
	var statusColor pterm.Color
	var statusText string

	switch status {
	case domain.StatusHealthy:
		statusColor = sl.Theme.StatusHealthy
		statusText = "Healthy"
	case domain.StatusProbation:
		statusColor = sl.Theme.StatusProbation
		statusText = "Probation"
	case domain.StatusCooldown:
		statusColor = sl.Theme.StatusCooldown
		statusText = "Cooldown"
	case domain.StatusDisabled:
		statusColor = sl.Theme.StatusDisabled
		statusText = "Disabled"
	case domain.StatusLocked:
		statusColor = sl.Theme.StatusLocked
		statusText = "Locked"
	}
	styledMsg := fmt.Sprintf("%s %s is %s", msg,
		pterm.Style{sl.Theme.Account}.Sprint(account),
		pterm.Style{statusColor}.Sprint(statusText))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		Theme:  sl.Theme,
	}
}

func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}
