// Package logging defines the minimal structured logging contract shared by
// all slotflow components plus adapters for slog and zap. See logger.go for
// the Logger interface and EngineLogger conveniences.
package logging
