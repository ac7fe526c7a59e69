// Package logging adapts zap and logrus loggers to dfu.Logger.
package logging
