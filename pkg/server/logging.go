package server

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging sends the standard logger to stderr and, when log_file is
// set, to a size-rotated file as well. The returned closer flushes the file.
func SetupLogging(c *Conf) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if c.LogFile == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}
	lj := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	log.Printf("Logging to %s (max %d MB, %d backups)", c.LogFile, c.LogMaxSizeMB, c.LogMaxBackups)
	return lj
}
