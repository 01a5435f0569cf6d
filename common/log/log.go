// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"net/url"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = newDevelopmentLogger()

func newDevelopmentLogger() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return l
}

// Logger returns the process-wide logger.
func Logger() *zap.Logger {
	return logger
}

// RunLogger returns a logger tagged with an evaluation run.
func RunLogger(runId string) *zap.Logger {
	return logger.With(zap.String("run_id", runId))
}

// Sync flushes buffered log entries.
func Sync() {
	_ = logger.Sync()
}

// AddFlags registers logging flags of usercf commands.
func AddFlags(flagSet *pflag.FlagSet) {
	flagSet.String("log-path", "", "path of log file")
	flagSet.Int("log-max-size", 100, "maximum size in megabytes of the log file")
	flagSet.Int("log-max-age", 0, "maximum number of days to retain old log files")
	flagSet.Int("log-max-backups", 0, "maximum number of old log files to retain")
}

// SetLogger replaces the logger. Debug mode writes console entries at debug level, otherwise
// JSON entries at info level are written. Entries go to stderr and, if --log-path is set, to
// a rotated file.
func SetLogger(flagSet *pflag.FlagSet, debug bool) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	encoderConfig := zap.NewProductionEncoderConfig()
	newEncoder := zapcore.NewJSONEncoder
	if debug {
		level.SetLevel(zap.DebugLevel)
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		newEncoder = zapcore.NewConsoleEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	sink := zapcore.Lock(os.Stderr)
	if file := fileSink(flagSet); file != nil {
		sink = zap.CombineWriteSyncers(sink, file)
	}
	logger = zap.New(zapcore.NewCore(newEncoder(encoderConfig), sink, level))
}

func fileSink(flagSet *pflag.FlagSet) zapcore.WriteSyncer {
	if !flagSet.Changed("log-path") {
		return nil
	}
	path, _ := flagSet.GetString("log-path")
	maxSize, _ := flagSet.GetInt("log-max-size")
	maxAge, _ := flagSet.GetInt("log-max-age")
	maxBackups, _ := flagSet.GetInt("log-max-backups")
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxAge:     maxAge,
		MaxBackups: maxBackups,
	})
}

const mysqlPrefix = "mysql://"

// RedactDBURL masks credentials of a data store URL before it is logged.
func RedactDBURL(rawURL string) string {
	mask := func(s string) string {
		return strings.Repeat("x", len(s))
	}
	if dsn, ok := strings.CutPrefix(rawURL, mysqlPrefix); ok {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return rawURL
		}
		cfg.User, cfg.Passwd = mask(cfg.User), mask(cfg.Passwd)
		return mysqlPrefix + cfg.FormatDSN()
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.User == nil {
		return rawURL
	}
	password, _ := parsed.User.Password()
	parsed.User = url.UserPassword(mask(parsed.User.Username()), mask(password))
	return parsed.String()
}
