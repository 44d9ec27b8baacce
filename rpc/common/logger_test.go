package common

import (
	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"testing"
)

func TestZapLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newZapLogger("transport/rpc", core)

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	if logs.Len() != 1 || logs.All()[0].Message != "shown 2" {
		t.Fatalf("info level: got %v", logs.AllUntimed())
	}
	if name := logs.All()[0].LoggerName; name != "transport/rpc" {
		t.Errorf("logger name = %q", name)
	}

	l.SetLevel(logger.ERROR)
	l.Warningf("dropped")
	l.Errorf("kept")
	entries := logs.TakeAll()
	if len(entries) != 2 || entries[1].Message != "kept" || entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("error level: got %v", entries)
	}

	l.SetLevel(logger.DEBUG)
	l.Debugf("now visible")
	if logs.Len() != 1 {
		t.Errorf("debug level: got %d entries", logs.Len())
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logger.LogLevel
		wantErr bool
	}{
		{"debug", logger.DEBUG, false},
		{"INFO", logger.INFO, false},
		{"", logger.INFO, false},
		{"warn", logger.WARNING, false},
		{"error", logger.ERROR, false},
		{"loud", logger.INFO, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("got %v, %v", got, err)
			}
		})
	}
}
