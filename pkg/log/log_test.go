package log

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/groveml/grove/pkg/errors"
)

func TestTestLoggerCapture(t *testing.T) {
	logger, buffer := NewTestLogger(LevelDebug)

	logger.Debug("expanding node", DepthKey, 3, SamplesKey, 42)
	logger.Info("fit complete", TreesKey, 10)
	logger.Error("fit failed", ErrAttrKey, fmt.Errorf("bad split"))

	if buffer.Len() == 0 {
		t.Fatal("expected log output, got empty buffer")
	}

	if !logger.ContainsMessage("expanding node") {
		t.Error("debug message not captured")
	}
	if !logger.ContainsField(TreesKey, 10.0) { // JSON numbers decode as float64
		t.Errorf("expected %s=10 in output", TreesKey)
	}
	if !logger.ContainsField(ErrAttrKey, "bad split") {
		t.Error("error field not captured")
	}
}

func TestTestLoggerWith(t *testing.T) {
	logger, _ := NewTestLogger(LevelInfo)

	scoped := logger.With(ModelNameKey, "DecisionTreeClassifier")
	scoped.Info("training started", OperationKey, "fit")

	tl := scoped.(*TestLogger)
	if !tl.ContainsField(ModelNameKey, "DecisionTreeClassifier") {
		t.Error("With field not propagated to log entries")
	}
	if !tl.ContainsField(OperationKey, "fit") {
		t.Error("call-site field missing from log entries")
	}
}

func TestTestLoggerLevelFiltering(t *testing.T) {
	logger, buffer := NewTestLogger(LevelWarn)

	logger.Debug("too detailed")
	logger.Info("still too detailed")
	logger.Warn("worth hearing about")

	out := buffer.String()
	if strings.Contains(out, "too detailed") {
		t.Error("messages below the level threshold were captured")
	}
	if !strings.Contains(out, "worth hearing about") {
		t.Error("warn message missing")
	}
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)

	logger.Info("forest trained", TreesKey, 25, OOBErrorKey, 0.04)

	out := buf.String()
	if !strings.Contains(out, "forest trained") {
		t.Fatalf("message missing from zerolog output: %s", out)
	}
	if !strings.Contains(out, TreesKey) {
		t.Errorf("expected %s attribute in output: %s", TreesKey, out)
	}
}

func TestGetLoggerWithName(t *testing.T) {
	provider, _ := NewTestLoggerProvider(LevelDebug)
	SetProvider(provider)
	defer SetProvider(&slogProvider{level: LevelInfo})

	logger := GetLoggerWithName("tree.decision_tree")
	logger.Info("hello")

	if !provider.logger.ContainsField(ComponentKey, "tree.decision_tree") {
		t.Error("component name not attached by provider")
	}
}

// fixedProvider hands out one pre-built logger regardless of name.
type fixedProvider struct {
	logger Logger
}

func (p *fixedProvider) GetLogger() Logger { return p.logger }
func (p *fixedProvider) GetLoggerWithName(name string) Logger { return p.logger }
func (p *fixedProvider) SetLevel(level Level) {}

func TestSetupLoggerRoutesWarnings(t *testing.T) {
	SetupLogger("warn")
	defer errors.SetZerologWarnFunc(nil)

	logger, _ := NewTestLogger(LevelDebug)
	SetProvider(&fixedProvider{logger: logger})
	defer SetProvider(&slogProvider{level: LevelInfo})

	errors.Warn(errors.NewDataConversionWarning("float64", "int", "non-integral class label truncated"))

	if !logger.ContainsMessage("non-integral class label truncated") {
		t.Error("warning not routed to the logging provider")
	}
	if !logger.ContainsField(WarningKey, "data converted from float64 to int. Reason: non-integral class label truncated") {
		t.Errorf("expected %s field on the warning entry", WarningKey)
	}
}
